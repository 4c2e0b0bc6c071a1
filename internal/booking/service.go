package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/money"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

var (
	// ErrItemUnavailable rejects a checkout containing an item that
	// cannot be booked. The whole checkout fails; no partial orders.
	ErrItemUnavailable = errors.New("item is not available")

	// ErrEmptyCheckout rejects a checkout with no items.
	ErrEmptyCheckout = errors.New("checkout has no items")

	// ErrNotCancellable is returned when a booking is already cancelled
	// or completed.
	ErrNotCancellable = errors.New("booking cannot be cancelled")
)

// DBLayer is the persistence surface the booking service needs.
type DBLayer interface {
	CreateBooking(ctx context.Context, booking models.Booking) error
	CreateBookings(ctx context.Context, bookings []models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByOrderID(ctx context.Context, orderID string) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, booking models.Booking) error
	SetOrderPaymentReference(ctx context.Context, orderID, reference string) error
	CreateCheckoutRequest(ctx context.Context, req models.CheckoutRequest) error
	GetCheckoutRequestByID(ctx context.Context, id string) (*models.CheckoutRequest, error)
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
}

// AvailabilityChecker validates items before money is requested.
type AvailabilityChecker interface {
	CheckItem(ctx context.Context, check models.AvailabilityCheck) (*models.AvailabilityResult, error)
}

// DepositGateway initiates provider deposits.
type DepositGateway interface {
	InitiateDeposit(ctx context.Context, req gateway.DepositRequest) (*gateway.DepositResponse, error)
}

// RefundQuoter prices a cancellation after it is applied.
type RefundQuoter interface {
	GetRefundInfo(ctx context.Context, bookingID, orderID string) (*models.RefundResult, error)
}

// CheckoutItemRequest is one item the guest wants to book.
type CheckoutItemRequest struct {
	ItemType string    `json:"item_type"`
	ItemID   string    `json:"item_id"`
	CheckIn  time.Time `json:"check_in,omitempty"`
	CheckOut time.Time `json:"check_out,omitempty"`
}

// CheckoutSubmission is the full checkout payload.
type CheckoutSubmission struct {
	GuestID       string                `json:"guest_id"`
	PhoneNumber   string                `json:"phone_number"`
	Provider      string                `json:"provider"`
	PaymentMethod string                `json:"payment_method"`
	Items         []CheckoutItemRequest `json:"items"`
}

// CheckoutResponse reports the created bookings and the deposit that
// will pay for them.
type CheckoutResponse struct {
	OrderID          string              `json:"order_id,omitempty"`
	BookingIDs       []string            `json:"booking_ids"`
	DepositID        string              `json:"deposit_id,omitempty"`
	TotalAmount      float64             `json:"total_amount"`
	Currency         string              `json:"currency"`
	PaymentStatus    models.PaymentState `json:"payment_status"`
	PaymentInitiated bool                `json:"payment_initiated"`
	PaymentError     string              `json:"payment_error,omitempty"`
}

// Service orchestrates checkout, payment initiation and cancellation.
type Service struct {
	db           DBLayer
	availability AvailabilityChecker
	gateway      DepositGateway
	refunds      RefundQuoter
	log          *logger.Logger
}

func NewService(db DBLayer, availability AvailabilityChecker, gw DepositGateway, refunds RefundQuoter, log *logger.Logger) *Service {
	return &Service{
		db:           db,
		availability: availability,
		gateway:      gw,
		refunds:      refunds,
		log:          log,
	}
}

// Checkout validates every item, snapshots prices and policies, creates
// the bookings and initiates the deposit. Prices come from the listing
// at this moment and are frozen into the booking; later listing edits
// do not change what the guest owes or their refund terms.
func (s *Service) Checkout(ctx context.Context, submission CheckoutSubmission) (*CheckoutResponse, error) {
	if len(submission.Items) == 0 {
		return nil, ErrEmptyCheckout
	}

	type pricedItem struct {
		request CheckoutItemRequest
		listing *models.Listing
		fees    money.FeeBreakdown
	}

	priced := make([]pricedItem, 0, len(submission.Items))
	var totalAmount float64
	var currency string

	for _, item := range submission.Items {
		result, err := s.availability.CheckItem(ctx, models.AvailabilityCheck{
			ItemType: item.ItemType,
			ItemID:   item.ItemID,
			CheckIn:  item.CheckIn,
			CheckOut: item.CheckOut,
		})
		if err != nil {
			return nil, err
		}
		if !result.Available {
			return nil, fmt.Errorf("%w: %s %s: %s", ErrItemUnavailable, item.ItemType, item.ItemID, result.Reason)
		}

		listing, err := s.db.GetListingByID(ctx, item.ItemID)
		if err != nil {
			return nil, err
		}

		fees := money.ApplyGuestFee(listing.Price, serviceTypeFor(item.ItemType))
		priced = append(priced, pricedItem{request: item, listing: listing, fees: fees})

		if currency == "" {
			currency = listing.Currency
		} else if currency != listing.Currency {
			s.log.Warn("BOOKING", fmt.Sprintf("Checkout mixes currencies %s and %s", currency, listing.Currency))
		}
		totalAmount += fees.Total
	}
	totalAmount = money.RoundToCurrencyPrecision(totalAmount, currency)

	// Single-item checkouts carry no order id; the booking alone is the
	// payment unit. Multi-item checkouts share one order id so the
	// deposit outcome lands on every sibling atomically.
	orderID := ""
	if len(priced) > 1 {
		orderID = utils.NewOrderID()
	}

	bookings := make([]models.Booking, 0, len(priced))
	bookingIDs := make([]string, 0, len(priced))
	snapshots := make([]models.CheckoutItem, 0, len(priced))
	now := time.Now()

	for _, p := range priced {
		booking := models.Booking{
			ID:                     utils.NewBookingID(),
			OrderID:                orderID,
			GuestID:                submission.GuestID,
			HostID:                 p.listing.HostID,
			CheckIn:                p.request.CheckIn,
			CheckOut:               p.request.CheckOut,
			TotalPrice:             money.RoundToCurrencyPrecision(p.fees.Total, p.listing.Currency),
			Currency:               p.listing.Currency,
			Status:                 models.BookingPendingConfirmation,
			PaymentStatus:          models.PaymentPending,
			CancellationPolicyType: p.listing.CancellationPolicyType,
			CreatedAt:              now,
		}
		switch p.request.ItemType {
		case "tour":
			booking.TourID = p.request.ItemID
		case "transport":
			booking.TransportID = p.request.ItemID
		default:
			booking.PropertyID = p.request.ItemID
		}
		bookings = append(bookings, booking)
		bookingIDs = append(bookingIDs, booking.ID)

		snapshots = append(snapshots, models.CheckoutItem{
			ItemType:   p.request.ItemType,
			ItemID:     p.request.ItemID,
			HostID:     p.listing.HostID,
			Price:      p.listing.Price,
			Currency:   p.listing.Currency,
			PolicyType: string(p.listing.CancellationPolicyType),
			CheckIn:    formatDate(p.request.CheckIn),
			CheckOut:   formatDate(p.request.CheckOut),
		})
	}

	if orderID != "" {
		checkout := models.CheckoutRequest{
			ID:            orderID,
			GuestID:       submission.GuestID,
			PaymentMethod: submission.PaymentMethod,
			PaymentStatus: models.PaymentPending,
			PhoneNumber:   submission.PhoneNumber,
			Metadata:      models.CheckoutMetadata{Items: snapshots},
			CreatedAt:     now,
		}
		if err := s.db.CreateCheckoutRequest(ctx, checkout); err != nil {
			return nil, fmt.Errorf("failed to create checkout request: %w", err)
		}
		if err := s.db.CreateBookings(ctx, bookings); err != nil {
			return nil, fmt.Errorf("failed to create bookings: %w", err)
		}
	} else {
		if err := s.db.CreateBooking(ctx, bookings[0]); err != nil {
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
	}

	s.log.LogBooking("CHECKOUT", bookingIDs[0], fmt.Sprintf("Created %d booking(s), total %.2f %s", len(bookings), totalAmount, currency))

	response := &CheckoutResponse{
		OrderID:       orderID,
		BookingIDs:    bookingIDs,
		TotalAmount:   totalAmount,
		Currency:      currency,
		PaymentStatus: models.PaymentPending,
	}

	depositID := utils.NewDepositID()
	metadata := []models.CallbackMetadataField{
		{FieldName: "bookingId", FieldValue: bookingIDs[0]},
	}
	if orderID != "" {
		metadata = append(metadata, models.CallbackMetadataField{FieldName: "orderId", FieldValue: orderID})
	}

	_, err := s.gateway.InitiateDeposit(ctx, gateway.DepositRequest{
		DepositID:     depositID,
		Amount:        money.FormatAmount(totalAmount, currency),
		Currency:      currency,
		Correspondent: submission.Provider,
		Payer: gateway.DepositPayer{
			Type:    "MSISDN",
			Address: gateway.DepositAddress{Value: submission.PhoneNumber},
		},
		StatementDesc: "Merry Moments booking",
		Metadata:      metadata,
	})
	if err != nil {
		// The bookings exist and stay pending; the guest can retry
		// payment without redoing checkout.
		s.log.Warn("BOOKING", "Deposit initiation failed for checkout: "+err.Error())
		response.PaymentError = err.Error()
		return response, nil
	}

	if orderID != "" {
		if err := s.db.SetOrderPaymentReference(ctx, orderID, depositID); err != nil {
			return nil, fmt.Errorf("failed to stamp payment reference: %w", err)
		}
	} else {
		booking := bookings[0]
		booking.PaymentReference = depositID
		booking.PaymentStatus = models.PaymentAwaitingCallback
		if err := s.db.UpdateBooking(ctx, booking); err != nil {
			return nil, fmt.Errorf("failed to stamp payment reference: %w", err)
		}
	}

	response.DepositID = depositID
	response.PaymentStatus = models.PaymentAwaitingCallback
	response.PaymentInitiated = true
	return response, nil
}

// CancelBooking marks a booking cancelled and quotes the refund the
// guest is owed under the policy snapshot. Cancelling twice returns the
// same terminal answer.
func (s *Service) CancelBooking(ctx context.Context, bookingID string) (*models.Booking, *models.RefundResult, error) {
	booking, err := s.db.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	switch booking.Status {
	case models.BookingCancelled:
		quote, err := s.refunds.GetRefundInfo(ctx, bookingID, booking.OrderID)
		if err != nil {
			return nil, nil, err
		}
		return booking, quote, nil
	case models.BookingCompleted:
		return nil, nil, fmt.Errorf("%w: stay already completed", ErrNotCancellable)
	}

	booking.Status = models.BookingCancelled
	if err := s.db.UpdateBooking(ctx, *booking); err != nil {
		return nil, nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	s.log.LogBooking("CANCEL", bookingID, "Booking cancelled by guest")

	quote, err := s.refunds.GetRefundInfo(ctx, bookingID, booking.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return booking, quote, nil
}

// GetBooking returns one booking by id.
func (s *Service) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.db.GetBookingByID(ctx, bookingID)
}

// OrderSummary pairs a checkout request with its sibling bookings.
type OrderSummary struct {
	Order    *models.CheckoutRequest `json:"order"`
	Bookings []models.Booking        `json:"bookings"`
}

// GetOrder returns the checkout request and every sibling booking it
// created.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*OrderSummary, error) {
	checkout, err := s.db.GetCheckoutRequestByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.db.GetBookingsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderSummary{Order: checkout, Bookings: bookings}, nil
}

func serviceTypeFor(itemType string) models.ServiceType {
	switch itemType {
	case "tour":
		return models.ServiceTour
	case "transport":
		return models.ServiceTransport
	default:
		return models.ServiceAccommodation
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

var _ DBLayer = (*bookingdb.DB)(nil)
