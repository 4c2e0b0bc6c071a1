package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Merry-360-x/merry-moments-sub004/internal/config"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/money"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payment/storage"
	"github.com/Merry-360-x/merry-moments-sub004/internal/utils"
)

var (
	// ErrBelowMinimum rejects payouts under the configured floor
	// before any provider call is made.
	ErrBelowMinimum = errors.New("payout amount below minimum")

	// ErrInvalidPayout rejects requests missing required fields.
	ErrInvalidPayout = errors.New("invalid payout request")
)

// PayoutStore persists payout records.
type PayoutStore interface {
	SavePayout(payout *models.Payout) error
	GetPayout(id string) (*models.Payout, error)
	UpdatePayout(payout *models.Payout) error
}

// BookingReader resolves bookings for earnings-derived payouts.
type BookingReader interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
}

// Gateway is the provider surface the payout flow needs.
type Gateway interface {
	InitiatePayout(ctx context.Context, req models.PayoutRequest) (*gateway.PayoutResponse, error)
	GetPayoutStatus(ctx context.Context, payoutID string) (*gateway.PayoutResponse, error)
}

// EventPublisher emits an event when a payout reaches completed.
type EventPublisher interface {
	PublishPayoutCompleted(ctx context.Context, payout *models.Payout) error
}

// Service moves money from the platform to hosts through the provider.
type Service struct {
	store     PayoutStore
	bookings  BookingReader
	gateway   Gateway
	publisher EventPublisher
	cfg       config.PawaPayConfig
	log       *logger.Logger
}

func NewService(store PayoutStore, bookings BookingReader, gw Gateway, publisher EventPublisher, cfg config.PawaPayConfig, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		bookings:  bookings,
		gateway:   gw,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// InitiatePayout validates and submits a payout. Validation failures
// never reach the provider. Re-submitting an existing payout id returns
// its current state instead of paying twice.
func (s *Service) InitiatePayout(ctx context.Context, req models.PayoutRequest) (*models.PayoutResult, error) {
	if req.PhoneNumber == "" || req.Provider == "" {
		return nil, fmt.Errorf("%w: phoneNumber and provider are required", ErrInvalidPayout)
	}
	if req.BookingID != "" && req.Amount == 0 {
		if err := s.deriveFromBooking(ctx, &req); err != nil {
			return nil, err
		}
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidPayout)
	}
	if req.Amount < s.cfg.MinPayoutAmount {
		s.log.Warn("PAYOUT", fmt.Sprintf("Rejected payout of %.2f %s, below minimum %.2f", req.Amount, req.Currency, s.cfg.MinPayoutAmount))
		return nil, fmt.Errorf("%w: %.2f is below the %.2f minimum", ErrBelowMinimum, req.Amount, s.cfg.MinPayoutAmount)
	}

	if req.PayoutID == "" {
		req.PayoutID = utils.NewPayoutID()
	} else if existing, err := s.store.GetPayout(req.PayoutID); err == nil {
		s.log.Info("PAYOUT", "Payout "+req.PayoutID+" already submitted, returning current state")
		return resultFromRecord(existing), nil
	} else if !errors.Is(err, storage.ErrPayoutNotFound) {
		return nil, err
	}

	record := &models.Payout{
		ID:          req.PayoutID,
		BookingID:   req.BookingID,
		HostID:      req.HostID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PhoneNumber: req.PhoneNumber,
		Provider:    req.Provider,
		Status:      models.PayoutProcessing,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.store.SavePayout(record); err != nil {
		return nil, fmt.Errorf("failed to save payout: %w", err)
	}

	resp, err := s.gateway.InitiatePayout(ctx, req)
	if err != nil {
		if errors.Is(err, gateway.ErrProviderRejected) {
			record.Status = models.PayoutFailed
			record.FailureReason = err.Error()
			if updateErr := s.store.UpdatePayout(record); updateErr != nil {
				s.log.Error("PAYOUT", "Failed to record payout rejection: "+updateErr.Error())
			}
			return resultFromRecord(record), nil
		}
		// Transient failure: the submission may or may not have
		// reached the provider, so the record stays processing and the
		// status poll settles it later.
		return nil, err
	}

	return s.applyProviderStatus(ctx, record, resp)
}

// deriveFromBooking fills the payout amount from the host's share of a
// paid booking: the booked total minus the platform fee for its service
// type.
func (s *Service) deriveFromBooking(ctx context.Context, req *models.PayoutRequest) error {
	booking, err := s.bookings.GetBookingByID(ctx, req.BookingID)
	if err != nil {
		return err
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return fmt.Errorf("%w: booking %s is not paid", ErrInvalidPayout, booking.ID)
	}

	fees := money.ApplyProviderFee(booking.TotalPrice, booking.ServiceType())
	req.Amount = money.RoundToCurrencyPrecision(fees.Net, booking.Currency)
	if req.Currency == "" {
		req.Currency = booking.Currency
	}
	if req.HostID == "" {
		req.HostID = booking.HostID
	}

	s.log.Info("PAYOUT", fmt.Sprintf("Derived payout of %.2f %s for booking %s (gross %.2f, fee %.2f)",
		req.Amount, req.Currency, booking.ID, fees.Gross, fees.Fee))
	return nil
}

// GetPayoutStatus returns the payout's current state, polling the
// provider while it is still processing.
func (s *Service) GetPayoutStatus(ctx context.Context, id string) (*models.PayoutResult, error) {
	record, err := s.store.GetPayout(id)
	if err != nil {
		return nil, err
	}

	if record.Status != models.PayoutProcessing {
		return resultFromRecord(record), nil
	}

	resp, err := s.gateway.GetPayoutStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.applyProviderStatus(ctx, record, resp)
}

func (s *Service) applyProviderStatus(ctx context.Context, record *models.Payout, resp *gateway.PayoutResponse) (*models.PayoutResult, error) {
	record.ProviderPayoutID = resp.PayoutID
	record.UpdatedAt = time.Now()

	switch {
	case resp.Status == models.ProviderCompleted:
		record.Status = models.PayoutCompleted
	case resp.Status == models.ProviderFailed || resp.Status == models.ProviderRejected || resp.Status == models.ProviderCancelled:
		record.Status = models.PayoutFailed
		if resp.FailureReason != nil {
			record.FailureReason = resp.FailureReason.ErrorMessage
			if record.FailureReason == "" {
				record.FailureReason = resp.FailureReason.ErrorCode
			}
		}
	default:
		record.Status = models.PayoutProcessing
	}

	if err := s.store.UpdatePayout(record); err != nil {
		return nil, fmt.Errorf("failed to update payout: %w", err)
	}

	s.log.LogGateway("PAYOUT_STATE", record.ID, fmt.Sprintf("Provider %s, payout now %s", resp.Status, record.Status))

	if record.Status == models.PayoutCompleted && s.publisher != nil {
		if err := s.publisher.PublishPayoutCompleted(ctx, record); err != nil {
			s.log.Warn("KAFKA", "Failed to publish payout completion for "+record.ID+": "+err.Error())
		}
	}

	result := resultFromRecord(record)
	result.ProviderStatus = resp.Status
	return result, nil
}

func resultFromRecord(record *models.Payout) *models.PayoutResult {
	return &models.PayoutResult{
		PayoutID:         record.ID,
		ProviderPayoutID: record.ProviderPayoutID,
		Status:           record.Status,
		FailureMessage:   record.FailureReason,
	}
}
