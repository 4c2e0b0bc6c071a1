package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/gateway"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/payment/storage"
)

var (
	// ErrBookingNotFound is returned when a callback cannot be tied to
	// any booking, neither via metadata nor via the stored deposit id.
	ErrBookingNotFound = errors.New("no booking found for deposit")

	// ErrTerminalConflict is returned when a deposit already has a
	// different terminal status recorded. First observation wins; the
	// conflicting report is logged for investigation, never applied.
	ErrTerminalConflict = errors.New("conflicting terminal status for deposit")

	// ErrDepositBusy is returned when another worker holds the
	// reconciliation lock for the deposit. Safe to retry.
	ErrDepositBusy = errors.New("deposit is being reconciled by another worker")
)

// failureDescriptions normalizes provider error codes into messages
// that can be shown to guests.
var failureDescriptions = map[string]string{
	"PAYER_LIMIT_REACHED":   "Wallet limit exceeded",
	"PAYER_NOT_FOUND":       "Mobile money account not found",
	"INSUFFICIENT_BALANCE":  "Insufficient funds in wallet",
	"PAYMENT_NOT_APPROVED":  "Payment was not approved",
	"TRANSACTION_TIMED_OUT": "Payment timed out, no funds were taken",
	"DEPOSIT_LIMIT_REACHED": "Deposit limit reached for this wallet",
	"OTHER_ERROR":           "Payment failed at the provider",
	"UNSPECIFIED_FAILURE":   "Payment failed at the provider",
}

// NormalizeFailureReason maps a provider failure to a guest-facing
// description, keeping the raw code when it is unknown.
func NormalizeFailureReason(failure *models.CallbackFailure) string {
	if failure == nil {
		return ""
	}
	if desc, ok := failureDescriptions[failure.ErrorCode]; ok {
		return desc
	}
	if failure.ErrorMessage != "" {
		return failure.ErrorMessage
	}
	return failure.ErrorCode
}

// BookingStore is the slice of the booking layer reconciliation needs.
type BookingStore interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByOrderID(ctx context.Context, orderID string) ([]models.Booking, error)
	GetBookingByPaymentReference(ctx context.Context, reference string) (*models.Booking, error)
	GetCheckoutRequestByPaymentReference(ctx context.Context, reference string) (*models.CheckoutRequest, error)
	UpdateBookingPayment(ctx context.Context, bookingID string, status models.BookingStatus, payment models.PaymentState) error
	UpdateOrderBookingsPayment(ctx context.Context, orderID string, status models.BookingStatus, payment models.PaymentState) error
}

// TransactionStore persists the per-deposit transaction log.
type TransactionStore interface {
	SaveTransaction(tx *models.PaymentTransaction) error
	GetTransaction(transactionID string) (*models.PaymentTransaction, error)
	MarkTerminal(tx *models.PaymentTransaction) (bool, error)
}

// Locker serializes workers reconciling the same deposit.
type Locker interface {
	Acquire(ctx context.Context, depositID string) (bool, error)
	Release(ctx context.Context, depositID string) error
}

// EventPublisher emits domain events after a terminal transition is
// applied for the first time.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, booking *models.Booking) error
	PublishPaymentFailed(ctx context.Context, depositID, reason string, booking *models.Booking) error
}

// StatusPoller fetches the current deposit status from the provider.
type StatusPoller interface {
	GetDepositStatus(ctx context.Context, depositID string) (*gateway.DepositResponse, error)
}

// Result describes the outcome of reconciling one status report.
type Result struct {
	DepositID      string                `json:"depositId"`
	BookingID      string                `json:"bookingId,omitempty"`
	OrderID        string                `json:"orderId,omitempty"`
	ProviderStatus models.ProviderStatus `json:"providerStatus"`
	BookingStatus  models.BookingStatus  `json:"bookingStatus"`
	PaymentStatus  models.PaymentState   `json:"paymentStatus"`
	FailureReason  string                `json:"failureReason,omitempty"`
	// AlreadyApplied is true when this report repeated a terminal
	// status that had been reconciled before. No side effects ran.
	AlreadyApplied bool `json:"alreadyApplied"`
}

// Service drives payment state reconciliation. Status reports arrive
// from callbacks and from polling; both funnel through the same
// transition logic so the outcome never depends on which path ran
// first or how many times a report was delivered.
type Service struct {
	bookings  BookingStore
	store     TransactionStore
	lock      Locker
	publisher EventPublisher
	poller    StatusPoller
	log       *logger.Logger
}

func NewService(bookings BookingStore, store TransactionStore, lock Locker, publisher EventPublisher, poller StatusPoller, log *logger.Logger) *Service {
	return &Service{
		bookings:  bookings,
		store:     store,
		lock:      lock,
		publisher: publisher,
		poller:    poller,
		log:       log,
	}
}

// HandleCallback reconciles a provider push notification.
func (s *Service) HandleCallback(ctx context.Context, payload []byte) (*Result, error) {
	cb, err := models.ParseDepositCallback(payload)
	if err != nil {
		return nil, err
	}

	s.log.LogGateway("CALLBACK", cb.DepositID, "Received callback with status "+string(cb.Status))

	amount := parseAmount(cb.Amount)
	return s.applyTransition(ctx, transition{
		depositID:     cb.DepositID,
		status:        cb.Status,
		amount:        amount,
		currency:      cb.Currency,
		failureReason: NormalizeFailureReason(cb.FailureReason),
		rawPayload:    string(payload),
		bookingHint:   cb.MetadataValue("bookingId"),
		orderHint:     cb.MetadataValue("orderId"),
	})
}

// PollDepositStatus fetches the current status from the provider and
// reconciles it through the same transition logic as callbacks. Used
// when a callback never arrived.
func (s *Service) PollDepositStatus(ctx context.Context, depositID string) (*Result, error) {
	resp, err := s.poller.GetDepositStatus(ctx, depositID)
	if err != nil {
		return nil, err
	}

	s.log.LogGateway("POLL_RESULT", depositID, "Provider reports status "+string(resp.Status))

	return s.applyTransition(ctx, transition{
		depositID:     depositID,
		status:        resp.Status,
		amount:        parseAmount(resp.RequestedAmount),
		currency:      resp.Currency,
		failureReason: NormalizeFailureReason(resp.FailureReason),
	})
}

type transition struct {
	depositID     string
	status        models.ProviderStatus
	amount        float64
	currency      string
	failureReason string
	rawPayload    string
	bookingHint   string
	orderHint     string
}

// applyTransition is the single entry point for every status report.
// It holds the per-deposit lock across the idempotency check and the
// write, so two simultaneous reports for the same deposit serialize.
func (s *Service) applyTransition(ctx context.Context, t transition) (*Result, error) {
	acquired, err := s.lock.Acquire(ctx, t.depositID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock deposit: %w", err)
	}
	if !acquired {
		return nil, ErrDepositBusy
	}
	defer func() {
		if err := s.lock.Release(context.Background(), t.depositID); err != nil {
			s.log.Warn("RECONCILE", "Failed to release lock for "+t.depositID+": "+err.Error())
		}
	}()

	booking, err := s.resolveBooking(ctx, t)
	if err != nil {
		return nil, err
	}

	// Unknown statuses are recorded for audit but never move booking
	// state. A newer provider vocabulary must not corrupt bookings.
	if !t.status.IsKnown() {
		s.log.Warn("RECONCILE", fmt.Sprintf("Unknown provider status %q for deposit %s, recording without state change", t.status, t.depositID))
		_ = s.store.SaveTransaction(s.buildTransaction(t, booking))
		return &Result{
			DepositID:      t.depositID,
			BookingID:      booking.ID,
			OrderID:        booking.OrderID,
			ProviderStatus: t.status,
			BookingStatus:  booking.Status,
			PaymentStatus:  booking.PaymentStatus,
		}, nil
	}

	existing, err := s.store.GetTransaction(t.depositID)
	if err != nil && !errors.Is(err, storage.ErrTransactionNotFound) {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	if existing != nil && existing.Status.IsTerminal() {
		if existing.Status == t.status {
			s.log.LogGateway("DUPLICATE", t.depositID, "Terminal status "+string(t.status)+" already applied")
			return s.readConfirm(ctx, t, booking, existing)
		}
		s.log.Error("RECONCILE", fmt.Sprintf("Deposit %s already %s, refusing conflicting %s", t.depositID, existing.Status, t.status))
		return nil, fmt.Errorf("%w: recorded %s, received %s", ErrTerminalConflict, existing.Status, t.status)
	}

	if !t.status.IsTerminal() {
		if err := s.store.SaveTransaction(s.buildTransaction(t, booking)); err != nil {
			return nil, fmt.Errorf("failed to save transaction: %w", err)
		}
		// A non-terminal report still moves the booking into the
		// waiting state, so guests see "payment pending" while the
		// provider processes.
		if booking.OrderID != "" {
			if err := s.bookings.UpdateOrderBookingsPayment(ctx, booking.OrderID, models.BookingPendingConfirmation, models.PaymentPending); err != nil {
				return nil, fmt.Errorf("failed to update order bookings: %w", err)
			}
		} else {
			if err := s.bookings.UpdateBookingPayment(ctx, booking.ID, models.BookingPendingConfirmation, models.PaymentPending); err != nil {
				return nil, fmt.Errorf("failed to update booking: %w", err)
			}
		}
		return &Result{
			DepositID:      t.depositID,
			BookingID:      booking.ID,
			OrderID:        booking.OrderID,
			ProviderStatus: t.status,
			BookingStatus:  models.BookingPendingConfirmation,
			PaymentStatus:  models.PaymentPending,
		}, nil
	}

	return s.applyTerminal(ctx, t, booking)
}

// applyTerminal writes the terminal status through the store's
// compare-and-set and, when this call won the write, moves bookings and
// publishes events. A lost CAS means another worker applied a terminal
// status between our read and write.
func (s *Service) applyTerminal(ctx context.Context, t transition, booking *models.Booking) (*Result, error) {
	applied, err := s.store.MarkTerminal(s.buildTransaction(t, booking))
	if err != nil {
		return nil, fmt.Errorf("failed to mark transaction terminal: %w", err)
	}

	if !applied {
		recorded, err := s.store.GetTransaction(t.depositID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read transaction after lost write: %w", err)
		}
		if recorded.Status == t.status {
			return s.readConfirm(ctx, t, booking, recorded)
		}
		return nil, fmt.Errorf("%w: recorded %s, received %s", ErrTerminalConflict, recorded.Status, t.status)
	}

	bookingStatus, paymentStatus := mapTerminalStatus(t.status)

	if booking.OrderID != "" {
		if err := s.bookings.UpdateOrderBookingsPayment(ctx, booking.OrderID, bookingStatus, paymentStatus); err != nil {
			return nil, fmt.Errorf("failed to update order bookings: %w", err)
		}
	} else {
		if err := s.bookings.UpdateBookingPayment(ctx, booking.ID, bookingStatus, paymentStatus); err != nil {
			return nil, fmt.Errorf("failed to update booking: %w", err)
		}
	}

	s.log.LogBooking("RECONCILED", booking.ID, fmt.Sprintf("Deposit %s %s, booking now %s/%s", t.depositID, t.status, bookingStatus, paymentStatus))

	s.publishOutcome(ctx, t, booking)

	return &Result{
		DepositID:      t.depositID,
		BookingID:      booking.ID,
		OrderID:        booking.OrderID,
		ProviderStatus: t.status,
		BookingStatus:  bookingStatus,
		PaymentStatus:  paymentStatus,
		FailureReason:  t.failureReason,
	}, nil
}

// readConfirm answers a duplicate terminal report with the current
// state without running any side effects again.
func (s *Service) readConfirm(ctx context.Context, t transition, booking *models.Booking, recorded *models.PaymentTransaction) (*Result, error) {
	current, err := s.bookings.GetBookingByID(ctx, booking.ID)
	if err != nil {
		// Fall back to the booking we already resolved.
		current = booking
	}
	return &Result{
		DepositID:      t.depositID,
		BookingID:      current.ID,
		OrderID:        current.OrderID,
		ProviderStatus: recorded.Status,
		BookingStatus:  current.Status,
		PaymentStatus:  current.PaymentStatus,
		FailureReason:  recorded.FailureReason,
		AlreadyApplied: true,
	}, nil
}

func (s *Service) publishOutcome(ctx context.Context, t transition, booking *models.Booking) {
	if s.publisher == nil {
		return
	}
	var err error
	if t.status == models.ProviderCompleted {
		err = s.publisher.PublishBookingConfirmed(ctx, booking)
	} else {
		err = s.publisher.PublishPaymentFailed(ctx, t.depositID, t.failureReason, booking)
	}
	if err != nil {
		// Event delivery is best effort; the transaction log is the
		// source of truth and events can be replayed from it.
		s.log.Warn("KAFKA", "Failed to publish payment outcome for "+t.depositID+": "+err.Error())
	}
}

// resolveBooking ties a status report to a booking. Metadata hints are
// preferred: a bookingId hint resolves directly, an orderId hint
// resolves through the order's sibling bookings. Without hints the
// deposit id is matched against the payment references stamped at
// checkout, first on bookings, then on the checkout request for bulk
// deposits initiated before their bookings carried a reference.
func (s *Service) resolveBooking(ctx context.Context, t transition) (*models.Booking, error) {
	if t.bookingHint != "" {
		booking, err := s.bookings.GetBookingByID(ctx, t.bookingHint)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, bookingdb.ErrNotFound) {
			return nil, err
		}
	}

	if t.orderHint != "" {
		booking, err := s.firstOrderBooking(ctx, t.orderHint)
		if err != nil {
			return nil, err
		}
		if booking != nil {
			return booking, nil
		}
	}

	booking, err := s.bookings.GetBookingByPaymentReference(ctx, t.depositID)
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, bookingdb.ErrNotFound) {
		return nil, err
	}

	checkout, err := s.bookings.GetCheckoutRequestByPaymentReference(ctx, t.depositID)
	if errors.Is(err, bookingdb.ErrNotFound) {
		return nil, fmt.Errorf("%w: deposit %s", ErrBookingNotFound, t.depositID)
	}
	if err != nil {
		return nil, err
	}
	booking, err = s.firstOrderBooking(ctx, checkout.ID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: deposit %s", ErrBookingNotFound, t.depositID)
	}
	return booking, nil
}

// firstOrderBooking returns the oldest sibling booking of an order, or
// nil when the order has none. Sibling order is stable (created_at),
// so every report for the same deposit resolves to the same booking.
func (s *Service) firstOrderBooking(ctx context.Context, orderID string) (*models.Booking, error) {
	siblings, err := s.bookings.GetBookingsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, nil
	}
	return &siblings[0], nil
}

func (s *Service) buildTransaction(t transition, booking *models.Booking) *models.PaymentTransaction {
	amount := t.amount
	currency := t.currency
	if amount == 0 {
		amount = booking.TotalPrice
	}
	if currency == "" {
		currency = booking.Currency
	}
	return &models.PaymentTransaction{
		TransactionID:       t.depositID,
		BookingID:           booking.ID,
		OrderID:             booking.OrderID,
		Amount:              amount,
		Currency:            currency,
		Provider:            "pawapay",
		Status:              t.status,
		FailureReason:       t.failureReason,
		ProviderResponseRaw: t.rawPayload,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
}

// mapTerminalStatus translates the provider vocabulary into booking
// state. Every failure flavor keeps the booking pending so the guest
// can retry payment.
func mapTerminalStatus(status models.ProviderStatus) (models.BookingStatus, models.PaymentState) {
	if status == models.ProviderCompleted {
		return models.BookingConfirmed, models.PaymentPaid
	}
	return models.BookingPendingConfirmation, models.PaymentFailed
}

func parseAmount(raw string) float64 {
	if raw == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return amount
}
