package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingdb "github.com/Merry-360-x/merry-moments-sub004/internal/booking/db"
	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

// ErrInvalidDateRange rejects property checks whose interval is empty
// or inverted.
var ErrInvalidDateRange = errors.New("check-out must be after check-in")

// ErrNotConfirmable is returned when a booking cannot move to
// confirmed, either because of its state or because its dates were
// taken in the meantime.
var ErrNotConfirmable = errors.New("booking cannot be confirmed")

// Store is the slice of the booking layer availability needs.
type Store interface {
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
	GetOverlappingBookings(ctx context.Context, propertyID string, checkIn, checkOut time.Time) ([]models.Booking, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingPayment(ctx context.Context, bookingID string, status models.BookingStatus, payment models.PaymentState) error
}

// Service answers whether items can be booked. Properties check both
// publication and date conflicts; tours, transport and packages have no
// exclusive dates so publication alone decides. Checks never write.
type Service struct {
	store Store
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// CheckAvailability evaluates every item independently; one unavailable
// item does not short-circuit the rest.
func (s *Service) CheckAvailability(ctx context.Context, checks []models.AvailabilityCheck) ([]models.AvailabilityResult, error) {
	results := make([]models.AvailabilityResult, 0, len(checks))
	for _, check := range checks {
		result, err := s.CheckItem(ctx, check)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// CheckItem evaluates a single item.
func (s *Service) CheckItem(ctx context.Context, check models.AvailabilityCheck) (*models.AvailabilityResult, error) {
	result := &models.AvailabilityResult{
		ItemType: check.ItemType,
		ItemID:   check.ItemID,
	}

	listing, err := s.store.GetListingByID(ctx, check.ItemID)
	if errors.Is(err, bookingdb.ErrNotFound) {
		result.Reason = "Listing does not exist"
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if !listing.Published {
		result.Reason = "Listing is not published"
		return result, nil
	}

	if check.ItemType == "property" {
		if !check.CheckOut.After(check.CheckIn) {
			return nil, ErrInvalidDateRange
		}
		conflicts, err := s.store.GetOverlappingBookings(ctx, check.ItemID, check.CheckIn, check.CheckOut)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			s.log.LogBooking("UNAVAILABLE", check.ItemID, fmt.Sprintf("%d conflicting bookings for requested dates", len(conflicts)))
			result.Reason = "Dates are already booked"
			return result, nil
		}
	}

	result.Available = true
	result.AutoConfirm = true
	return result, nil
}

// AutoConfirmBooking re-checks the booking's availability and moves it
// to confirmed. Confirming an already confirmed booking is a no-op
// success; a conflicting booking created in the meantime blocks the
// transition without mutating anything.
func (s *Service) AutoConfirmBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.BookingConfirmed {
		return booking, nil
	}
	if booking.Status != models.BookingPendingConfirmation {
		return nil, fmt.Errorf("%w: booking is %s", ErrNotConfirmable, booking.Status)
	}

	if booking.PropertyID != "" {
		conflicts, err := s.store.GetOverlappingBookings(ctx, booking.PropertyID, booking.CheckIn, booking.CheckOut)
		if err != nil {
			return nil, err
		}
		for _, c := range conflicts {
			if c.ID != booking.ID {
				return nil, fmt.Errorf("%w: dates taken by booking %s", ErrNotConfirmable, c.ID)
			}
		}
	}

	if err := s.store.UpdateBookingPayment(ctx, bookingID, models.BookingConfirmed, booking.PaymentStatus); err != nil {
		return nil, err
	}

	s.log.LogBooking("AUTO_CONFIRM", bookingID, "Booking auto-confirmed")

	booking.Status = models.BookingConfirmed
	return booking, nil
}
