package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/Merry-360-x/merry-moments-sub004/internal/logger"
	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
	"github.com/Merry-360-x/merry-moments-sub004/internal/money"
)

// BookingReader is the slice of the booking layer refund calculation
// needs.
type BookingReader interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByOrderID(ctx context.Context, orderID string) ([]models.Booking, error)
}

// Service computes refund quotes from the policy snapshot taken at
// booking time. It never moves money and never persists anything.
type Service struct {
	bookings BookingReader
	log      *logger.Logger
	now      func() time.Time
}

func NewService(bookings BookingReader, log *logger.Logger) *Service {
	return &Service{
		bookings: bookings,
		log:      log,
		now:      time.Now,
	}
}

// NewServiceWithClock allows tests to pin the evaluation time.
func NewServiceWithClock(bookings BookingReader, log *logger.Logger, now func() time.Time) *Service {
	return &Service{bookings: bookings, log: log, now: now}
}

// daysUntil counts whole calendar days between now and the check-in
// date. Both sides truncate to midnight so a cancellation at 23:59
// still counts the full day.
func daysUntil(now, checkIn time.Time) int {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	checkInDay := time.Date(checkIn.Year(), checkIn.Month(), checkIn.Day(), 0, 0, 0, 0, time.UTC)
	return int(checkInDay.Sub(nowDay).Hours() / 24)
}

// eligible reports whether a booking can produce a refund quote: only
// cancelled bookings that were actually paid carry money to return.
func eligible(b *models.Booking) bool {
	return b.Status == models.BookingCancelled && b.PaymentStatus == models.PaymentPaid
}

// CalculateBookingRefund quotes the refund for one booking. An
// ineligible booking yields (nil, nil): no quote, but not an error.
func (s *Service) CalculateBookingRefund(ctx context.Context, bookingID string) (*models.RefundResult, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.quoteBooking(booking), nil
}

func (s *Service) quoteBooking(booking *models.Booking) *models.RefundResult {
	if !eligible(booking) {
		return nil
	}

	days := daysUntil(s.now(), booking.CheckIn)
	tier := money.RefundTierFor(booking.CancellationPolicyType, days)
	amount := money.RoundToCurrencyPrecision(booking.TotalPrice*tier.Percentage/100, booking.Currency)

	s.log.LogBooking("REFUND_QUOTE", booking.ID,
		fmt.Sprintf("%d days before check-in under %s policy: %.2f%% of %.2f %s",
			days, booking.CancellationPolicyType, tier.Percentage, booking.TotalPrice, booking.Currency))

	return &models.RefundResult{
		RefundAmount:     amount,
		RefundPercentage: tier.Percentage,
		PolicyType:       booking.CancellationPolicyType,
		Description:      tier.Description,
		Currency:         booking.Currency,
	}
}

// CalculateBulkOrderRefund aggregates refund quotes over all sibling
// bookings of an order. Amounts sum; the percentage reported is the
// plain mean across eligible siblings. The currency comes from the
// first eligible sibling; a mixed-currency order is logged but still
// summed.
func (s *Service) CalculateBulkOrderRefund(ctx context.Context, orderID string) (*models.RefundResult, error) {
	bookings, err := s.bookings.GetBookingsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		totalAmount  float64
		totalPercent float64
		currency     string
		bookingIDs   []string
		policy       models.PolicyType
		description  string
	)

	for i := range bookings {
		quote := s.quoteBooking(&bookings[i])
		if quote == nil {
			continue
		}
		if currency == "" {
			currency = quote.Currency
			policy = quote.PolicyType
			description = quote.Description
		} else if currency != quote.Currency {
			s.log.Warn("REFUND", fmt.Sprintf("Order %s mixes currencies %s and %s in refund aggregate", orderID, currency, quote.Currency))
		}
		totalAmount += quote.RefundAmount
		totalPercent += quote.RefundPercentage
		bookingIDs = append(bookingIDs, bookings[i].ID)
	}

	if len(bookingIDs) == 0 {
		return nil, nil
	}

	return &models.RefundResult{
		RefundAmount:     money.RoundToCurrencyPrecision(totalAmount, currency),
		RefundPercentage: totalPercent / float64(len(bookingIDs)),
		PolicyType:       policy,
		Description:      description,
		Currency:         currency,
		BookingIDs:       bookingIDs,
	}, nil
}

// GetRefundInfo is the single entry point for refund quotes. The
// dispatch on orderID happens before any booking lookup: the bulk path
// tolerates partially ineligible siblings, the single path does not.
func (s *Service) GetRefundInfo(ctx context.Context, bookingID, orderID string) (*models.RefundResult, error) {
	if orderID != "" {
		return s.CalculateBulkOrderRefund(ctx, orderID)
	}
	return s.CalculateBookingRefund(ctx, bookingID)
}
