package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

// ErrNotFound is returned when a booking, checkout request or listing
// does not exist.
var ErrNotFound = errors.New("record not found")

type DB struct {
	Bun *bun.DB
}

// ---------------- BOOKINGS ----------------

func (d *DB) CreateBooking(ctx context.Context, booking models.Booking) error {
	_, err := d.Bun.NewInsert().Model(&booking).Exec(ctx)
	return err
}

// CreateBookings inserts all sibling bookings of one order in a single
// transaction so a crash cannot leave a partial order behind.
func (d *DB) CreateBookings(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&bookings).Exec(ctx)
		return err
	})
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetBookingsByOrderID(ctx context.Context, orderID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetBookingByPaymentReference resolves a provider deposit id back to
// its booking when the callback carries no metadata.
func (d *DB) GetBookingByPaymentReference(ctx context.Context, reference string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("payment_reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) UpdateBooking(ctx context.Context, booking models.Booking) error {
	booking.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&booking).
		Column("status", "payment_status", "payment_reference", "updated_at").
		Where("id = ?", booking.ID).
		Exec(ctx)
	return err
}

// UpdateBookingPayment sets the booking and payment status of a single
// booking.
func (d *DB) UpdateBookingPayment(ctx context.Context, bookingID string, status models.BookingStatus, payment models.PaymentState) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", status).
		Set("payment_status = ?", payment).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookingID).
		Exec(ctx)
	return err
}

// UpdateOrderBookingsPayment applies one payment outcome to every
// sibling booking of an order atomically. A mixed-state order is a
// correctness bug, so all rows move in one transaction.
func (d *DB) UpdateOrderBookingsPayment(ctx context.Context, orderID string, status models.BookingStatus, payment models.PaymentState) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", status).
			Set("payment_status = ?", payment).
			Set("updated_at = ?", time.Now()).
			Where("order_id = ?", orderID).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.CheckoutRequest)(nil)).
			Set("payment_status = ?", payment).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", orderID).
			Exec(ctx)
		return err
	})
}

// SetOrderPaymentReference stamps the provider deposit id on the
// checkout request and all its bookings after a deposit is initiated.
func (d *DB) SetOrderPaymentReference(ctx context.Context, orderID, reference string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("payment_reference = ?", reference).
			Set("payment_status = ?", models.PaymentAwaitingCallback).
			Set("updated_at = ?", time.Now()).
			Where("order_id = ?", orderID).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewUpdate().
			Model((*models.CheckoutRequest)(nil)).
			Set("payment_reference = ?", reference).
			Set("payment_status = ?", models.PaymentAwaitingCallback).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", orderID).
			Exec(ctx)
		return err
	})
}

// GetOverlappingBookings returns active bookings for a property whose
// stay conflicts with the half-open interval [checkIn, checkOut).
func (d *DB) GetOverlappingBookings(ctx context.Context, propertyID string, checkIn, checkOut time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("property_id = ?", propertyID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingConfirmed, models.BookingPendingConfirmation})).
		Where("check_in < ?", checkOut).
		Where("check_out > ?", checkIn).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ---------------- CHECKOUT REQUESTS ----------------

func (d *DB) CreateCheckoutRequest(ctx context.Context, req models.CheckoutRequest) error {
	_, err := d.Bun.NewInsert().Model(&req).Exec(ctx)
	return err
}

func (d *DB) GetCheckoutRequestByID(ctx context.Context, id string) (*models.CheckoutRequest, error) {
	var req models.CheckoutRequest
	err := d.Bun.NewSelect().
		Model(&req).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (d *DB) GetCheckoutRequestByPaymentReference(ctx context.Context, reference string) (*models.CheckoutRequest, error) {
	var req models.CheckoutRequest
	err := d.Bun.NewSelect().
		Model(&req).
		Where("payment_reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ---------------- LISTINGS ----------------

func (d *DB) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	err := d.Bun.NewSelect().
		Model(&listing).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}
