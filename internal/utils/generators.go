package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// NewBookingID generates a unique booking identifier.
func NewBookingID() string {
	return fmt.Sprintf("bkg_%s", uuid.NewString())
}

// NewOrderID generates a unique checkout/order identifier.
func NewOrderID() string {
	return fmt.Sprintf("ord_%s", uuid.NewString())
}

// NewDepositID generates the client-side deposit id sent to the
// provider when initiating a payment.
func NewDepositID() string {
	return uuid.NewString()
}

// NewPayoutID generates the client-side payout id.
func NewPayoutID() string {
	return uuid.NewString()
}
