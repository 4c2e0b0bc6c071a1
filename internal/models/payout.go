package models

import "time"

type PayoutStatus string

const (
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Payout mirrors the inbound deposit structures for the reverse
// platform-to-host money flow.
type Payout struct {
	ID               string       `json:"id"`
	BookingID        string       `json:"booking_id,omitempty"`
	HostID           string       `json:"host_id,omitempty"`
	Amount           float64      `json:"amount"`
	Currency         string       `json:"currency"`
	PhoneNumber      string       `json:"phone_number"`
	Provider         string       `json:"provider"`
	Status           PayoutStatus `json:"status"`
	ProviderPayoutID string       `json:"provider_payout_id,omitempty"`
	FailureReason    string       `json:"failure_reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// PayoutRequest initiates a platform-to-host transfer. Either an
// explicit amount or a bookingId must be set; with a bookingId the
// amount is derived from the booking's host earnings.
type PayoutRequest struct {
	PayoutID    string  `json:"payoutId"`
	BookingID   string  `json:"bookingId,omitempty"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PhoneNumber string  `json:"phoneNumber"`
	Provider    string  `json:"provider"`
	Description string  `json:"description,omitempty"`
	HostID      string  `json:"hostId,omitempty"`
}

type PayoutResult struct {
	PayoutID         string         `json:"payoutId"`
	ProviderPayoutID string         `json:"pawapayPayoutId"`
	Status           PayoutStatus   `json:"status"`
	ProviderStatus   ProviderStatus `json:"pawapayStatus"`
	FailureMessage   string         `json:"failureMessage,omitempty"`
}
