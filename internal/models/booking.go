package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPendingConfirmation BookingStatus = "pending_confirmation"
	BookingConfirmed           BookingStatus = "confirmed"
	BookingCancelled           BookingStatus = "cancelled"
	BookingCompleted           BookingStatus = "completed"
)

type PaymentState string

const (
	PaymentPending          PaymentState = "pending"
	PaymentPaid             PaymentState = "paid"
	PaymentFailed           PaymentState = "failed"
	PaymentAwaitingCallback PaymentState = "awaiting_callback"
)

type ServiceType string

const (
	ServiceAccommodation ServiceType = "accommodation"
	ServiceTour          ServiceType = "tour"
	ServiceTransport     ServiceType = "transport"
)

type PolicyType string

const (
	PolicyFlexible      PolicyType = "flexible"
	PolicyModerate      PolicyType = "moderate"
	PolicyStandard      PolicyType = "standard"
	PolicyStrict        PolicyType = "strict"
	PolicyFair          PolicyType = "fair"
	PolicyNonRefundable PolicyType = "non_refundable"
)

// Booking is one bookable line item. Exactly one of PropertyID, TourID
// or TransportID is set. CancellationPolicyType is snapshotted from the
// listing at creation time so later listing edits cannot change the
// refund terms of an existing booking.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                     string        `bun:"id,pk" json:"id"`
	OrderID                string        `bun:"order_id,nullzero" json:"order_id,omitempty"`
	GuestID                string        `bun:"guest_id,nullzero" json:"guest_id,omitempty"`
	HostID                 string        `bun:"host_id,notnull" json:"host_id"`
	PropertyID             string        `bun:"property_id,nullzero" json:"property_id,omitempty"`
	TourID                 string        `bun:"tour_id,nullzero" json:"tour_id,omitempty"`
	TransportID            string        `bun:"transport_id,nullzero" json:"transport_id,omitempty"`
	CheckIn                time.Time     `bun:"check_in,notnull" json:"check_in"`
	CheckOut               time.Time     `bun:"check_out,notnull" json:"check_out"`
	TotalPrice             float64       `bun:"total_price,notnull" json:"total_price"`
	Currency               string        `bun:"currency,notnull" json:"currency"`
	Status                 BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus          PaymentState  `bun:"payment_status,notnull" json:"payment_status"`
	PaymentReference       string        `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	CancellationPolicyType PolicyType    `bun:"cancellation_policy_type,nullzero" json:"cancellation_policy_type,omitempty"`
	CreatedAt              time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt              time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// ServiceType derives the fee-schedule key from whichever listing id is set.
func (b *Booking) ServiceType() ServiceType {
	switch {
	case b.TourID != "":
		return ServiceTour
	case b.TransportID != "":
		return ServiceTransport
	default:
		return ServiceAccommodation
	}
}

// CheckoutItem is the denormalized price snapshot of one item taken at
// checkout submission. It is the authoritative source for per-item
// pricing since listing prices can change later.
type CheckoutItem struct {
	ItemType   string  `json:"item_type"`
	ItemID     string  `json:"item_id"`
	HostID     string  `json:"host_id"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	PolicyType string  `json:"policy_type,omitempty"`
	CheckIn    string  `json:"check_in,omitempty"`
	CheckOut   string  `json:"check_out,omitempty"`
}

type CheckoutMetadata struct {
	Items []CheckoutItem `json:"items"`
}

// CheckoutRequest groups the guest-facing payment intent before
// bookings are finalized. Its ID is used as the order id shared by
// sibling bookings.
type CheckoutRequest struct {
	bun.BaseModel `bun:"table:checkout_requests"`

	ID               string           `bun:"id,pk" json:"id"`
	GuestID          string           `bun:"guest_id,nullzero" json:"guest_id,omitempty"`
	PaymentMethod    string           `bun:"payment_method,notnull" json:"payment_method"`
	PaymentStatus    PaymentState     `bun:"payment_status,notnull" json:"payment_status"`
	PaymentReference string           `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	PhoneNumber      string           `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	Metadata         CheckoutMetadata `bun:"metadata,type:jsonb" json:"metadata"`
	CreatedAt        time.Time        `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time        `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Listing is the minimal projection of a bookable item needed by the
// availability checker and checkout snapshotting.
type Listing struct {
	bun.BaseModel `bun:"table:listings"`

	ID                     string     `bun:"id,pk" json:"id"`
	ItemType               string     `bun:"item_type,notnull" json:"item_type"`
	HostID                 string     `bun:"host_id,notnull" json:"host_id"`
	Published              bool       `bun:"published,notnull" json:"published"`
	Price                  float64    `bun:"price,notnull" json:"price"`
	Currency               string     `bun:"currency,notnull" json:"currency"`
	CancellationPolicyType PolicyType `bun:"cancellation_policy_type,nullzero" json:"cancellation_policy_type,omitempty"`
}
