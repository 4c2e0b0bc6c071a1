package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ProviderStatus is the pawaPay deposit/payout status vocabulary.
type ProviderStatus string

const (
	ProviderAccepted  ProviderStatus = "ACCEPTED"
	ProviderSubmitted ProviderStatus = "SUBMITTED"
	ProviderEnqueued  ProviderStatus = "ENQUEUED"
	ProviderCompleted ProviderStatus = "COMPLETED"
	ProviderFailed    ProviderStatus = "FAILED"
	ProviderRejected  ProviderStatus = "REJECTED"
	ProviderCancelled ProviderStatus = "CANCELLED"
)

// IsTerminal reports whether the status ends the payment attempt.
// ACCEPTED, SUBMITTED and ENQUEUED may be observed any number of times.
func (s ProviderStatus) IsTerminal() bool {
	switch s {
	case ProviderCompleted, ProviderFailed, ProviderRejected, ProviderCancelled:
		return true
	}
	return false
}

// IsKnown reports whether the status belongs to the provider vocabulary.
func (s ProviderStatus) IsKnown() bool {
	switch s {
	case ProviderAccepted, ProviderSubmitted, ProviderEnqueued,
		ProviderCompleted, ProviderFailed, ProviderRejected, ProviderCancelled:
		return true
	}
	return false
}

// PaymentTransaction is the append/update log of one external deposit
// attempt. TransactionID is the provider-assigned deposit id and doubles
// as the idempotency key: at most one row exists per id, and applying
// the same terminal status twice must not re-trigger side effects.
type PaymentTransaction struct {
	TransactionID       string         `json:"transaction_id"`
	BookingID           string         `json:"booking_id,omitempty"`
	OrderID             string         `json:"order_id,omitempty"`
	Amount              float64        `json:"amount"`
	Currency            string         `json:"currency"`
	Provider            string         `json:"provider"`
	Status              ProviderStatus `json:"status"`
	FailureReason       string         `json:"failure_reason,omitempty"`
	ProviderResponseRaw string         `json:"provider_response_raw,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type CallbackFailure struct {
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type CallbackMetadataField struct {
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

// DepositCallback is the provider push payload for a deposit status
// change. DepositID is the only strictly required field.
type DepositCallback struct {
	DepositID     string                  `json:"depositId"`
	Status        ProviderStatus          `json:"status"`
	Amount        string                  `json:"amount,omitempty"`
	Currency      string                  `json:"currency,omitempty"`
	Payer         json.RawMessage         `json:"payer,omitempty"`
	Correspondent string                  `json:"correspondent,omitempty"`
	Created       string                  `json:"created,omitempty"`
	FailureReason *CallbackFailure        `json:"failureReason,omitempty"`
	Metadata      []CallbackMetadataField `json:"metadata,omitempty"`
}

// MetadataValue returns the value of a named metadata field, or "".
func (c *DepositCallback) MetadataValue(name string) string {
	for _, f := range c.Metadata {
		if f.FieldName == name {
			return f.FieldValue
		}
	}
	return ""
}

// ErrMissingDepositID is returned when a callback payload has no depositId.
var ErrMissingDepositID = errors.New("callback payload missing depositId")

// ParseDepositCallback decodes and validates a provider callback
// payload, failing fast when the deposit id is absent.
func ParseDepositCallback(payload []byte) (*DepositCallback, error) {
	var cb DepositCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, err
	}
	if cb.DepositID == "" {
		return nil, ErrMissingDepositID
	}
	return &cb, nil
}
