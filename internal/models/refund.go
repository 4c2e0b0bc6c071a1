package models

// RefundResult is a computed refund quote for one booking or an
// aggregate over a bulk order. It is never persisted.
type RefundResult struct {
	RefundAmount     float64    `json:"refund_amount"`
	RefundPercentage float64    `json:"refund_percentage"`
	PolicyType       PolicyType `json:"policy_type"`
	Description      string     `json:"description"`
	Currency         string     `json:"currency"`
	BookingIDs       []string   `json:"booking_ids,omitempty"`
}
