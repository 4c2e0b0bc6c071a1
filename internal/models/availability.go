package models

import "time"

// AvailabilityCheck asks whether one bookable item can still be booked.
// CheckIn/CheckOut are only meaningful for properties; the interval is
// half-open, checkout day excluded.
type AvailabilityCheck struct {
	ItemType string    `json:"item_type"`
	ItemID   string    `json:"item_id"`
	CheckIn  time.Time `json:"check_in,omitempty"`
	CheckOut time.Time `json:"check_out,omitempty"`
}

type AvailabilityResult struct {
	ItemType    string `json:"item_type"`
	ItemID      string `json:"item_id"`
	Available   bool   `json:"available"`
	Reason      string `json:"reason,omitempty"`
	AutoConfirm bool   `json:"auto_confirm"`
}
