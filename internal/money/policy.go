package money

import (
	"fmt"

	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

// RefundTier is one rung of a cancellation policy: cancelling at least
// MinDays before check-in refunds Percentage of the total.
type RefundTier struct {
	MinDays     int     `json:"min_days"`
	Percentage  float64 `json:"percentage"`
	Description string  `json:"description"`
}

// refundPolicies holds each policy's tiers ordered descending by
// MinDays. Selection picks the first tier whose MinDays the guest still
// satisfies, i.e. the most generous tier they qualify for.
var refundPolicies = map[models.PolicyType][]RefundTier{
	models.PolicyFlexible: {
		{MinDays: 1, Percentage: 100, Description: "Full refund until 1 day before check-in"},
		{MinDays: 0, Percentage: 50, Description: "50% refund on the day of check-in"},
	},
	models.PolicyModerate: {
		{MinDays: 5, Percentage: 100, Description: "Full refund until 5 days before check-in"},
		{MinDays: 1, Percentage: 50, Description: "50% refund until 1 day before check-in"},
		{MinDays: 0, Percentage: 0, Description: "No refund on the day of check-in"},
	},
	models.PolicyStandard: {
		{MinDays: 14, Percentage: 100, Description: "Full refund until 14 days before check-in"},
		{MinDays: 7, Percentage: 50, Description: "50% refund until 7 days before check-in"},
		{MinDays: 0, Percentage: 0, Description: "No refund within 7 days of check-in"},
	},
	models.PolicyStrict: {
		{MinDays: 30, Percentage: 100, Description: "Full refund until 30 days before check-in"},
		{MinDays: 14, Percentage: 50, Description: "50% refund until 14 days before check-in"},
		{MinDays: 0, Percentage: 0, Description: "No refund within 14 days of check-in"},
	},
	models.PolicyFair: {
		{MinDays: 7, Percentage: 100, Description: "Full refund until 7 days before check-in"},
		{MinDays: 3, Percentage: 50, Description: "50% refund until 3 days before check-in"},
		{MinDays: 0, Percentage: 0, Description: "No refund within 3 days of check-in"},
	},
	models.PolicyNonRefundable: {
		{MinDays: 0, Percentage: 0, Description: "Non-refundable"},
	},
}

// RefundTierFor looks up the refund tier a guest qualifies for given
// how many calendar days remain before check-in. Unknown policy types
// fall back to the fair policy. Negative day counts (cancelling after
// check-in) match the 0-day tier.
func RefundTierFor(policy models.PolicyType, daysUntilStart int) RefundTier {
	tiers, ok := refundPolicies[policy]
	if !ok {
		tiers = refundPolicies[models.PolicyFair]
	}
	for _, tier := range tiers {
		if daysUntilStart >= tier.MinDays {
			return tier
		}
	}
	// Past the last tier (e.g. cancelling after check-in has begun).
	last := tiers[len(tiers)-1]
	return RefundTier{MinDays: last.MinDays, Percentage: 0, Description: fmt.Sprintf("No refund under the %s policy", policy)}
}
