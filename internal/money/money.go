package money

import (
	"math"
	"strconv"

	"github.com/Merry-360-x/merry-moments-sub004/internal/models"
)

// zeroDecimalCurrencies have no minor unit; threeDecimalCurrencies have
// three. Everything else uses two.
var zeroDecimalCurrencies = map[string]bool{
	"RWF": true, "JPY": true, "KRW": true, "VND": true, "UGX": true,
	"XAF": true, "XOF": true, "BIF": true, "DJF": true, "GNF": true,
	"KMF": true, "MGA": true, "PYG": true, "VUV": true, "CLP": true,
}

var threeDecimalCurrencies = map[string]bool{
	"KWD": true, "BHD": true, "OMR": true, "JOD": true, "TND": true, "IQD": true, "LYD": true,
}

// CurrencyPrecision returns the number of minor-unit digits for an ISO
// 4217 currency code.
func CurrencyPrecision(currency string) int {
	switch {
	case zeroDecimalCurrencies[currency]:
		return 0
	case threeDecimalCurrencies[currency]:
		return 3
	default:
		return 2
	}
}

// RoundToCurrencyPrecision rounds an amount to the currency's minor
// unit. Every monetary output must pass through here before display or
// persistence to avoid fractional-unit drift.
func RoundToCurrencyPrecision(amount float64, currency string) float64 {
	factor := math.Pow(10, float64(CurrencyPrecision(currency)))
	return math.Round(amount*factor) / factor
}

// FormatAmount renders an amount as the provider wire string, with
// exactly the currency's minor-unit digits.
func FormatAmount(amount float64, currency string) string {
	return strconv.FormatFloat(RoundToCurrencyPrecision(amount, currency), 'f', CurrencyPrecision(currency), 64)
}

// FeeBreakdown is the guest-facing side of the fee schedule.
type FeeBreakdown struct {
	Base  float64 `json:"base"`
	Fee   float64 `json:"fee"`
	Total float64 `json:"total"`
}

// ProviderFeeBreakdown is the host-facing side: the platform deduction
// taken from the gross amount before payout.
type ProviderFeeBreakdown struct {
	Gross float64 `json:"gross"`
	Fee   float64 `json:"fee"`
	Net   float64 `json:"net"`
}

var guestFeePercent = map[models.ServiceType]float64{
	models.ServiceAccommodation: 7,
	models.ServiceTour:          0,
	models.ServiceTransport:     0,
}

var providerFeePercent = map[models.ServiceType]float64{
	models.ServiceAccommodation: 3,
	models.ServiceTour:          10,
	models.ServiceTransport:     0,
}

// ApplyGuestFee computes the service fee added on top of the base
// price. The base price is returned unchanged so receipts can show both.
func ApplyGuestFee(basePrice float64, service models.ServiceType) FeeBreakdown {
	fee := basePrice * guestFeePercent[service] / 100
	return FeeBreakdown{
		Base:  basePrice,
		Fee:   fee,
		Total: basePrice + fee,
	}
}

// ApplyProviderFee computes the platform deduction taken from the host
// side of a booking.
func ApplyProviderFee(basePrice float64, service models.ServiceType) ProviderFeeBreakdown {
	fee := basePrice * providerFeePercent[service] / 100
	return ProviderFeeBreakdown{
		Gross: basePrice,
		Fee:   fee,
		Net:   basePrice - fee,
	}
}
