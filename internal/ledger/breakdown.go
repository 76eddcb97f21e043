package ledger

import (
	"math"
	"strings"

	"github.com/dukerupert/coinvault/internal/apperr"
)

// PaymentMethod selects how a purchase cost is split.
type PaymentMethod string

const (
	MethodCampaignOnly PaymentMethod = "campaign-only"
	MethodRegularOnly  PaymentMethod = "regular-only"
	MethodMixed        PaymentMethod = "mixed"
	MethodAuto         PaymentMethod = "auto"
)

// ParseMethod parses a submitted payment method. Empty means auto.
func ParseMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return MethodAuto, nil
	}
	switch m {
	case MethodCampaignOnly, MethodRegularOnly, MethodMixed, MethodAuto:
		return m, nil
	}
	return "", apperr.Validation("unknown payment method %q", s)
}

type BreakdownInput struct {
	UnitPrice             int64
	Quantity              int64
	EligibleCampaignTotal int64
	RegularBalance        int64
	Method                PaymentMethod
}

// Breakdown is how a purchase cost splits between campaign and regular coins.
type Breakdown struct {
	TotalCost         int64         `json:"totalCost"`
	CampaignCoinsUsed int64         `json:"campaignCoinsUsed"`
	RegularCoinsUsed  int64         `json:"regularCoinsUsed"`
	CanAfford         bool          `json:"canAfford"`
	Method            PaymentMethod `json:"method"`
}

// Compute splits UnitPrice*Quantity according to Method. It has no side
// effects and backs both quotes and committed purchases.
func Compute(in BreakdownInput) (Breakdown, error) {
	method := in.Method
	if method == "" {
		method = MethodAuto
	}
	if in.UnitPrice <= 0 {
		return Breakdown{}, apperr.Validation("unit price must be positive")
	}
	if in.Quantity < 1 {
		return Breakdown{}, apperr.Validation("quantity must be at least 1")
	}
	if in.UnitPrice > math.MaxInt64/in.Quantity {
		return Breakdown{}, apperr.Validation("total cost overflows")
	}
	if in.EligibleCampaignTotal < 0 || in.RegularBalance < 0 {
		return Breakdown{}, apperr.Validation("balances must not be negative")
	}

	total := in.UnitPrice * in.Quantity
	b := Breakdown{TotalCost: total, Method: method}

	switch method {
	case MethodCampaignOnly:
		b.CampaignCoinsUsed = total
		b.CanAfford = total <= in.EligibleCampaignTotal
	case MethodRegularOnly:
		b.RegularCoinsUsed = total
		b.CanAfford = total <= in.RegularBalance
	case MethodMixed, MethodAuto:
		b.CampaignCoinsUsed = min(total, in.EligibleCampaignTotal)
		b.RegularCoinsUsed = total - b.CampaignCoinsUsed
		b.CanAfford = b.RegularCoinsUsed <= in.RegularBalance
	default:
		return Breakdown{}, apperr.Validation("unknown payment method %q", method)
	}
	return b, nil
}
