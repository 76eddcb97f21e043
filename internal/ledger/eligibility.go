// Package ledger holds the pure rules of the coin ledger: which campaign
// grants may pay for a voucher, how a cost splits between campaign and
// regular coins, and in which order grants are drained.
package ledger

import (
	"sort"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

// ResolveOptions controls how grant expiry is treated.
type ResolveOptions struct {
	// EnforceExpiry excludes grants whose expiry lies before Now.
	// When false, expired grants stay eligible and are only flagged.
	EnforceExpiry bool
	Now           time.Time
}

// EligibleGrant is a grant that may pay for the voucher being resolved.
type EligibleGrant struct {
	model.CampaignGrant
	Expired bool `json:"expired"`
}

// Eligibility is the result of resolving a wallet against one voucher.
type Eligibility struct {
	Grants        []EligibleGrant `json:"availableCampaignCoins"`
	CampaignTotal int64           `json:"totalCampaignCoins"`
	IsEligible    bool            `json:"isEligible"`
}

// Resolve returns the grants that may pay for v, in drain order.
func Resolve(grants []model.CampaignGrant, v model.Voucher, opts ResolveOptions) Eligibility {
	var out Eligibility
	for _, g := range grants {
		if g.Balance <= 0 {
			continue
		}
		if !g.Restriction.Allows(v) {
			continue
		}
		expired := !opts.Now.IsZero() && g.Expired(opts.Now)
		if expired && opts.EnforceExpiry {
			continue
		}
		out.Grants = append(out.Grants, EligibleGrant{CampaignGrant: g, Expired: expired})
		out.CampaignTotal += g.Balance
	}
	SortGrants(out.Grants)
	out.IsEligible = len(out.Grants) > 0
	return out
}

// SortGrants orders grants soonest expiry first, then by id.
func SortGrants(grants []EligibleGrant) {
	sort.SliceStable(grants, func(i, j int) bool {
		return drainBefore(grants[i].CampaignGrant, grants[j].CampaignGrant)
	})
}

func drainBefore(a, b model.CampaignGrant) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
	return a.ID < b.ID
}

// Payable reports whether any grant in grants may pay for v under opts.
func Payable(grants []model.CampaignGrant, v model.Voucher, opts ResolveOptions) bool {
	return Resolve(grants, v, opts).IsEligible
}
