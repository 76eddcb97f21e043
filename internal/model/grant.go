package model

import (
	"slices"
	"time"
)

// RestrictionType decides which vouchers campaign coins may pay for.
type RestrictionType string

const (
	RestrictionNone     RestrictionType = "none"
	RestrictionCategory RestrictionType = "category"
	RestrictionBrand    RestrictionType = "brand"
	RestrictionSpecific RestrictionType = "specific"
)

func (t RestrictionType) Valid() bool {
	switch t {
	case RestrictionNone, RestrictionCategory, RestrictionBrand, RestrictionSpecific:
		return true
	}
	return false
}

// Restriction is a restriction type plus the one detail list it uses.
type Restriction struct {
	Type              RestrictionType `json:"type"`
	AllowedCategories []string        `json:"allowedCategories,omitempty"`
	AllowedBrands     []string        `json:"allowedBrands,omitempty"`
	AllowedVoucherIDs []int64         `json:"allowedVoucherIds,omitempty"`
}

// Normalized returns a copy where only the list matching Type is kept.
// An empty type becomes none.
func (r Restriction) Normalized() Restriction {
	out := Restriction{Type: r.Type}
	if out.Type == "" {
		out.Type = RestrictionNone
	}
	switch out.Type {
	case RestrictionCategory:
		out.AllowedCategories = slices.Clone(r.AllowedCategories)
	case RestrictionBrand:
		out.AllowedBrands = slices.Clone(r.AllowedBrands)
	case RestrictionSpecific:
		out.AllowedVoucherIDs = slices.Clone(r.AllowedVoucherIDs)
	}
	return out
}

// Allows reports whether the restriction admits the voucher.
func (r Restriction) Allows(v Voucher) bool {
	switch r.Type {
	case RestrictionNone:
		return true
	case RestrictionCategory:
		return slices.Contains(r.AllowedCategories, v.Category)
	case RestrictionBrand:
		return slices.Contains(r.AllowedBrands, v.Brand)
	case RestrictionSpecific:
		return slices.Contains(r.AllowedVoucherIDs, v.ID)
	}
	return false
}

// CampaignGrant is the slice of a user's wallet funded by one campaign.
// ID doubles as the insertion sequence used to break drain-order ties.
type CampaignGrant struct {
	ID           int64       `json:"id"`
	UserID       int64       `json:"userId"`
	CampaignID   int64       `json:"campaignId"`
	CampaignName string      `json:"campaignName"`
	Balance      int64       `json:"balance"`
	Restriction  Restriction `json:"restriction"`
	ExpiresAt    time.Time   `json:"expiryDate"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Expired reports whether the grant's expiry lies before now.
func (g CampaignGrant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}
