package auth

import (
	"fmt"

	"github.com/dukerupert/coinvault/internal/model"
)

// Capability names one guarded action.
type Capability string

const (
	CapViewWallet      Capability = "view-wallet"
	CapPurchase        Capability = "purchase"
	CapRedeemCode      Capability = "redeem-code"
	CapIssueCodes      Capability = "issue-codes"
	CapManageCampaigns Capability = "manage-campaigns"
	CapAssignVouchers  Capability = "assign-vouchers"
	CapRequestCoins    Capability = "request-coins"
	CapApproveCoins    Capability = "approve-coins"
	CapMintCoins       Capability = "mint-coins"
	CapManageCatalog   Capability = "manage-catalog"
	CapViewAudit       Capability = "view-audit"
	CapManageSnapshots Capability = "manage-snapshots"
)

var grants = map[model.Role]map[Capability]bool{
	model.RoleSuperadmin: {
		CapViewWallet:      true,
		CapApproveCoins:    true,
		CapMintCoins:       true,
		CapManageCatalog:   true,
		CapViewAudit:       true,
		CapManageSnapshots: true,
	},
	model.RoleCompanyAdmin: {
		CapViewWallet:      true,
		CapPurchase:        true,
		CapIssueCodes:      true,
		CapManageCampaigns: true,
		CapAssignVouchers:  true,
		CapRequestCoins:    true,
	},
	model.RoleEmployee: {
		CapViewWallet: true,
		CapPurchase:   true,
		CapRedeemCode: true,
	},
}

// Can reports whether role holds capability. Unknown roles hold nothing.
func Can(role model.Role, c Capability) bool {
	return grants[role][c]
}

// ParseRole converts a stored or submitted role string, rejecting unknown values.
func ParseRole(s string) (model.Role, error) {
	r := model.Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
