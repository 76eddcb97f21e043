package ledger

import "github.com/dukerupert/coinvault/internal/apperr"

// Debit is the amount to take from one grant.
type Debit struct {
	GrantID    int64 `json:"grantId"`
	CampaignID int64 `json:"campaignId"`
	Amount     int64 `json:"amount"`
}

// Drain plans how amount is taken from grants. Grants are consumed greedily
// in the order given, which callers get from Resolve.
func Drain(grants []EligibleGrant, amount int64) ([]Debit, error) {
	if amount < 0 {
		return nil, apperr.Validation("drain amount must not be negative")
	}
	remaining := amount
	var debits []Debit
	for _, g := range grants {
		if remaining == 0 {
			break
		}
		if g.Balance <= 0 {
			continue
		}
		take := min(g.Balance, remaining)
		debits = append(debits, Debit{GrantID: g.ID, CampaignID: g.CampaignID, Amount: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, apperr.InsufficientFunds("campaign coins short by %d", remaining)
	}
	return debits, nil
}
