package model

import "time"

type TransactionType string

const (
	TxMint                 TransactionType = "mint"
	TxBurn                 TransactionType = "burn"
	TxRequest              TransactionType = "request"
	TxTransfer             TransactionType = "transfer"
	TxPurchase             TransactionType = "purchase"
	TxRedeemCode           TransactionType = "redeem_code"
	TxIssueCodes           TransactionType = "issue_codes"
	TxCampaignDistribution TransactionType = "campaign_distribution"
	TxTopup                TransactionType = "topup"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxMint, TxBurn, TxRequest, TxTransfer, TxPurchase, TxRedeemCode,
		TxIssueCodes, TxCampaignDistribution, TxTopup:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxApproved  TransactionStatus = "approved"
	TxRejected  TransactionStatus = "rejected"
	TxCompleted TransactionStatus = "completed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxPending, TxApproved, TxRejected, TxCompleted:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry. Description is for display
// only; state lives in Type and Status.
type Transaction struct {
	ID             int64             `json:"id"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Amount         int64             `json:"amount"`
	CampaignAmount int64             `json:"campaignAmount"`
	RegularAmount  int64             `json:"regularAmount"`
	FromUserID     *int64            `json:"fromUserId,omitempty"`
	ToUserID       *int64            `json:"toUserId,omitempty"`
	CampaignID     *int64            `json:"campaignId,omitempty"`
	VoucherID      *int64            `json:"voucherId,omitempty"`
	Reference      *string           `json:"reference,omitempty"`
	Description    string            `json:"description"`
	CreatedAt      time.Time         `json:"createdAt"`
	DecidedAt      *time.Time        `json:"decidedAt,omitempty"`
	DecidedBy      *int64            `json:"decidedBy,omitempty"`
}
