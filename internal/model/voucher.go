package model

import "time"

type Voucher struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Brand           string     `json:"brand,omitempty"`
	CoinValue       int64      `json:"coinValue"`
	Quantity        int64      `json:"quantity"`
	InitialQuantity int64      `json:"initialQuantity"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
	IsActive        bool       `json:"isActive"`
	Featured        bool       `json:"featured"`
	ImageURL        string     `json:"imageUrl,omitempty"`
	OriginalPrice   string     `json:"originalPrice,omitempty"`
	CreatedBy       *int64     `json:"createdBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type PurchaseStatus string

const (
	PurchaseOwned    PurchaseStatus = "owned"
	PurchaseAssigned PurchaseStatus = "assigned"
	PurchaseRedeemed PurchaseStatus = "redeemed"
)

// Purchase is one purchased voucher unit.
type Purchase struct {
	ID            string         `json:"id"`
	VoucherID     int64          `json:"voucherId"`
	VoucherTitle  string         `json:"voucherTitle,omitempty"`
	OwnerID       int64          `json:"ownerId"`
	PurchasedBy   int64          `json:"purchasedBy"`
	TransactionID int64          `json:"transactionId"`
	Status        PurchaseStatus `json:"status"`
	PurchasedAt   time.Time      `json:"purchasedAt"`
	AssignedAt    *time.Time     `json:"assignedAt,omitempty"`
	RedeemedAt    *time.Time     `json:"redeemedAt,omitempty"`
}
