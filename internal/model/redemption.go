package model

import "time"

type CodeKind string

const (
	// CodePlain credits the regular balance and is bound to an email.
	CodePlain CodeKind = "plain"
	// CodeCampaign credits a campaign grant and is bound to a user id.
	CodeCampaign CodeKind = "campaign"
)

type RedemptionCode struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	Kind          CodeKind   `json:"kind"`
	CoinAmount    int64      `json:"coinAmount"`
	EmployeeEmail string     `json:"employeeEmail,omitempty"`
	EmployeeName  string     `json:"employeeName,omitempty"`
	UserID        *int64     `json:"userId,omitempty"`
	CampaignID    *int64     `json:"campaignId,omitempty"`
	IssuedBy      int64      `json:"issuedBy"`
	EmailSent     bool       `json:"emailSent"`
	EmailStatus   string     `json:"emailStatus"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	RedeemedAt    *time.Time `json:"redeemedAt,omitempty"`
	RedeemedBy    *int64     `json:"redeemedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (c *RedemptionCode) IsRedeemed() bool {
	return c.RedeemedAt != nil
}

// Expired reports whether now is past the code's expiry.
func (c *RedemptionCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
