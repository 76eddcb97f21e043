package model

import "time"

type TargetType string

const (
	TargetAll        TargetType = "all"
	TargetIndividual TargetType = "individual"
	TargetDepartment TargetType = "department"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetAll, TargetIndividual, TargetDepartment:
		return true
	}
	return false
}

// Campaign is a budgeted, time-boxed distribution policy owned by a company.
type Campaign struct {
	ID                   int64       `json:"id"`
	CompanyID            int64       `json:"companyId"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	TargetType           TargetType  `json:"targetType"`
	TargetUserIDs        []int64     `json:"targetUsers,omitempty"`
	TargetDepartment     string      `json:"targetDepartment,omitempty"`
	TotalBudget          int64       `json:"totalBudget"`
	RemainingBudget      int64       `json:"remainingBudget"`
	CoinsPerEmployee     *int64      `json:"coinsPerEmployee,omitempty"`
	MaxCoinsPerEmployee  *int64      `json:"maxCoinsPerEmployee,omitempty"`
	Restriction          Restriction `json:"restriction"`
	StartDate            time.Time   `json:"startDate"`
	EndDate              time.Time   `json:"endDate"`
	IsActive             bool        `json:"isActive"`
	AllowIndividualCodes bool        `json:"allowIndividualCodes"`
	EmailNotifications   bool        `json:"emailNotifications"`
	ParticipantCount     int64       `json:"participantCount"`
	TotalDistributed     int64       `json:"totalDistributed"`
	RedemptionCount      int64       `json:"redemptionCount"`
	CreatedBy            int64       `json:"createdBy"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// Open reports whether distribution is allowed at now.
func (c *Campaign) Open(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartDate) && !now.After(c.EndDate)
}

type CampaignParticipant struct {
	CampaignID    int64     `json:"campaignId"`
	UserID        int64     `json:"userId"`
	CoinsReceived int64     `json:"coinsReceived"`
	JoinedAt      time.Time `json:"joinedAt"`
	LastActivity  time.Time `json:"lastActivity"`
}

// CampaignAnalytics summarizes how a campaign's coins were used.
type CampaignAnalytics struct {
	CampaignID               int64   `json:"campaignId"`
	TotalParticipants        int64   `json:"totalParticipants"`
	TotalCoinsDistributed    int64   `json:"totalCoinsDistributed"`
	TotalCoinsOutstanding    int64   `json:"totalCoinsOutstanding"`
	TotalCoinsUsed           int64   `json:"totalCoinsUsed"`
	AverageCoinsPerRecipient float64 `json:"averageCoinsPerParticipant"`
	RedemptionRate           float64 `json:"redemptionRate"`
	CodesRedeemed            int64   `json:"codesRedeemed"`
}
