package model

import "time"

// Role is the closed set of actor kinds on the platform.
type Role string

const (
	RoleSuperadmin   Role = "superadmin"
	RoleCompanyAdmin Role = "company_admin"
	RoleEmployee     Role = "employee"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleCompanyAdmin, RoleEmployee:
		return true
	}
	return false
}

type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is both the login identity and the coin account. RegularBalance holds
// unrestricted coins; campaign coins live in CampaignGrant rows.
type User struct {
	ID             int64     `json:"id"`
	CompanyID      *int64    `json:"companyId,omitempty"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	Department     string    `json:"department,omitempty"`
	PasswordHash   string    `json:"-"`
	RegularBalance int64     `json:"regularBalance"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// InCompany reports whether the user belongs to the given company.
func (u *User) InCompany(companyID int64) bool {
	return u.CompanyID != nil && *u.CompanyID == companyID
}
