package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/coinvault/internal/database"
	"github.com/dukerupert/coinvault/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is a company with one admin and one employee.
type fixture struct {
	db       *sql.DB
	company  *model.Company
	admin    *model.User
	employee *model.User
}

func setupFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := setupTestDB(t)

	company, err := NewCompanyStore(db).Create(ctx, "Acme")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	users := NewUserStore(db)
	admin, err := users.Create(ctx, NewUser{CompanyID: &company.ID, Email: "boss@acme.test", Name: "Boss", Role: model.RoleCompanyAdmin})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	employee, err := users.Create(ctx, NewUser{CompanyID: &company.ID, Email: "emp@acme.test", Name: "Emp", Role: model.RoleEmployee, Department: "Sales"})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	return fixture{db: db, company: company, admin: admin, employee: employee}
}

func (f fixture) campaign(t *testing.T, budget int64) *model.Campaign {
	t.Helper()
	now := time.Now().UTC()
	c, err := NewCampaignStore(f.db).Create(context.Background(), CampaignInput{
		CompanyID:   f.company.ID,
		Name:        "Q1 Bonus",
		TargetType:  model.TargetAll,
		TotalBudget: budget,
		Restriction: model.Restriction{Type: model.RestrictionNone},
		StartDate:   now.Add(-time.Hour),
		EndDate:     now.Add(24 * time.Hour),
		IsActive:    true,
		CreatedBy:   f.admin.ID,
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (f fixture) voucher(t *testing.T, value, qty int64) *model.Voucher {
	t.Helper()
	v, err := NewVoucherStore(f.db).Create(context.Background(), VoucherInput{
		Title:     "Movie Ticket",
		Category:  "Entertainment",
		CoinValue: value,
		Quantity:  qty,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	return v
}
