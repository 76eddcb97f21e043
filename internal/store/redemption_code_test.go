package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestRedemptionCodeRedeemOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	rs := NewRedemptionCodeStore(f.db)
	now := time.Now().UTC()

	c, err := rs.Create(ctx, model.RedemptionCode{
		Code:          "ABCDEFGH12345678",
		Kind:          model.CodePlain,
		CoinAmount:    50,
		EmployeeEmail: "Emp@Acme.test",
		IssuedBy:      f.admin.ID,
		ExpiresAt:     now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.EmployeeEmail != "emp@acme.test" {
		t.Errorf("email = %q, want normalized", c.EmployeeEmail)
	}
	if c.IsRedeemed() {
		t.Error("new code should not be redeemed")
	}

	if err := rs.MarkRedeemed(ctx, c.ID, f.employee.ID, now); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := rs.MarkRedeemed(ctx, c.ID, f.employee.ID, now); !errors.Is(err, ErrConflict) {
		t.Errorf("second redeem err = %v, want ErrConflict", err)
	}

	got, _ := rs.GetByCode(ctx, "ABCDEFGH12345678")
	if !got.IsRedeemed() || got.RedeemedBy == nil || *got.RedeemedBy != f.employee.ID {
		t.Errorf("code = %+v, want redeemed by employee", got)
	}
}

func TestRedemptionCodeExpired(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	rs := NewRedemptionCodeStore(f.db)
	now := time.Now().UTC()

	c, _ := rs.Create(ctx, model.RedemptionCode{Code: "EXPIRED000000000", Kind: model.CodePlain, CoinAmount: 5, EmployeeEmail: "emp@acme.test", IssuedBy: f.admin.ID, ExpiresAt: now.Add(-time.Minute)})
	if err := rs.MarkRedeemed(ctx, c.ID, f.employee.ID, now); !errors.Is(err, ErrConflict) {
		t.Errorf("expired redeem err = %v, want ErrConflict", err)
	}
	got, _ := rs.GetByID(ctx, c.ID)
	if got.IsRedeemed() {
		t.Error("expired code must stay unredeemed")
	}

	boundary, _ := rs.Create(ctx, model.RedemptionCode{Code: "BOUNDARY00000000", Kind: model.CodePlain, CoinAmount: 5, EmployeeEmail: "emp@acme.test", IssuedBy: f.admin.ID, ExpiresAt: now})
	if err := rs.MarkRedeemed(ctx, boundary.ID, f.employee.ID, now); err != nil {
		t.Errorf("redeem at expiry instant: %v", err)
	}
}

func TestRedemptionCodeCampaignBinding(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	rs := NewRedemptionCodeStore(f.db)
	c := f.campaign(t, 100)

	if _, err := rs.Create(ctx, model.RedemptionCode{Code: "NOBINDING0000000", Kind: model.CodeCampaign, CoinAmount: 5, IssuedBy: f.admin.ID, ExpiresAt: time.Now().Add(time.Hour)}); err == nil {
		t.Error("expected CHECK to reject a campaign code without user and campaign")
	}

	code, err := rs.Create(ctx, model.RedemptionCode{Code: "CAMPAIGN00000001", Kind: model.CodeCampaign, CoinAmount: 25, UserID: &f.employee.ID, CampaignID: &c.ID, IssuedBy: f.admin.ID, ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := rs.ListForUser(ctx, f.employee.ID)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != code.ID {
		t.Errorf("ListForUser = %+v", mine)
	}

	out, _ := rs.UnredeemedByCampaign(ctx, c.ID)
	if out != 25 {
		t.Errorf("unredeemed = %d, want 25", out)
	}

	if err := rs.SetEmailStatus(ctx, code.ID, true, "sent"); err != nil {
		t.Fatalf("set email status: %v", err)
	}
	issued, _ := rs.ListByIssuer(ctx, f.admin.ID)
	if len(issued) != 1 || !issued[0].EmailSent || issued[0].EmailStatus != "sent" {
		t.Errorf("ListByIssuer = %+v", issued)
	}
}
