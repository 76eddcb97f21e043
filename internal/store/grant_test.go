package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestGrantMerge(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1000)
	gs := NewGrantStore(f.db)
	expires := time.Now().UTC().Add(24 * time.Hour)

	credit := GrantCredit{
		UserID:       f.employee.ID,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Amount:       100,
		Restriction: model.Restriction{
			Type:              model.RestrictionCategory,
			AllowedCategories: []string{"Entertainment"},
			AllowedBrands:     []string{"ignored"},
		},
		ExpiresAt: expires,
	}
	g, err := gs.Merge(ctx, credit)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if g.Balance != 100 {
		t.Errorf("balance = %d, want 100", g.Balance)
	}
	if len(g.Restriction.AllowedBrands) != 0 {
		t.Errorf("brands = %v, want normalized away", g.Restriction.AllowedBrands)
	}
	if len(g.Restriction.AllowedCategories) != 1 || g.Restriction.AllowedCategories[0] != "Entertainment" {
		t.Errorf("categories = %v", g.Restriction.AllowedCategories)
	}

	credit.Amount = 50
	again, err := gs.Merge(ctx, credit)
	if err != nil {
		t.Fatalf("merge again: %v", err)
	}
	if again.ID != g.ID {
		t.Errorf("merge created a new grant %d, want %d", again.ID, g.ID)
	}
	if again.Balance != 150 {
		t.Errorf("balance = %d, want 150", again.Balance)
	}

	credit.Amount = 5
	credit.Restriction = model.Restriction{Type: model.RestrictionSpecific, AllowedVoucherIDs: []int64{f.voucher(t, 10, 1).ID}}
	credit.ExpiresAt = expires.Add(-12 * time.Hour)
	moved, err := gs.Merge(ctx, credit)
	if err != nil {
		t.Fatalf("merge with new restriction: %v", err)
	}
	if moved.Balance != 155 {
		t.Errorf("balance = %d, want 155", moved.Balance)
	}
	if moved.Restriction.Type != model.RestrictionSpecific || len(moved.Restriction.AllowedVoucherIDs) != 1 {
		t.Errorf("restriction = %+v, want the latest specific restriction", moved.Restriction)
	}
	if len(moved.Restriction.AllowedCategories) != 0 {
		t.Errorf("categories = %v, want cleared", moved.Restriction.AllowedCategories)
	}
	if !moved.ExpiresAt.Equal(credit.ExpiresAt.UTC()) {
		t.Errorf("expires = %v, want the earlier %v", moved.ExpiresAt, credit.ExpiresAt.UTC())
	}
}

func TestGrantListDrainOrder(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	gs := NewGrantStore(f.db)
	base := time.Now().UTC()

	later := f.campaign(t, 1000)
	sooner := f.campaign(t, 1000)
	gs.Merge(ctx, GrantCredit{UserID: f.employee.ID, CampaignID: later.ID, CampaignName: "later", Amount: 10, ExpiresAt: base.Add(48 * time.Hour)})
	gs.Merge(ctx, GrantCredit{UserID: f.employee.ID, CampaignID: sooner.ID, CampaignName: "sooner", Amount: 10, ExpiresAt: base.Add(24 * time.Hour)})

	grants, err := gs.ListByUser(ctx, f.employee.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("len = %d, want 2", len(grants))
	}
	if grants[0].CampaignID != sooner.ID {
		t.Errorf("first grant campaign = %d, want %d", grants[0].CampaignID, sooner.ID)
	}
	if grants[0].Restriction.Type != model.RestrictionNone {
		t.Errorf("restriction = %q, want none", grants[0].Restriction.Type)
	}
}

func TestGrantDebit(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1000)
	gs := NewGrantStore(f.db)
	g, _ := gs.Merge(ctx, GrantCredit{UserID: f.employee.ID, CampaignID: c.ID, CampaignName: c.Name, Amount: 30, ExpiresAt: time.Now().Add(time.Hour)})

	if err := gs.Debit(ctx, g.ID, 20); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := gs.Debit(ctx, g.ID, 11); !errors.Is(err, ErrConflict) {
		t.Errorf("overdraw err = %v, want ErrConflict", err)
	}
	got, _ := gs.GetByID(ctx, g.ID)
	if got.Balance != 10 {
		t.Errorf("balance = %d, want 10", got.Balance)
	}

	out, err := gs.OutstandingByCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}
	if out != 10 {
		t.Errorf("outstanding = %d, want 10", out)
	}
}
