package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestCampaignCreate(t *testing.T) {
	f := setupFixture(t)
	c := f.campaign(t, 500)
	if c.TotalBudget != 500 || c.RemainingBudget != 500 {
		t.Errorf("budget = %d/%d, want 500/500", c.RemainingBudget, c.TotalBudget)
	}
	if c.TargetType != model.TargetAll {
		t.Errorf("target = %q, want all", c.TargetType)
	}
	if !c.IsActive {
		t.Error("expected active")
	}
}

func TestCampaignDebitBudget(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	cs := NewCampaignStore(f.db)
	c := f.campaign(t, 100)

	if err := cs.DebitBudget(ctx, c.ID, 120, 3); !errors.Is(err, ErrConflict) {
		t.Fatalf("over budget err = %v, want ErrConflict", err)
	}
	got, _ := cs.GetByID(ctx, c.ID)
	if got.RemainingBudget != 100 || got.ParticipantCount != 0 {
		t.Errorf("after failed debit: remaining = %d, participants = %d", got.RemainingBudget, got.ParticipantCount)
	}

	if err := cs.DebitBudget(ctx, c.ID, 80, 2); err != nil {
		t.Fatalf("debit: %v", err)
	}
	got, _ = cs.GetByID(ctx, c.ID)
	if got.RemainingBudget != 20 {
		t.Errorf("remaining = %d, want 20", got.RemainingBudget)
	}
	if got.ParticipantCount != 2 || got.TotalDistributed != 80 {
		t.Errorf("participants = %d, distributed = %d", got.ParticipantCount, got.TotalDistributed)
	}
}

func TestCampaignUpdateBudget(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	cs := NewCampaignStore(f.db)
	c := f.campaign(t, 100)
	cs.DebitBudget(ctx, c.ID, 70, 1)

	in := CampaignInput{
		Name:        "Renamed",
		TargetType:  model.TargetAll,
		TotalBudget: 200,
		StartDate:   c.StartDate,
		EndDate:     c.EndDate,
		IsActive:    true,
	}
	updated, err := cs.Update(ctx, c.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TotalBudget != 200 || updated.RemainingBudget != 130 {
		t.Errorf("budget = %d/%d, want 130/200", updated.RemainingBudget, updated.TotalBudget)
	}

	in.TotalBudget = 50
	if _, err := cs.Update(ctx, c.ID, in); !errors.Is(err, ErrConflict) {
		t.Errorf("shrink below spent err = %v, want ErrConflict", err)
	}
}

func TestCampaignDelete(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	cs := NewCampaignStore(f.db)

	used := f.campaign(t, 100)
	cs.DebitBudget(ctx, used.ID, 10, 1)
	if err := cs.Delete(ctx, used.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("delete with participants err = %v, want ErrConflict", err)
	}

	fresh := f.campaign(t, 100)
	if err := cs.Delete(ctx, fresh.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := cs.GetByID(ctx, fresh.ID)
	if got != nil {
		t.Error("expected nil after delete")
	}

	list, err := cs.ListByCompany(ctx, f.company.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}
}

func TestParticipantCap(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1000)
	ps := NewParticipantStore(f.db)

	if err := ps.Add(ctx, c.ID, f.employee.ID, 60, 100); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ps.Add(ctx, c.ID, f.employee.ID, 50, 100); !errors.Is(err, ErrConflict) {
		t.Errorf("over cap err = %v, want ErrConflict", err)
	}
	if err := ps.Add(ctx, c.ID, f.employee.ID, 40, 100); err != nil {
		t.Fatalf("add to cap: %v", err)
	}
	if err := ps.Add(ctx, c.ID, f.admin.ID, 500, 0); err != nil {
		t.Fatalf("uncapped add: %v", err)
	}

	list, err := ps.ListByCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	for _, p := range list {
		if p.UserID == f.employee.ID && p.CoinsReceived != 100 {
			t.Errorf("coins received = %d, want 100", p.CoinsReceived)
		}
	}
}
