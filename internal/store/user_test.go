package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestUserCreateAndGet(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	us := NewUserStore(f.db)

	u, err := us.Create(ctx, NewUser{CompanyID: &f.company.ID, Email: "  Alice@Acme.TEST ", Name: "Alice", Role: model.RoleEmployee})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@acme.test" {
		t.Errorf("email = %q, want lower-cased", u.Email)
	}
	if u.RegularBalance != 0 {
		t.Errorf("balance = %d, want 0", u.RegularBalance)
	}
	if !u.InCompany(f.company.ID) {
		t.Error("expected user in company")
	}

	got, err := us.GetByEmail(ctx, "ALICE@acme.test")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("GetByEmail = %+v, want id %d", got, u.ID)
	}

	missing, err := us.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestUserCreditDebit(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	us := NewUserStore(f.db)

	bal, err := us.Credit(ctx, f.employee.ID, 100)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if bal != 100 {
		t.Errorf("balance = %d, want 100", bal)
	}

	bal, err = us.Debit(ctx, f.employee.ID, 60)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if bal != 40 {
		t.Errorf("balance = %d, want 40", bal)
	}

	if _, err := us.Debit(ctx, f.employee.ID, 41); !errors.Is(err, ErrConflict) {
		t.Errorf("overdraw err = %v, want ErrConflict", err)
	}
	bal, _ = us.Balance(ctx, f.employee.ID)
	if bal != 40 {
		t.Errorf("balance after failed debit = %d, want 40", bal)
	}
}

func TestUserBalanceCheckConstraint(t *testing.T) {
	f := setupFixture(t)
	_, err := f.db.Exec(`UPDATE users SET regular_balance = -1 WHERE id = ?`, f.employee.ID)
	if err == nil {
		t.Error("expected CHECK constraint to reject a negative balance")
	}
}

func TestUserListEmployees(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	us := NewUserStore(f.db)
	if _, err := us.Create(ctx, NewUser{CompanyID: &f.company.ID, Email: "ops@acme.test", Name: "Ops", Role: model.RoleEmployee, Department: "Ops"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := us.ListEmployees(ctx, f.company.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2 (admins excluded)", len(all))
	}

	sales, err := us.ListEmployees(ctx, f.company.ID, "Sales")
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != f.employee.ID {
		t.Errorf("sales = %+v, want only the fixture employee", sales)
	}

	byID, err := us.ListByIDs(ctx, []int64{f.employee.ID, 9999})
	if err != nil {
		t.Fatalf("list by ids: %v", err)
	}
	if len(byID) != 1 {
		t.Errorf("len(byID) = %d, want 1", len(byID))
	}
}

func TestFirstSuperadmin(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	us := NewUserStore(f.db)

	none, err := us.FirstSuperadmin(ctx)
	if err != nil {
		t.Fatalf("first superadmin: %v", err)
	}
	if none != nil {
		t.Error("expected nil without superadmins")
	}

	root, _ := us.Create(ctx, NewUser{Email: "root@coinvault.test", Name: "Root", Role: model.RoleSuperadmin})
	us.Create(ctx, NewUser{Email: "root2@coinvault.test", Name: "Root 2", Role: model.RoleSuperadmin})
	got, err := us.FirstSuperadmin(ctx)
	if err != nil {
		t.Fatalf("first superadmin: %v", err)
	}
	if got == nil || got.ID != root.ID {
		t.Fatalf("FirstSuperadmin = %+v, want id %d", got, root.ID)
	}
	if got.CompanyID != nil {
		t.Error("superadmin should have no company")
	}
}
