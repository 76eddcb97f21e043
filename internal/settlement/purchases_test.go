package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

func (env testEnv) buy(t *testing.T, userID int64) string {
	t.Helper()
	v := env.voucher(t, "Food", 10, 5)
	env.credit(t, userID, 10)
	receipt, err := env.engine.Purchase(context.Background(), userID, PurchaseRequest{VoucherID: v.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	return receipt.PurchaseIDs[0]
}

func TestUsePurchase(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	id := env.buy(t, env.employee.ID)
	actor := auth.AuthContext{UserID: env.employee.ID, CompanyID: env.company.ID, Role: model.RoleEmployee}

	p, err := env.engine.UsePurchase(ctx, actor, id)
	if err != nil {
		t.Fatalf("UsePurchase: %v", err)
	}
	if p.Status != model.PurchaseRedeemed || p.RedeemedAt == nil {
		t.Errorf("purchase = %+v, want redeemed", p)
	}

	if _, err := env.engine.UsePurchase(ctx, actor, id); !errors.Is(err, apperr.ErrAlreadyRedeemed) {
		t.Errorf("second use err = %v, want AlreadyRedeemed", err)
	}
}

func TestUsePurchaseNotOwner(t *testing.T) {
	env := setupEngine(t)
	id := env.buy(t, env.employee.ID)
	admin := auth.AuthContext{UserID: env.admin.ID, CompanyID: env.company.ID, Role: model.RoleCompanyAdmin}

	if _, err := env.engine.UsePurchase(context.Background(), admin, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestAssignPurchase(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	id := env.buy(t, env.admin.ID)
	admin := auth.AuthContext{UserID: env.admin.ID, CompanyID: env.company.ID, Role: model.RoleCompanyAdmin}

	p, err := env.engine.AssignPurchase(ctx, admin, id, env.employee.ID)
	if err != nil {
		t.Fatalf("AssignPurchase: %v", err)
	}
	if p.OwnerID != env.employee.ID || p.Status != model.PurchaseAssigned {
		t.Errorf("purchase = %+v, want assigned to employee", p)
	}

	held, err := env.engine.Purchases(ctx, env.employee.ID)
	if err != nil {
		t.Fatalf("Purchases: %v", err)
	}
	if len(held) != 1 || held[0].ID != id {
		t.Errorf("employee purchases = %+v", held)
	}

	// The employee can use an assigned purchase.
	emp := auth.AuthContext{UserID: env.employee.ID, CompanyID: env.company.ID, Role: model.RoleEmployee}
	if _, err := env.engine.UsePurchase(ctx, emp, id); err != nil {
		t.Errorf("use assigned purchase: %v", err)
	}
}

func TestAssignPurchaseGuards(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	id := env.buy(t, env.admin.ID)
	admin := auth.AuthContext{UserID: env.admin.ID, CompanyID: env.company.ID, Role: model.RoleCompanyAdmin}

	other, err := store.NewCompanyStore(env.db).Create(ctx, "Globex")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	outsider, err := store.NewUserStore(env.db).Create(ctx, store.NewUser{CompanyID: &other.ID, Email: "x@globex.test", Role: model.RoleEmployee})
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}

	tests := []struct {
		name string
		id   string
		to   int64
		want error
	}{
		{"self", id, env.admin.ID, apperr.ErrValidation},
		{"other company", id, outsider.ID, apperr.ErrNotFound},
		{"unknown purchase", "missing", env.employee.ID, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.engine.AssignPurchase(ctx, admin, tt.id, tt.to); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
