package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:    1,
		CompanyID: 2,
		Role:      model.RoleCompanyAdmin,
		SessionID: 3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.CompanyID != 2 {
		t.Errorf("CompanyID = %d, want 2", got.CompanyID)
	}
	if got.Role != model.RoleCompanyAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleCompanyAdmin)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestCompanyID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{CompanyID: 42})
	if CompanyID(ctx) != 42 {
		t.Errorf("CompanyID = %d, want 42", CompanyID(ctx))
	}
	if CompanyID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestAllowed(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: model.RoleEmployee})
	if !Allowed(ctx, CapPurchase) {
		t.Error("employee should be allowed to purchase")
	}
	if Allowed(ctx, CapMintCoins) {
		t.Error("employee should not mint coins")
	}
	if Allowed(context.Background(), CapViewWallet) {
		t.Error("anonymous request should hold no capability")
	}
}
