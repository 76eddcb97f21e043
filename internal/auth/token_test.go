package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

func TestTokenIssueVerify(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Hour)
	companyID := int64(9)
	u := &model.User{ID: 5, CompanyID: &companyID, Email: "e@acme.test", Role: model.RoleEmployee}

	tok, exp, err := ti.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if exp.IsZero() {
		t.Error("expected expiry")
	}

	ac, err := ti.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.UserID != 5 || ac.CompanyID != 9 || ac.Role != model.RoleEmployee {
		t.Errorf("claims = %+v", ac)
	}
}

func TestTokenExpired(t *testing.T) {
	ti := NewTokenIssuer("test-secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	ti.now = func() time.Time { return issued }
	tok, _, err := ti.Issue(&model.User{ID: 1, Role: model.RoleSuperadmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ti.now = time.Now
	if _, err := ti.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	tok, _, err := NewTokenIssuer("a", time.Hour).Issue(&model.User{ID: 1, Role: model.RoleEmployee})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("b", time.Hour).Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenDisabled(t *testing.T) {
	ti := NewTokenIssuer("", time.Hour)
	if ti.Enabled() {
		t.Error("expected disabled issuer without secret")
	}
	if _, err := ti.Verify("x.y.z"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
