package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/database"
	"github.com/dukerupert/coinvault/internal/email"
	"github.com/dukerupert/coinvault/internal/logging"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/push"
	"github.com/dukerupert/coinvault/internal/store"
)

type fakeMail struct {
	mu   sync.Mutex
	sent []email.Message
	fail map[string]bool
}

func (f *fakeMail) Configured() bool { return true }

func (f *fakeMail) Send(_ context.Context, m email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[m.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakePush struct {
	mu      sync.Mutex
	sent    int
	expired map[string]bool
}

func (f *fakePush) Enabled() bool { return true }

func (f *fakePush) Send(_ context.Context, sub *model.PushSubscription, _ push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[sub.Endpoint] {
		return push.ErrExpired
	}
	f.sent++
	return nil
}

func TestEmails(t *testing.T) {
	mail := &fakeMail{fail: map[string]bool{"bad@acme.test": true}}
	n := New(mail, nil, nil, logging.New(io.Discard, "error", "text"))

	msgs := []email.Message{
		{To: "a@acme.test"},
		{To: "bad@acme.test"},
		{To: "b@acme.test"},
	}
	errs := n.Emails(context.Background(), msgs)
	if len(errs) != 3 {
		t.Fatalf("len(errs) = %d, want 3", len(errs))
	}
	if errs[0] != nil || errs[2] != nil {
		t.Errorf("unexpected errors: %v", errs)
	}
	if errs[1] == nil {
		t.Error("expected failure for bad@acme.test")
	}
	r := Count(errs)
	if r.Sent != 2 || r.Failed != 1 {
		t.Errorf("result = %+v, want 2 sent 1 failed", r)
	}
}

func TestEmailsUnconfigured(t *testing.T) {
	n := New(email.New(config.EmailConfig{}, ""), nil, nil, logging.New(io.Discard, "error", "text"))
	errs := n.Emails(context.Background(), []email.Message{{To: "a@acme.test"}})
	if !errors.Is(errs[0], email.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", errs[0])
	}
}

func TestPushRemovesExpired(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	company, err := store.NewCompanyStore(db).Create(ctx, "Acme")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	u, err := store.NewUserStore(db).Create(ctx, store.NewUser{CompanyID: &company.ID, Email: "emp@acme.test", Role: model.RoleEmployee})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	subs := store.NewPushStore(db)
	if _, err := subs.CreateSubscription(ctx, u.ID, "https://push.test/live", "p", "a", "phone"); err != nil {
		t.Fatalf("create sub: %v", err)
	}
	if _, err := subs.CreateSubscription(ctx, u.ID, "https://push.test/gone", "p", "a", "laptop"); err != nil {
		t.Fatalf("create sub: %v", err)
	}

	fp := &fakePush{expired: map[string]bool{"https://push.test/gone": true}}
	n := New(nil, fp, subs, logging.New(io.Discard, "error", "text"))

	r := n.Push(ctx, []int64{u.ID}, push.Payload{Title: "Coins"})
	if r.Sent != 1 || r.Failed != 1 {
		t.Errorf("result = %+v, want 1 sent 1 failed", r)
	}

	remaining, err := subs.ListByUsers(ctx, []int64{u.ID})
	if err != nil {
		t.Fatalf("list subs: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Endpoint != "https://push.test/live" {
		t.Errorf("remaining = %+v, want only live endpoint", remaining)
	}
}
