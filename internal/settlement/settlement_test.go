package settlement

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/database"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/ledger"
	"github.com/dukerupert/coinvault/internal/logging"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

type testEnv struct {
	db       *sql.DB
	engine   *Engine
	events   *events.Recorder
	company  *model.Company
	admin    *model.User
	employee *model.User
}

func setupEngine(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	company, err := store.NewCompanyStore(db).Create(ctx, "Acme")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	users := store.NewUserStore(db)
	admin, err := users.Create(ctx, store.NewUser{CompanyID: &company.ID, Email: "boss@acme.test", Role: model.RoleCompanyAdmin})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	employee, err := users.Create(ctx, store.NewUser{CompanyID: &company.ID, Email: "emp@acme.test", Role: model.RoleEmployee})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}

	rec := &events.Recorder{}
	engine := New(db, rec, logging.New(io.Discard, "error", "text"), false)
	return testEnv{db: db, engine: engine, events: rec, company: company, admin: admin, employee: employee}
}

func (env testEnv) voucher(t *testing.T, category string, value, qty int64) *model.Voucher {
	t.Helper()
	v, err := store.NewVoucherStore(env.db).Create(context.Background(), store.VoucherInput{
		Title:     category + " voucher",
		Category:  category,
		CoinValue: value,
		Quantity:  qty,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	return v
}

func (env testEnv) credit(t *testing.T, userID, amount int64) {
	t.Helper()
	if _, err := store.NewUserStore(env.db).Credit(context.Background(), userID, amount); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

// grant gives userID a campaign grant restricted to categories (none when empty).
func (env testEnv) grant(t *testing.T, userID, amount int64, expires time.Time, categories ...string) *model.CampaignGrant {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	r := model.Restriction{Type: model.RestrictionNone}
	if len(categories) > 0 {
		r = model.Restriction{Type: model.RestrictionCategory, AllowedCategories: categories}
	}
	c, err := store.NewCampaignStore(env.db).Create(ctx, store.CampaignInput{
		CompanyID:   env.company.ID,
		Name:        "Campaign",
		TargetType:  model.TargetAll,
		TotalBudget: 10000,
		Restriction: r,
		StartDate:   now.Add(-time.Hour),
		EndDate:     now.Add(24 * time.Hour),
		IsActive:    true,
		CreatedBy:   env.admin.ID,
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	g, err := store.NewGrantStore(env.db).Merge(ctx, store.GrantCredit{
		UserID:       userID,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Amount:       amount,
		Restriction:  r,
		ExpiresAt:    expires,
	})
	if err != nil {
		t.Fatalf("merge grant: %v", err)
	}
	return g
}

func (env testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := store.NewUserStore(env.db).Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func (env testEnv) grantBalance(t *testing.T, id int64) int64 {
	t.Helper()
	g, err := store.NewGrantStore(env.db).GetByID(context.Background(), id)
	if err != nil || g == nil {
		t.Fatalf("get grant: %v", err)
	}
	return g.Balance
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	g := env.grant(t, env.employee.ID, 500, time.Now().Add(30*24*time.Hour), "Entertainment")
	env.credit(t, env.employee.ID, 50)
	v := env.voucher(t, "Entertainment", 600, 5)

	q, err := env.engine.Quote(ctx, env.employee.ID, PurchaseRequest{VoucherID: v.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.CampaignCoinsUsed != 500 || q.RegularCoinsUsed != 100 || q.CanAfford {
		t.Errorf("quote = %+v, want 500/100 unaffordable", q)
	}

	_, err = env.engine.Purchase(ctx, env.employee.ID, PurchaseRequest{VoucherID: v.ID, Quantity: 1})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want InsufficientFunds", err)
	}
	if got := env.grantBalance(t, g.ID); got != 500 {
		t.Errorf("grant balance = %d, want 500", got)
	}
	if got := env.balance(t, env.employee.ID); got != 50 {
		t.Errorf("regular balance = %d, want 50", got)
	}
	if got := len(env.events.Events()); got != 0 {
		t.Errorf("events = %d, want 0", got)
	}
}

func TestPurchaseFromGrant(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	g := env.grant(t, env.employee.ID, 500, time.Now().Add(30*24*time.Hour), "Entertainment")
	env.credit(t, env.employee.ID, 50)
	v := env.voucher(t, "Entertainment", 400, 5)

	r, err := env.engine.Purchase(ctx, env.employee.ID, PurchaseRequest{VoucherID: v.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if r.Breakdown.CampaignCoinsUsed != 400 || r.Breakdown.RegularCoinsUsed != 0 {
		t.Errorf("breakdown = %+v, want 400/0", r.Breakdown)
	}
	if r.NewBalance != 50 {
		t.Errorf("new balance = %d, want 50", r.NewBalance)
	}
	if len(r.PurchaseIDs) != 1 {
		t.Errorf("purchase ids = %d, want 1", len(r.PurchaseIDs))
	}
	if got := env.grantBalance(t, g.ID); got != 100 {
		t.Errorf("grant balance = %d, want 100", got)
	}

	updated, _ := store.NewVoucherStore(env.db).GetByID(ctx, v.ID)
	if updated.Quantity != 4 {
		t.Errorf("voucher quantity = %d, want 4", updated.Quantity)
	}

	evs := env.events.OfType(events.TypePurchase)
	if len(evs) != 1 || evs[0].CampaignAmount != 400 || evs[0].CompanyID != env.company.ID {
		t.Errorf("events = %+v", evs)
	}

	owned, err := store.NewPurchaseStore(env.db).ListByOwner(ctx, env.employee.ID)
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if len(owned) != 1 || owned[0].Status != model.PurchaseOwned {
		t.Errorf("purchases = %+v", owned)
	}
}

func TestPurchaseMixedDrainsSoonestExpiryFirst(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	later := env.grant(t, env.employee.ID, 100, time.Now().Add(60*24*time.Hour))
	sooner := env.grant(t, env.employee.ID, 100, time.Now().Add(10*24*time.Hour))
	env.credit(t, env.employee.ID, 100)
	v := env.voucher(t, "Food", 75, 10)

	r, err := env.engine.Purchase(ctx, env.employee.ID, PurchaseRequest{VoucherID: v.ID, Quantity: 3, PaymentMethod: "mixed"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if r.Breakdown.CampaignCoinsUsed != 200 || r.Breakdown.RegularCoinsUsed != 25 {
		t.Errorf("breakdown = %+v, want 200/25", r.Breakdown)
	}
	if got := env.grantBalance(t, sooner.ID); got != 0 {
		t.Errorf("sooner grant = %d, want 0", got)
	}
	if got := env.grantBalance(t, later.ID); got != 0 {
		t.Errorf("later grant = %d, want 0", got)
	}
	if r.NewBalance != 75 {
		t.Errorf("new balance = %d, want 75", r.NewBalance)
	}
	if len(r.PurchaseIDs) != 3 {
		t.Errorf("purchase ids = %d, want 3", len(r.PurchaseIDs))
	}
}

func TestPurchaseRegularOnly(t *testing.T) {
	env := setupEngine(t)
	g := env.grant(t, env.employee.ID, 500, time.Now().Add(24*time.Hour))
	env.credit(t, env.employee.ID, 300)
	v := env.voucher(t, "Food", 100, 10)

	r, err := env.engine.Purchase(context.Background(), env.employee.ID, PurchaseRequest{VoucherID: v.ID, Quantity: 2, PaymentMethod: "regular-only"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if r.NewBalance != 100 {
		t.Errorf("new balance = %d, want 100", r.NewBalance)
	}
	if got := env.grantBalance(t, g.ID); got != 500 {
		t.Errorf("grant balance = %d, want 500", got)
	}
}

func TestPurchaseConcurrentLastUnit(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	other, err := store.NewUserStore(env.db).Create(ctx, store.NewUser{CompanyID: &env.company.ID, Email: "other@acme.test", Role: model.RoleEmployee})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	env.credit(t, env.employee.ID, 1000)
	env.credit(t, other.ID, 1000)
	v := env.voucher(t, "Travel", 100, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []int64{env.employee.ID, other.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.engine.Purchase(ctx, uid, PurchaseRequest{VoucherID: v.ID, Quantity: 1})
		}()
	}
	wg.Wait()

	var ok, soldOut int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientInventory):
			soldOut++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || soldOut != 1 {
		t.Errorf("ok = %d, sold out = %d, want 1 and 1", ok, soldOut)
	}

	updated, _ := store.NewVoucherStore(env.db).GetByID(ctx, v.ID)
	if updated.Quantity != 0 {
		t.Errorf("voucher quantity = %d, want 0", updated.Quantity)
	}
	if total := env.balance(t, env.employee.ID) + env.balance(t, other.ID); total != 1900 {
		t.Errorf("total balance = %d, want 1900", total)
	}
}

func TestPurchaseSplitMismatch(t *testing.T) {
	env := setupEngine(t)
	env.grant(t, env.employee.ID, 500, time.Now().Add(24*time.Hour))
	env.credit(t, env.employee.ID, 500)
	v := env.voucher(t, "Food", 300, 5)

	campaign, regular := int64(100), int64(200)
	_, err := env.engine.Purchase(context.Background(), env.employee.ID, PurchaseRequest{
		VoucherID:          v.ID,
		Quantity:           1,
		CampaignCoinsToUse: &campaign,
		RegularCoinsToUse:  &regular,
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want Validation", err)
	}
	if got := env.balance(t, env.employee.ID); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}
}

func TestPurchaseValidation(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.credit(t, env.employee.ID, 1000)
	v := env.voucher(t, "Food", 100, 2)
	inactive, err := store.NewVoucherStore(env.db).Create(ctx, store.VoucherInput{Title: "Old", Category: "Food", CoinValue: 10, Quantity: 5})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}

	tests := []struct {
		name string
		req  PurchaseRequest
		want error
	}{
		{"zero quantity", PurchaseRequest{VoucherID: v.ID, Quantity: 0}, apperr.ErrValidation},
		{"unknown method", PurchaseRequest{VoucherID: v.ID, Quantity: 1, PaymentMethod: "barter"}, apperr.ErrValidation},
		{"missing voucher", PurchaseRequest{VoucherID: 9999, Quantity: 1}, apperr.ErrNotFound},
		{"inactive voucher", PurchaseRequest{VoucherID: inactive.ID, Quantity: 1}, apperr.ErrNotFound},
		{"over stock", PurchaseRequest{VoucherID: v.ID, Quantity: 3}, apperr.ErrInsufficientInventory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Purchase(ctx, env.employee.ID, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if got := env.balance(t, env.employee.ID); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
}

func TestEligibility(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.grant(t, env.employee.ID, 200, time.Now().Add(24*time.Hour), "Food")
	env.grant(t, env.employee.ID, 300, time.Now().Add(24*time.Hour), "Travel")
	env.credit(t, env.employee.ID, 40)
	v := env.voucher(t, "Food", 100, 5)

	r, err := env.engine.Eligibility(ctx, env.employee.ID, v.ID)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if !r.IsEligible || r.TotalCampaignCoins != 200 {
		t.Errorf("report = %+v, want eligible with 200", r)
	}
	if r.TotalAvailableCoins != 240 {
		t.Errorf("total available = %d, want 240", r.TotalAvailableCoins)
	}
	if len(r.AvailableCampaignCoins) != 1 {
		t.Errorf("grants = %d, want 1", len(r.AvailableCampaignCoins))
	}
}

func TestEligibilityExpiryEnforcement(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.grant(t, env.employee.ID, 200, time.Now().Add(-time.Hour))
	v := env.voucher(t, "Food", 100, 5)

	r, err := env.engine.Eligibility(ctx, env.employee.ID, v.ID)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if !r.IsEligible || !r.AvailableCampaignCoins[0].Expired {
		t.Errorf("report = %+v, want eligible grant flagged expired", r)
	}

	env.engine.enforceExpiry = true
	r, err = env.engine.Eligibility(ctx, env.employee.ID, v.ID)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if r.IsEligible || r.TotalCampaignCoins != 0 {
		t.Errorf("report = %+v, want ineligible", r)
	}

	_, err = env.engine.Purchase(ctx, env.employee.ID, PurchaseRequest{VoucherID: v.ID, Quantity: 1})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Errorf("err = %v, want InsufficientFunds", err)
	}
}

func TestWallet(t *testing.T) {
	env := setupEngine(t)
	env.grant(t, env.employee.ID, 200, time.Now().Add(48*time.Hour))
	env.grant(t, env.employee.ID, 100, time.Now().Add(24*time.Hour))
	env.credit(t, env.employee.ID, 75)

	w, err := env.engine.Wallet(context.Background(), env.employee.ID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.RegularBalance != 75 || w.CampaignTotal != 300 {
		t.Errorf("wallet = %+v", w)
	}
	if len(w.CampaignGrants) != 2 || w.CampaignGrants[0].Balance != 100 {
		t.Errorf("grants not in drain order: %+v", w.CampaignGrants)
	}
}

func TestQuoteMatchesPurchase(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	env.grant(t, env.employee.ID, 120, time.Now().Add(24*time.Hour))
	env.credit(t, env.employee.ID, 500)
	v := env.voucher(t, "Food", 90, 5)

	req := PurchaseRequest{VoucherID: v.ID, Quantity: 2, PaymentMethod: string(ledger.MethodAuto)}
	q, err := env.engine.Quote(ctx, env.employee.ID, req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	req.CampaignCoinsToUse = &q.CampaignCoinsUsed
	req.RegularCoinsToUse = &q.RegularCoinsUsed
	r, err := env.engine.Purchase(ctx, env.employee.ID, req)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if r.Breakdown != q {
		t.Errorf("purchase breakdown = %+v, quote = %+v", r.Breakdown, q)
	}
}
