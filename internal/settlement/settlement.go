// Package settlement commits voucher purchases against a wallet of regular
// coins and campaign grants. Every purchase runs in one transaction and
// every decrement is a conditional update, so concurrent purchases can
// never overdraw a balance, a grant, or a voucher's stock.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/ledger"
	"github.com/dukerupert/coinvault/internal/metrics"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

type Engine struct {
	db            *sql.DB
	events        events.Publisher
	logger        *slog.Logger
	enforceExpiry bool
	now           func() time.Time
}

func New(db *sql.DB, pub events.Publisher, logger *slog.Logger, enforceExpiry bool) *Engine {
	return &Engine{
		db:            db,
		events:        pub,
		logger:        logger.With("component", "settlement"),
		enforceExpiry: enforceExpiry,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PurchaseRequest is what a client submits to buy a voucher. The coin split
// fields are optional; when present they must match the server's breakdown.
type PurchaseRequest struct {
	VoucherID          int64  `json:"voucherId" validate:"required,gt=0"`
	Quantity           int64  `json:"quantity" validate:"required,gte=1"`
	PaymentMethod      string `json:"paymentMethod"`
	CampaignCoinsToUse *int64 `json:"campaignCoinsToUse,omitempty"`
	RegularCoinsToUse  *int64 `json:"regularCoinsToUse,omitempty"`
}

type Receipt struct {
	NewBalance        int64            `json:"newBalance"`
	QuantityPurchased int64            `json:"quantityPurchased"`
	Breakdown         ledger.Breakdown `json:"paymentBreakdown"`
	PurchaseIDs       []string         `json:"purchaseIds"`
	TransactionID     int64            `json:"transactionId"`
}

type EligibilityReport struct {
	VoucherID              int64                  `json:"voucherId"`
	IsEligible             bool                   `json:"isEligible"`
	AvailableCampaignCoins []ledger.EligibleGrant `json:"availableCampaignCoins"`
	TotalCampaignCoins     int64                  `json:"totalCampaignCoins"`
	RegularCoins           int64                  `json:"regularCoins"`
	TotalAvailableCoins    int64                  `json:"totalAvailableCoins"`
}

type Wallet struct {
	RegularBalance int64                  `json:"regularBalance"`
	CampaignGrants []ledger.EligibleGrant `json:"campaignGrants"`
	CampaignTotal  int64                  `json:"campaignTotal"`
}

func (e *Engine) resolveOptions() ledger.ResolveOptions {
	return ledger.ResolveOptions{EnforceExpiry: e.enforceExpiry, Now: e.now()}
}

// Wallet returns the regular balance and every grant with coins left. Under
// expiry enforcement expired grants are listed but not counted.
func (e *Engine) Wallet(ctx context.Context, userID int64) (*Wallet, error) {
	user, err := store.NewUserStore(e.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	grants, err := store.NewGrantStore(e.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	w := &Wallet{RegularBalance: user.RegularBalance, CampaignGrants: []ledger.EligibleGrant{}}
	for _, g := range grants {
		if g.Balance <= 0 {
			continue
		}
		expired := g.Expired(now)
		w.CampaignGrants = append(w.CampaignGrants, ledger.EligibleGrant{CampaignGrant: g, Expired: expired})
		if !expired || !e.enforceExpiry {
			w.CampaignTotal += g.Balance
		}
	}
	ledger.SortGrants(w.CampaignGrants)
	return w, nil
}

// Eligibility reports which of the user's grants may pay for a voucher.
func (e *Engine) Eligibility(ctx context.Context, userID, voucherID int64) (*EligibilityReport, error) {
	v, err := e.activeVoucher(ctx, store.NewVoucherStore(e.db), voucherID)
	if err != nil {
		return nil, err
	}
	user, grants, err := e.account(ctx, e.db, userID)
	if err != nil {
		return nil, err
	}

	el := ledger.Resolve(grants, *v, e.resolveOptions())
	report := &EligibilityReport{
		VoucherID:              v.ID,
		IsEligible:             el.IsEligible,
		AvailableCampaignCoins: el.Grants,
		TotalCampaignCoins:     el.CampaignTotal,
		RegularCoins:           user.RegularBalance,
		TotalAvailableCoins:    el.CampaignTotal + user.RegularBalance,
	}
	if report.AvailableCampaignCoins == nil {
		report.AvailableCampaignCoins = []ledger.EligibleGrant{}
	}
	return report, nil
}

// Quote previews the breakdown of a purchase without changing anything.
func (e *Engine) Quote(ctx context.Context, userID int64, req PurchaseRequest) (ledger.Breakdown, error) {
	method, err := ledger.ParseMethod(req.PaymentMethod)
	if err != nil {
		return ledger.Breakdown{}, err
	}
	v, err := e.activeVoucher(ctx, store.NewVoucherStore(e.db), req.VoucherID)
	if err != nil {
		return ledger.Breakdown{}, err
	}
	user, grants, err := e.account(ctx, e.db, userID)
	if err != nil {
		return ledger.Breakdown{}, err
	}
	el := ledger.Resolve(grants, *v, e.resolveOptions())
	return ledger.Compute(ledger.BreakdownInput{
		UnitPrice:             v.CoinValue,
		Quantity:              req.Quantity,
		EligibleCampaignTotal: el.CampaignTotal,
		RegularBalance:        user.RegularBalance,
		Method:                method,
	})
}

// Purchase buys req.Quantity units of a voucher for userID.
func (e *Engine) Purchase(ctx context.Context, userID int64, req PurchaseRequest) (receipt *Receipt, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("purchase", start, err) }()

	if req.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}
	method, err := ledger.ParseMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	var (
		companyID int64
		voucher   *model.Voucher
	)
	receipt = &Receipt{}
	err = store.RunInTx(ctx, e.db, func(tx *sql.Tx) error {
		vouchers := store.NewVoucherStore(tx)
		v, err := e.activeVoucher(ctx, vouchers, req.VoucherID)
		if err != nil {
			return err
		}
		if v.Quantity < req.Quantity {
			return apperr.InsufficientInventory("only %d left", v.Quantity)
		}
		voucher = v

		user, grants, err := e.account(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.CompanyID != nil {
			companyID = *user.CompanyID
		}

		el := ledger.Resolve(grants, *v, e.resolveOptions())
		b, err := ledger.Compute(ledger.BreakdownInput{
			UnitPrice:             v.CoinValue,
			Quantity:              req.Quantity,
			EligibleCampaignTotal: el.CampaignTotal,
			RegularBalance:        user.RegularBalance,
			Method:                method,
		})
		if err != nil {
			return err
		}
		if err := checkClientSplit(req, b); err != nil {
			return err
		}
		if !b.CanAfford {
			return apperr.InsufficientFunds("need %d coins (%d campaign, %d regular)",
				b.TotalCost, b.CampaignCoinsUsed, b.RegularCoinsUsed)
		}

		debits, err := ledger.Drain(el.Grants, b.CampaignCoinsUsed)
		if err != nil {
			return err
		}
		grantStore := store.NewGrantStore(tx)
		for _, d := range debits {
			if err := grantStore.Debit(ctx, d.GrantID, d.Amount); err != nil {
				return conflictAs(err, apperr.InsufficientFunds("campaign grant balance changed"))
			}
		}

		newBalance := user.RegularBalance
		if b.RegularCoinsUsed > 0 {
			newBalance, err = store.NewUserStore(tx).Debit(ctx, userID, b.RegularCoinsUsed)
			if err != nil {
				return conflictAs(err, apperr.InsufficientFunds("regular balance changed"))
			}
		}

		if err := vouchers.Decrement(ctx, v.ID, req.Quantity); err != nil {
			return conflictAs(err, apperr.InsufficientInventory("voucher sold out"))
		}

		t := model.Transaction{
			Type:           model.TxPurchase,
			Status:         model.TxCompleted,
			Amount:         b.TotalCost,
			CampaignAmount: b.CampaignCoinsUsed,
			RegularAmount:  b.RegularCoinsUsed,
			FromUserID:     &userID,
			VoucherID:      &v.ID,
			Description:    fmt.Sprintf("Purchased %d x %s", req.Quantity, v.Title),
		}
		if len(debits) == 1 {
			t.CampaignID = &debits[0].CampaignID
		}
		created, err := store.NewTransactionStore(tx).Create(ctx, t)
		if err != nil {
			return err
		}

		purchases := store.NewPurchaseStore(tx)
		now := e.now()
		ids := make([]string, 0, req.Quantity)
		for range req.Quantity {
			p := model.Purchase{
				ID:            uuid.NewString(),
				VoucherID:     v.ID,
				OwnerID:       userID,
				PurchasedBy:   userID,
				TransactionID: created.ID,
				PurchasedAt:   now,
			}
			if err := purchases.Create(ctx, p); err != nil {
				return err
			}
			ids = append(ids, p.ID)
		}

		details := fmt.Sprintf("voucher=%d quantity=%d campaign=%d regular=%d",
			v.ID, req.Quantity, b.CampaignCoinsUsed, b.RegularCoinsUsed)
		if err := store.NewActivityStore(tx).Log(ctx, userID, "purchase", details); err != nil {
			return err
		}

		*receipt = Receipt{
			NewBalance:        newBalance,
			QuantityPurchased: req.Quantity,
			Breakdown:         b,
			PurchaseIDs:       ids,
			TransactionID:     created.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddCoins(string(model.TxPurchase), receipt.Breakdown.TotalCost)
	ev := events.New(events.TypePurchase, userID, receipt.Breakdown.TotalCost)
	ev.CompanyID = companyID
	ev.CampaignAmount = receipt.Breakdown.CampaignCoinsUsed
	ev.RegularAmount = receipt.Breakdown.RegularCoinsUsed
	ev.VoucherID = voucher.ID
	ev.Quantity = receipt.QuantityPurchased
	if perr := e.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
		e.logger.Error("publish purchase event", "error", perr, "user_id", userID)
	}
	return receipt, nil
}

// activeVoucher loads a voucher that can currently be bought.
func (e *Engine) activeVoucher(ctx context.Context, vouchers *store.VoucherStore, id int64) (*model.Voucher, error) {
	v, err := vouchers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil || !v.IsActive {
		return nil, apperr.NotFound("voucher not found")
	}
	if v.ExpiryDate != nil && e.now().After(*v.ExpiryDate) {
		return nil, apperr.NotFound("voucher is no longer available")
	}
	return v, nil
}

func (e *Engine) account(ctx context.Context, db store.DBTX, userID int64) (*model.User, []model.CampaignGrant, error) {
	user, err := store.NewUserStore(db).GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, apperr.NotFound("user not found")
	}
	grants, err := store.NewGrantStore(db).ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, grants, nil
}

func checkClientSplit(req PurchaseRequest, b ledger.Breakdown) error {
	if req.CampaignCoinsToUse != nil && *req.CampaignCoinsToUse != b.CampaignCoinsUsed {
		return apperr.Validation("campaign coins %d do not match breakdown %d", *req.CampaignCoinsToUse, b.CampaignCoinsUsed)
	}
	if req.RegularCoinsToUse != nil && *req.RegularCoinsToUse != b.RegularCoinsUsed {
		return apperr.Validation("regular coins %d do not match breakdown %d", *req.RegularCoinsToUse, b.RegularCoinsUsed)
	}
	return nil
}

// conflictAs maps a lost conditional update to a domain error.
func conflictAs(err error, domain *apperr.Error) error {
	if errors.Is(err, store.ErrConflict) {
		return domain
	}
	return err
}
