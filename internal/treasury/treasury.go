// Package treasury moves regular coins in and out of circulation: minting
// and burning by superadmins, and the request/approval flow through which
// company admins obtain coins.
package treasury

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/metrics"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

type Service struct {
	db     *sql.DB
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func New(db *sql.DB, pub events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		events: pub,
		logger: logger.With("component", "treasury"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Adjustment is a mint or burn against one user's regular balance.
type Adjustment struct {
	UserID      int64  `json:"userId" validate:"required,gt=0"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Action      string `json:"action" validate:"required,oneof=mint burn"`
	Description string `json:"description" validate:"max=500"`
}

type CoinRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type Decision struct {
	Approve bool `json:"approve"`
}

// Adjust dispatches an Adjustment to Mint or Burn.
func (s *Service) Adjust(ctx context.Context, actor auth.AuthContext, a Adjustment) (int64, error) {
	switch a.Action {
	case "mint":
		return s.Mint(ctx, actor, a.UserID, a.Amount, a.Description)
	case "burn":
		return s.Burn(ctx, actor, a.UserID, a.Amount, a.Description)
	}
	return 0, apperr.Validation("unknown action %q", a.Action)
}

// Mint creates amount new coins in userID's regular balance.
func (s *Service) Mint(ctx context.Context, actor auth.AuthContext, userID, amount int64, description string) (int64, error) {
	return s.adjust(ctx, actor, model.TxMint, userID, amount, description)
}

// Burn removes amount coins from userID's regular balance.
func (s *Service) Burn(ctx context.Context, actor auth.AuthContext, userID, amount int64, description string) (int64, error) {
	return s.adjust(ctx, actor, model.TxBurn, userID, amount, description)
}

func (s *Service) adjust(ctx context.Context, actor auth.AuthContext, kind model.TransactionType, userID, amount int64, description string) (balance int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(string(kind), start, err) }()

	if amount <= 0 {
		return 0, apperr.Validation("amount must be positive")
	}
	var companyID int64
	err = store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		users := store.NewUserStore(tx)
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound("user not found")
		}
		if u.CompanyID != nil {
			companyID = *u.CompanyID
		}

		t := model.Transaction{
			Type:        kind,
			Status:      model.TxCompleted,
			Amount:      amount,
			Description: description,
		}
		if kind == model.TxMint {
			balance, err = users.Credit(ctx, userID, amount)
			t.FromUserID = &actor.UserID
			t.ToUserID = &userID
		} else {
			balance, err = users.Debit(ctx, userID, amount)
			if errors.Is(err, store.ErrConflict) {
				return apperr.InsufficientFunds("user holds fewer than %d coins", amount)
			}
			t.FromUserID = &userID
		}
		if err != nil {
			return err
		}
		if t.Description == "" {
			t.Description = fmt.Sprintf("%s %d coins", kind, amount)
		}
		if _, err := store.NewTransactionStore(tx).Create(ctx, t); err != nil {
			return err
		}
		return store.NewActivityStore(tx).Log(ctx, actor.UserID, string(kind),
			fmt.Sprintf("user=%d amount=%d", userID, amount))
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("coins adjusted", "type", kind, "user_id", userID, "amount", amount, "by", actor.UserID)
	metrics.AddCoins(string(kind), amount)
	evType := events.TypeMint
	if kind == model.TxBurn {
		evType = events.TypeBurn
	}
	ev := events.New(evType, userID, amount)
	ev.CompanyID = companyID
	ev.RegularAmount = amount
	if perr := s.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
		s.logger.Error("publish adjustment event", "error", perr)
	}
	return balance, nil
}

// RequestCoins records a pending request from a company admin.
func (s *Service) RequestCoins(ctx context.Context, actor auth.AuthContext, req CoinRequest) (*model.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if req.Reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	t, err := store.NewTransactionStore(s.db).Create(ctx, model.Transaction{
		Type:        model.TxRequest,
		Status:      model.TxPending,
		Amount:      req.Amount,
		ToUserID:    &actor.UserID,
		Description: req.Reason,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("coins requested", "request_id", t.ID, "user_id", actor.UserID, "amount", req.Amount)
	return t, nil
}

// Decide approves or rejects a pending request. Approval transfers the
// coins from the deciding superadmin's balance in the same transaction.
func (s *Service) Decide(ctx context.Context, actor auth.AuthContext, requestID int64, approve bool) (decided *model.Transaction, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("decide_request", start, err) }()

	status := model.TxRejected
	if approve {
		status = model.TxApproved
	}
	now := s.now()

	var requester int64
	err = store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		txs := store.NewTransactionStore(tx)
		req, err := txs.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil || req.Type != model.TxRequest || req.ToUserID == nil {
			return apperr.NotFound("coin request not found")
		}
		requester = *req.ToUserID

		if err := txs.Decide(ctx, requestID, status, actor.UserID, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Validation("request was already decided")
			}
			return err
		}

		if approve {
			users := store.NewUserStore(tx)
			if _, err := users.Debit(ctx, actor.UserID, req.Amount); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return apperr.InsufficientFunds("approving needs %d coins", req.Amount)
				}
				return err
			}
			if _, err := users.Credit(ctx, requester, req.Amount); err != nil {
				return err
			}
			ref := "request:" + strconv.FormatInt(requestID, 10)
			if _, err := txs.Create(ctx, model.Transaction{
				Type:          model.TxTransfer,
				Status:        model.TxCompleted,
				Amount:        req.Amount,
				RegularAmount: req.Amount,
				FromUserID:    &actor.UserID,
				ToUserID:      &requester,
				Reference:     &ref,
				Description:   "Approved coin request",
			}); err != nil {
				return err
			}
		}

		if err := store.NewActivityStore(tx).Log(ctx, actor.UserID, "decide_request",
			fmt.Sprintf("request=%d status=%s", requestID, status)); err != nil {
			return err
		}
		decided, err = txs.GetByID(ctx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if approve {
		metrics.AddCoins(string(model.TxTransfer), decided.Amount)
		ev := events.New(events.TypeTransfer, requester, decided.Amount)
		ev.RegularAmount = decided.Amount
		if perr := s.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
			s.logger.Error("publish transfer event", "error", perr)
		}
	}
	return decided, nil
}

// ListRequests returns coin requests, optionally filtered by status.
func (s *Service) ListRequests(ctx context.Context, status model.TransactionStatus, limit int) ([]model.Transaction, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("unknown status %q", status)
	}
	return store.NewTransactionStore(s.db).List(ctx, store.TxFilter{Type: model.TxRequest, Status: status, Limit: limit})
}
