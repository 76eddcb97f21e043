// Package redeem issues single-use redemption codes and credits them to
// the wallet they are bound to.
package redeem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/email"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/metrics"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/notify"
	"github.com/dukerupert/coinvault/internal/store"
)

const defaultExpiryDays = 30

var validate = validator.New()

type Service struct {
	db         *sql.DB
	notifier   *notify.Notifier
	events     events.Publisher
	logger     *slog.Logger
	baseURL    string
	expiryDays int
	now        func() time.Time
}

type Options struct {
	BaseURL        string
	CodeExpiryDays int
}

func New(db *sql.DB, notifier *notify.Notifier, pub events.Publisher, logger *slog.Logger, opts Options) *Service {
	days := opts.CodeExpiryDays
	if days <= 0 {
		days = defaultExpiryDays
	}
	return &Service{
		db:         db,
		notifier:   notifier,
		events:     pub,
		logger:     logger.With("component", "redeem"),
		baseURL:    opts.BaseURL,
		expiryDays: days,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type IssueInput struct {
	Recipients    []Recipient `json:"recipients" validate:"required,min=1,max=500"`
	CoinAmount    int64       `json:"coinAmount" validate:"required,gt=0"`
	ExpiresInDays int         `json:"expiresInDays" validate:"gte=0,lte=365"`
}

type IssueResult struct {
	Issued       int                    `json:"issued"`
	Skipped      int                    `json:"skipped"`
	EmailsSent   int                    `json:"emailsSent"`
	EmailsFailed int                    `json:"emailsFailed"`
	Codes        []model.RedemptionCode `json:"codes"`
}

type RedeemResult struct {
	CoinsAdded   int64              `json:"coinsAdded"`
	NewBalance   int64              `json:"newBalance"`
	CampaignID   *int64             `json:"campaignId,omitempty"`
	Restrictions *model.Restriction `json:"restrictions,omitempty"`
}

// Issue debits the admin for CoinAmount per valid recipient and mints one
// email-bound code each. Recipients without a valid email are skipped.
func (s *Service) Issue(ctx context.Context, actor auth.AuthContext, in IssueInput) (res *IssueResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("issue_codes", start, err) }()

	if in.CoinAmount <= 0 {
		return nil, apperr.Validation("coin amount must be positive")
	}
	days := in.ExpiresInDays
	if days <= 0 {
		days = s.expiryDays
	}

	var valid []Recipient
	skipped := 0
	for _, r := range in.Recipients {
		r.Email = store.NormalizeEmail(r.Email)
		if validate.Var(r.Email, "required,email") != nil {
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return nil, apperr.Validation("no valid recipients")
	}
	n := int64(len(valid))
	if in.CoinAmount > math.MaxInt64/n {
		return nil, apperr.Validation("total overflows")
	}
	total := in.CoinAmount * n
	now := s.now()
	expires := now.Add(time.Duration(days) * 24 * time.Hour)

	res = &IssueResult{Skipped: skipped}
	err = store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := store.NewUserStore(tx).Debit(ctx, actor.UserID, total); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.InsufficientFunds("issuing %d codes needs %d coins", n, total)
			}
			return err
		}

		codes := store.NewRedemptionCodeStore(tx)
		for _, r := range valid {
			code, err := NewCode()
			if err != nil {
				return err
			}
			c, err := codes.Create(ctx, model.RedemptionCode{
				Code:          code,
				Kind:          model.CodePlain,
				CoinAmount:    in.CoinAmount,
				EmployeeEmail: r.Email,
				EmployeeName:  r.Name,
				IssuedBy:      actor.UserID,
				ExpiresAt:     expires,
			})
			if err != nil {
				return err
			}
			res.Codes = append(res.Codes, *c)
		}

		if _, err := store.NewTransactionStore(tx).Create(ctx, model.Transaction{
			Type:          model.TxIssueCodes,
			Status:        model.TxCompleted,
			Amount:        total,
			RegularAmount: total,
			FromUserID:    &actor.UserID,
			Description:   fmt.Sprintf("Issued %d codes of %d coins", n, in.CoinAmount),
		}); err != nil {
			return err
		}
		return store.NewActivityStore(tx).Log(ctx, actor.UserID, "issue_codes",
			fmt.Sprintf("codes=%d coins=%d", n, in.CoinAmount))
	})
	if err != nil {
		return nil, err
	}
	res.Issued = len(res.Codes)

	metrics.AddCoins(string(model.TxIssueCodes), total)
	ev := events.New(events.TypeIssueCodes, actor.UserID, total)
	ev.CompanyID = actor.CompanyID
	ev.Quantity = n
	if perr := s.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
		s.logger.Error("publish issue event", "error", perr)
	}

	s.emailCodes(context.WithoutCancel(ctx), res)
	return res, nil
}

func (s *Service) emailCodes(ctx context.Context, res *IssueResult) {
	if s.notifier == nil {
		return
	}
	msgs := make([]email.Message, len(res.Codes))
	for i, c := range res.Codes {
		msgs[i] = email.CodeMessage(c.EmployeeEmail, c.EmployeeName, c.Code, c.CoinAmount, c.ExpiresAt, s.baseURL)
	}
	errs := s.notifier.Emails(ctx, msgs)

	codes := store.NewRedemptionCodeStore(s.db)
	for i := range res.Codes {
		c := &res.Codes[i]
		c.EmailSent = errs[i] == nil
		c.EmailStatus = "sent"
		if errs[i] != nil {
			c.EmailStatus = "failed"
		}
		if err := codes.SetEmailStatus(ctx, c.ID, c.EmailSent, c.EmailStatus); err != nil {
			s.logger.Error("record code email status", "error", err, "code_id", c.ID)
		}
	}
	count := notify.Count(errs)
	res.EmailsSent = count.Sent
	res.EmailsFailed = count.Failed
}

// Redeem credits a code to userID. Plain codes add to the regular balance;
// campaign codes merge into the user's grant for that campaign.
func (s *Service) Redeem(ctx context.Context, userID int64, raw string) (res *RedeemResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("redeem_code", start, err) }()

	code := NormalizeCode(raw)
	if code == "" {
		return nil, apperr.Validation("code is required")
	}
	now := s.now()

	var (
		companyID int64
		redeemed  *model.RedemptionCode
	)
	res = &RedeemResult{}
	err = store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		users := store.NewUserStore(tx)
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return apperr.NotFound("user not found")
		}
		if user.CompanyID != nil {
			companyID = *user.CompanyID
		}

		codes := store.NewRedemptionCodeStore(tx)
		c, err := codes.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("code not found")
		}
		if !boundTo(c, user) {
			return apperr.Unauthorized("code belongs to another user")
		}
		if err := state(c, now); err != nil {
			return err
		}
		if err := codes.MarkRedeemed(ctx, c.ID, userID, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				if c.Expired(now) {
					return apperr.New(apperr.KindExpired, "code has expired")
				}
				return apperr.New(apperr.KindAlreadyRedeemed, "code has already been redeemed")
			}
			return err
		}
		redeemed = c

		t := model.Transaction{
			Type:        model.TxRedeemCode,
			Status:      model.TxCompleted,
			Amount:      c.CoinAmount,
			ToUserID:    &userID,
			Description: "Redeemed code " + c.Code,
		}
		switch c.Kind {
		case model.CodeCampaign:
			campaigns := store.NewCampaignStore(tx)
			camp, err := campaigns.GetByID(ctx, *c.CampaignID)
			if err != nil {
				return err
			}
			if camp == nil {
				return apperr.NotFound("campaign not found")
			}
			if _, err := store.NewGrantStore(tx).Merge(ctx, store.GrantCredit{
				UserID:       userID,
				CampaignID:   camp.ID,
				CampaignName: camp.Name,
				Amount:       c.CoinAmount,
				Restriction:  camp.Restriction,
				ExpiresAt:    camp.EndDate,
			}); err != nil {
				return err
			}
			if err := campaigns.IncrementRedemptions(ctx, camp.ID); err != nil {
				return err
			}
			r := camp.Restriction
			res.Restrictions = &r
			res.CampaignID = &camp.ID
			res.NewBalance = user.RegularBalance
			t.CampaignAmount = c.CoinAmount
			t.CampaignID = &camp.ID
		default:
			balance, err := users.Credit(ctx, userID, c.CoinAmount)
			if err != nil {
				return err
			}
			res.NewBalance = balance
			t.RegularAmount = c.CoinAmount
		}
		res.CoinsAdded = c.CoinAmount

		if _, err := store.NewTransactionStore(tx).Create(ctx, t); err != nil {
			return err
		}
		return store.NewActivityStore(tx).Log(ctx, userID, "redeem_code",
			fmt.Sprintf("code=%d coins=%d", c.ID, c.CoinAmount))
	})
	if err != nil {
		return nil, err
	}

	metrics.AddCoins(string(model.TxRedeemCode), res.CoinsAdded)
	ev := events.New(events.TypeRedeemCode, userID, res.CoinsAdded)
	ev.CompanyID = companyID
	if redeemed.CampaignID != nil {
		ev.CampaignID = *redeemed.CampaignID
		ev.CampaignAmount = res.CoinsAdded
	} else {
		ev.RegularAmount = res.CoinsAdded
	}
	if perr := s.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
		s.logger.Error("publish redeem event", "error", perr, "user_id", userID)
	}
	return res, nil
}

// boundTo reports whether the code may be redeemed by u.
func boundTo(c *model.RedemptionCode, u *model.User) bool {
	switch c.Kind {
	case model.CodeCampaign:
		return c.UserID != nil && *c.UserID == u.ID
	default:
		return store.NormalizeEmail(c.EmployeeEmail) == store.NormalizeEmail(u.Email)
	}
}

func state(c *model.RedemptionCode, now time.Time) error {
	if c.IsRedeemed() {
		return apperr.New(apperr.KindAlreadyRedeemed, "code has already been redeemed")
	}
	if c.Expired(now) {
		return apperr.New(apperr.KindExpired, "code has expired")
	}
	return nil
}

// Lookup finds any code for support and audit.
func (s *Service) Lookup(ctx context.Context, raw string) (*model.RedemptionCode, error) {
	c, err := store.NewRedemptionCodeStore(s.db).GetByCode(ctx, NormalizeCode(raw))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("code not found")
	}
	return c, nil
}

func (s *Service) ListIssued(ctx context.Context, adminID int64) ([]model.RedemptionCode, error) {
	return store.NewRedemptionCodeStore(s.db).ListByIssuer(ctx, adminID)
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]model.RedemptionCode, error) {
	return store.NewRedemptionCodeStore(s.db).ListForUser(ctx, userID)
}
