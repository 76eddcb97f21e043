package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/email"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/metrics"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/notify"
	"github.com/dukerupert/coinvault/internal/push"
	"github.com/dukerupert/coinvault/internal/redeem"
	"github.com/dukerupert/coinvault/internal/store"
)

type DistributeInput struct {
	CampaignID    int64   `json:"-"`
	TargetUserIDs []int64 `json:"targetUserIds"`
	CoinsPerUser  int64   `json:"coinsPerUser" validate:"gte=0"`
	CustomMessage string  `json:"customMessage" validate:"max=1000"`
}

type DistributeResult struct {
	TargetUsers         int   `json:"targetUsers"`
	CoinsPerUser        int64 `json:"coinsPerUser"`
	TotalDistributed    int64 `json:"totalDistributed"`
	CodesIssued         int   `json:"codesIssued"`
	NotificationsSent   int   `json:"notificationsSent"`
	NotificationsFailed int   `json:"notificationsFailed"`
}

// Distribute hands coins from a campaign's budget to its targets. The budget
// debit, participant caps, and grants or codes commit together or not at all.
func (s *Service) Distribute(ctx context.Context, actor auth.AuthContext, in DistributeInput) (res *DistributeResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("distribute", start, err) }()

	if in.CoinsPerUser < 0 {
		return nil, apperr.Validation("coins per user must be positive")
	}
	now := s.now()

	var (
		c       *model.Campaign
		targets []model.User
		codes   []*model.RedemptionCode
	)
	res = &DistributeResult{}
	err = store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		campaigns := store.NewCampaignStore(tx)
		var err error
		c, err = campaigns.GetByID(ctx, in.CampaignID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("campaign not found")
		}
		if c.CompanyID != actor.CompanyID {
			return apperr.Unauthorized("campaign belongs to another company")
		}
		if !c.Open(now) {
			return apperr.Validation("campaign is not active")
		}

		if len(in.TargetUserIDs) > 0 {
			targets, err = s.employees(ctx, tx, c.CompanyID, dedupe(in.TargetUserIDs))
		} else {
			targets, err = s.resolveTargets(ctx, tx, c)
		}
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return apperr.Validation("campaign has no targets")
		}

		n := int64(len(targets))
		coins := in.CoinsPerUser
		if coins == 0 && c.CoinsPerEmployee != nil {
			coins = *c.CoinsPerEmployee
		}
		if coins == 0 {
			coins = c.RemainingBudget / n
		}
		if coins <= 0 {
			return apperr.InsufficientBudget("remaining budget %d cannot cover %d users", c.RemainingBudget, n)
		}
		if coins > math.MaxInt64/n {
			return apperr.Validation("distribution total overflows")
		}
		total := coins * n

		if err := campaigns.DebitBudget(ctx, c.ID, total, n); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.InsufficientBudget("need %d coins, %d remaining", total, c.RemainingBudget)
			}
			return err
		}

		var maxTotal int64
		if c.MaxCoinsPerEmployee != nil {
			maxTotal = *c.MaxCoinsPerEmployee
		}
		participants := store.NewParticipantStore(tx)
		grants := store.NewGrantStore(tx)
		codeStore := store.NewRedemptionCodeStore(tx)
		for _, u := range targets {
			if err := participants.Add(ctx, c.ID, u.ID, coins, maxTotal); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return apperr.Validation("user %d would exceed %d coins from this campaign", u.ID, maxTotal)
				}
				return err
			}

			if c.AllowIndividualCodes {
				code, err := s.mintCampaignCode(ctx, codeStore, c, u, coins, actor.UserID, now)
				if err != nil {
					return err
				}
				codes = append(codes, code)
				continue
			}
			if _, err := grants.Merge(ctx, store.GrantCredit{
				UserID:       u.ID,
				CampaignID:   c.ID,
				CampaignName: c.Name,
				Amount:       coins,
				Restriction:  c.Restriction,
				ExpiresAt:    c.EndDate,
			}); err != nil {
				return err
			}
		}

		if _, err := store.NewTransactionStore(tx).Create(ctx, model.Transaction{
			Type:           model.TxCampaignDistribution,
			Status:         model.TxCompleted,
			Amount:         total,
			CampaignAmount: total,
			FromUserID:     &actor.UserID,
			CampaignID:     &c.ID,
			Description:    fmt.Sprintf("%s: %d coins to %d users", c.Name, coins, n),
		}); err != nil {
			return err
		}
		details := fmt.Sprintf("campaign=%d users=%d coins=%d", c.ID, n, coins)
		if err := store.NewActivityStore(tx).Log(ctx, actor.UserID, "campaign_distribution", details); err != nil {
			return err
		}

		*res = DistributeResult{
			TargetUsers:      len(targets),
			CoinsPerUser:     coins,
			TotalDistributed: total,
			CodesIssued:      len(codes),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("campaign distributed", "campaign_id", c.ID, "users", res.TargetUsers, "total", res.TotalDistributed)
	metrics.AddCoins(string(model.TxCampaignDistribution), res.TotalDistributed)
	for _, u := range targets {
		ev := events.New(events.TypeDistribution, u.ID, res.CoinsPerUser)
		ev.CompanyID = c.CompanyID
		ev.CampaignID = c.ID
		if perr := s.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
			s.logger.Error("publish distribution event", "error", perr, "user_id", u.ID)
		}
	}

	if c.EmailNotifications {
		sent, failed := s.notifyTargets(context.WithoutCancel(ctx), c, targets, codes, res.CoinsPerUser, in.CustomMessage)
		res.NotificationsSent = sent
		res.NotificationsFailed = failed
	}
	return res, nil
}

func (s *Service) mintCampaignCode(ctx context.Context, codes *store.RedemptionCodeStore, c *model.Campaign, u model.User, coins, issuer int64, now time.Time) (*model.RedemptionCode, error) {
	code, err := redeem.NewCode()
	if err != nil {
		return nil, err
	}
	// A code never outlives its campaign.
	expires := now.Add(s.codeTTL)
	if c.EndDate.Before(expires) {
		expires = c.EndDate
	}
	return codes.Create(ctx, model.RedemptionCode{
		Code:          code,
		Kind:          model.CodeCampaign,
		CoinAmount:    coins,
		EmployeeEmail: u.Email,
		EmployeeName:  u.Name,
		UserID:        &u.ID,
		CampaignID:    &c.ID,
		IssuedBy:      issuer,
		ExpiresAt:     expires,
	})
}

// notifyTargets emails and pushes to every target. It never fails the
// distribution; it only reports counts.
func (s *Service) notifyTargets(ctx context.Context, c *model.Campaign, targets []model.User, codes []*model.RedemptionCode, coins int64, custom string) (sent, failed int) {
	if s.notifier == nil {
		return 0, 0
	}

	msgs := make([]email.Message, len(targets))
	ids := make([]int64, len(targets))
	for i, u := range targets {
		ids[i] = u.ID
		if len(codes) == len(targets) {
			msgs[i] = email.CodeMessage(u.Email, u.Name, codes[i].Code, coins, codes[i].ExpiresAt, s.baseURL)
			continue
		}
		msgs[i] = email.CampaignMessage(u.Email, u.Name, c.Name, coins, custom)
	}

	errs := s.notifier.Emails(ctx, msgs)
	if len(codes) == len(targets) {
		codeStore := store.NewRedemptionCodeStore(s.db)
		for i, code := range codes {
			status := "sent"
			if errs[i] != nil {
				status = "failed"
			}
			if err := codeStore.SetEmailStatus(ctx, code.ID, errs[i] == nil, status); err != nil {
				s.logger.Error("record code email status", "error", err, "code_id", code.ID)
			}
		}
	}
	mailed := notify.Count(errs)

	pushed := s.notifier.Push(ctx, ids, push.Payload{
		Title: c.Name,
		Body:  fmt.Sprintf("You received %d coins", coins),
		URL:   "/wallet",
		Tag:   fmt.Sprintf("campaign-%d", c.ID),
	})
	return mailed.Sent + pushed.Sent, mailed.Failed + pushed.Failed
}
