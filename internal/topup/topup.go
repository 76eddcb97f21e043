// Package topup sells regular coins to company admins through Stripe
// Checkout. Coins are credited from the checkout.session.completed webhook,
// at most once per checkout session.
package topup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/metrics"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

const maxCoinsPerCheckout = 1_000_000

type Service struct {
	cfg        config.StripeConfig
	db         *sql.DB
	events     events.Publisher
	logger     *slog.Logger
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func New(cfg config.StripeConfig, db *sql.DB, pub events.Publisher, logger *slog.Logger) *Service {
	stripe.Key = cfg.SecretKey
	return &Service{
		cfg:        cfg,
		db:         db,
		events:     pub,
		logger:     logger.With("component", "topup"),
		newSession: checksession.New,
	}
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled()
}

type CheckoutRequest struct {
	Coins int64 `json:"coins" validate:"required,gt=0,lte=1000000"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckout opens a Stripe Checkout session for coins at the configured
// price per coin.
func (s *Service) CreateCheckout(ctx context.Context, actor auth.AuthContext, coins int64) (*CheckoutResult, error) {
	if !s.Enabled() {
		return nil, apperr.Validation("top-ups are not enabled")
	}
	if coins <= 0 || coins > maxCoinsPerCheckout {
		return nil, apperr.Validation("coins must be between 1 and %d", maxCoinsPerCheckout)
	}

	userID := strconv.FormatInt(actor.UserID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(s.cfg.PricePerCoinCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Coins"),
					},
				},
				Quantity: stripe.Int64(coins),
			},
		},
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"user_id": userID,
			"coins":   strconv.FormatInt(coins, 10),
		},
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
	}
	sess, err := s.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	s.logger.Info("checkout created", "session_id", sess.ID, "user_id", actor.UserID, "coins", coins)
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// ConstructEvent verifies the signature and returns the parsed event.
func (s *Service) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

// HandleEvent applies a verified webhook event. Unknown event types are
// ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.logger.Info("checkout not paid yet", "session_id", sess.ID, "status", sess.PaymentStatus)
		return nil
	}
	userID, err := strconv.ParseInt(sess.Metadata["user_id"], 10, 64)
	if err != nil {
		return apperr.Validation("checkout session %s has no user", sess.ID)
	}
	coins, err := strconv.ParseInt(sess.Metadata["coins"], 10, 64)
	if err != nil || coins <= 0 {
		return apperr.Validation("checkout session %s has no coin amount", sess.ID)
	}
	_, err = s.Credit(ctx, sess.ID, userID, coins)
	return err
}

// Credit adds coins for a paid checkout session. A session that was already
// credited is a no-op and reports false.
func (s *Service) Credit(ctx context.Context, sessionID string, userID, coins int64) (bool, error) {
	ref := "stripe:" + sessionID
	var companyID int64
	credited := false
	err := store.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		txs := store.NewTransactionStore(tx)
		existing, err := txs.GetByReference(ctx, ref)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		users := store.NewUserStore(tx)
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound("user %d not found", userID)
		}
		if u.CompanyID != nil {
			companyID = *u.CompanyID
		}
		if _, err := users.Credit(ctx, userID, coins); err != nil {
			return err
		}
		if _, err := txs.Create(ctx, model.Transaction{
			Type:          model.TxTopup,
			Status:        model.TxCompleted,
			Amount:        coins,
			RegularAmount: coins,
			ToUserID:      &userID,
			Reference:     &ref,
			Description:   fmt.Sprintf("Top-up of %d coins", coins),
		}); err != nil {
			return err
		}
		credited = true
		return store.NewActivityStore(tx).Log(ctx, userID, "topup", ref)
	})
	if err != nil || !credited {
		return false, err
	}

	metrics.AddCoins(string(model.TxTopup), coins)
	ev := events.New(events.TypeTopup, userID, coins)
	ev.CompanyID = companyID
	ev.RegularAmount = coins
	if perr := s.events.Publish(context.WithoutCancel(ctx), ev); perr != nil {
		s.logger.Error("publish topup event", "error", perr)
	}
	return true, nil
}
