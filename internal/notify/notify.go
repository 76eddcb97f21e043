// Package notify fans out best-effort email and web push deliveries.
// Failures are counted and logged, never returned to the operation that
// triggered them.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/dukerupert/coinvault/internal/email"
	"github.com/dukerupert/coinvault/internal/metrics"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/push"
	"github.com/dukerupert/coinvault/internal/store"

	"golang.org/x/sync/errgroup"
)

const maxInFlight = 8

// PushSender delivers one push payload.
type PushSender interface {
	Enabled() bool
	Send(ctx context.Context, sub *model.PushSubscription, p push.Payload) error
}

// Result counts deliveries.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type Notifier struct {
	mail   email.Sender
	push   PushSender
	subs   *store.PushStore
	logger *slog.Logger
}

func New(mail email.Sender, pushSvc PushSender, subs *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		mail:   mail,
		push:   pushSvc,
		subs:   subs,
		logger: logger.With("component", "notify"),
	}
}

// Emails sends every message and returns one error slot per message.
func (n *Notifier) Emails(ctx context.Context, msgs []email.Message) []error {
	errs := make([]error, len(msgs))
	if len(msgs) == 0 {
		return errs
	}
	if n.mail == nil || !n.mail.Configured() {
		for i := range errs {
			errs[i] = email.ErrNotConfigured
		}
		metrics.Notifications.WithLabelValues("email", "skipped").Add(float64(len(msgs)))
		return errs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for i, m := range msgs {
		g.Go(func() error {
			err := n.mail.Send(gctx, m)
			if err != nil {
				n.logger.Warn("email delivery failed", "to", m.To, "error", err)
			}
			errs[i] = err
			metrics.RecordNotification("email", err)
			return nil
		})
	}
	g.Wait()
	return errs
}

// Push sends payload to every subscription owned by userIDs. Expired
// subscriptions are removed.
func (n *Notifier) Push(ctx context.Context, userIDs []int64, p push.Payload) Result {
	if n.push == nil || !n.push.Enabled() || len(userIDs) == 0 {
		return Result{}
	}
	subs, err := n.subs.ListByUsers(ctx, userIDs)
	if err != nil {
		n.logger.Error("list push subscriptions", "error", err)
		return Result{}
	}

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			err := n.push.Send(gctx, sub, p)
			metrics.RecordNotification("push", err)
			switch {
			case err == nil:
				sent.Add(1)
			case errors.Is(err, push.ErrExpired):
				failed.Add(1)
				if derr := n.subs.DeleteByEndpoint(gctx, sub.Endpoint); derr != nil {
					n.logger.Error("delete expired subscription", "error", derr)
				}
			default:
				failed.Add(1)
				n.logger.Warn("push delivery failed", "user_id", sub.UserID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return Result{Sent: int(sent.Load()), Failed: int(failed.Load())}
}

// Count tallies per-message errors.
func Count(errs []error) Result {
	var r Result
	for _, err := range errs {
		if err == nil {
			r.Sent++
		} else {
			r.Failed++
		}
	}
	return r
}
