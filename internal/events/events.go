// Package events publishes ledger movements to Kafka so downstream systems
// (analytics, accounting exports) can follow the coin flow without polling
// the database.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePurchase     Type = "purchase"
	TypeRedeemCode   Type = "redeem_code"
	TypeIssueCodes   Type = "issue_codes"
	TypeDistribution Type = "campaign_distribution"
	TypeMint         Type = "mint"
	TypeBurn         Type = "burn"
	TypeTransfer     Type = "transfer"
	TypeTopup        Type = "topup"
)

// LedgerEvent describes one committed coin movement.
type LedgerEvent struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	UserID         int64     `json:"userId"`
	CompanyID      int64     `json:"companyId,omitempty"`
	Amount         int64     `json:"amount"`
	CampaignAmount int64     `json:"campaignAmount,omitempty"`
	RegularAmount  int64     `json:"regularAmount,omitempty"`
	VoucherID      int64     `json:"voucherId,omitempty"`
	CampaignID     int64     `json:"campaignId,omitempty"`
	Quantity       int64     `json:"quantity,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// New returns an event with a fresh id and the current time.
func New(t Type, userID, amount int64) LedgerEvent {
	return LedgerEvent{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers ledger events. Publish is called after the ledger
// transaction commits and must not block the caller on broker latency.
type Publisher interface {
	Publish(ctx context.Context, e LedgerEvent) error
	Close()
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, LedgerEvent) error { return nil }
func (Nop) Close()                                     {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (r *Recorder) Publish(_ context.Context, e LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LedgerEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t Type) []LedgerEvent {
	var out []LedgerEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Fanout publishes every event to each publisher in turn. All publishers
// are attempted; the first error is returned.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e LedgerEvent) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() {
	for _, p := range f {
		p.Close()
	}
}
