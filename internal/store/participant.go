package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type ParticipantStore struct {
	db DBTX
}

func NewParticipantStore(db DBTX) *ParticipantStore {
	return &ParticipantStore{db: db}
}

// Add records coins received by a user from a campaign. When maxTotal is
// positive the user's running total may not exceed it; the call returns
// ErrConflict instead.
func (s *ParticipantStore) Add(ctx context.Context, campaignID, userID, coins, maxTotal int64) error {
	if maxTotal > 0 && coins > maxTotal {
		return ErrConflict
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_participants (campaign_id, user_id, coins_received, joined_at, last_activity)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(campaign_id, user_id) DO UPDATE SET
		     coins_received = coins_received + excluded.coins_received,
		     last_activity = excluded.last_activity
		 WHERE ? <= 0 OR coins_received + excluded.coins_received <= ?`,
		campaignID, userID, coins, now, now, maxTotal, maxTotal,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return expectOne(result, "add participant")
}

func (s *ParticipantStore) ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignParticipant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, user_id, coins_received, joined_at, last_activity
		 FROM campaign_participants WHERE campaign_id = ? ORDER BY joined_at ASC, user_id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []model.CampaignParticipant
	for rows.Next() {
		var p model.CampaignParticipant
		if err := rows.Scan(&p.CampaignID, &p.UserID, &p.CoinsReceived, &p.JoinedAt, &p.LastActivity); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
