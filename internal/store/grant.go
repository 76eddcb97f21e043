package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type GrantStore struct {
	db DBTX
}

func NewGrantStore(db DBTX) *GrantStore {
	return &GrantStore{db: db}
}

// GrantCredit describes coins credited to a user under one campaign.
type GrantCredit struct {
	UserID       int64
	CampaignID   int64
	CampaignName string
	Amount       int64
	Restriction  model.Restriction
	ExpiresAt    time.Time
}

const grantCols = `id, user_id, campaign_id, campaign_name, balance, restriction_type,
	allowed_categories, allowed_brands, allowed_voucher_ids, expires_at, created_at, updated_at`

func scanGrant(sc scanner) (*model.CampaignGrant, error) {
	var g model.CampaignGrant
	var cats, brands, ids string
	err := sc.Scan(&g.ID, &g.UserID, &g.CampaignID, &g.CampaignName, &g.Balance, &g.Restriction.Type,
		&cats, &brands, &ids, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if g.Restriction.AllowedCategories, err = decodeList[string](cats); err != nil {
		return nil, err
	}
	if g.Restriction.AllowedBrands, err = decodeList[string](brands); err != nil {
		return nil, err
	}
	if g.Restriction.AllowedVoucherIDs, err = decodeList[int64](ids); err != nil {
		return nil, err
	}
	g.ExpiresAt = g.ExpiresAt.UTC()
	return &g, nil
}

// Merge credits a grant, creating it on first credit. Repeat credits for the
// same (user, campaign) add to the existing balance and take the credit's
// name, restriction and expiry, so the grant follows the campaign as it is now.
func (s *GrantStore) Merge(ctx context.Context, c GrantCredit) (*model.CampaignGrant, error) {
	r := c.Restriction.Normalized()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_grants (user_id, campaign_id, campaign_name, balance, restriction_type,
		     allowed_categories, allowed_brands, allowed_voucher_ids, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, campaign_id) DO UPDATE SET
		     campaign_name = excluded.campaign_name,
		     balance = balance + excluded.balance,
		     restriction_type = excluded.restriction_type,
		     allowed_categories = excluded.allowed_categories,
		     allowed_brands = excluded.allowed_brands,
		     allowed_voucher_ids = excluded.allowed_voucher_ids,
		     expires_at = excluded.expires_at,
		     updated_at = excluded.updated_at`,
		c.UserID, c.CampaignID, c.CampaignName, c.Amount, r.Type,
		encodeList(r.AllowedCategories), encodeList(r.AllowedBrands), encodeList(r.AllowedVoucherIDs),
		c.ExpiresAt.UTC(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("merge grant: %w", err)
	}
	return s.GetByUserCampaign(ctx, c.UserID, c.CampaignID)
}

func (s *GrantStore) GetByID(ctx context.Context, id int64) (*model.CampaignGrant, error) {
	g, err := scanGrant(s.db.QueryRowContext(ctx, `SELECT `+grantCols+` FROM campaign_grants WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return g, nil
}

func (s *GrantStore) GetByUserCampaign(ctx context.Context, userID, campaignID int64) (*model.CampaignGrant, error) {
	g, err := scanGrant(s.db.QueryRowContext(ctx,
		`SELECT `+grantCols+` FROM campaign_grants WHERE user_id = ? AND campaign_id = ?`, userID, campaignID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grant by campaign: %w", err)
	}
	return g, nil
}

// ListByUser returns a user's grants in drain order: soonest expiry, then id.
func (s *GrantStore) ListByUser(ctx context.Context, userID int64) ([]model.CampaignGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+grantCols+` FROM campaign_grants WHERE user_id = ? ORDER BY expires_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []model.CampaignGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

// Debit takes amount from a grant only if its balance covers it. It returns
// ErrConflict otherwise.
func (s *GrantStore) Debit(ctx context.Context, id, amount int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE campaign_grants SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?`,
		amount, time.Now().UTC(), id, amount,
	)
	if err != nil {
		return fmt.Errorf("debit grant: %w", err)
	}
	return expectOne(result, "debit grant")
}

// OutstandingByCampaign sums the unspent grant balances of a campaign.
func (s *GrantStore) OutstandingByCampaign(ctx context.Context, campaignID int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM campaign_grants WHERE campaign_id = ?`, campaignID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum grant balances: %w", err)
	}
	return total, nil
}
