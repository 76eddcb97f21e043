package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type RedemptionCodeStore struct {
	db DBTX
}

func NewRedemptionCodeStore(db DBTX) *RedemptionCodeStore {
	return &RedemptionCodeStore{db: db}
}

const codeCols = `id, code, kind, coin_amount, employee_email, employee_name, user_id, campaign_id, issued_by,
	email_sent, email_status, expires_at, redeemed_at, redeemed_by, created_at`

func scanCode(sc scanner) (*model.RedemptionCode, error) {
	var c model.RedemptionCode
	var userID, campaignID, redeemedBy sql.NullInt64
	var redeemedAt sql.NullTime
	var sent int
	err := sc.Scan(&c.ID, &c.Code, &c.Kind, &c.CoinAmount, &c.EmployeeEmail, &c.EmployeeName, &userID,
		&campaignID, &c.IssuedBy, &sent, &c.EmailStatus, &c.ExpiresAt, &redeemedAt, &redeemedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.UserID = int64Ptr(userID)
	c.CampaignID = int64Ptr(campaignID)
	c.RedeemedBy = int64Ptr(redeemedBy)
	c.RedeemedAt = timePtr(redeemedAt)
	c.EmailSent = sent != 0
	c.ExpiresAt = c.ExpiresAt.UTC()
	return &c, nil
}

func (s *RedemptionCodeStore) Create(ctx context.Context, c model.RedemptionCode) (*model.RedemptionCode, error) {
	if c.EmailStatus == "" {
		c.EmailStatus = "pending"
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO redemption_codes (code, kind, coin_amount, employee_email, employee_name, user_id,
		     campaign_id, issued_by, email_status, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, c.Kind, c.CoinAmount, NormalizeEmail(c.EmployeeEmail), c.EmployeeName, nullInt64(c.UserID),
		nullInt64(c.CampaignID), c.IssuedBy, c.EmailStatus, c.ExpiresAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RedemptionCodeStore) GetByID(ctx context.Context, id int64) (*model.RedemptionCode, error) {
	c, err := scanCode(s.db.QueryRowContext(ctx, `SELECT `+codeCols+` FROM redemption_codes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption code: %w", err)
	}
	return c, nil
}

func (s *RedemptionCodeStore) GetByCode(ctx context.Context, code string) (*model.RedemptionCode, error) {
	c, err := scanCode(s.db.QueryRowContext(ctx, `SELECT `+codeCols+` FROM redemption_codes WHERE code = ?`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption code by code: %w", err)
	}
	return c, nil
}

// ListByIssuer returns the codes an admin issued, newest first.
func (s *RedemptionCodeStore) ListByIssuer(ctx context.Context, issuerID int64) ([]model.RedemptionCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+codeCols+` FROM redemption_codes WHERE issued_by = ? ORDER BY created_at DESC, id DESC`, issuerID)
	if err != nil {
		return nil, fmt.Errorf("list codes by issuer: %w", err)
	}
	defer rows.Close()
	return scanCodes(rows)
}

// ListForUser returns the campaign codes bound to a user, newest first.
func (s *RedemptionCodeStore) ListForUser(ctx context.Context, userID int64) ([]model.RedemptionCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+codeCols+` FROM redemption_codes WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list codes for user: %w", err)
	}
	defer rows.Close()
	return scanCodes(rows)
}

// MarkRedeemed claims an unredeemed, unexpired code for userID. It returns
// ErrConflict when the code was already redeemed or has expired.
func (s *RedemptionCodeStore) MarkRedeemed(ctx context.Context, id, userID int64, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE redemption_codes SET redeemed_at = ?, redeemed_by = ?
		 WHERE id = ? AND redeemed_at IS NULL AND expires_at >= ?`,
		now.UTC(), userID, id, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("redeem code: %w", err)
	}
	return expectOne(result, "redeem code")
}

func (s *RedemptionCodeStore) SetEmailStatus(ctx context.Context, id int64, sent bool, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE redemption_codes SET email_sent = ?, email_status = ? WHERE id = ?`,
		boolInt(sent), status, id,
	)
	if err != nil {
		return fmt.Errorf("set code email status: %w", err)
	}
	return nil
}

// UnredeemedByCampaign sums the coins still sitting in a campaign's
// unredeemed codes.
func (s *RedemptionCodeStore) UnredeemedByCampaign(ctx context.Context, campaignID int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(coin_amount), 0) FROM redemption_codes WHERE campaign_id = ? AND redeemed_at IS NULL`,
		campaignID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum unredeemed codes: %w", err)
	}
	return total, nil
}

func scanCodes(rows *sql.Rows) ([]model.RedemptionCode, error) {
	var codes []model.RedemptionCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption code: %w", err)
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}
