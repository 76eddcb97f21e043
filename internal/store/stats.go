package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type StatsStore struct {
	db DBTX
}

func NewStatsStore(db DBTX) *StatsStore {
	return &StatsStore{db: db}
}

type countQuery struct {
	dest  *int64
	query string
	args  []any
}

func (s *StatsStore) run(ctx context.Context, queries []countQuery) error {
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return fmt.Errorf("stats query: %w", err)
		}
	}
	return nil
}

func (s *StatsStore) Company(ctx context.Context, companyID int64, now time.Time) (*model.CompanyStats, error) {
	var st model.CompanyStats
	err := s.run(ctx, []countQuery{
		{&st.Employees, `SELECT COUNT(*) FROM users WHERE company_id = ? AND role = ?`, []any{companyID, model.RoleEmployee}},
		{&st.Campaigns, `SELECT COUNT(*) FROM campaigns WHERE company_id = ?`, []any{companyID}},
		{&st.ActiveCampaigns, `SELECT COUNT(*) FROM campaigns WHERE company_id = ? AND is_active = 1 AND end_date >= ?`, []any{companyID, now.UTC()}},
		{&st.CoinsDistributed, `SELECT COALESCE(SUM(total_distributed), 0) FROM campaigns WHERE company_id = ?`, []any{companyID}},
		{&st.CodesIssued, `SELECT COUNT(*) FROM redemption_codes c JOIN users u ON u.id = c.issued_by WHERE u.company_id = ?`, []any{companyID}},
		{&st.CodesRedeemed, `SELECT COUNT(*) FROM redemption_codes c JOIN users u ON u.id = c.issued_by WHERE u.company_id = ? AND c.redeemed_at IS NOT NULL`, []any{companyID}},
		{&st.VouchersBought, `SELECT COUNT(*) FROM purchases p JOIN users u ON u.id = p.purchased_by WHERE u.company_id = ?`, []any{companyID}},
	})
	if err != nil {
		return nil, fmt.Errorf("company stats: %w", err)
	}
	return &st, nil
}

func (s *StatsStore) Platform(ctx context.Context) (*model.PlatformStats, error) {
	var st model.PlatformStats
	err := s.run(ctx, []countQuery{
		{&st.Companies, `SELECT COUNT(*) FROM companies`, nil},
		{&st.Users, `SELECT COUNT(*) FROM users`, nil},
		{&st.CoinsInCirculation, `SELECT COALESCE(SUM(regular_balance), 0) FROM users`, nil},
		{&st.CampaignCoins, `SELECT COALESCE(SUM(balance), 0) FROM campaign_grants`, nil},
		{&st.PendingRequests, `SELECT COUNT(*) FROM transactions WHERE type = ? AND status = ?`, []any{model.TxRequest, model.TxPending}},
		{&st.ActiveVouchers, `SELECT COUNT(*) FROM vouchers WHERE is_active = 1`, nil},
		{&st.PurchasesTotal, `SELECT COUNT(*) FROM purchases`, nil},
	})
	if err != nil {
		return nil, fmt.Errorf("platform stats: %w", err)
	}
	return &st, nil
}
