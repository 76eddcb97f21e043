package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type CampaignStore struct {
	db DBTX
}

func NewCampaignStore(db DBTX) *CampaignStore {
	return &CampaignStore{db: db}
}

// CampaignInput holds the editable campaign fields.
type CampaignInput struct {
	CompanyID            int64
	Name                 string
	Description          string
	TargetType           model.TargetType
	TargetUserIDs        []int64
	TargetDepartment     string
	TotalBudget          int64
	CoinsPerEmployee     *int64
	MaxCoinsPerEmployee  *int64
	Restriction          model.Restriction
	StartDate            time.Time
	EndDate              time.Time
	IsActive             bool
	AllowIndividualCodes bool
	EmailNotifications   bool
	CreatedBy            int64
}

const campaignCols = `id, company_id, name, description, target_type, target_user_ids, target_department,
	total_budget, remaining_budget, coins_per_employee, max_coins_per_employee, restriction_type,
	allowed_categories, allowed_brands, allowed_voucher_ids, start_date, end_date, is_active,
	allow_individual_codes, email_notifications, participant_count, total_distributed,
	redemption_count, created_by, created_at, updated_at`

func scanCampaign(sc scanner) (*model.Campaign, error) {
	var c model.Campaign
	var targets, cats, brands, ids string
	var perEmployee, maxPerEmployee sql.NullInt64
	var active, codes, emails int
	err := sc.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.TargetType, &targets, &c.TargetDepartment,
		&c.TotalBudget, &c.RemainingBudget, &perEmployee, &maxPerEmployee, &c.Restriction.Type,
		&cats, &brands, &ids, &c.StartDate, &c.EndDate, &active,
		&codes, &emails, &c.ParticipantCount, &c.TotalDistributed,
		&c.RedemptionCount, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.TargetUserIDs, err = decodeList[int64](targets); err != nil {
		return nil, err
	}
	if c.Restriction.AllowedCategories, err = decodeList[string](cats); err != nil {
		return nil, err
	}
	if c.Restriction.AllowedBrands, err = decodeList[string](brands); err != nil {
		return nil, err
	}
	if c.Restriction.AllowedVoucherIDs, err = decodeList[int64](ids); err != nil {
		return nil, err
	}
	c.CoinsPerEmployee = int64Ptr(perEmployee)
	c.MaxCoinsPerEmployee = int64Ptr(maxPerEmployee)
	c.IsActive = active != 0
	c.AllowIndividualCodes = codes != 0
	c.EmailNotifications = emails != 0
	c.StartDate = c.StartDate.UTC()
	c.EndDate = c.EndDate.UTC()
	return &c, nil
}

func (s *CampaignStore) Create(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	r := in.Restriction.Normalized()
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (company_id, name, description, target_type, target_user_ids, target_department,
		     total_budget, remaining_budget, coins_per_employee, max_coins_per_employee, restriction_type,
		     allowed_categories, allowed_brands, allowed_voucher_ids, start_date, end_date, is_active,
		     allow_individual_codes, email_notifications, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.CompanyID, in.Name, in.Description, in.TargetType, encodeList(in.TargetUserIDs), in.TargetDepartment,
		in.TotalBudget, in.TotalBudget, nullInt64(in.CoinsPerEmployee), nullInt64(in.MaxCoinsPerEmployee), r.Type,
		encodeList(r.AllowedCategories), encodeList(r.AllowedBrands), encodeList(r.AllowedVoucherIDs),
		in.StartDate.UTC(), in.EndDate.UTC(), boolInt(in.IsActive),
		boolInt(in.AllowIndividualCodes), boolInt(in.EmailNotifications), in.CreatedBy, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CampaignStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListByCompany returns a company's campaigns, newest first.
func (s *CampaignStore) ListByCompany(ctx context.Context, companyID int64) ([]model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignCols+` FROM campaigns WHERE company_id = ? ORDER BY created_at DESC, id DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// Update replaces the editable fields. A new total budget moves the remaining
// budget by the same delta; it returns ErrConflict when that would take the
// remaining budget below zero.
func (s *CampaignStore) Update(ctx context.Context, id int64, in CampaignInput) (*model.Campaign, error) {
	r := in.Restriction.Normalized()
	result, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET name = ?, description = ?, target_type = ?, target_user_ids = ?,
		     target_department = ?, remaining_budget = remaining_budget + (? - total_budget), total_budget = ?,
		     coins_per_employee = ?, max_coins_per_employee = ?, restriction_type = ?,
		     allowed_categories = ?, allowed_brands = ?, allowed_voucher_ids = ?, start_date = ?, end_date = ?,
		     is_active = ?, allow_individual_codes = ?, email_notifications = ?, updated_at = ?
		 WHERE id = ? AND remaining_budget + (? - total_budget) >= 0`,
		in.Name, in.Description, in.TargetType, encodeList(in.TargetUserIDs),
		in.TargetDepartment, in.TotalBudget, in.TotalBudget,
		nullInt64(in.CoinsPerEmployee), nullInt64(in.MaxCoinsPerEmployee), r.Type,
		encodeList(r.AllowedCategories), encodeList(r.AllowedBrands), encodeList(r.AllowedVoucherIDs),
		in.StartDate.UTC(), in.EndDate.UTC(),
		boolInt(in.IsActive), boolInt(in.AllowIndividualCodes), boolInt(in.EmailNotifications), time.Now().UTC(),
		id, in.TotalBudget,
	)
	if err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	if err := expectOne(result, "update campaign"); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Delete removes a campaign that never reached anyone. It returns
// ErrConflict when the campaign has participants.
func (s *CampaignStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ? AND participant_count = 0`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return expectOne(result, "delete campaign")
}

// DebitBudget takes amount from the remaining budget for a distribution to
// participants users, only if the budget covers it. It returns ErrConflict
// otherwise.
func (s *CampaignStore) DebitBudget(ctx context.Context, id, amount, participants int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET remaining_budget = remaining_budget - ?,
		     participant_count = participant_count + ?,
		     total_distributed = total_distributed + ?,
		     updated_at = ?
		 WHERE id = ? AND remaining_budget >= ?`,
		amount, participants, amount, time.Now().UTC(), id, amount,
	)
	if err != nil {
		return fmt.Errorf("debit campaign budget: %w", err)
	}
	return expectOne(result, "debit campaign budget")
}

func (s *CampaignStore) IncrementRedemptions(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET redemption_count = redemption_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("increment campaign redemptions: %w", err)
	}
	return nil
}
