// Package campaign manages budgeted coin campaigns and distributes their
// coins to a company's employees, either as campaign grants or as
// user-bound redemption codes.
package campaign

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/ledger"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/notify"
	"github.com/dukerupert/coinvault/internal/store"
)

type Service struct {
	db            *sql.DB
	notifier      *notify.Notifier
	events        events.Publisher
	logger        *slog.Logger
	baseURL       string
	codeTTL       time.Duration
	enforceExpiry bool
	now           func() time.Time
}

type Options struct {
	BaseURL        string
	CodeExpiryDays int
	EnforceExpiry  bool
}

func New(db *sql.DB, notifier *notify.Notifier, pub events.Publisher, logger *slog.Logger, opts Options) *Service {
	days := opts.CodeExpiryDays
	if days <= 0 {
		days = 30
	}
	return &Service{
		db:            db,
		notifier:      notifier,
		events:        pub,
		logger:        logger.With("component", "campaign"),
		baseURL:       opts.BaseURL,
		codeTTL:       time.Duration(days) * 24 * time.Hour,
		enforceExpiry: opts.EnforceExpiry,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Request is the editable shape of a campaign.
type Request struct {
	Name                 string            `json:"name" validate:"required,max=200"`
	Description          string            `json:"description" validate:"max=2000"`
	TargetType           model.TargetType  `json:"targetType" validate:"required,oneof=all individual department"`
	TargetUserIDs        []int64           `json:"targetUsers"`
	TargetDepartment     string            `json:"targetDepartment"`
	TotalBudget          int64             `json:"totalBudget" validate:"required,gt=0"`
	CoinsPerEmployee     *int64            `json:"coinsPerEmployee" validate:"omitempty,gt=0"`
	MaxCoinsPerEmployee  *int64            `json:"maxCoinsPerEmployee" validate:"omitempty,gt=0"`
	Restriction          model.Restriction `json:"restriction"`
	StartDate            time.Time         `json:"startDate" validate:"required"`
	EndDate              time.Time         `json:"endDate" validate:"required"`
	IsActive             *bool             `json:"isActive"`
	AllowIndividualCodes bool              `json:"allowIndividualCodes"`
	EmailNotifications   bool              `json:"emailNotifications"`
}

func (s *Service) input(ctx context.Context, actor auth.AuthContext, req Request) (store.CampaignInput, error) {
	if !req.TargetType.Valid() {
		return store.CampaignInput{}, apperr.Validation("unknown target type %q", req.TargetType)
	}
	if !req.EndDate.After(req.StartDate) {
		return store.CampaignInput{}, apperr.Validation("end date must be after start date")
	}
	r := req.Restriction.Normalized()
	if !r.Type.Valid() {
		return store.CampaignInput{}, apperr.Validation("unknown restriction type %q", r.Type)
	}
	switch {
	case r.Type == model.RestrictionCategory && len(r.AllowedCategories) == 0,
		r.Type == model.RestrictionBrand && len(r.AllowedBrands) == 0,
		r.Type == model.RestrictionSpecific && len(r.AllowedVoucherIDs) == 0:
		return store.CampaignInput{}, apperr.Validation("%s restriction needs at least one entry", r.Type)
	}

	in := store.CampaignInput{
		CompanyID:            actor.CompanyID,
		Name:                 req.Name,
		Description:          req.Description,
		TargetType:           req.TargetType,
		TotalBudget:          req.TotalBudget,
		CoinsPerEmployee:     req.CoinsPerEmployee,
		MaxCoinsPerEmployee:  req.MaxCoinsPerEmployee,
		Restriction:          r,
		StartDate:            req.StartDate.UTC(),
		EndDate:              req.EndDate.UTC(),
		IsActive:             req.IsActive == nil || *req.IsActive,
		AllowIndividualCodes: req.AllowIndividualCodes,
		EmailNotifications:   req.EmailNotifications,
		CreatedBy:            actor.UserID,
	}
	switch req.TargetType {
	case model.TargetIndividual:
		ids := dedupe(req.TargetUserIDs)
		if len(ids) == 0 {
			return store.CampaignInput{}, apperr.Validation("individual campaigns need target users")
		}
		if _, err := s.employees(ctx, s.db, actor.CompanyID, ids); err != nil {
			return store.CampaignInput{}, err
		}
		in.TargetUserIDs = ids
	case model.TargetDepartment:
		if req.TargetDepartment == "" {
			return store.CampaignInput{}, apperr.Validation("department campaigns need a department")
		}
		in.TargetDepartment = req.TargetDepartment
	}
	return in, nil
}

func (s *Service) Create(ctx context.Context, actor auth.AuthContext, req Request) (*model.Campaign, error) {
	if actor.CompanyID == 0 {
		return nil, apperr.Unauthorized("only company admins own campaigns")
	}
	in, err := s.input(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	c, err := store.NewCampaignStore(s.db).Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("campaign created", "campaign_id", c.ID, "company_id", c.CompanyID, "budget", c.TotalBudget)
	return c, nil
}

// Get loads a campaign the actor may manage.
func (s *Service) Get(ctx context.Context, actor auth.AuthContext, id int64) (*model.Campaign, error) {
	return s.owned(ctx, store.NewCampaignStore(s.db), actor, id)
}

func (s *Service) List(ctx context.Context, actor auth.AuthContext) ([]model.Campaign, error) {
	return store.NewCampaignStore(s.db).ListByCompany(ctx, actor.CompanyID)
}

func (s *Service) Update(ctx context.Context, actor auth.AuthContext, id int64, req Request) (*model.Campaign, error) {
	campaigns := store.NewCampaignStore(s.db)
	existing, err := s.owned(ctx, campaigns, actor, id)
	if err != nil {
		return nil, err
	}
	in, err := s.input(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	if req.IsActive == nil {
		in.IsActive = existing.IsActive
	}
	c, err := campaigns.Update(ctx, id, in)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.InsufficientBudget("total budget is below the coins already distributed")
	}
	return c, err
}

// Delete removes a campaign that has not distributed to anyone.
func (s *Service) Delete(ctx context.Context, actor auth.AuthContext, id int64) error {
	campaigns := store.NewCampaignStore(s.db)
	if _, err := s.owned(ctx, campaigns, actor, id); err != nil {
		return err
	}
	err := campaigns.Delete(ctx, id)
	if errors.Is(err, store.ErrConflict) {
		return apperr.Validation("campaign has participants and cannot be deleted")
	}
	return err
}

func (s *Service) owned(ctx context.Context, campaigns *store.CampaignStore, actor auth.AuthContext, id int64) (*model.Campaign, error) {
	c, err := campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("campaign not found")
	}
	if actor.Role != model.RoleSuperadmin && c.CompanyID != actor.CompanyID {
		return nil, apperr.Unauthorized("campaign belongs to another company")
	}
	return c, nil
}

// ResolveTargets returns the employees a campaign targets.
func (s *Service) ResolveTargets(ctx context.Context, c *model.Campaign) ([]model.User, error) {
	return s.resolveTargets(ctx, s.db, c)
}

func (s *Service) resolveTargets(ctx context.Context, db store.DBTX, c *model.Campaign) ([]model.User, error) {
	switch c.TargetType {
	case model.TargetIndividual:
		return s.employees(ctx, db, c.CompanyID, c.TargetUserIDs)
	case model.TargetDepartment:
		return store.NewUserStore(db).ListEmployees(ctx, c.CompanyID, c.TargetDepartment)
	default:
		return store.NewUserStore(db).ListEmployees(ctx, c.CompanyID, "")
	}
}

// employees loads ids and requires every one to be an employee of companyID.
func (s *Service) employees(ctx context.Context, db store.DBTX, companyID int64, ids []int64) ([]model.User, error) {
	users, err := store.NewUserStore(db).ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(users) != len(ids) {
		return nil, apperr.Validation("unknown target user")
	}
	for _, u := range users {
		if u.Role != model.RoleEmployee || !u.InCompany(companyID) {
			return nil, apperr.Validation("user %d is not an employee of this company", u.ID)
		}
	}
	return users, nil
}

// Analytics summarizes participation and spending for a campaign.
func (s *Service) Analytics(ctx context.Context, actor auth.AuthContext, id int64) (*model.CampaignAnalytics, error) {
	c, err := s.owned(ctx, store.NewCampaignStore(s.db), actor, id)
	if err != nil {
		return nil, err
	}
	participants, err := store.NewParticipantStore(s.db).ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	outstanding, err := store.NewGrantStore(s.db).OutstandingByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	unredeemed, err := store.NewRedemptionCodeStore(s.db).UnredeemedByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	a := &model.CampaignAnalytics{
		CampaignID:            c.ID,
		TotalParticipants:     int64(len(participants)),
		TotalCoinsDistributed: c.TotalDistributed,
		TotalCoinsOutstanding: outstanding + unredeemed,
		TotalCoinsUsed:        max(c.TotalDistributed-outstanding-unredeemed, 0),
		CodesRedeemed:         c.RedemptionCount,
	}
	if a.TotalParticipants > 0 {
		a.AverageCoinsPerRecipient = float64(a.TotalCoinsDistributed) / float64(a.TotalParticipants)
	}
	if a.TotalCoinsDistributed > 0 {
		a.RedemptionRate = float64(a.TotalCoinsUsed*100) / float64(a.TotalCoinsDistributed)
	}
	return a, nil
}

// VouchersForUser returns the active vouchers at least one of the user's
// grants can pay for.
func (s *Service) VouchersForUser(ctx context.Context, userID int64) ([]model.Voucher, error) {
	now := s.now()
	grants, err := store.NewGrantStore(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	vouchers, err := store.NewVoucherStore(s.db).ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	opts := ledger.ResolveOptions{EnforceExpiry: s.enforceExpiry, Now: now}
	out := []model.Voucher{}
	for _, v := range vouchers {
		if ledger.Payable(grants, v, opts) {
			out = append(out, v)
		}
	}
	return out, nil
}

func dedupe(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
