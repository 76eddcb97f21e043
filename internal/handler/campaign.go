package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/coinvault/internal/campaign"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

type CampaignHandler struct {
	campaigns *campaign.Service
	users     *store.UserStore
	stats     *store.StatsStore
	logger    *slog.Logger
}

func NewCampaignHandler(campaigns *campaign.Service, db store.DBTX, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		users:     store.NewUserStore(db),
		stats:     store.NewStatsStore(db),
		logger:    logger,
	}
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.campaigns.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Campaign{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.campaigns.Create(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.campaigns.Get(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req campaign.Request
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.campaigns.Update(r.Context(), actor(r), id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.campaigns.Delete(r.Context(), actor(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Distribute handles POST /api/campaigns/{id}/distribute
func (h *CampaignHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in campaign.DistributeInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	in.CampaignID = id
	res, err := h.campaigns.Distribute(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CampaignHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	a, err := h.campaigns.Analytics(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Employees handles GET /api/employees?department=
func (h *CampaignHandler) Employees(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.ListEmployees(r.Context(), actor(r).CompanyID, r.URL.Query().Get("department"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.User{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CompanyStats handles GET /api/company/stats
func (h *CampaignHandler) CompanyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Company(r.Context(), actor(r).CompanyID, time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
