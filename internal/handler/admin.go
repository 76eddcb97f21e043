package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/snapshot"
	"github.com/dukerupert/coinvault/internal/store"
)

type AdminHandler struct {
	activity  *store.ActivityStore
	stats     *store.StatsStore
	snapshots *snapshot.Manager
	logger    *slog.Logger
}

func NewAdminHandler(db store.DBTX, snapshots *snapshot.Manager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		activity:  store.NewActivityStore(db),
		stats:     store.NewStatsStore(db),
		snapshots: snapshots,
		logger:    logger,
	}
}

// Activity handles GET /api/admin/activity?userId=&limit=
// Without userId it returns the most recent entries across all users.
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if v := r.URL.Query().Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, h.logger, apperr.Validation("invalid userId"))
			return
		}
		userID = id
	}
	list, err := h.activity.List(r.Context(), userID, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.ActivityLog{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) PlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Platform(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CreateSnapshot handles POST /api/admin/snapshots
func (h *AdminHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := h.snapshots.RunNow(r.Context())
	if errors.Is(err, snapshot.ErrDisabled) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "snapshots are not configured",
			"kind":  "unavailable",
		})
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListSnapshots handles GET /api/admin/snapshots
func (h *AdminHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := h.snapshots.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    h.snapshots.Status(),
		"snapshots": list,
	})
}
