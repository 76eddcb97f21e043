package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/treasury"
)

type TreasuryHandler struct {
	treasury *treasury.Service
	logger   *slog.Logger
}

func NewTreasuryHandler(svc *treasury.Service, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{treasury: svc, logger: logger}
}

// RequestCoins handles POST /api/coin-requests
func (h *TreasuryHandler) RequestCoins(w http.ResponseWriter, r *http.Request) {
	var req treasury.CoinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.treasury.RequestCoins(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListRequests handles GET /api/coin-requests?status=
func (h *TreasuryHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := model.TransactionStatus(r.URL.Query().Get("status"))
	list, err := h.treasury.ListRequests(r.Context(), status, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Decide handles POST /api/coin-requests/{id}/decision
func (h *TreasuryHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var d treasury.Decision
	if err := decode(r, &d); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.treasury.Decide(r.Context(), actor(r), id, d.Approve)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Adjust handles POST /api/admin/coins
func (h *TreasuryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var a treasury.Adjustment
	if err := decode(r, &a); err != nil {
		writeError(w, h.logger, err)
		return
	}
	balance, err := h.treasury.Adjust(r.Context(), actor(r), a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"userId": a.UserID, "newBalance": balance})
}
