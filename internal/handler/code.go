package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/redeem"
)

type CodeHandler struct {
	codes  *redeem.Service
	logger *slog.Logger
}

func NewCodeHandler(codes *redeem.Service, logger *slog.Logger) *CodeHandler {
	return &CodeHandler{codes: codes, logger: logger}
}

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// Redeem handles POST /api/codes/redeem
func (h *CodeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.codes.Redeem(r.Context(), actor(r).UserID, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Issue handles POST /api/codes
func (h *CodeHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var in redeem.IssueInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.codes.Issue(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListIssued handles GET /api/codes
func (h *CodeHandler) ListIssued(w http.ResponseWriter, r *http.Request) {
	codes, err := h.codes.ListIssued(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if codes == nil {
		codes = []model.RedemptionCode{}
	}
	writeJSON(w, http.StatusOK, codes)
}

// Lookup handles GET /api/admin/codes/{code}
func (h *CodeHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	c, err := h.codes.Lookup(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
