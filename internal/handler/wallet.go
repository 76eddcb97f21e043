package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/campaign"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/settlement"
)

// WalletHandler serves the caller's wallet, eligibility, quotes and
// purchases.
type WalletHandler struct {
	engine    *settlement.Engine
	campaigns *campaign.Service
	logger    *slog.Logger
}

func NewWalletHandler(engine *settlement.Engine, campaigns *campaign.Service, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{engine: engine, campaigns: campaigns, logger: logger}
}

func (h *WalletHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.engine.Wallet(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// Eligibility handles GET /api/wallet/eligibility?voucherId=
func (h *WalletHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.ParseInt(r.URL.Query().Get("voucherId"), 10, 64)
	if err != nil || voucherID <= 0 {
		writeError(w, h.logger, apperr.Validation("voucherId is required"))
		return
	}
	report, err := h.engine.Eligibility(r.Context(), actor(r).UserID, voucherID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *WalletHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req settlement.PurchaseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	b, err := h.engine.Quote(r.Context(), actor(r).UserID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *WalletHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req settlement.PurchaseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	receipt, err := h.engine.Purchase(r.Context(), actor(r).UserID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *WalletHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.engine.Purchases(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if purchases == nil {
		purchases = []model.Purchase{}
	}
	writeJSON(w, http.StatusOK, purchases)
}

// UsePurchase handles POST /api/purchases/{id}/redeem
func (h *WalletHandler) UsePurchase(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.UsePurchase(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type assignRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

// AssignPurchase handles POST /api/purchases/{id}/assign
func (h *WalletHandler) AssignPurchase(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.engine.AssignPurchase(r.Context(), actor(r), r.PathValue("id"), req.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CampaignVouchers handles GET /api/vouchers/campaign
func (h *WalletHandler) CampaignVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.campaigns.VouchersForUser(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if vouchers == nil {
		vouchers = []model.Voucher{}
	}
	writeJSON(w, http.StatusOK, vouchers)
}
