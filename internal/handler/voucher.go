package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
	"github.com/dukerupert/coinvault/internal/websocket"
)

// VoucherHandler serves the shared voucher catalog.
type VoucherHandler struct {
	vouchers *store.VoucherStore
	activity *store.ActivityStore
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewVoucherHandler(db store.DBTX, hub *websocket.Hub, logger *slog.Logger) *VoucherHandler {
	return &VoucherHandler{
		vouchers: store.NewVoucherStore(db),
		activity: store.NewActivityStore(db),
		hub:      hub,
		logger:   logger,
	}
}

func (h *VoucherHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type voucherRequest struct {
	Title         string     `json:"title" validate:"required,max=200"`
	Description   string     `json:"description" validate:"max=2000"`
	Category      string     `json:"category" validate:"required,max=100"`
	Brand         string     `json:"brand" validate:"max=100"`
	CoinValue     int64      `json:"coinValue" validate:"required,gt=0"`
	Quantity      int64      `json:"quantity" validate:"gte=0"`
	ExpiryDate    *time.Time `json:"expiryDate"`
	IsActive      *bool      `json:"isActive"`
	Featured      bool       `json:"featured"`
	ImageURL      string     `json:"imageUrl" validate:"omitempty,url"`
	OriginalPrice string     `json:"originalPrice" validate:"max=50"`
}

func (req voucherRequest) input(createdBy int64) store.VoucherInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return store.VoucherInput{
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      strings.TrimSpace(req.Category),
		Brand:         req.Brand,
		CoinValue:     req.CoinValue,
		Quantity:      req.Quantity,
		ExpiryDate:    req.ExpiryDate,
		IsActive:      active,
		Featured:      req.Featured,
		ImageURL:      req.ImageURL,
		OriginalPrice: req.OriginalPrice,
		CreatedBy:     &createdBy,
	}
}

// ListActive handles GET /api/vouchers: in-stock, unexpired, active vouchers.
func (h *VoucherHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.vouchers.ListActive(r.Context(), time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if vouchers == nil {
		vouchers = []model.Voucher{}
	}
	writeJSON(w, http.StatusOK, vouchers)
}

// List handles GET /api/admin/vouchers, including inactive ones.
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.vouchers.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if vouchers == nil {
		vouchers = []model.Voucher{}
	}
	writeJSON(w, http.StatusOK, vouchers)
}

func (h *VoucherHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	who := actor(r)
	v, err := h.vouchers.Create(r.Context(), req.input(who.UserID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.activity.Log(r.Context(), who.UserID, "create_voucher", v.Title); err != nil {
		h.logger.Warn("log voucher create", "error", err)
	}
	h.broadcast(websocket.NewMessage("voucher", "created", v.ID, nil))
	writeJSON(w, http.StatusCreated, v)
}

func (h *VoucherHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req voucherRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	existing, err := h.vouchers.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing == nil {
		writeError(w, h.logger, apperr.NotFound("voucher not found"))
		return
	}
	v, err := h.vouchers.Update(r.Context(), id, req.input(actor(r).UserID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.NewMessage("voucher", "updated", v.ID, nil))
	writeJSON(w, http.StatusOK, v)
}

// Delete removes a voucher, or deactivates it when purchases reference it.
func (h *VoucherHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := r.Context()
	existing, err := h.vouchers.GetByID(ctx, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing == nil {
		writeError(w, h.logger, apperr.NotFound("voucher not found"))
		return
	}

	used, err := h.vouchers.HasPurchases(ctx, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	action := "deleted"
	if used {
		err = h.vouchers.Deactivate(ctx, id)
		action = "deactivated"
	} else {
		err = h.vouchers.Delete(ctx, id)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.NewMessage("voucher", action, id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"status": action})
}
