package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/coinvault/internal/push"
	"github.com/dukerupert/coinvault/internal/store"
)

type PushHandler struct {
	subs   *store.PushStore
	svc    *push.Service
	logger *slog.Logger
}

func NewPushHandler(db store.DBTX, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: store.NewPushStore(db), svc: svc, logger: logger}
}

type subscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type subscribeRequest struct {
	Endpoint   string           `json:"endpoint" validate:"required,url"`
	Keys       subscriptionKeys `json:"keys"`
	DeviceName string           `json:"deviceName" validate:"max=100"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sub, err := h.subs.CreateSubscription(r.Context(), actor(r).UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth, req.DeviceName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.subs.DeleteSubscription(r.Context(), id, actor(r).UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   h.svc.Enabled(),
		"publicKey": h.svc.VAPIDPublicKey(),
	})
}
