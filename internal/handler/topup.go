package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/coinvault/internal/topup"
)

const maxWebhookBytes = 65536

type TopupHandler struct {
	topups *topup.Service
	logger *slog.Logger
}

func NewTopupHandler(topups *topup.Service, logger *slog.Logger) *TopupHandler {
	return &TopupHandler{topups: topups, logger: logger}
}

// Checkout handles POST /api/topups/checkout
func (h *TopupHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req topup.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.topups.CreateCheckout(r.Context(), actor(r), req.Coins)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Webhook handles POST /webhooks/stripe. Unsigned or mis-signed payloads
// get a 400. Stripe retries anything that is not 2xx.
func (h *TopupHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	event, err := h.topups.ConstructEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if err := h.topups.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error("stripe webhook failed", "error", err, "event_id", event.ID, "type", event.Type)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
