package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/coinvault/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and runs it as a Hub
// client. It must sit behind the auth middleware.
func (h *Hub) HandleWebSocket(originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			h.logger.Warn("accept", "error", err)
			return
		}

		NewClient(h, conn, who).Run(r.Context())
	}
}
