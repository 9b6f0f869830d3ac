package http

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/inkwellhq/inkwell/internal/api/subscription"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// WebSocketHandler upgrades subscription requests and hands the socket to
// the connection manager. Authentication happens inside the
// graphql-transport-ws handshake, not at upgrade time.
type WebSocketHandler struct {
	Manager *subscription.Manager

	upgrader websocket.Upgrader
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.upgrader.Subprotocols = []string{subscription.Subprotocol}
	// Browser origins are not a trust boundary here; every connection must
	// still authenticate its handshake token.
	h.upgrader.CheckOrigin = func(*http.Request) bool { return true }

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("websocket upgrade failed", "err", err)
		return
	}

	h.Manager.Serve(ws)
}
