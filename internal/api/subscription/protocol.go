package subscription

import (
	"encoding/json"
	"strings"
)

// Subprotocol is the WebSocket subprotocol negotiated during upgrade.
const Subprotocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// Close codes. 4400-range codes follow the graphql-transport-ws convention;
// 4478 is ours and tells the client its token died mid-connection, so the
// remedy is re-authenticate and reconnect, not plain retry.
const (
	CloseUnauthorized = 4401
	CloseInitTimeout  = 4408
	CloseDuplicateID  = 4409
	CloseTooManyInit  = 4429
	CloseTokenExpired = 4478
)

type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type initPayload struct {
	AuthToken     string `json:"authToken,omitempty"`
	Authorization string `json:"Authorization,omitempty"`
}

// token extracts the bearer token from whichever field the client used.
func (p initPayload) token() string {
	if p.AuthToken != "" {
		return p.AuthToken
	}
	return strings.TrimPrefix(p.Authorization, "Bearer ")
}

type subscribePayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}
