package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"

	"github.com/inkwellhq/inkwell/internal/api/authz"
)

const (
	defaultRecheckInterval = 60 * time.Second
	defaultInitTimeout     = 10 * time.Second
)

// Manager owns every live subscription connection: handshake authentication,
// periodic token re-validation, and orderly shutdown.
type Manager struct {
	Schema          graphql.Schema
	Tokens          authz.TokenValidator
	Logger          *slog.Logger
	RecheckInterval time.Duration
	InitTimeout     time.Duration

	mu     sync.Mutex
	conns  map[*connection]struct{}
	closed bool
}

func NewManager(schema graphql.Schema, tokens authz.TokenValidator, logger *slog.Logger, recheckInterval time.Duration) *Manager {
	if recheckInterval <= 0 {
		recheckInterval = defaultRecheckInterval
	}
	return &Manager{
		Schema:          schema,
		Tokens:          tokens,
		Logger:          logger,
		RecheckInterval: recheckInterval,
		InitTimeout:     defaultInitTimeout,
		conns:           make(map[*connection]struct{}),
	}
}

// Serve adopts an upgraded WebSocket and drives it until it closes. Blocks;
// call from the HTTP handler's goroutine.
func (m *Manager) Serve(ws *websocket.Conn) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		_ = ws.Close()
		return
	}
	m.mu.Unlock()

	newConnection(ws, m).serve()
}

// ConnectionCount reports the number of live, authenticated connections.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Shutdown closes every connection and refuses new ones. Waits for teardown
// up to the context deadline.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	conns := make([]*connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		c.teardown()
	}

	deadline := time.NewTimer(50 * time.Millisecond)
	defer deadline.Stop()
	for {
		if m.ConnectionCount() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			deadline.Reset(50 * time.Millisecond)
		}
	}
}

func (m *Manager) register(c *connection) {
	m.mu.Lock()
	m.conns[c] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) unregister(c *connection) {
	m.mu.Lock()
	delete(m.conns, c)
	m.mu.Unlock()
}
