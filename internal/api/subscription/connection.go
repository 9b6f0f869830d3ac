package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/pkg/idx"
)

const writeTimeout = 10 * time.Second

// connection is one authenticated WebSocket session. It owns its
// re-validation timer and per-subscription contexts; every termination path
// funnels through teardown exactly once.
type connection struct {
	id  string
	ws  *websocket.Conn
	mgr *Manager
	log *slog.Logger

	token  string
	claims atomic.Pointer[domain.Claims]

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	once    sync.Once

	subsMu sync.Mutex
	subs   map[string]context.CancelFunc
}

func newConnection(ws *websocket.Conn, mgr *Manager) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		id:     idx.New().String(),
		ws:     ws,
		mgr:    mgr,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]context.CancelFunc),
	}
	c.log = mgr.Logger.With("connection_id", c.id)
	return c
}

func (c *connection) currentClaims() domain.Claims {
	if claims := c.claims.Load(); claims != nil {
		return *claims
	}
	return domain.Claims{}
}

// serve drives the connection from handshake to teardown. Blocks until the
// connection dies.
func (c *connection) serve() {
	defer c.teardown()

	if !c.handshake() {
		return
	}

	c.mgr.register(c)
	go c.recheckLoop()
	c.readLoop()
}

// handshake enforces the connection_init exchange: the first message must
// arrive within the init timeout and carry a token that validates.
func (c *connection) handshake() bool {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.mgr.InitTimeout))

	var msg message
	if err := c.ws.ReadJSON(&msg); err != nil {
		c.closeWith(CloseInitTimeout, "connection initialisation timeout")
		return false
	}
	if msg.Type != msgConnectionInit {
		c.closeWith(CloseUnauthorized, "expected connection_init")
		return false
	}

	var payload initPayload
	if len(msg.Payload) > 0 {
		_ = json.Unmarshal(msg.Payload, &payload)
	}
	token := payload.token()
	if token == "" {
		c.closeWith(CloseUnauthorized, "missing auth token")
		return false
	}

	claims, err := c.mgr.Tokens.Validate(c.ctx, token)
	if err != nil {
		if errors.Is(err, idp.ErrUnavailable) {
			c.closeWith(websocket.CloseTryAgainLater, "authorization temporarily unavailable")
		} else {
			c.closeWith(CloseUnauthorized, "unauthorized")
		}
		return false
	}

	c.token = token
	c.claims.Store(&claims)
	_ = c.ws.SetReadDeadline(time.Time{})

	if err := c.send(message{Type: msgConnectionAck}); err != nil {
		return false
	}
	c.log.Info("subscription connection established", "subject", claims.Subject)
	return true
}

// recheckLoop re-validates the handshake token on the configured interval.
// A dead token terminates the connection with the re-authenticate close
// code; a provider outage keeps the connection on its last known claims.
func (c *connection) recheckLoop() {
	ticker := time.NewTicker(c.mgr.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			claims, err := c.mgr.Tokens.Validate(c.ctx, c.token)
			if err != nil {
				if errors.Is(err, idp.ErrUnavailable) {
					c.log.Warn("token re-validation skipped, provider unavailable")
					continue
				}
				c.log.Info("token no longer valid, closing connection", "reason", err)
				c.closeWith(CloseTokenExpired, "token expired: re-authenticate and reconnect")
				c.teardown()
				return
			}
			c.claims.Store(&claims)
		}
	}
}

func (c *connection) readLoop() {
	for {
		var msg message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			c.closeWith(CloseTooManyInit, "too many initialisation requests")
			return
		case msgPing:
			_ = c.send(message{Type: msgPong})
		case msgSubscribe:
			c.handleSubscribe(msg)
		case msgComplete:
			c.stopSubscription(msg.ID)
		}
	}
}

func (c *connection) handleSubscribe(msg message) {
	var payload subscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError(msg.ID, "invalid subscribe payload")
		return
	}

	c.subsMu.Lock()
	if _, exists := c.subs[msg.ID]; exists {
		c.subsMu.Unlock()
		c.closeWith(CloseDuplicateID, "subscriber already exists: "+msg.ID)
		c.teardown()
		return
	}
	subCtx, subCancel := context.WithCancel(c.ctx)
	c.subs[msg.ID] = subCancel
	c.subsMu.Unlock()

	subCtx = authz.WithToken(subCtx, c.token)
	subCtx = WithClaimsSource(subCtx, c.currentClaims)

	results := graphql.Subscribe(graphql.Params{
		Schema:         c.mgr.Schema,
		RequestString:  payload.Query,
		OperationName:  payload.OperationName,
		VariableValues: payload.Variables,
		Context:        subCtx,
	})

	go func() {
		defer c.stopSubscription(msg.ID)

		for {
			select {
			case <-subCtx.Done():
				return
			case result, ok := <-results:
				if !ok {
					_ = c.send(message{ID: msg.ID, Type: msgComplete})
					return
				}

				if result.HasErrors() && result.Data == nil {
					errPayload, _ := json.Marshal(result.Errors)
					_ = c.send(message{ID: msg.ID, Type: msgError, Payload: errPayload})
					return
				}

				next, err := json.Marshal(result)
				if err != nil {
					continue
				}
				_ = c.send(message{ID: msg.ID, Type: msgNext, Payload: next})
			}
		}
	}()
}

func (c *connection) stopSubscription(id string) {
	c.subsMu.Lock()
	cancel, ok := c.subs[id]
	delete(c.subs, id)
	c.subsMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *connection) send(msg message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *connection) sendError(id, reason string) {
	payload, _ := json.Marshal([]map[string]string{{"message": reason}})
	_ = c.send(message{ID: id, Type: msgError, Payload: payload})
}

func (c *connection) closeWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
}

// teardown releases everything the connection holds: subscription contexts,
// the re-validation timer (via ctx), the manager registration, and the
// socket. Safe to call from any path; runs once.
func (c *connection) teardown() {
	c.once.Do(func() {
		c.cancel()

		c.subsMu.Lock()
		for id, cancel := range c.subs {
			cancel()
			delete(c.subs, id)
		}
		c.subsMu.Unlock()

		c.mgr.unregister(c)
		_ = c.ws.Close()
		c.log.Info("subscription connection closed")
	})
}
