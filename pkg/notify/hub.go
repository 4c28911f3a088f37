// Package notify carries best-effort change hints between the two processes
// over a single websocket link. The game server hosts the Hub endpoint, the
// proxy dials it with the Link client. Delivery is never required for
// correctness: every payload is a hint the receiver re-validates against the
// store, and sending without a connected peer is a silent no-op.
package notify

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pcxsh/hardcoreban/pkg/model"
	"github.com/pcxsh/hardcoreban/pkg/protocol"
)

// tokenHeader carries the shared link token on the upgrade request.
const tokenHeader = "X-Link-Token"

// Handler is what the hub applies inbound proxy requests against. The ban
// service satisfies it.
type Handler interface {
	Unban(subject uuid.UUID) bool
	ClearAll() int64
	IsBanned(subject uuid.UUID) bool
	TimeLeft(subject uuid.UUID) time.Duration
}

// Hub is the game-server end of the link. It holds at most one peer session;
// a newer session replaces the old one. Hub implements the notifier the ban
// service calls after successful writes.
type Hub struct {
	token string

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.MaxMessageSize,
	WriteBufferSize: protocol.MaxMessageSize,
	// the link is process-to-process, not browser-facing
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub builds a hub guarding the link with the given shared token. Bind the
// handler before serving.
func NewHub(token string) *Hub {
	return &Hub{token: token}
}

// SetHandler binds the component inbound requests are applied against.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Connected reports whether a peer session is currently attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// ServeHTTP upgrades the proxy's link request and runs its read loop until
// the session drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(tokenHeader)), []byte(h.token)) != 1 {
		slog.Warn("notify: link request with bad token rejected", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("notify: link upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	h.mu.Lock()
	if h.conn != nil {
		slog.Info("notify: replacing existing link session", "remote", r.RemoteAddr)
		_ = h.conn.Close()
	}
	h.conn = conn
	h.mu.Unlock()

	slog.Info("notify: link session established", "remote", r.RemoteAddr)
	h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		if h.conn == conn {
			h.conn = nil
		}
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("notify: link session closed", "error", err)
			return
		}
		msg, err := protocol.Unmarshal(data)
		if err != nil {
			slog.Warn("notify: dropping malformed link message", "error", err)
			continue
		}
		h.dispatch(msg)
	}
}

func (h *Hub) dispatch(msg protocol.Message) {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler == nil {
		slog.Warn("notify: inbound link message before handler bound", "type", msg.Type)
		return
	}

	switch msg.Type {
	case protocol.TypeVelocityUnban:
		handler.Unban(msg.SubjectID)
	case protocol.TypeVelocityClearAll:
		handler.ClearAll()
	case protocol.TypeCheckBan:
		banned := handler.IsBanned(msg.SubjectID)
		left := handler.TimeLeft(msg.SubjectID)
		h.send(protocol.BanStatus(msg.SubjectID, banned, left.Milliseconds()))
	default:
		slog.Warn("notify: ignoring unexpected inbound message", "type", msg.Type)
	}
}

// NotifyBan hints the proxy that subject was banned.
func (h *Hub) NotifyBan(subject uuid.UUID, expiresAt time.Time) {
	h.send(protocol.Ban(subject, model.EpochMillis(expiresAt)))
}

// NotifyUnban hints the proxy that subject was unbanned.
func (h *Hub) NotifyUnban(subject uuid.UUID) {
	h.send(protocol.Unban(subject))
}

// NotifyClearAll hints the proxy that every ban was removed.
func (h *Hub) NotifyClearAll() {
	h.send(protocol.ClearAll())
}

func (h *Hub) send(msg protocol.Message) {
	data, err := msg.Marshal()
	if err != nil {
		slog.Error("notify: cannot marshal link message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		slog.Debug("notify: no link session, hint dropped", "type", msg.Type)
		return
	}
	if err := h.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Warn("notify: link write failed, dropping session", "type", msg.Type, "error", err)
		_ = h.conn.Close()
		h.conn = nil
	}
}
