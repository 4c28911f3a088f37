package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pcxsh/hardcoreban/pkg/model"
	"github.com/pcxsh/hardcoreban/pkg/protocol"
)

// defaultBackoff spaces out link dial attempts. One failed dial suppresses
// further attempts for this long.
const defaultBackoff = 10 * time.Second

// dialTimeout bounds a single link dial.
const dialTimeout = 5 * time.Second

// Sink receives inbound hints on the proxy side. Implementations invalidate
// their advisory cache; they must never treat a hint as authoritative.
type Sink interface {
	HintBan(subject uuid.UUID, expiresAt time.Time)
	HintUnban(subject uuid.UUID)
	HintClearAll()
	HintStatus(subject uuid.UUID, banned bool, left time.Duration)
}

// LinkConfig addresses the hub endpoint.
type LinkConfig struct {
	URL     string // ws://host:port/link
	Token   string
	Backoff time.Duration // delay between dial attempts, default 10s
}

// Link is the proxy end of the notification channel. It keeps dialing the hub
// in the background and forwards inbound hints to the sink. Link implements
// the notifier the proxy-side ban service calls: proxy-initiated unbans and
// clear-alls are relayed to the game server, which applies them to the store
// it already shares.
type Link struct {
	cfg  LinkConfig
	sink Sink

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewLink builds a link client. Call Run to start dialing.
func NewLink(cfg LinkConfig, sink Sink) *Link {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Link{cfg: cfg, sink: sink}
}

// Connected reports whether a hub session is currently up.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Run dials the hub and re-dials after every drop, rate-limited by the
// configured backoff, until ctx is canceled. Blocks; run it in a goroutine.
func (l *Link) Run(ctx context.Context) {
	for {
		if conn := l.dial(ctx); conn != nil {
			l.readLoop(conn)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.Backoff):
		}
	}
}

func (l *Link) dial(ctx context.Context) *websocket.Conn {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{tokenHeader: []string{l.cfg.Token}}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, l.cfg.URL, header)
	if err != nil {
		slog.Warn("notify: link dial failed", "url", l.cfg.URL, "error", err)
		return nil
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	slog.Info("notify: link established", "url", l.cfg.URL)
	return conn
}

func (l *Link) readLoop(conn *websocket.Conn) {
	defer func() {
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("notify: link dropped", "error", err)
			return
		}
		msg, err := protocol.Unmarshal(data)
		if err != nil {
			slog.Warn("notify: dropping malformed link message", "error", err)
			continue
		}
		l.dispatch(msg)
	}
}

func (l *Link) dispatch(msg protocol.Message) {
	if l.sink == nil {
		return
	}
	switch msg.Type {
	case protocol.TypeBan:
		l.sink.HintBan(msg.SubjectID, model.FromEpochMillis(msg.ExpiresAt))
	case protocol.TypeUnban:
		l.sink.HintUnban(msg.SubjectID)
	case protocol.TypeClearAll:
		l.sink.HintClearAll()
	case protocol.TypeBanStatus:
		l.sink.HintStatus(msg.SubjectID, msg.IsBanned, time.Duration(msg.TimeLeft)*time.Millisecond)
	default:
		slog.Warn("notify: ignoring unexpected inbound message", "type", msg.Type)
	}
}

// NotifyBan is a no-op: the proxy never issues bans, only the game server
// does, and it observes its own writes directly.
func (l *Link) NotifyBan(uuid.UUID, time.Time) {}

// NotifyUnban relays a proxy-initiated unban to the game server.
func (l *Link) NotifyUnban(subject uuid.UUID) {
	l.send(protocol.VelocityUnban(subject))
}

// NotifyClearAll relays a proxy-initiated clear-all to the game server.
func (l *Link) NotifyClearAll() {
	l.send(protocol.VelocityClearAll())
}

// CheckBan asks the hub for a subject's ban status. The answer, if any,
// arrives at the sink as a status hint.
func (l *Link) CheckBan(subject uuid.UUID) {
	l.send(protocol.CheckBan(subject))
}

func (l *Link) send(msg protocol.Message) {
	data, err := msg.Marshal()
	if err != nil {
		slog.Error("notify: cannot marshal link message", "type", msg.Type, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		slog.Debug("notify: no link session, hint dropped", "type", msg.Type)
		return
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Warn("notify: link write failed, dropping session", "type", msg.Type, "error", err)
		_ = l.conn.Close()
		l.conn = nil
	}
}
