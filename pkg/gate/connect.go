package gate

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/service"
)

// RouteStats receives proxy-side enforcement counters. Nil disables counting.
type RouteStats interface {
	RouteDenied()
}

// ConnectConfig controls the proxy-side gate.
type ConnectConfig struct {
	RestrictedServer string // backend name the gate applies to

	DenyTitle    string // title line shown on denial, {time} substituted
	DenySubtitle string // subtitle line, {time} substituted
	DenyChat     string // chat line, {time} substituted
}

// Decision is the outcome of one routing attempt. The message fields are only
// populated on denial.
type Decision struct {
	Allowed  bool
	Title    string
	Subtitle string
	Chat     string
}

// ConnectGate is the routing-time gate the proxy consults before completing a
// connection toward the restricted server. Every attempt forces a fresh store
// read; rapid repeated attempts each get their own decision.
type ConnectGate struct {
	svc   *service.Service
	cfg   ConnectConfig
	stats RouteStats
}

// NewConnectGate builds the proxy-side gate. stats may be nil.
func NewConnectGate(svc *service.Service, cfg ConnectConfig, stats RouteStats) *ConnectGate {
	return &ConnectGate{svc: svc, cfg: cfg, stats: stats}
}

// Route decides whether subject may be routed to target. Servers other than
// the restricted one are always allowed.
func (g *ConnectGate) Route(subject uuid.UUID, target string) Decision {
	if target != g.cfg.RestrictedServer {
		return Decision{Allowed: true}
	}
	if !g.svc.IsBanned(subject) {
		return Decision{Allowed: true}
	}

	left := g.svc.TimeLeft(subject)
	if left <= 0 {
		// row lapsed between the two reads
		return Decision{Allowed: true}
	}

	if g.stats != nil {
		g.stats.RouteDenied()
	}
	slog.Info("gate: routing denied for banned subject", "subject", subject, "server", target, "left", left)
	return Decision{
		Allowed:  false,
		Title:    renderTime(g.cfg.DenyTitle, left),
		Subtitle: renderTime(g.cfg.DenySubtitle, left),
		Chat:     renderTime(g.cfg.DenyChat, left),
	}
}
