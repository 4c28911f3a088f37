// Package gate holds the synchronous enforcement decision points: the join
// gate consulted when a subject enters the restricted host, and the connect
// gate consulted when the proxy routes a subject toward it. Both read the
// store freshly on every decision and keep no memory of prior denials.
package gate

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pcxsh/hardcoreban/pkg/model"
	"github.com/pcxsh/hardcoreban/pkg/service"
	"github.com/pcxsh/hardcoreban/pkg/timefmt"
)

// warnDelay is the pause between a banned subject joining and the forced
// disconnect, long enough for the denial notice to render client-side.
const warnDelay = 250 * time.Millisecond

// Stats receives enforcement counters. All methods must be cheap and
// non-blocking; a nil Stats disables counting.
type Stats interface {
	BanIssued()
	JoinDenied()
}

// JoinConfig controls the game-server-side gate.
type JoinConfig struct {
	AffectAllWorlds bool
	HardcoreWorld   string
	BanDuration     time.Duration
	SpectateOnDeath bool
	KickDelay       time.Duration // grace between death notice and disconnect

	DeathNotice string // sent after a successful death ban, {time} substituted
	KickNotice  string // disconnect reason for banned subjects, {time} substituted
}

// JoinGate enforces bans on the restricted host itself: it issues death bans
// and removes banned subjects who manage to join.
type JoinGate struct {
	svc   *service.Service
	sched service.Scheduler
	cfg   JoinConfig
	stats Stats
}

// NewJoinGate builds the game-server-side gate. stats may be nil.
func NewJoinGate(svc *service.Service, sched service.Scheduler, cfg JoinConfig, stats Stats) *JoinGate {
	return &JoinGate{svc: svc, sched: sched, cfg: cfg, stats: stats}
}

// OnDeath handles a subject dying in hardcore mode. Deaths outside the
// configured world and deaths of bypass-capable subjects are ignored. The
// denial notice is only shown after the ban write succeeds; a failed write
// leaves the subject untouched.
func (g *JoinGate) OnDeath(p service.Player) {
	if !g.worldAffected(p.World()) {
		slog.Debug("gate: death outside hardcore world ignored", "subject", p.ID(), "world", p.World())
		return
	}
	if p.HasBypass() {
		slog.Info("gate: death of bypass-capable subject ignored", "subject", p.ID(), "name", p.Name())
		return
	}

	ban := model.NewDeathBan(p.ID(), p.Name(), g.cfg.BanDuration)
	if !g.svc.Ban(ban) {
		slog.Error("gate: death ban not applied, subject left untouched", "subject", p.ID(), "name", p.Name())
		return
	}
	if g.stats != nil {
		g.stats.BanIssued()
	}

	p.SendMessage(renderTime(g.cfg.DeathNotice, g.cfg.BanDuration))
	if g.cfg.SpectateOnDeath {
		p.SetMode(service.RestrictedMode)
	}

	g.schedule(g.cfg.KickDelay, func() {
		if !p.Online() {
			return
		}
		left := g.svc.TimeLeft(p.ID())
		if left <= 0 {
			// ban vanished during the grace window
			if p.Mode() == service.RestrictedMode {
				g.svc.RestoreState(p)
			}
			return
		}
		p.Kick(renderTime(g.cfg.KickNotice, left))
	})
}

// OnJoin handles a subject connecting to the restricted host. A banned subject
// gets the denial notice and a near-immediate forced disconnect; a subject
// whose ban lapsed gets the row cleared and their state restored. A subject
// stuck in the restricted mode without a ban (process crashed mid-ban last
// session) is also restored.
func (g *JoinGate) OnJoin(p service.Player) {
	if g.svc.IsBanned(p.ID()) {
		left := g.svc.TimeLeft(p.ID())
		if left <= 0 {
			g.svc.Unban(p.ID())
			g.svc.RestoreState(p)
			return
		}
		slog.Info("gate: banned subject joined, disconnecting", "subject", p.ID(), "name", p.Name(), "left", left)
		g.schedule(warnDelay, func() {
			if !p.Online() {
				return
			}
			left := g.svc.TimeLeft(p.ID())
			if left <= 0 {
				return
			}
			if g.stats != nil {
				g.stats.JoinDenied()
			}
			p.Kick(renderTime(g.cfg.KickNotice, left))
		})
		return
	}

	if p.Mode() == service.RestrictedMode {
		slog.Info("gate: unbanned subject found in restricted mode, restoring", "subject", p.ID(), "name", p.Name())
		g.svc.RestoreState(p)
	}
}

// OnRespawn re-applies the restricted mode for a subject who respawns while
// still banned, covering the window between death and the scheduled kick.
func (g *JoinGate) OnRespawn(p service.Player) {
	if !g.cfg.SpectateOnDeath {
		return
	}
	if g.svc.IsBanned(p.ID()) && p.Mode() != service.RestrictedMode {
		p.SetMode(service.RestrictedMode)
	}
}

func (g *JoinGate) worldAffected(world string) bool {
	if g.cfg.AffectAllWorlds {
		return true
	}
	return world == g.cfg.HardcoreWorld
}

func (g *JoinGate) schedule(delay time.Duration, fn func()) {
	if g.sched != nil {
		g.sched.Schedule(delay, fn)
		return
	}
	fn()
}

// renderTime substitutes the {time} placeholder with a human-readable
// remaining duration.
func renderTime(template string, left time.Duration) string {
	return strings.ReplaceAll(template, "{time}", timefmt.Display(left))
}
