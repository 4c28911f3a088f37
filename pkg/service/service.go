// Package service implements the ban authority each process holds. It wraps
// the store with the business rules: duration computation, re-ban semantics,
// interaction-state side effects, and best-effort change notification.
package service

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/model"
	"github.com/pcxsh/hardcoreban/pkg/store"
)

// Interaction modes a subject can be in on the restricted host. The restricted
// mode is what a banned subject is parked in until the kick lands.
const (
	ModeSurvival  = "survival"
	ModeCreative  = "creative"
	ModeAdventure = "adventure"
	ModeSpectator = "spectator"
)

// RestrictedMode is the mode a freshly banned subject is placed in.
const RestrictedMode = ModeSpectator

// retryDelay is how long to wait before the single state-restore retry.
const retryDelay = 250 * time.Millisecond

// Player is the host environment's view of a connected subject. The game
// engine implements this; the core never touches engine types directly.
type Player interface {
	ID() uuid.UUID
	Name() string
	Online() bool
	World() string
	Mode() string
	SetMode(mode string)
	HasBypass() bool
	SendMessage(text string)
	Kick(reason string)
}

// Host exposes the currently connected subjects.
type Host interface {
	Player(id uuid.UUID) (Player, bool)
	OnlinePlayers() []Player
}

// Scheduler runs a function once after a delay. The returned cancel func is a
// no-op once the function has run. The host environment owns the scheduler;
// the core only schedules through this interface.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) (cancel func())
}

// Notifier carries best-effort change hints to the peer process. All methods
// are fire-and-forget; delivery is never required for correctness.
type Notifier interface {
	NotifyBan(subject uuid.UUID, expiresAt time.Time)
	NotifyUnban(subject uuid.UUID)
	NotifyClearAll()
}

// Config holds the service's behavioral settings.
type Config struct {
	ResetMode    string // mode restored when a ban lapses (default survival)
	ResetMessage string // sent to a subject whose state was just restored
}

// Service is the only component other subsystems call for ban state.
type Service struct {
	store    *store.Store
	notifier Notifier  // may be nil (no link configured)
	host     Host      // nil on the proxy process
	sched    Scheduler // nil on the proxy process

	resetMode    string
	resetMessage string

	sweeping atomic.Bool
	onSweep  func(removed int64)
}

// SetSweepObserver registers a callback invoked after every completed sweep
// with the number of lapsed rows removed. Call before the sweep ticker starts.
func (s *Service) SetSweepObserver(fn func(removed int64)) {
	s.onSweep = fn
}

// New builds a Service. host and sched are nil on the proxy, which performs no
// state restoration. An unknown ResetMode falls back to survival with a
// warning rather than failing.
func New(st *store.Store, cfg Config, notifier Notifier, host Host, sched Scheduler) *Service {
	resetMode := cfg.ResetMode
	switch resetMode {
	case ModeSurvival, ModeCreative, ModeAdventure:
	case "":
		resetMode = ModeSurvival
	default:
		slog.Warn("service: invalid reset mode, defaulting to survival", "mode", cfg.ResetMode)
		resetMode = ModeSurvival
	}
	return &Service{
		store:        st,
		notifier:     notifier,
		host:         host,
		sched:        sched,
		resetMode:    resetMode,
		resetMessage: cfg.ResetMessage,
	}
}

// Ban writes the ban and, only on a successful write, notifies the peer
// process. A failed write produces no notification and no side effects, so a
// subject is never told about a ban that does not durably exist.
func (s *Service) Ban(ban model.Ban) bool {
	if !s.store.UpsertBan(ban) {
		slog.Error("service: ban write failed", "subject", ban.SubjectID, "name", ban.DisplayName)
		return false
	}
	slog.Info("service: subject banned",
		"subject", ban.SubjectID,
		"name", ban.DisplayName,
		"until", ban.ExpiresAt,
		"by", ban.IssuedBy)
	if s.notifier != nil {
		s.notifier.NotifyBan(ban.SubjectID, ban.ExpiresAt)
	}
	return true
}

// Unban removes the subject's ban. Removing an absent ban is a silent no-op
// and sends no notification.
func (s *Service) Unban(subject uuid.UUID) bool {
	if !s.store.RemoveBan(subject) {
		slog.Debug("service: unban for subject that was not banned", "subject", subject)
		return false
	}
	slog.Info("service: subject unbanned", "subject", subject)
	if s.notifier != nil {
		s.notifier.NotifyUnban(subject)
	}
	return true
}

// ClearAll removes every ban and notifies regardless of count; clearing an
// empty table is a valid operation the peer still wants to hear about.
func (s *Service) ClearAll() int64 {
	n := s.store.ClearAll()
	slog.Info("service: all bans cleared", "count", n)
	if s.notifier != nil {
		s.notifier.NotifyClearAll()
	}
	return n
}

// IsBanned re-reads the store; no cache is consulted.
func (s *Service) IsBanned(subject uuid.UUID) bool {
	return s.store.IsBanned(subject)
}

// TimeLeft re-reads the store; zero for unknown or lapsed subjects.
func (s *Service) TimeLeft(subject uuid.UUID) time.Duration {
	return s.store.TimeLeft(subject)
}

// ListActive returns subject -> expiry for every active ban.
func (s *Service) ListActive() map[uuid.UUID]time.Time {
	return s.store.GetAll()
}

// ListDetails returns full rows for admin listings.
func (s *Service) ListDetails() []model.Ban {
	return s.store.ListDetails()
}

// GetBan returns the active ban for a subject, nil otherwise.
func (s *Service) GetBan(subject uuid.UUID) *model.Ban {
	return s.store.GetBan(subject)
}

// Sweep deletes lapsed rows, then restores any online subject who is still in
// the restricted mode without an active ban. Returns false when a previous
// sweep is still in flight; two sweeps never run concurrently in one process.
func (s *Service) Sweep() bool {
	if !s.sweeping.CompareAndSwap(false, true) {
		slog.Debug("service: sweep already in progress, skipping")
		return false
	}
	defer s.sweeping.Store(false)

	removed := s.store.CleanupExpired()
	if removed > 0 {
		slog.Debug("service: sweep removed lapsed bans", "count", removed)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}

	if s.host == nil {
		return true
	}
	for _, p := range s.host.OnlinePlayers() {
		if p.Mode() == RestrictedMode && !s.store.IsBanned(p.ID()) {
			slog.Info("service: restoring subject whose ban lapsed", "subject", p.ID(), "name", p.Name())
			s.RestoreState(p)
		}
	}
	return true
}

// RestoreState puts a subject back into the configured reset mode. If the host
// environment refuses the change, it is retried exactly once after a short
// delay, then logged as a severe per-subject failure. Never loops.
func (s *Service) RestoreState(p Player) {
	p.SetMode(s.resetMode)
	if p.Mode() == s.resetMode {
		s.sendResetMessage(p)
		return
	}

	slog.Warn("service: state restore did not take effect, retrying once",
		"subject", p.ID(), "name", p.Name(), "target", s.resetMode, "actual", p.Mode())

	retry := func() {
		if !p.Online() {
			return
		}
		p.SetMode(s.resetMode)
		if p.Mode() != s.resetMode {
			slog.Error("service: state restore failed after retry, giving up on subject",
				"subject", p.ID(), "name", p.Name(), "target", s.resetMode, "actual", p.Mode())
			return
		}
		s.sendResetMessage(p)
	}

	if s.sched != nil {
		s.sched.Schedule(retryDelay, retry)
	} else {
		retry()
	}
}

func (s *Service) sendResetMessage(p Player) {
	if s.resetMessage != "" {
		p.SendMessage(s.resetMessage)
	}
}
