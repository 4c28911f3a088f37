// Package gameserver wires the game-server process: the shared ban store, the
// ban service, the join gate, the proxy notification hub, and the periodic
// sweep and keepalive tasks.
package gameserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcxsh/hardcoreban/pkg/gate"
	"github.com/pcxsh/hardcoreban/pkg/notify"
	"github.com/pcxsh/hardcoreban/pkg/service"
	"github.com/pcxsh/hardcoreban/pkg/store"
)

// Dependencies holds the host-environment hooks. Host may be nil for a
// headless run (no connected subjects to restore); Scheduler defaults to a
// timer-backed implementation.
type Dependencies struct {
	Host      service.Host
	Scheduler service.Scheduler
}

// Server is the game-server process.
type Server struct {
	cfg     Config
	store   *store.Store
	svc     *service.Service
	gate    *gate.JoinGate
	hub     *notify.Hub
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles a Server from config and host dependencies.
func New(cfg Config, deps Dependencies) *Server {
	sched := deps.Scheduler
	if sched == nil {
		sched = TimerScheduler{}
	}

	st := store.New(cfg.StoreConfig())
	hub := notify.NewHub(cfg.Link.Token)
	metrics := NewMetrics()

	svc := service.New(st, service.Config{
		ResetMode:    cfg.Reset.Mode,
		ResetMessage: cfg.Reset.Message,
	}, hub, deps.Host, sched)
	svc.SetSweepObserver(metrics.SweepFinished)
	hub.SetHandler(svc)

	joinGate := gate.NewJoinGate(svc, sched, gate.JoinConfig{
		AffectAllWorlds: cfg.Ban.AffectAllWorlds,
		HardcoreWorld:   cfg.Ban.HardcoreWorld,
		BanDuration:     cfg.BanDuration(),
		SpectateOnDeath: cfg.Ban.SpectateOnDeath,
		KickDelay:       cfg.KickDelay(),
		DeathNotice:     cfg.Messages.Death,
		KickNotice:      cfg.Messages.Kick,
	}, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		store:   st,
		svc:     svc,
		gate:    joinGate,
		hub:     hub,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Service exposes the ban service for the admin surface.
func (s *Server) Service() *service.Service { return s.svc }

// Gate exposes the join gate for host-environment event hooks.
func (s *Server) Gate() *gate.JoinGate { return s.gate }

// Run starts the server and blocks until shutdown signal. Refuses to start if
// the ban store is unreachable; running blind would silently enforce nothing.
func (s *Server) Run() error {
	if !s.store.Connect() {
		return fmt.Errorf("gameserver: ban store unreachable at %q, refusing to start", s.cfg.Database.Path)
	}
	defer func() { _ = s.store.Close() }()

	s.StartHTTP()
	s.startSweeper()
	s.startKeepalive()
	s.metrics.StartPeriodicLog(time.Minute, s.ctx.Done())

	slog.Info("hardcoreban game server running",
		"db", s.cfg.Database.Path,
		"http", s.cfg.HTTPAddr,
		"ban_duration", s.cfg.BanDuration(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
}

// startSweeper runs the periodic expiry sweep. The service refuses to overlap
// sweeps, so a slow pass simply causes the next tick to be skipped.
func (s *Server) startSweeper() {
	go func() {
		ticker := time.NewTicker(s.cfg.CheckInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.svc.Sweep()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// startKeepalive validates the store connection on a timer so steady-state
// queries find a healthy handle.
func (s *Server) startKeepalive() {
	go func() {
		ticker := time.NewTicker(s.cfg.KeepaliveInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.store.KeepAlive()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// TimerScheduler schedules deferred work on plain timers.
type TimerScheduler struct{}

// Schedule runs fn once after delay. The returned cancel stops a run that has
// not fired yet.
func (TimerScheduler) Schedule(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}
