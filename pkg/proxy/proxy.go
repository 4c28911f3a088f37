// Package proxy wires the network-proxy process: the shared ban store, the
// connect gate that guards routing toward the restricted server, the link
// client that carries hints to and from the game server, and the advisory
// cache those hints land in.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/gate"
	"github.com/pcxsh/hardcoreban/pkg/notify"
	"github.com/pcxsh/hardcoreban/pkg/service"
	"github.com/pcxsh/hardcoreban/pkg/store"
)

// Proxy is the proxy-side process.
type Proxy struct {
	cfg   Config
	store *store.Store
	svc   *service.Service
	cache *Cache
	link  *notify.Link
	gate  *gate.ConnectGate

	routesDenied atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles a Proxy from config.
func New(cfg Config) *Proxy {
	st := store.New(cfg.StoreConfig())
	cache := NewCache()

	var link *notify.Link
	var notifier service.Notifier
	if cfg.Link.URL != "" {
		link = notify.NewLink(notify.LinkConfig{
			URL:     cfg.Link.URL,
			Token:   cfg.Link.Token,
			Backoff: cfg.LinkBackoff(),
		}, cache)
		notifier = link
	}

	svc := service.New(st, service.Config{}, notifier, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Proxy{
		cfg:    cfg,
		store:  st,
		svc:    svc,
		cache:  cache,
		link:   link,
		ctx:    ctx,
		cancel: cancel,
	}
	p.gate = gate.NewConnectGate(svc, gate.ConnectConfig{
		RestrictedServer: cfg.Gate.RestrictedServer,
		DenyTitle:        cfg.Messages.DenyTitle,
		DenySubtitle:     cfg.Messages.DenySubtitle,
		DenyChat:         cfg.Messages.DenyChat,
	}, p)
	return p
}

// RouteDenied counts one denied routing attempt.
func (p *Proxy) RouteDenied() { p.routesDenied.Add(1) }

// RoutesDenied returns the number of denied routing attempts this run.
func (p *Proxy) RoutesDenied() int64 { return p.routesDenied.Load() }

// Service exposes the ban service for the proxy's admin surface.
func (p *Proxy) Service() *service.Service { return p.svc }

// Gate exposes the connect gate for the routing hook.
func (p *Proxy) Gate() *gate.ConnectGate { return p.gate }

// CachedBanned reports the advisory cached view of a subject, for display
// surfaces that must not block on the store. Never used for enforcement.
func (p *Proxy) CachedBanned(subject uuid.UUID) bool {
	return p.cache.Banned(subject)
}

// Run starts the proxy and blocks until shutdown signal. Refuses to start if
// the ban store is unreachable at boot.
func (p *Proxy) Run() error {
	if !p.store.Connect() {
		return fmt.Errorf("proxy: ban store unreachable at %q, refusing to start", p.cfg.Database.Path)
	}
	defer func() { _ = p.store.Close() }()

	if p.link != nil {
		go p.link.Run(p.ctx)
	} else {
		slog.Info("proxy: no link configured, relying on store reads only")
	}
	p.startRefresher()

	slog.Info("hardcoreban proxy running",
		"db", p.cfg.Database.Path,
		"restricted_server", p.cfg.Gate.RestrictedServer,
		"link", p.cfg.Link.URL,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	p.Shutdown()
	return nil
}

// Shutdown gracefully stops the proxy.
func (p *Proxy) Shutdown() {
	p.cancel()
}

// startRefresher re-reads the full active-ban set on a timer so the advisory
// cache converges even when link hints are lost.
func (p *Proxy) startRefresher() {
	go func() {
		ticker := time.NewTicker(p.cfg.RefreshInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.cache.Replace(p.svc.ListActive())
			case <-p.ctx.Done():
				return
			}
		}
	}()
}
