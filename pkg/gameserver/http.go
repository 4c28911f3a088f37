package gameserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartHTTP starts a lightweight HTTP server exposing /metrics in Prometheus
// text exposition format, /healthz, and the /link websocket endpoint the
// proxy dials. It runs in the background and shuts down when the server
// context is cancelled.
func (s *Server) StartHTTP() {
	addr := s.cfg.HTTPAddr
	if addr == "" {
		return // HTTP surface disabled; the link and metrics are optional
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.Handle("/link", s.hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("hardcoreban_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("hardcoreban_bans_issued_total", "Death bans written.", "counter",
		m.BansIssued.Load())
	write("hardcoreban_bans_expired_total", "Lapsed bans removed by sweeps.", "counter",
		m.BansExpired.Load())
	write("hardcoreban_joins_denied_total", "Banned subjects disconnected on join.", "counter",
		m.JoinsDenied.Load())
	write("hardcoreban_sweep_runs_total", "Completed sweep passes.", "counter",
		m.SweepRuns.Load())
	write("hardcoreban_admin_unbans_total", "Unbans applied via admin surface or link.", "counter",
		m.AdminUnbans.Load())

	linkUp := int64(0)
	if s.hub.Connected() {
		linkUp = 1
	}
	write("hardcoreban_link_connected", "Whether the proxy link session is up.", "gauge", linkUp)
}
