package gameserver

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks game-server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	BansIssued  atomic.Int64 // death bans written this run
	BansExpired atomic.Int64 // lapsed rows removed by sweeps
	JoinsDenied atomic.Int64 // banned subjects disconnected on join
	SweepRuns   atomic.Int64 // completed sweep passes
	AdminUnbans atomic.Int64 // unbans applied through the admin surface or link
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// BanIssued records one issued death ban.
func (m *Metrics) BanIssued() { m.BansIssued.Add(1) }

// JoinDenied records one banned subject disconnected at the join gate.
func (m *Metrics) JoinDenied() { m.JoinsDenied.Add(1) }

// SweepFinished records one completed sweep and the rows it removed.
func (m *Metrics) SweepFinished(removed int64) {
	m.SweepRuns.Add(1)
	m.BansExpired.Add(removed)
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	BansIssued  int64 `json:"bans_issued"`
	BansExpired int64 `json:"bans_expired"`
	JoinsDenied int64 `json:"joins_denied"`
	SweepRuns   int64 `json:"sweep_runs"`
	AdminUnbans int64 `json:"admin_unbans"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		BansIssued:    m.BansIssued.Load(),
		BansExpired:   m.BansExpired.Load(),
		JoinsDenied:   m.JoinsDenied.Load(),
		SweepRuns:     m.SweepRuns.Load(),
		AdminUnbans:   m.AdminUnbans.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"bans_issued", s.BansIssued,
		"bans_expired", s.BansExpired,
		"joins_denied", s.JoinsDenied,
		"sweep_runs", s.SweepRuns,
	)
}

// StartPeriodicLog logs a metrics summary every interval until done closes.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary()
			case <-done:
				return
			}
		}
	}()
}
