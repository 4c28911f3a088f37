// Package store provides SQLite-backed persistence for hardcore bans.
//
// The store is the single source of truth shared by the game server and the
// proxy. Its steady-state API never returns errors: any store unavailability
// degrades reads to their safe defaults (not banned, zero time left, empty
// list) and writes to false, with severity-appropriate logging. Both processes
// decide against these values on every control point, so a lost notification
// can never corrupt enforcement.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pcxsh/hardcoreban/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS hardcore_bans (
	subject_id   TEXT    PRIMARY KEY,
	display_name TEXT    NOT NULL DEFAULT '',
	expires_at   INTEGER NOT NULL,
	issued_by    TEXT    NOT NULL DEFAULT '',
	issued_at    INTEGER NOT NULL,
	reason       TEXT    NOT NULL DEFAULT ''
);
`

// RawRowLimit caps rows returned by ExecRaw to the caller.
const RawRowLimit = 50

// Config holds store connection settings.
type Config struct {
	Path             string        // SQLite database path (shared by both processes)
	ReconnectBackoff time.Duration // minimum interval between failed connect attempts
	QueryTimeout     time.Duration // per-statement timeout on the steady-state API
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:             "hardcoreban.db",
		ReconnectBackoff: 10 * time.Second,
		QueryTimeout:     5 * time.Second,
	}
}

// Store owns the connection pool to the ban table. The pool is never exposed
// outside this package; the raw-SQL diagnostic reuses it under the same
// discipline.
type Store struct {
	cfg Config

	mu          sync.Mutex
	db          *sql.DB
	lastAttempt time.Time
}

// New creates a Store. No connection is made until Connect (or the first
// steady-state call, which connects lazily).
func New(cfg Config) *Store {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 10 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	return &Store{cfg: cfg}
}

// Connect opens the database and ensures the ban table exists. Idempotent:
// returns true immediately when the existing pool is healthy. Failed attempts
// are rate-limited by ReconnectBackoff so a down database is not hammered.
func (s *Store) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Store) connectLocked() bool {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err == nil {
			return true
		}
		slog.Warn("store: connection lost, reopening", "path", s.cfg.Path)
		_ = s.db.Close()
		s.db = nil
	}

	if since := time.Since(s.lastAttempt); since < s.cfg.ReconnectBackoff {
		slog.Debug("store: reconnect suppressed", "retry_in", s.cfg.ReconnectBackoff-since)
		return false
	}
	s.lastAttempt = time.Now()

	db, err := sql.Open("sqlite", s.cfg.Path)
	if err != nil {
		slog.Error("store: open database", "path", s.cfg.Path, "err", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
	defer cancel()

	// WAL lets the proxy read while the game server writes
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			slog.Error("store: set pragma", "pragma", pragma, "err", err)
			_ = db.Close()
			return false
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		slog.Error("store: ensure ban table", "err", err)
		_ = db.Close()
		return false
	}

	s.db = db
	slog.Info("store: connected", "path", s.cfg.Path)
	return true
}

// conn returns the pool, connecting lazily. The bool mirrors Connect.
func (s *Store) conn() (*sql.DB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, true
	}
	if !s.connectLocked() {
		return nil, false
	}
	return s.db, true
}

// Close closes the pool. Safe to call when never connected.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
}

// UpsertBan inserts the ban or fully replaces the existing row for the same
// subject. The conditional write is atomic, so concurrent re-bans cannot
// interleave partial field sets; the last successful write wins.
func (s *Store) UpsertBan(ban model.Ban) bool {
	if err := ban.Validate(); err != nil {
		slog.Warn("store: rejecting invalid ban", "subject", ban.SubjectID, "err", err)
		return false
	}
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: upsert skipped, database unavailable", "subject", ban.SubjectID)
		return false
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	_, err := db.ExecContext(ctx, `
		INSERT INTO hardcore_bans (subject_id, display_name, expires_at, issued_by, issued_at, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			display_name = excluded.display_name,
			expires_at   = excluded.expires_at,
			issued_by    = excluded.issued_by,
			issued_at    = excluded.issued_at,
			reason       = excluded.reason`,
		ban.SubjectID.String(), ban.DisplayName, model.EpochMillis(ban.ExpiresAt),
		ban.IssuedBy, model.EpochMillis(ban.IssuedAt), ban.Reason)
	if err != nil {
		slog.Error("store: upsert ban", "subject", ban.SubjectID, "err", err)
		return false
	}
	return true
}

// RemoveBan deletes the subject's row and reports whether one existed.
func (s *Store) RemoveBan(subject uuid.UUID) bool {
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: remove skipped, database unavailable", "subject", subject)
		return false
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	res, err := db.ExecContext(ctx, "DELETE FROM hardcore_bans WHERE subject_id = ?", subject.String())
	if err != nil {
		slog.Error("store: remove ban", "subject", subject, "err", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// ClearAll deletes every row and returns the count removed.
func (s *Store) ClearAll() int64 {
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: clear-all skipped, database unavailable")
		return 0
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	res, err := db.ExecContext(ctx, "DELETE FROM hardcore_bans")
	if err != nil {
		slog.Error("store: clear all bans", "err", err)
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

// IsBanned reports whether the subject has a row with a future expiry.
// Fails open: an unreachable store reads as "not banned".
func (s *Store) IsBanned(subject uuid.UUID) bool {
	expiry, ok := s.expiry(subject)
	return ok && expiry.After(time.Now())
}

// TimeLeft returns the remaining ban duration, zero for unknown or expired
// subjects.
func (s *Store) TimeLeft(subject uuid.UUID) time.Duration {
	expiry, ok := s.expiry(subject)
	if !ok {
		return 0
	}
	if left := time.Until(expiry); left > 0 {
		return left
	}
	return 0
}

func (s *Store) expiry(subject uuid.UUID) (time.Time, bool) {
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: ban check degraded to not-banned, database unavailable", "subject", subject)
		return time.Time{}, false
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	var ms int64
	err := db.QueryRowContext(ctx, "SELECT expires_at FROM hardcore_bans WHERE subject_id = ?", subject.String()).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, false
	}
	if err != nil {
		slog.Error("store: read expiry", "subject", subject, "err", err)
		return time.Time{}, false
	}
	return model.FromEpochMillis(ms), true
}

// GetBan returns the full ban row for an actively banned subject, nil when the
// subject is unknown or the row has lapsed.
func (s *Store) GetBan(subject uuid.UUID) *model.Ban {
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: ban lookup skipped, database unavailable", "subject", subject)
		return nil
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	var (
		displayName, issuedBy, reason string
		expiresMs, issuedMs           int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT display_name, expires_at, issued_by, issued_at, reason FROM hardcore_bans WHERE subject_id = ?",
		subject.String()).Scan(&displayName, &expiresMs, &issuedBy, &issuedMs, &reason)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		slog.Error("store: read ban", "subject", subject, "err", err)
		return nil
	}

	ban := model.Ban{
		SubjectID:   subject,
		DisplayName: displayName,
		ExpiresAt:   model.FromEpochMillis(expiresMs),
		IssuedBy:    issuedBy,
		IssuedAt:    model.FromEpochMillis(issuedMs),
		Reason:      reason,
	}
	if !ban.Active(time.Now()) {
		return nil
	}
	return &ban
}

// GetAll returns subject -> expiry for every active ban. Rows with malformed
// subject ids (legacy or externally written records) are skipped with a
// warning; one bad row never aborts the read.
func (s *Store) GetAll() map[uuid.UUID]time.Time {
	bans := make(map[uuid.UUID]time.Time)

	db, ok := s.conn()
	if !ok {
		slog.Warn("store: ban listing degraded to empty, database unavailable")
		return bans
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	rows, err := db.QueryContext(ctx,
		"SELECT subject_id, expires_at FROM hardcore_bans WHERE expires_at > ?", model.EpochMillis(time.Now()))
	if err != nil {
		slog.Error("store: list bans", "err", err)
		return bans
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			idStr string
			ms    int64
		)
		if err := rows.Scan(&idStr, &ms); err != nil {
			slog.Warn("store: skipping unreadable ban row", "err", err)
			continue
		}
		subject, err := uuid.Parse(idStr)
		if err != nil {
			slog.Warn("store: skipping ban row with malformed subject id", "subject_id", idStr, "err", err)
			continue
		}
		bans[subject] = model.FromEpochMillis(ms)
	}
	if err := rows.Err(); err != nil {
		slog.Error("store: list bans", "err", err)
	}
	return bans
}

// ListDetails returns the full rows of every active ban, for admin listings.
func (s *Store) ListDetails() []model.Ban {
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: ban listing degraded to empty, database unavailable")
		return nil
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT subject_id, display_name, expires_at, issued_by, issued_at, reason
		FROM hardcore_bans WHERE expires_at > ? ORDER BY expires_at`,
		model.EpochMillis(time.Now()))
	if err != nil {
		slog.Error("store: list ban details", "err", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var bans []model.Ban
	for rows.Next() {
		var (
			idStr, displayName, issuedBy, reason string
			expiresMs, issuedMs                  int64
		)
		if err := rows.Scan(&idStr, &displayName, &expiresMs, &issuedBy, &issuedMs, &reason); err != nil {
			slog.Warn("store: skipping unreadable ban row", "err", err)
			continue
		}
		subject, err := uuid.Parse(idStr)
		if err != nil {
			slog.Warn("store: skipping ban row with malformed subject id", "subject_id", idStr, "err", err)
			continue
		}
		bans = append(bans, model.Ban{
			SubjectID:   subject,
			DisplayName: displayName,
			ExpiresAt:   model.FromEpochMillis(expiresMs),
			IssuedBy:    issuedBy,
			IssuedAt:    model.FromEpochMillis(issuedMs),
			Reason:      reason,
		})
	}
	if err := rows.Err(); err != nil {
		slog.Error("store: list ban details", "err", err)
	}
	return bans
}

// CleanupExpired deletes every lapsed row and returns the count removed.
// Idempotent: a second immediate run removes nothing.
func (s *Store) CleanupExpired() int64 {
	db, ok := s.conn()
	if !ok {
		slog.Warn("store: cleanup skipped, database unavailable")
		return 0
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	res, err := db.ExecContext(ctx, "DELETE FROM hardcore_bans WHERE expires_at <= ?", model.EpochMillis(time.Now()))
	if err != nil {
		slog.Error("store: cleanup expired bans", "err", err)
		return 0
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("store: cleaned up expired bans", "count", n)
	}
	return n
}

// KeepAlive issues a trivial round-trip so a dead connection is detected and
// reopened between natural uses rather than on a player's join.
func (s *Store) KeepAlive() {
	db, ok := s.conn()
	if !ok {
		return
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		slog.Warn("store: keepalive failed, will reconnect", "err", err)
		s.mu.Lock()
		if s.db == db {
			_ = s.db.Close()
			s.db = nil
		}
		s.mu.Unlock()
	}
}

// RawResult is the outcome of a raw diagnostic statement.
type RawResult struct {
	IsQuery      bool
	Columns      []string
	Rows         [][]string
	Truncated    bool  // true when more than RawRowLimit rows matched
	RowsAffected int64 // writes only
}

// ExecRaw runs an operator-supplied statement against the same pool. Reads
// return at most RawRowLimit rows; writes return the affected count. Unlike
// the typed API this surfaces errors, since the caller is a privileged human.
func (s *Store) ExecRaw(statement string) (*RawResult, error) {
	db, ok := s.conn()
	if !ok {
		return nil, fmt.Errorf("store: database unavailable")
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(statement)), "select") {
		res, err := db.ExecContext(ctx, statement)
		if err != nil {
			return nil, fmt.Errorf("store: exec raw: %w", err)
		}
		n, _ := res.RowsAffected()
		return &RawResult{RowsAffected: n}, nil
	}

	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("store: query raw: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("store: query raw: %w", err)
	}

	result := &RawResult{IsQuery: true, Columns: cols}
	for rows.Next() {
		if len(result.Rows) >= RawRowLimit {
			result.Truncated = true
			break
		}
		raw := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("store: scan raw row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "NULL"
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query raw: %w", err)
	}
	return result, nil
}
