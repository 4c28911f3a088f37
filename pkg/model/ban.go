// Package model defines the ban entity shared by the game server, the proxy
// and the admin CLI.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Issuer values recorded in the issued_by column.
const (
	IssuerDeath   = "Death"
	IssuerConsole = "Console"
)

// DeathReason is the reason recorded for death-triggered bans.
const DeathReason = "Death in hardcore mode"

// DisplayNameMaxLength matches the display_name column width.
const DisplayNameMaxLength = 36

var (
	ErrNoDuration     = errors.New("model: ban duration must be positive")
	ErrNilSubject     = errors.New("model: subject id must not be nil")
	ErrBadDisplayName = errors.New("model: display name too long")
)

// Ban is one row in the ban table: at most one active ban per subject.
// A Ban whose ExpiresAt is in the past is semantically "not banned" even
// while the row still exists physically.
type Ban struct {
	SubjectID   uuid.UUID `json:"subject_id"`
	DisplayName string    `json:"display_name"` // last known name, best-effort
	ExpiresAt   time.Time `json:"expires_at"`
	IssuedBy    string    `json:"issued_by"`
	IssuedAt    time.Time `json:"issued_at"`
	Reason      string    `json:"reason"`
}

// NewDeathBan builds the ban written when a subject dies on the restricted host.
func NewDeathBan(subject uuid.UUID, displayName string, duration time.Duration) Ban {
	now := time.Now()
	return Ban{
		SubjectID:   subject,
		DisplayName: displayName,
		ExpiresAt:   now.Add(duration),
		IssuedBy:    IssuerDeath,
		IssuedAt:    now,
		Reason:      DeathReason,
	}
}

// Validate checks the invariants a ban must hold before it is written.
func (b Ban) Validate() error {
	if b.SubjectID == uuid.Nil {
		return ErrNilSubject
	}
	if !b.ExpiresAt.After(b.IssuedAt) {
		return ErrNoDuration
	}
	if len(b.DisplayName) > DisplayNameMaxLength {
		return ErrBadDisplayName
	}
	return nil
}

// Active reports whether the ban is still in force at the given instant.
func (b Ban) Active(now time.Time) bool {
	return b.ExpiresAt.After(now)
}

// TimeLeft returns the remaining ban duration at the given instant, never negative.
func (b Ban) TimeLeft(now time.Time) time.Duration {
	if left := b.ExpiresAt.Sub(now); left > 0 {
		return left
	}
	return 0
}

// EpochMillis converts a time to the epoch-millisecond representation used in
// the ban table and on the wire.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis is the inverse of EpochMillis.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
