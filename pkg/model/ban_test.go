package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/model"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()

	type tcase struct {
		ban       model.Ban
		expectErr error
	}

	tcases := map[string]tcase{
		"valid": {
			ban: model.Ban{
				SubjectID:   uuid.New(),
				DisplayName: "Steve",
				ExpiresAt:   now.Add(time.Hour),
				IssuedBy:    model.IssuerDeath,
				IssuedAt:    now,
				Reason:      model.DeathReason,
			},
		},
		"nil_subject": {
			ban: model.Ban{
				ExpiresAt: now.Add(time.Hour),
				IssuedAt:  now,
			},
			expectErr: model.ErrNilSubject,
		},
		"zero_duration": {
			ban: model.Ban{
				SubjectID: uuid.New(),
				ExpiresAt: now,
				IssuedAt:  now,
			},
			expectErr: model.ErrNoDuration,
		},
		"negative_duration": {
			ban: model.Ban{
				SubjectID: uuid.New(),
				ExpiresAt: now.Add(-time.Minute),
				IssuedAt:  now,
			},
			expectErr: model.ErrNoDuration,
		},
		"display_name_too_long": {
			ban: model.Ban{
				SubjectID:   uuid.New(),
				DisplayName: "0123456789012345678901234567890123456",
				ExpiresAt:   now.Add(time.Hour),
				IssuedAt:    now,
			},
			expectErr: model.ErrBadDisplayName,
		},
	}

	for name, tc := range tcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.ban.Validate()
			if tc.expectErr == nil {
				if err != nil {
					t.Fatalf("Validate: unexpected error: %v", err)
				}
				return
			}
			if err != tc.expectErr {
				t.Fatalf("Validate: want %v got %v", tc.expectErr, err)
			}
		})
	}
}

func TestNewDeathBan(t *testing.T) {
	t.Parallel()

	subject := uuid.New()
	ban := model.NewDeathBan(subject, "Alex", 24*time.Hour)

	if err := ban.Validate(); err != nil {
		t.Fatalf("Validate: unexpected error: %v", err)
	}
	if ban.IssuedBy != model.IssuerDeath {
		t.Errorf("IssuedBy: want %q got %q", model.IssuerDeath, ban.IssuedBy)
	}
	if ban.Reason != model.DeathReason {
		t.Errorf("Reason: want %q got %q", model.DeathReason, ban.Reason)
	}
	if got := ban.ExpiresAt.Sub(ban.IssuedAt); got != 24*time.Hour {
		t.Errorf("duration: want 24h got %v", got)
	}
}

func TestActiveAndTimeLeft(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ban := model.Ban{
		SubjectID: uuid.New(),
		ExpiresAt: now.Add(time.Minute),
		IssuedAt:  now,
	}

	if !ban.Active(now) {
		t.Fatal("Active: expected active ban")
	}
	if got := ban.TimeLeft(now); got != time.Minute {
		t.Errorf("TimeLeft: want 1m got %v", got)
	}

	later := now.Add(2 * time.Minute)
	if ban.Active(later) {
		t.Fatal("Active: expected expired ban")
	}
	if got := ban.TimeLeft(later); got != 0 {
		t.Errorf("TimeLeft after expiry: want 0 got %v", got)
	}
}

func TestEpochMillisRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Millisecond)
	if got := model.FromEpochMillis(model.EpochMillis(now)); !got.Equal(now) {
		t.Errorf("round trip: want %v got %v", now, got)
	}
}
