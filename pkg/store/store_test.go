package store_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/pcxsh/hardcoreban/pkg/model"
	"github.com/pcxsh/hardcoreban/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "bans.db")

	st := store.New(cfg)
	if !st.Connect() {
		t.Fatal("Connect: failed to open test database")
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return st
}

func testBan(subject uuid.UUID, duration time.Duration) model.Ban {
	return model.NewDeathBan(subject, "Steve", duration)
}

func TestConnectIdempotent(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	for i := 0; i < 3; i++ {
		if !st.Connect() {
			t.Fatalf("Connect[%d]: expected true on healthy pool", i)
		}
	}
}

func TestConnectFailureIsRateLimited(t *testing.T) {
	t.Parallel()

	cfg := store.DefaultConfig()
	// directory does not exist, so the schema statement fails
	cfg.Path = filepath.Join(t.TempDir(), "missing", "bans.db")
	cfg.ReconnectBackoff = time.Hour

	st := store.New(cfg)
	if st.Connect() {
		t.Fatal("Connect: expected failure for unreachable database")
	}
	// second attempt inside the backoff window must fail fast, not retry
	start := time.Now()
	if st.Connect() {
		t.Fatal("Connect: expected suppressed retry to fail")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Connect: suppressed retry took %v, expected immediate return", elapsed)
	}
}

func TestUpsertReplacesFully(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	subject := uuid.New()

	first := testBan(subject, 5*time.Minute)
	if !st.UpsertBan(first) {
		t.Fatal("UpsertBan: first write failed")
	}

	second := first
	second.ExpiresAt = second.IssuedAt.Add(10 * time.Minute)
	second.Reason = "second"
	second.IssuedBy = model.IssuerConsole
	second.DisplayName = "SteveRenamed"
	if !st.UpsertBan(second) {
		t.Fatal("UpsertBan: re-ban failed")
	}

	got := st.GetBan(subject)
	if got == nil {
		t.Fatal("GetBan: expected active ban after re-ban")
	}
	if diff := cmp.Diff(second, *got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("re-ban mismatch, old fields leaked (-want +got):\n%s", diff)
	}

	left := st.TimeLeft(subject)
	if left < 9*time.Minute || left > 10*time.Minute {
		t.Errorf("TimeLeft after re-ban: want ~10m got %v", left)
	}
}

func TestBanThenImmediateCheck(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	subject := uuid.New()

	if !st.UpsertBan(testBan(subject, 60*time.Second)) {
		t.Fatal("UpsertBan: write failed")
	}
	time.Sleep(100 * time.Millisecond)

	if !st.IsBanned(subject) {
		t.Fatal("IsBanned: expected true right after ban")
	}
	left := st.TimeLeft(subject)
	if left < 59*time.Second || left > 59900*time.Millisecond {
		t.Errorf("TimeLeft: want between 59s and 59.9s, got %v", left)
	}
}

func TestExpiryTransition(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	subject := uuid.New()

	if !st.UpsertBan(testBan(subject, 100*time.Millisecond)) {
		t.Fatal("UpsertBan: write failed")
	}
	time.Sleep(200 * time.Millisecond)

	// Idempotent expiry: repeated queries all see the lapsed ban as absent.
	for i := 0; i < 3; i++ {
		if st.IsBanned(subject) {
			t.Fatalf("IsBanned[%d]: expected false after expiry", i)
		}
		if left := st.TimeLeft(subject); left != 0 {
			t.Fatalf("TimeLeft[%d]: want 0 got %v", i, left)
		}
	}
	if got := st.GetBan(subject); got != nil {
		t.Fatalf("GetBan: expected nil for lapsed ban, got %+v", got)
	}

	if n := st.CleanupExpired(); n != 1 {
		t.Errorf("CleanupExpired: want 1 row removed, got %d", n)
	}
	if all := st.GetAll(); len(all) != 0 {
		t.Errorf("GetAll after sweep: want empty, got %v", all)
	}
}

func TestCleanupExpiredIsRepeatable(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)

	expired := uuid.New()
	active := uuid.New()
	if !st.UpsertBan(testBan(expired, 50*time.Millisecond)) {
		t.Fatal("UpsertBan: write failed")
	}
	if !st.UpsertBan(testBan(active, time.Hour)) {
		t.Fatal("UpsertBan: write failed")
	}
	time.Sleep(100 * time.Millisecond)

	if n := st.CleanupExpired(); n != 1 {
		t.Fatalf("CleanupExpired: want exactly the expired row, got %d", n)
	}
	if n := st.CleanupExpired(); n != 0 {
		t.Fatalf("CleanupExpired second run: want 0, got %d", n)
	}
	if !st.IsBanned(active) {
		t.Fatal("IsBanned: sweep must not touch active bans")
	}
}

func TestClearAllIsExhaustive(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)

	subjects := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, subject := range subjects {
		if !st.UpsertBan(testBan(subject, time.Hour)) {
			t.Fatal("UpsertBan: write failed")
		}
	}

	if n := st.ClearAll(); n != int64(len(subjects)) {
		t.Errorf("ClearAll: want %d got %d", len(subjects), n)
	}
	for _, subject := range subjects {
		if st.IsBanned(subject) {
			t.Errorf("IsBanned(%s): want false after clear-all", subject)
		}
	}
	if details := st.ListDetails(); len(details) != 0 {
		t.Errorf("ListDetails after clear-all: want empty, got %d rows", len(details))
	}
	// clearing an empty table is valid and removes nothing
	if n := st.ClearAll(); n != 0 {
		t.Errorf("ClearAll on empty table: want 0 got %d", n)
	}
}

func TestUnknownSubject(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	unknown := uuid.New()

	if st.IsBanned(unknown) {
		t.Error("IsBanned: want false for unknown subject")
	}
	if left := st.TimeLeft(unknown); left != 0 {
		t.Errorf("TimeLeft: want 0 for unknown subject, got %v", left)
	}
	if st.RemoveBan(unknown) {
		t.Error("RemoveBan: want false for unknown subject")
	}
	if got := st.GetBan(unknown); got != nil {
		t.Errorf("GetBan: want nil for unknown subject, got %+v", got)
	}
}

func TestRemoveBan(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	subject := uuid.New()

	if !st.UpsertBan(testBan(subject, time.Hour)) {
		t.Fatal("UpsertBan: write failed")
	}
	if !st.RemoveBan(subject) {
		t.Fatal("RemoveBan: want true for existing ban")
	}
	if st.IsBanned(subject) {
		t.Error("IsBanned: want false after removal")
	}
	if st.RemoveBan(subject) {
		t.Error("RemoveBan: want false on second removal")
	}
}

func TestGetAllFiltersExpired(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)

	active := uuid.New()
	expired := uuid.New()
	if !st.UpsertBan(testBan(active, time.Hour)) {
		t.Fatal("UpsertBan: write failed")
	}
	if !st.UpsertBan(testBan(expired, 50*time.Millisecond)) {
		t.Fatal("UpsertBan: write failed")
	}
	time.Sleep(100 * time.Millisecond)

	all := st.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll: want 1 active ban, got %d", len(all))
	}
	if _, ok := all[active]; !ok {
		t.Errorf("GetAll: missing active subject %s", active)
	}
}

func TestGetAllSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	subject := uuid.New()

	if !st.UpsertBan(testBan(subject, time.Hour)) {
		t.Fatal("UpsertBan: write failed")
	}
	// a row written by something else with a non-UUID subject id
	farFuture := model.EpochMillis(time.Now().Add(time.Hour))
	stmt := fmt.Sprintf(
		"INSERT INTO hardcore_bans (subject_id, display_name, expires_at, issued_by, issued_at, reason) VALUES ('not-a-uuid', 'x', %d, 'legacy', 0, '')",
		farFuture)
	if _, err := st.ExecRaw(stmt); err != nil {
		t.Fatalf("ExecRaw: seed malformed row: %v", err)
	}

	all := st.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll: want only the well-formed row, got %d", len(all))
	}
	if _, ok := all[subject]; !ok {
		t.Errorf("GetAll: missing subject %s", subject)
	}
	if details := st.ListDetails(); len(details) != 1 {
		t.Errorf("ListDetails: want only the well-formed row, got %d", len(details))
	}
}

func TestExecRaw(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	for i := 0; i < store.RawRowLimit+10; i++ {
		if !st.UpsertBan(testBan(uuid.New(), time.Hour)) {
			t.Fatal("UpsertBan: write failed")
		}
	}

	t.Run("query_caps_rows", func(t *testing.T) {
		res, err := st.ExecRaw("SELECT subject_id, reason FROM hardcore_bans")
		if err != nil {
			t.Fatalf("ExecRaw: unexpected error: %v", err)
		}
		if !res.IsQuery {
			t.Error("ExecRaw: want IsQuery for SELECT")
		}
		if diff := cmp.Diff([]string{"subject_id", "reason"}, res.Columns); diff != "" {
			t.Errorf("columns mismatch (-want +got):\n%s", diff)
		}
		if len(res.Rows) != store.RawRowLimit {
			t.Errorf("rows: want cap of %d, got %d", store.RawRowLimit, len(res.Rows))
		}
		if !res.Truncated {
			t.Error("ExecRaw: want Truncated when more rows matched")
		}
	})

	t.Run("write_reports_affected", func(t *testing.T) {
		res, err := st.ExecRaw("UPDATE hardcore_bans SET reason = 'audited'")
		if err != nil {
			t.Fatalf("ExecRaw: unexpected error: %v", err)
		}
		if res.IsQuery {
			t.Error("ExecRaw: want write result for UPDATE")
		}
		if res.RowsAffected != int64(store.RawRowLimit+10) {
			t.Errorf("RowsAffected: want %d got %d", store.RawRowLimit+10, res.RowsAffected)
		}
	})

	t.Run("bad_statement_errors", func(t *testing.T) {
		if _, err := st.ExecRaw("SELECT FROM nowhere"); err == nil {
			t.Fatal("ExecRaw: expected error for invalid SQL")
		}
	})
}

// Two Store instances over the same file model the game server and the proxy
// sharing one database.
func TestTwoProcessesShareState(t *testing.T) {
	t.Parallel()

	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "shared.db")

	gameServer := store.New(cfg)
	proxy := store.New(cfg)
	if !gameServer.Connect() || !proxy.Connect() {
		t.Fatal("Connect: failed to open shared database")
	}
	t.Cleanup(func() {
		_ = gameServer.Close()
		_ = proxy.Close()
	})

	subject := uuid.New()
	if !gameServer.UpsertBan(testBan(subject, time.Hour)) {
		t.Fatal("UpsertBan: write failed")
	}

	if !proxy.IsBanned(subject) {
		t.Fatal("IsBanned: proxy must see the game server's write")
	}

	if !proxy.RemoveBan(subject) {
		t.Fatal("RemoveBan: proxy-side unban failed")
	}
	if gameServer.IsBanned(subject) {
		t.Fatal("IsBanned: game server must see the proxy's removal")
	}
}

func TestKeepAliveRecovers(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	subject := uuid.New()
	if !st.UpsertBan(testBan(subject, time.Hour)) {
		t.Fatal("UpsertBan: write failed")
	}

	st.KeepAlive() // healthy pool, no-op

	if !st.IsBanned(subject) {
		t.Fatal("IsBanned: want true after keepalive")
	}
}
