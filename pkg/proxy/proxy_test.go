package proxy_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pcxsh/hardcoreban/pkg/model"
	"github.com/pcxsh/hardcoreban/pkg/proxy"
)

func TestCacheHints(t *testing.T) {
	t.Parallel()

	c := proxy.NewCache()
	subject := uuid.New()

	require.False(t, c.Banned(subject))

	c.HintBan(subject, time.Now().Add(time.Hour))
	require.True(t, c.Banned(subject))

	c.HintUnban(subject)
	require.False(t, c.Banned(subject))

	c.HintBan(subject, time.Now().Add(time.Hour))
	c.HintBan(uuid.New(), time.Now().Add(time.Hour))
	require.Equal(t, 2, c.Len())
	c.HintClearAll()
	require.Equal(t, 0, c.Len())
}

func TestCacheIgnoresLapsedEntries(t *testing.T) {
	t.Parallel()

	c := proxy.NewCache()
	subject := uuid.New()
	c.HintBan(subject, time.Now().Add(-time.Minute))
	require.False(t, c.Banned(subject), "lapsed cache entry must read as not banned")
}

func TestCacheStatusHints(t *testing.T) {
	t.Parallel()

	c := proxy.NewCache()
	subject := uuid.New()

	c.HintStatus(subject, true, 90*time.Second)
	require.True(t, c.Banned(subject))

	c.HintStatus(subject, false, 0)
	require.False(t, c.Banned(subject))
}

func TestCacheReplace(t *testing.T) {
	t.Parallel()

	c := proxy.NewCache()
	stale := uuid.New()
	fresh := uuid.New()
	c.HintBan(stale, time.Now().Add(time.Hour))

	c.Replace(map[uuid.UUID]time.Time{fresh: time.Now().Add(time.Hour)})
	require.False(t, c.Banned(stale))
	require.True(t, c.Banned(fresh))
}

func TestLoadConfigNormalizes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "proxy.yml")
	raw := `
database:
  path: /tmp/shared-bans.db
gate:
  restricted-server: ""
refresh-interval-seconds: -1
link:
  url: ws://127.0.0.1:9630/link
  token: secret
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := proxy.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/shared-bans.db", cfg.Database.Path)
	require.Equal(t, "hardcore", cfg.Gate.RestrictedServer)
	require.Equal(t, 30*time.Second, cfg.RefreshInterval())
	require.Equal(t, "ws://127.0.0.1:9630/link", cfg.Link.URL)
	require.Equal(t, 10*time.Second, cfg.LinkBackoff())
}

func TestRoutingGateAgainstSharedStore(t *testing.T) {
	t.Parallel()

	cfg := proxy.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "bans.db")
	p := proxy.New(cfg)

	// boot check happens in Run; tests drive the store through the service
	subject := uuid.New()
	require.True(t, p.Service().Ban(model.NewDeathBan(subject, "Steve", time.Hour)))

	d := p.Gate().Route(subject, cfg.Gate.RestrictedServer)
	require.False(t, d.Allowed)
	require.Contains(t, d.Chat, "minute")
	require.EqualValues(t, 1, p.RoutesDenied())

	require.True(t, p.Gate().Route(subject, "lobby").Allowed)

	// unban through the service is immediately visible to the gate
	require.True(t, p.Service().Unban(subject))
	require.True(t, p.Gate().Route(subject, cfg.Gate.RestrictedServer).Allowed)
	require.EqualValues(t, 1, p.RoutesDenied())
}
