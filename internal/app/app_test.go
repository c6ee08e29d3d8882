package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everylotbot/everylot/internal/config"
	memorynotify "github.com/everylotbot/everylot/internal/notify/memory"
	memorystore "github.com/everylotbot/everylot/internal/store/memory"
	sqlitestore "github.com/everylotbot/everylot/internal/store/sqlite"
)

// testConfig builds the smallest config Build accepts, on backends that
// need no credentials or network.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Logging.Development = true
	cfg.Database.Provider = "memory"
	cfg.Archive.Provider = "noop"
	cfg.Notify.Provider = "noop"
	cfg.Caption.MaxLength = 300
	cfg.Streetview.BaseURL = "https://maps.example.test/streetview"
	cfg.Streetview.Size = "640x640"
	cfg.Bluesky.Host = "https://bsky.example.test"
	cfg.Publish.MaxRetries = 2
	cfg.Serve.Port = 8080
	return cfg
}

func TestBuildWiresMemoryProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Provider = "memory"

	a, err := Build(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Controller())
	require.NotNil(t, a.Logger())
	assert.IsType(t, &memorystore.Store{}, a.Store())
	assert.IsType(t, &memorynotify.Notifier{}, a.notifier)

	n, err := a.Store().CountUnposted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBuildOpensSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Provider = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "lots.db")
	cfg.Database.SQLite.Table = "cincinnati_lots"
	cfg.Select.RequireImprovement = true

	a, err := Build(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &sqlitestore.Store{}, a.Store())
}

func TestBuildLocalArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.Local.Dir = t.TempDir()

	a, err := Build(context.Background(), cfg, false)
	require.NoError(t, err)
	a.Close()
}

func TestBuildRejectsUnknownDatabaseProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Provider = "oracle"

	_, err := Build(context.Background(), cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database provider "oracle"`)
}

func TestBuildUnsetSideEffectProvidersAreNoOps(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Provider = ""
	cfg.Notify.Provider = ""

	a, err := Build(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Controller())
}
