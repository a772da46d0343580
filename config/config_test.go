package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/brawldraft/heuristics"
	"github.com/brensch/brawldraft/stats"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, stats.DefaultParams(), cfg.StatsParams())
	assert.Equal(t, heuristics.DefaultWeights(), cfg.Weights)

	sc := cfg.MCTS()
	assert.Equal(t, 7*time.Second, sc.TimeBudget)
	assert.Equal(t, 1.414, sc.Exploration)
	assert.Equal(t, 10, sc.ResultCount)
	assert.Equal(t, 200*time.Millisecond, sc.PollInterval)
	assert.Equal(t, time.Second, sc.ReportInterval)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brawldraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stats:
  smoothing_k: 4
  min_rank: 5
search:
  time_limit: 2.5
  poll_interval: 50ms
weights:
  counter: 0.9
`), 0o644))

	t.Setenv("BRAWLDRAFT_SEARCH_RESULT_COUNT", "3")
	t.Setenv("BRAWLDRAFT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4.0, cfg.Stats.SmoothingK)
	assert.Equal(t, 5, cfg.Stats.MinRank)
	assert.Equal(t, 22, cfg.Stats.MaxRank)
	assert.Equal(t, 2500*time.Millisecond, cfg.MCTS().TimeBudget)
	assert.Equal(t, 50*time.Millisecond, cfg.Search.PollInterval)
	assert.Equal(t, 0.9, cfg.Weights.Counter)
	assert.Equal(t, 0.5, cfg.Weights.WinRate)
	assert.Equal(t, 3, cfg.Search.ResultCount)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero divisor", "stats:\n  rank_weight_divisor: 0\n"},
		{"ranks inverted", "stats:\n  min_rank: 30\n  max_rank: 10\n"},
		{"zero time limit", "search:\n  time_limit: 0\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"target above one", "stats:\n  low_confidence_win_rate: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Search.TimeLimit = 3
	cfg.Search.ReportInterval = 500 * time.Millisecond
	cfg.Weights.Synergy = 0.7
	cfg.Paths.Roster = "data/roster.html"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *got)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("BRAWLDRAFT_SERVER_ADDR=127.0.0.1:9999\n"), 0o644))

	// Registered with t.Setenv so the value is restored afterwards.
	t.Setenv("BRAWLDRAFT_SERVER_ADDR", "")
	require.NoError(t, os.Unsetenv("BRAWLDRAFT_SERVER_ADDR"))

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envPath))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
}
