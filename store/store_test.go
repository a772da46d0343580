package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/brawldraft/stats"
)

func players(rank int, names ...string) []stats.Player {
	out := make([]stats.Player, len(names))
	for i, n := range names {
		out[i] = stats.Player{Brawler: n, Rank: rank}
	}
	return out
}

func sampleMatches() []stats.Match {
	return []stats.Match{
		{Map: "Hard Rock Mine", Mode: "gemGrab", Winners: players(12, "Bull", "Colt", "Poco"), Losers: players(18, "Crow", "Leon", "Spike")},
		{Map: "Hard Rock Mine", Mode: "gemGrab", Winners: players(20, "Crow", "Nita", "Shelly"), Losers: players(11, "Bull", "Jessie", "Poco")},
		{Map: "Snake Prairie", Mode: "bounty", Winners: players(15, "Spike", "Leon", "Jessie"), Losers: players(15, "Colt", "Nita", "Shelly")},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	table := stats.Build(sampleMatches(), stats.DefaultParams()).Export()
	table.Brawlers = append(table.Brawlers, "Zeta")
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	path := filepath.Join(t.TempDir(), "cache", "stats.parquet")
	require.NoError(t, WriteCache(path, table, created))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := ReadCache(path)
	require.NoError(t, err)
	assert.Equal(t, table, got.Table)
	assert.True(t, created.Equal(got.CreatedAt))

	// The re-imported aggregator answers identically.
	a := stats.FromTable(table, stats.DefaultParams())
	b := stats.FromTable(got.Table, stats.DefaultParams())
	wa, _ := a.WinRate("Bull", "Hard Rock Mine", "gemGrab")
	wb, _ := b.WinRate("Bull", "Hard Rock Mine", "gemGrab")
	assert.Equal(t, wa, wb)
}

func TestReadCacheRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteCache(path, stats.Table{Brawlers: []string{"Bull"}}, time.Now()))

	_, err := ReadCache(path)
	assert.True(t, errors.Is(err, ErrCacheIncomplete))

	_, err = ReadCache(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadCacheRejectsOtherSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.parquet")
	require.NoError(t, parquet.WriteFile(path, []StatsRow{{Kind: KindRoster, First: "Bull"}},
		parquet.KeyValueMetadata("schema", "something_else"),
	))
	_, err := ReadCache(path)
	assert.True(t, errors.Is(err, ErrSchema))
}

func TestRowsTableUnknownKind(t *testing.T) {
	_, err := RowsTable([]StatsRow{{Kind: "mystery"}})
	assert.Error(t, err)
}

func TestMatchRowRoundTrip(t *testing.T) {
	for _, m := range sampleMatches() {
		got, err := NewMatchRow("k", m).Match()
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	bad := MatchRow{WinnerBrawlers: []string{"Bull"}}
	_, err := bad.Match()
	assert.Error(t, err)
}

func TestMatchWriterEmptyBatchIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	w, err := NewMatchWriter(dir)
	require.NoError(t, err)
	path, err := w.Finalize()
	require.NoError(t, err)
	assert.Empty(t, path)

	matches, err := ReadMatches(dir)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.Error(t, w.Write([]MatchRow{{Key: "x"}}))
}

func TestAppendMatchesDedupes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "matches")
	matches := sampleMatches()
	keys := []string{"a", "b", "c"}

	added, err := AppendMatches(dir, keys[:2], matches[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// Re-ingesting the whole log only adds the new battle.
	added, err = AppendMatches(dir, keys, matches)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = AppendMatches(dir, keys, matches)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	got, err := ReadMatches(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, matches, got)

	seen, err := ReadKeys(dir)
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	assert.Contains(t, seen, "b")
	assert.NotContains(t, seen, "d")

	_, err = AppendMatches(dir, keys[:1], matches)
	assert.Error(t, err)
}

func TestReadMatchesMissingDir(t *testing.T) {
	got, err := ReadMatches(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendMatchesTrustsFinalizedBatches(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "matches")
	matches := sampleMatches()

	// A batch that was renamed into place counts as stored.
	w, err := NewMatchWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.Write([]MatchRow{NewMatchRow("a", matches[0])}))
	_, err = w.Finalize()
	require.NoError(t, err)

	// A batch left in tmp was never stored.
	orphan, err := NewMatchWriter(dir)
	require.NoError(t, err)
	require.NoError(t, orphan.Write([]MatchRow{NewMatchRow("b", matches[1])}))

	added, err := AppendMatches(dir, []string{"a", "b", "c"}, matches)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	got, err := ReadMatches(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, matches, got)
}
