package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func team(rank int, names ...string) []Player {
	out := make([]Player, len(names))
	for i, n := range names {
		out[i] = Player{Brawler: n, Rank: rank}
	}
	return out
}

func sampleMatches() []Match {
	return []Match{
		{Map: "Hard Rock Mine", Mode: "Gem Grab", Winners: team(10, "Bull", "Colt", "Poco"), Losers: team(10, "Crow", "Leon", "Spike")},
		{Map: "Hard Rock Mine", Mode: "Gem Grab", Winners: team(13, "Bull", "Colt", "Shelly"), Losers: team(16, "Crow", "Nita", "Jessie")},
		{Map: "Hard Rock Mine", Mode: "Gem Grab", Winners: team(22, "Crow", "Leon", "Spike"), Losers: team(25, "Bull", "Colt", "Poco")},
		{Map: "Snake Prairie", Mode: "Bounty", Winners: team(5, "Leon", "Spike", "Crow"), Losers: team(19, "Bull", "Colt", "Poco")},
	}
}

func TestRankWeight(t *testing.T) {
	w := Weighting{MinRank: 10, MaxRank: 22, Divisor: 3}

	tests := []struct {
		rank int
		want float64
	}{
		{rank: 1, want: 1},
		{rank: 10, want: 1},
		{rank: 13, want: 2},
		{rank: 16, want: 3},
		{rank: 22, want: 5},
		{rank: 35, want: 5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, w.RankWeight(tt.rank), 1e-12, "rank %d", tt.rank)
	}

	zero := Weighting{MinRank: 10, MaxRank: 22, Divisor: 0}
	assert.InDelta(t, 3.0, zero.RankWeight(12), 1e-12)

	negative := Weighting{MinRank: 10, MaxRank: 22, Divisor: -5}
	assert.InDelta(t, 1.0, negative.RankWeight(10), 1e-12)
}

func TestBuildCounters(t *testing.T) {
	a := Build(sampleMatches(), DefaultParams())
	tab := a.Export()
	require.Len(t, tab.Buckets, 2)

	gem := tab.Buckets[0]
	require.Equal(t, "Hard Rock Mine", gem.Map)
	require.Equal(t, "Gem Grab", gem.Mode)

	// weights: match1 all 1, match2 winners 2 losers 3, match3 both 5.
	assert.InDelta(t, 3*1+3*1+3*2+3*3+3*5+3*5, gem.TotalWeightedPlays, 1e-9)
	assert.Equal(t, Counter{Wins: 1 + 2, Plays: 1 + 2 + 5}, gem.Brawlers["Bull"])
	assert.Equal(t, Counter{Wins: 5, Plays: 1 + 3 + 5}, gem.Brawlers["Crow"])

	assert.Equal(t, Counter{Wins: 1 + 2, Plays: 1 + 2 + 5}, gem.Synergy[SynergyPair("Colt", "Bull")])
	assert.Equal(t, Counter{Wins: 0, Plays: 3}, gem.Synergy[SynergyPair("Nita", "Crow")])

	// Bull beats Crow in matches 1 and 2 at weights 1 and 2, then loses to
	// Crow in match 3 at weight 5.
	assert.Equal(t, Counter{Wins: 1 + 2, Plays: 1 + 2 + 5}, gem.Counters[Pair{A: "Bull", B: "Crow"}])
	// Crow loses at weights 1 and 3, then wins at weight 5.
	assert.Equal(t, Counter{Wins: 5, Plays: 1 + 3 + 5}, gem.Counters[Pair{A: "Crow", B: "Bull"}])
	assert.Equal(t, Counter{Wins: 0, Plays: 3}, gem.Counters[Pair{A: "Nita", B: "Shelly"}])

	for _, b := range tab.Buckets {
		for _, c := range b.Brawlers {
			assert.LessOrEqual(t, c.Wins, c.Plays)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first := Build(sampleMatches(), DefaultParams()).Export()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Build(sampleMatches(), DefaultParams()).Export())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	a := Build(sampleMatches(), DefaultParams())
	exported := a.Export()
	b := FromTable(exported, DefaultParams())

	assert.Equal(t, exported, b.Export())
	assert.Equal(t, a.Brawlers(), b.Brawlers())
	assert.Equal(t, a.MapModes(), b.MapModes())
}

func TestFromTableKeepsRosterOnlyBrawlers(t *testing.T) {
	tab := Build(sampleMatches(), DefaultParams()).Export()
	tab.Brawlers = append(tab.Brawlers, "Edgar")
	a := FromTable(tab, DefaultParams())
	assert.Contains(t, a.Brawlers(), "Edgar")
}

func TestVocabulary(t *testing.T) {
	a := Build(sampleMatches(), DefaultParams())
	assert.Equal(t, []string{"Bull", "Colt", "Crow", "Jessie", "Leon", "Nita", "Poco", "Shelly", "Spike"}, a.Brawlers())
	assert.Equal(t, map[string][]string{
		"Bounty":   {"Snake Prairie"},
		"Gem Grab": {"Hard Rock Mine"},
	}, a.MapModes())
	assert.True(t, a.HasBucket("Snake Prairie", "Bounty"))
	assert.False(t, a.HasBucket("Snake Prairie", "Gem Grab"))
}

func TestWinRate(t *testing.T) {
	p := DefaultParams()
	p.LowConfidenceTarget = 0.4
	a := Build(sampleMatches(), p)

	_, ok := a.WinRate("Bull", "Nowhere", "Gem Grab")
	assert.False(t, ok)

	got, ok := a.WinRate("Edgar", "Hard Rock Mine", "Gem Grab")
	require.True(t, ok)
	assert.Equal(t, 0.4, got)

	// Bull: wins 3, plays 8, k 2 => 4/10; pick rate 8/51 is above threshold.
	got, ok = a.WinRate("Bull", "Hard Rock Mine", "Gem Grab")
	require.True(t, ok)
	assert.InDelta(t, 0.4, got, 1e-12)

	// Crow: wins 5, plays 9 => 6/11.
	got, ok = a.WinRate("Crow", "Hard Rock Mine", "Gem Grab")
	require.True(t, ok)
	assert.InDelta(t, 6.0/11.0, got, 1e-12)
}

func TestWinRateLowPickRateBlendsTowardTarget(t *testing.T) {
	p := DefaultParams()
	p.LowPickRateThreshold = 0.5
	p.LowConfidenceTarget = 0
	a := Build(sampleMatches(), p)

	pr, ok := a.PickRate("Crow", "Hard Rock Mine", "Gem Grab")
	require.True(t, ok)
	assert.InDelta(t, 9.0/51.0, pr, 1e-12)

	got, ok := a.WinRate("Crow", "Hard Rock Mine", "Gem Grab")
	require.True(t, ok)
	confidence := pr / 0.5
	assert.InDelta(t, 6.0/11.0*confidence, got, 1e-12)

	p.LowPickRateThreshold = 0
	full := Build(sampleMatches(), p)
	got, _ = full.WinRate("Crow", "Hard Rock Mine", "Gem Grab")
	assert.InDelta(t, 6.0/11.0, got, 1e-12)
}

func TestWinRateAlwaysInUnitInterval(t *testing.T) {
	ks := []float64{0, 0.5, 2, 50}
	targets := []float64{-1, 0, 0.5, 1, 3}
	for _, k := range ks {
		for _, target := range targets {
			p := DefaultParams()
			p.SmoothingK = k
			p.LowConfidenceTarget = target
			tab := Table{Buckets: []Bucket{{
				Map:                "m",
				Mode:               "mode",
				TotalWeightedPlays: 10,
				Brawlers: map[string]Counter{
					"zero":  {Wins: 0, Plays: 0},
					"all":   {Wins: 10, Plays: 10},
					"none":  {Wins: 0, Plays: 10},
					"split": {Wins: 3, Plays: 7},
				},
			}}}
			a := FromTable(tab, p)
			for _, b := range []string{"zero", "all", "none", "split", "missing"} {
				got, ok := a.WinRate(b, "m", "mode")
				require.True(t, ok)
				assert.False(t, math.IsNaN(got))
				assert.GreaterOrEqual(t, got, 0.0, "k=%v target=%v b=%s", k, target, b)
				assert.LessOrEqual(t, got, 1.0, "k=%v target=%v b=%s", k, target, b)
			}
		}
	}
}

func TestPickRate(t *testing.T) {
	a := Build(sampleMatches(), DefaultParams())

	_, ok := a.PickRate("Bull", "Nowhere", "Gem Grab")
	assert.False(t, ok)

	got, ok := a.PickRate("Edgar", "Hard Rock Mine", "Gem Grab")
	require.True(t, ok)
	assert.Equal(t, 0.0, got)

	empty := FromTable(Table{Buckets: []Bucket{{Map: "m", Mode: "mode"}}}, DefaultParams())
	_, ok = empty.PickRate("Bull", "m", "mode")
	assert.False(t, ok)
}

func TestPairScoresNeutralWithoutData(t *testing.T) {
	a := Build(sampleMatches(), DefaultParams())

	assert.Equal(t, 0.5, a.Synergy("Bull", "Edgar", "Hard Rock Mine", "Gem Grab"))
	assert.Equal(t, 0.5, a.Synergy("Bull", "Colt", "Nowhere", "Gem Grab"))
	assert.Equal(t, 0.5, a.Counter("Bull", "Edgar", "Hard Rock Mine", "Gem Grab"))
	assert.Equal(t, 0.5, a.Counter("Bull", "Crow", "Nowhere", "Gem Grab"))

	p := DefaultParams()
	p.SmoothingK = 0
	zero := FromTable(Table{Buckets: []Bucket{{
		Map:      "m",
		Mode:     "mode",
		Synergy:  map[Pair]Counter{SynergyPair("a", "b"): {}},
		Counters: map[Pair]Counter{{A: "a", B: "b"}: {}},
	}}}, p)
	assert.Equal(t, 0.5, zero.Synergy("b", "a", "m", "mode"))
	assert.Equal(t, 0.5, zero.Counter("a", "b", "m", "mode"))
}

func TestPairScores(t *testing.T) {
	a := Build(sampleMatches(), DefaultParams())

	// Bull+Colt synergy: wins 3, plays 8 => 4/10, order independent.
	assert.InDelta(t, 0.4, a.Synergy("Bull", "Colt", "Hard Rock Mine", "Gem Grab"), 1e-12)
	assert.InDelta(t, 0.4, a.Synergy("Colt", "Bull", "Hard Rock Mine", "Gem Grab"), 1e-12)

	// Crow vs Bull: wins 5, plays 9 => 6/11.
	assert.InDelta(t, 6.0/11.0, a.Counter("Crow", "Bull", "Hard Rock Mine", "Gem Grab"), 1e-12)
	// Bull vs Crow: wins 3, plays 8 => 4/10.
	assert.InDelta(t, 0.4, a.Counter("Bull", "Crow", "Hard Rock Mine", "Gem Grab"), 1e-12)
}

func BenchmarkBuild(b *testing.B) {
	matches := sampleMatches()
	for i := 0; i < 8; i++ {
		matches = append(matches, matches...)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Build(matches, DefaultParams())
	}
}
