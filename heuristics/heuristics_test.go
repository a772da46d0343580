package heuristics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/brawldraft/draft"
	"github.com/brensch/brawldraft/stats"
)

// fakeStats serves fixed values; anything missing is neutral.
type fakeStats struct {
	winRates  map[string]float64
	pickRates map[string]float64
	synergy   map[stats.Pair]float64
	counters  map[stats.Pair]float64
	noBucket  bool
}

func (f fakeStats) WinRate(b, _, _ string) (float64, bool) {
	if f.noBucket {
		return 0, false
	}
	if v, ok := f.winRates[b]; ok {
		return v, true
	}
	return 0, true
}

func (f fakeStats) PickRate(b, _, _ string) (float64, bool) {
	if f.noBucket {
		return 0, false
	}
	return f.pickRates[b], true
}

func (f fakeStats) Synergy(b1, b2, _, _ string) float64 {
	if v, ok := f.synergy[stats.SynergyPair(b1, b2)]; ok {
		return v
	}
	return 0.5
}

func (f fakeStats) Counter(us, them, _, _ string) float64 {
	if v, ok := f.counters[stats.Pair{A: us, B: them}]; ok {
		return v
	}
	return 0.5
}

var roster = []string{"Bull", "Colt", "Crow", "Jessie", "Leon", "Nita", "Poco", "Shelly", "Spike"}

func TestSuggestPickBreakdown(t *testing.T) {
	st := fakeStats{
		winRates:  map[string]float64{"Leon": 0.6, "Spike": 0.55},
		pickRates: map[string]float64{"Leon": 0.1, "Spike": 0.3},
		synergy:   map[stats.Pair]float64{stats.SynergyPair("Spike", "Bull"): 0.7},
		counters:  map[stats.Pair]float64{{A: "Spike", B: "Crow"}: 0.8, {A: "Leon", B: "Crow"}: 0.3},
	}
	s := draft.New("m", "mode", roster, draft.WithTeam1("Bull"), draft.WithTeam2("Crow", "Colt"), draft.WithPickNumber(4), draft.WithTurn(draft.Team1))

	got := SuggestPick(s, st, DefaultWeights())
	require.True(t, got.OK)
	assert.Equal(t, "Spike", got.Pick)
	assert.Len(t, got.Scores, len(s.LegalMoves()))

	spike := got.Scores["Spike"]
	assert.InDelta(t, 0.55, spike.WinRate, 1e-12)
	assert.InDelta(t, 0.5*0.05, spike.WinRateTerm, 1e-12)
	assert.InDelta(t, 0.7, spike.AvgSynergy, 1e-12)
	assert.InDelta(t, 0.3*0.2, spike.SynergyTerm, 1e-12)
	assert.InDelta(t, 0.65, spike.AvgCounter, 1e-12)
	assert.InDelta(t, 0.4*0.15, spike.CounterTerm, 1e-12)
	assert.InDelta(t, 0.2*0.3, spike.PickRateTerm, 1e-12)
	assert.InDelta(t, 0.025+0.06+0.06+0.06, spike.Total, 1e-12)

	leon := got.Scores["Leon"]
	assert.InDelta(t, 0.5*0.1+0.4*(0.4-0.5)+0.2*0.1, leon.Total, 1e-12)

	sorted := got.Sorted()
	require.Len(t, sorted, len(got.Scores))
	assert.Equal(t, "Spike", sorted[0].Brawler)
	for i := 1; i < len(sorted); i++ {
		assert.GreaterOrEqual(t, sorted[i-1].Total, sorted[i].Total)
	}
}

func TestSuggestPickDefaultsWithoutBucket(t *testing.T) {
	s := draft.New("m", "mode", roster)
	got := SuggestPick(s, fakeStats{noBucket: true}, DefaultWeights())

	require.True(t, got.OK)
	// Everything scores zero, so the lexicographically first brawler wins.
	assert.Equal(t, "Bull", got.Pick)
	for _, bd := range got.Scores {
		assert.Equal(t, 0.5, bd.WinRate)
		assert.Equal(t, 0.0, bd.PickRate)
		assert.Equal(t, 0.0, bd.Total)
	}
}

func TestSuggestPickNoLegalMoves(t *testing.T) {
	s := draft.New("m", "mode", roster, draft.WithPickNumber(7), draft.WithTurn(draft.NoTeam))
	got := SuggestPick(s, fakeStats{}, DefaultWeights())
	assert.False(t, got.OK)
	assert.Empty(t, got.Pick)
	assert.Empty(t, got.Scores)
}

func TestSuggestBans(t *testing.T) {
	st := fakeStats{winRates: map[string]float64{"Spike": 0.7, "Leon": 0.65, "Crow": 0.65, "Poco": 0.2}}
	s := draft.New("m", "mode", roster, draft.WithBans("Leon"))

	assert.Equal(t, []string{"Spike", "Crow", "Poco"}, SuggestBans(s, st, 3))
	assert.Equal(t, []string{"Spike"}, SuggestBans(s, st, 1))
	assert.Len(t, SuggestBans(s, st, 0), DefaultBanCount)
	assert.Len(t, SuggestBans(s, st, 50), len(s.LegalMoves()))
}

func TestPredictWinProbabilityIncomplete(t *testing.T) {
	p, err := PredictWinProbability([]string{"Bull", "Colt"}, []string{"Crow", "Leon", "Spike"}, "m", "mode", fakeStats{}, DefaultWeights())
	assert.True(t, errors.Is(err, ErrIncompleteRoster))
	assert.Equal(t, 0.5, p)
}

func TestPredictWinProbabilityNeutral(t *testing.T) {
	p, err := PredictWinProbability([]string{"Bull", "Colt", "Poco"}, []string{"Crow", "Leon", "Spike"}, "m", "mode", fakeStats{noBucket: true}, DefaultWeights())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)
}

func TestPredictWinProbabilityAntisymmetric(t *testing.T) {
	matches := []stats.Match{
		{Map: "m", Mode: "mode", Winners: players(12, "Bull", "Colt", "Poco"), Losers: players(18, "Crow", "Leon", "Spike")},
		{Map: "m", Mode: "mode", Winners: players(20, "Crow", "Nita", "Shelly"), Losers: players(11, "Bull", "Jessie", "Poco")},
		{Map: "m", Mode: "mode", Winners: players(15, "Spike", "Leon", "Jessie"), Losers: players(15, "Colt", "Nita", "Shelly")},
		{Map: "m", Mode: "mode", Winners: players(22, "Bull", "Colt", "Poco"), Losers: players(22, "Spike", "Leon", "Jessie")},
	}
	agg := stats.Build(matches, stats.DefaultParams())

	rosters := [][]string{
		{"Bull", "Colt", "Poco"},
		{"Crow", "Leon", "Spike"},
		{"Nita", "Shelly", "Jessie"},
		{"Bull", "Leon", "Shelly"},
	}
	weights := []Weights{DefaultWeights(), {WinRate: 1}, {Counter: 2, PickRate: 3}, {Synergy: 5}}
	for _, w := range weights {
		for i := range rosters {
			for j := range rosters {
				if i == j {
					continue
				}
				ab, err := PredictWinProbability(rosters[i], rosters[j], "m", "mode", agg, w)
				require.NoError(t, err)
				ba, err := PredictWinProbability(rosters[j], rosters[i], "m", "mode", agg, w)
				require.NoError(t, err)
				assert.InDelta(t, 1.0, ab+ba, 1e-12, "%v vs %v", rosters[i], rosters[j])
				assert.GreaterOrEqual(t, ab, 0.0)
				assert.LessOrEqual(t, ab, 1.0)
			}
		}
	}

	strong, err := PredictWinProbability(rosters[0], rosters[1], "m", "mode", agg, DefaultWeights())
	require.NoError(t, err)
	assert.Greater(t, strong, 0.5)
}

func players(rank int, names ...string) []stats.Player {
	out := make([]stats.Player, len(names))
	for i, n := range names {
		out[i] = stats.Player{Brawler: n, Rank: rank}
	}
	return out
}
