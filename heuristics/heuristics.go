// Package heuristics scores draft choices from aggregated statistics.
//
// The scorer is stateless: every function takes the draft, the statistics
// and the weights it should use, so it is safe to call from search workers.
package heuristics

import (
	"errors"
	"math"
	"sort"

	"github.com/brensch/brawldraft/draft"
)

// LogisticSteepness maps a score difference to a win probability.
const LogisticSteepness = 2.0

var ErrIncompleteRoster = errors.New("win probability needs two complete rosters")

// Stats is the query surface the scorer reads from.
type Stats interface {
	WinRate(brawler, mapName, mode string) (float64, bool)
	PickRate(brawler, mapName, mode string) (float64, bool)
	Synergy(b1, b2, mapName, mode string) float64
	Counter(us, them, mapName, mode string) float64
}

// Weights combines the four signals. For pick suggestions they weight win
// rate, synergy, counter and pick rate. For win probability the same slots
// weight win-rate difference, synergy difference, average counter advantage
// and peak counter advantage.
type Weights struct {
	WinRate  float64 `json:"win_rate" mapstructure:"win_rate"`
	Synergy  float64 `json:"synergy" mapstructure:"synergy"`
	Counter  float64 `json:"counter" mapstructure:"counter"`
	PickRate float64 `json:"pick_rate" mapstructure:"pick_rate"`
}

func DefaultWeights() Weights {
	return Weights{WinRate: 0.5, Synergy: 0.3, Counter: 0.4, PickRate: 0.2}
}

// Breakdown is the per-brawler detail behind a pick suggestion.
type Breakdown struct {
	Total        float64 `json:"total"`
	WinRate      float64 `json:"win_rate"`
	AvgSynergy   float64 `json:"avg_synergy"`
	AvgCounter   float64 `json:"avg_counter"`
	PickRate     float64 `json:"pick_rate"`
	WinRateTerm  float64 `json:"win_rate_term"`
	SynergyTerm  float64 `json:"synergy_term"`
	CounterTerm  float64 `json:"counter_term"`
	PickRateTerm float64 `json:"pick_rate_term"`
}

// Suggestion is the result of SuggestPick. OK is false when there is nothing
// to pick.
type Suggestion struct {
	Pick   string               `json:"pick"`
	OK     bool                 `json:"ok"`
	Scores map[string]Breakdown `json:"scores"`
}

// Scored pairs a brawler with its breakdown.
type Scored struct {
	Brawler string `json:"brawler"`
	Breakdown
}

// SuggestPick scores every legal move for the acting team and returns the
// best one along with every breakdown.
func SuggestPick(s draft.State, st Stats, w Weights) Suggestion {
	moves := s.LegalMoves()
	if len(moves) == 0 {
		return Suggestion{}
	}

	mapName, mode := s.Map(), s.Mode()
	acting := s.Turn()
	teammates := s.Picks(acting)
	opponents := s.Picks(draft.Opponent(acting))

	out := Suggestion{Scores: make(map[string]Breakdown, len(moves))}
	best := math.Inf(-1)
	for _, b := range moves {
		bd := score(b, teammates, opponents, mapName, mode, st, w)
		out.Scores[b] = bd
		// moves are sorted, so strict > keeps the first brawler on ties.
		if bd.Total > best {
			best = bd.Total
			out.Pick = b
			out.OK = true
		}
	}
	return out
}

func score(b string, teammates, opponents []string, mapName, mode string, st Stats, w Weights) Breakdown {
	var bd Breakdown

	wr, ok := st.WinRate(b, mapName, mode)
	if !ok {
		wr = 0.5
	}
	bd.WinRate = wr
	bd.WinRateTerm = w.WinRate * (wr - 0.5)

	if len(teammates) > 0 {
		sum := 0.0
		for _, mate := range teammates {
			sum += st.Synergy(b, mate, mapName, mode)
		}
		bd.AvgSynergy = sum / float64(len(teammates))
		bd.SynergyTerm = w.Synergy * (bd.AvgSynergy - 0.5)
	} else {
		bd.AvgSynergy = 0.5
	}

	if len(opponents) > 0 {
		sum := 0.0
		for _, opp := range opponents {
			sum += st.Counter(b, opp, mapName, mode)
		}
		bd.AvgCounter = sum / float64(len(opponents))
		bd.CounterTerm = w.Counter * (bd.AvgCounter - 0.5)
	} else {
		bd.AvgCounter = 0.5
	}

	pr, ok := st.PickRate(b, mapName, mode)
	if !ok {
		pr = 0
	}
	bd.PickRate = pr
	bd.PickRateTerm = w.PickRate * pr

	bd.Total = bd.WinRateTerm + bd.SynergyTerm + bd.CounterTerm + bd.PickRateTerm
	return bd
}

// Sorted returns the breakdowns ordered by total score, best first. Ties are
// broken by name.
func (s Suggestion) Sorted() []Scored {
	out := make([]Scored, 0, len(s.Scores))
	for b, bd := range s.Scores {
		out = append(out, Scored{Brawler: b, Breakdown: bd})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Brawler < out[j].Brawler
	})
	return out
}

// DefaultBanCount is used when SuggestBans is asked for n <= 0.
const DefaultBanCount = 3

// SuggestBans ranks the legal brawlers by raw win rate and returns the top n.
func SuggestBans(s draft.State, st Stats, n int) []string {
	if n <= 0 {
		n = DefaultBanCount
	}
	moves := s.LegalMoves()
	rates := make(map[string]float64, len(moves))
	for _, b := range moves {
		wr, ok := st.WinRate(b, s.Map(), s.Mode())
		if !ok {
			wr = 0
		}
		rates[b] = wr
	}
	sort.SliceStable(moves, func(i, j int) bool {
		return rates[moves[i]] > rates[moves[j]]
	})
	if len(moves) > n {
		moves = moves[:n]
	}
	return moves
}

// PredictWinProbability estimates team1's chance of beating team2. Both
// rosters must hold exactly three brawlers; otherwise it returns 0.5 and
// ErrIncompleteRoster. Swapping the rosters yields the complement.
func PredictWinProbability(team1, team2 []string, mapName, mode string, st Stats, w Weights) (float64, error) {
	if len(team1) != draft.TeamSize || len(team2) != draft.TeamSize {
		return 0.5, ErrIncompleteRoster
	}

	wrDiff := avgWinRate(team1, mapName, mode, st) - avgWinRate(team2, mapName, mode, st)
	synDiff := avgSynergyDev(team1, mapName, mode, st) - avgSynergyDev(team2, mapName, mode, st)

	var sum12, sum21 float64
	peak12, peak21 := -1.0, -1.0
	for _, b1 := range team1 {
		for _, b2 := range team2 {
			d12 := st.Counter(b1, b2, mapName, mode) - 0.5
			d21 := st.Counter(b2, b1, mapName, mode) - 0.5
			sum12 += d12
			sum21 += d21
			peak12 = math.Max(peak12, d12)
			peak21 = math.Max(peak21, d21)
		}
	}
	n := float64(len(team1) * len(team2))
	counterAvg := sum12/n - sum21/n
	counterPeak := peak12 - peak21

	diff := w.WinRate*wrDiff + w.Synergy*synDiff + w.Counter*counterAvg + w.PickRate*counterPeak
	p := 1 / (1 + math.Exp(-LogisticSteepness*diff))
	return math.Max(0, math.Min(1, p)), nil
}

func avgWinRate(team []string, mapName, mode string, st Stats) float64 {
	sum := 0.0
	for _, b := range team {
		wr, ok := st.WinRate(b, mapName, mode)
		if !ok {
			wr = 0.5
		}
		sum += wr
	}
	return sum / float64(len(team))
}

func avgSynergyDev(team []string, mapName, mode string, st Stats) float64 {
	sum, pairs := 0.0, 0
	for i := 0; i < len(team); i++ {
		for j := i + 1; j < len(team); j++ {
			sum += st.Synergy(team[i], team[j], mapName, mode) - 0.5
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
