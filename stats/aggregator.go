package stats

import (
	"sort"
)

// Player is one participant of a processed match.
type Player struct {
	Brawler string
	Rank    int
}

// Match is a processed match record: the map/mode it was played on and the
// two rosters split by outcome.
type Match struct {
	Map     string
	Mode    string
	Winners []Player
	Losers  []Player
}

// Counter holds weighted wins and plays. Wins never exceed plays.
type Counter struct {
	Wins  float64
	Plays float64
}

// Pair keys synergy (unordered, A <= B) and counter (ordered, A vs B) buckets.
type Pair struct {
	A string
	B string
}

// SynergyPair returns the canonical key for an unordered pair.
func SynergyPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

type bucketKey struct {
	mapName string
	mode    string
}

type bucket struct {
	total    float64
	brawlers map[string]*Counter
	synergy  map[Pair]*Counter
	counters map[Pair]*Counter
}

func newBucket() *bucket {
	return &bucket{
		brawlers: make(map[string]*Counter),
		synergy:  make(map[Pair]*Counter),
		counters: make(map[Pair]*Counter),
	}
}

func add[K comparable](m map[K]*Counter, k K, wins, plays float64) {
	c, ok := m[k]
	if !ok {
		c = &Counter{}
		m[k] = c
	}
	c.Wins += wins
	c.Plays += plays
}

// Aggregator answers win-rate, pick-rate, synergy and counter queries.
type Aggregator struct {
	params   Params
	buckets  map[bucketKey]*bucket
	brawlers []string
}

// Build aggregates matches in order. The same input always yields the same
// counters.
func Build(matches []Match, p Params) *Aggregator {
	a := &Aggregator{
		params:  p,
		buckets: make(map[bucketKey]*bucket),
	}
	seen := make(map[string]struct{})

	for _, m := range matches {
		key := bucketKey{mapName: m.Map, mode: m.Mode}
		b, ok := a.buckets[key]
		if !ok {
			b = newBucket()
			a.buckets[key] = b
		}

		winW := make([]float64, len(m.Winners))
		for i, pl := range m.Winners {
			winW[i] = p.RankWeight(pl.Rank)
			add(b.brawlers, pl.Brawler, winW[i], winW[i])
			b.total += winW[i]
			seen[pl.Brawler] = struct{}{}
		}
		loseW := make([]float64, len(m.Losers))
		for i, pl := range m.Losers {
			loseW[i] = p.RankWeight(pl.Rank)
			add(b.brawlers, pl.Brawler, 0, loseW[i])
			b.total += loseW[i]
			seen[pl.Brawler] = struct{}{}
		}

		addSynergy(b, m.Winners, winW, true)
		addSynergy(b, m.Losers, loseW, false)

		for i, w := range m.Winners {
			for j, l := range m.Losers {
				add(b.counters, Pair{A: w.Brawler, B: l.Brawler}, winW[i], winW[i])
				add(b.counters, Pair{A: l.Brawler, B: w.Brawler}, 0, loseW[j])
			}
		}
	}

	a.brawlers = sortedKeys(seen)
	return a
}

func addSynergy(b *bucket, team []Player, weights []float64, won bool) {
	for i := 0; i < len(team); i++ {
		for j := i + 1; j < len(team); j++ {
			w := (weights[i] + weights[j]) / 2
			wins := 0.0
			if won {
				wins = w
			}
			add(b.synergy, SynergyPair(team[i].Brawler, team[j].Brawler), wins, w)
		}
	}
}

// Params returns the parameters the aggregator queries with.
func (a *Aggregator) Params() Params { return a.params }

// HasBucket reports whether any match was seen on (map, mode).
func (a *Aggregator) HasBucket(mapName, mode string) bool {
	_, ok := a.buckets[bucketKey{mapName: mapName, mode: mode}]
	return ok
}

// Brawlers returns every brawler seen in any bucket, sorted.
func (a *Aggregator) Brawlers() []string {
	out := make([]string, len(a.brawlers))
	copy(out, a.brawlers)
	return out
}

// MapModes returns mode -> sorted maps for every known bucket.
func (a *Aggregator) MapModes() map[string][]string {
	out := make(map[string][]string)
	for k := range a.buckets {
		out[k.mode] = append(out[k.mode], k.mapName)
	}
	for mode := range out {
		sort.Strings(out[mode])
	}
	return out
}

// WinRate returns the smoothed, confidence-adjusted win rate of b. ok is false
// only when the (map, mode) bucket is unknown.
func (a *Aggregator) WinRate(b, mapName, mode string) (float64, bool) {
	bk, ok := a.buckets[bucketKey{mapName: mapName, mode: mode}]
	if !ok {
		return 0, false
	}
	target := clamp01(a.params.LowConfidenceTarget)

	c, ok := bk.brawlers[b]
	if !ok {
		return target, true
	}
	k := a.params.SmoothingK
	if c.Plays+k <= 0 {
		return target, true
	}
	smoothed := (c.Wins + k*0.5) / (c.Plays + k)

	confidence := 1.0
	if thr := a.params.LowPickRateThreshold; thr > 0 {
		pr, _ := a.PickRate(b, mapName, mode)
		confidence = clamp01(pr / thr)
	}
	return clamp01(smoothed*confidence + target*(1-confidence)), true
}

// PickRate returns b's share of the bucket's weighted plays. ok is false when
// the bucket is unknown or has no plays.
func (a *Aggregator) PickRate(b, mapName, mode string) (float64, bool) {
	bk, ok := a.buckets[bucketKey{mapName: mapName, mode: mode}]
	if !ok || bk.total <= 0 {
		return 0, false
	}
	c, ok := bk.brawlers[b]
	if !ok {
		return 0, true
	}
	return c.Plays / bk.total, true
}

// Synergy returns the smoothed rate at which a and b win together, or 0.5
// without data.
func (a *Aggregator) Synergy(b1, b2, mapName, mode string) float64 {
	bk, ok := a.buckets[bucketKey{mapName: mapName, mode: mode}]
	if !ok {
		return 0.5
	}
	return a.smoothedPair(bk.synergy[SynergyPair(b1, b2)])
}

// Counter returns the smoothed rate at which us beats them, or 0.5 without
// data.
func (a *Aggregator) Counter(us, them, mapName, mode string) float64 {
	bk, ok := a.buckets[bucketKey{mapName: mapName, mode: mode}]
	if !ok {
		return 0.5
	}
	return a.smoothedPair(bk.counters[Pair{A: us, B: them}])
}

func (a *Aggregator) smoothedPair(c *Counter) float64 {
	if c == nil {
		return 0.5
	}
	k := a.params.SmoothingK
	if c.Plays+k <= 0 {
		return 0.5
	}
	return clamp01((c.Wins + k*0.5) / (c.Plays + k))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
