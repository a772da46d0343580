package stats

import (
	"sort"
)

// Table is the flat form of an Aggregator used for caching. Exporting and
// re-importing it reproduces every counter exactly.
type Table struct {
	Buckets  []Bucket
	Brawlers []string
}

// Bucket holds every counter of one (map, mode).
type Bucket struct {
	Map                string
	Mode               string
	TotalWeightedPlays float64
	Brawlers           map[string]Counter
	Synergy            map[Pair]Counter
	Counters           map[Pair]Counter
}

// Export copies the aggregator's counters into a Table. Buckets are ordered
// by map, then mode.
func (a *Aggregator) Export() Table {
	keys := make([]bucketKey, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].mapName != keys[j].mapName {
			return keys[i].mapName < keys[j].mapName
		}
		return keys[i].mode < keys[j].mode
	})

	t := Table{
		Buckets:  make([]Bucket, 0, len(keys)),
		Brawlers: a.Brawlers(),
	}
	for _, k := range keys {
		b := a.buckets[k]
		t.Buckets = append(t.Buckets, Bucket{
			Map:                k.mapName,
			Mode:               k.mode,
			TotalWeightedPlays: b.total,
			Brawlers:           flatten(b.brawlers),
			Synergy:            flatten(b.synergy),
			Counters:           flatten(b.counters),
		})
	}
	return t
}

// FromTable rebuilds an Aggregator from an exported Table. Brawlers listed in
// the table are kept in the vocabulary even if no bucket mentions them.
func FromTable(t Table, p Params) *Aggregator {
	a := &Aggregator{
		params:  p,
		buckets: make(map[bucketKey]*bucket, len(t.Buckets)),
	}
	seen := make(map[string]struct{}, len(t.Brawlers))
	for _, name := range t.Brawlers {
		if name != "" {
			seen[name] = struct{}{}
		}
	}

	for _, tb := range t.Buckets {
		key := bucketKey{mapName: tb.Map, mode: tb.Mode}
		b, ok := a.buckets[key]
		if !ok {
			b = newBucket()
			a.buckets[key] = b
		}
		b.total += tb.TotalWeightedPlays
		for name, c := range tb.Brawlers {
			add(b.brawlers, name, c.Wins, c.Plays)
			seen[name] = struct{}{}
		}
		for pair, c := range tb.Synergy {
			add(b.synergy, pair, c.Wins, c.Plays)
		}
		for pair, c := range tb.Counters {
			add(b.counters, pair, c.Wins, c.Plays)
		}
	}

	a.brawlers = sortedKeys(seen)
	return a
}

func flatten[K comparable](m map[K]*Counter) map[K]Counter {
	out := make(map[K]Counter, len(m))
	for k, c := range m {
		out[k] = *c
	}
	return out
}
