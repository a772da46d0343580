package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/brawldraft/stats"
)

const cacheSchema = "stats_cache_v1"

var (
	ErrSchema          = errors.New("unexpected parquet schema")
	ErrCacheIncomplete = errors.New("stats cache has no buckets or no roster")
)

// Row kinds in the stats cache.
const (
	KindTotal   = "total"
	KindBrawler = "brawler"
	KindSynergy = "synergy"
	KindCounter = "counter"
	KindRoster  = "roster"
)

// StatsRow is one counter of the flattened statistics table. First and
// Second name the brawler or pair; total rows carry the bucket's weighted
// plays in Plays and roster rows only carry First.
type StatsRow struct {
	Kind   string  `parquet:"kind,dict"`
	Map    string  `parquet:"map,dict"`
	Mode   string  `parquet:"mode,dict"`
	First  string  `parquet:"first,dict"`
	Second string  `parquet:"second,dict"`
	Wins   float64 `parquet:"wins"`
	Plays  float64 `parquet:"plays"`
}

// Cache is a loaded stats cache.
type Cache struct {
	Table     stats.Table
	CreatedAt time.Time
}

// TableRows flattens t. Rows are ordered so the same table always produces
// the same file.
func TableRows(t stats.Table) []StatsRow {
	var rows []StatsRow
	for _, name := range t.Brawlers {
		rows = append(rows, StatsRow{Kind: KindRoster, First: name})
	}
	for _, b := range t.Buckets {
		rows = append(rows, StatsRow{Kind: KindTotal, Map: b.Map, Mode: b.Mode, Plays: b.TotalWeightedPlays})

		names := make([]string, 0, len(b.Brawlers))
		for name := range b.Brawlers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := b.Brawlers[name]
			rows = append(rows, StatsRow{Kind: KindBrawler, Map: b.Map, Mode: b.Mode, First: name, Wins: c.Wins, Plays: c.Plays})
		}
		rows = appendPairs(rows, KindSynergy, b.Map, b.Mode, b.Synergy)
		rows = appendPairs(rows, KindCounter, b.Map, b.Mode, b.Counters)
	}
	return rows
}

func appendPairs(rows []StatsRow, kind, mapName, mode string, m map[stats.Pair]stats.Counter) []StatsRow {
	pairs := make([]stats.Pair, 0, len(m))
	for p := range m {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	for _, p := range pairs {
		c := m[p]
		rows = append(rows, StatsRow{Kind: kind, Map: mapName, Mode: mode, First: p.A, Second: p.B, Wins: c.Wins, Plays: c.Plays})
	}
	return rows
}

// RowsTable rebuilds a table from flattened rows.
func RowsTable(rows []StatsRow) (stats.Table, error) {
	var t stats.Table
	index := make(map[[2]string]int)
	bucket := func(mapName, mode string) *stats.Bucket {
		k := [2]string{mapName, mode}
		i, ok := index[k]
		if !ok {
			i = len(t.Buckets)
			index[k] = i
			t.Buckets = append(t.Buckets, stats.Bucket{
				Map:      mapName,
				Mode:     mode,
				Brawlers: make(map[string]stats.Counter),
				Synergy:  make(map[stats.Pair]stats.Counter),
				Counters: make(map[stats.Pair]stats.Counter),
			})
		}
		return &t.Buckets[i]
	}

	for _, r := range rows {
		c := stats.Counter{Wins: r.Wins, Plays: r.Plays}
		switch r.Kind {
		case KindRoster:
			t.Brawlers = append(t.Brawlers, r.First)
		case KindTotal:
			bucket(r.Map, r.Mode).TotalWeightedPlays = r.Plays
		case KindBrawler:
			bucket(r.Map, r.Mode).Brawlers[r.First] = c
		case KindSynergy:
			bucket(r.Map, r.Mode).Synergy[stats.Pair{A: r.First, B: r.Second}] = c
		case KindCounter:
			bucket(r.Map, r.Mode).Counters[stats.Pair{A: r.First, B: r.Second}] = c
		default:
			return stats.Table{}, fmt.Errorf("unknown stats row kind %q", r.Kind)
		}
	}
	return t, nil
}

// WriteCache writes t to path atomically.
func WriteCache(path string, t stats.Table, createdAt time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, TableRows(t),
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", cacheSchema),
		parquet.KeyValueMetadata("created_at", createdAt.UTC().Format(time.RFC3339Nano)),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadCache loads a cache written by WriteCache. A cache without buckets or
// without a roster is rejected with ErrCacheIncomplete.
func ReadCache(path string) (Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return Cache{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Cache{}, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return Cache{}, fmt.Errorf("open parquet %s: %w", path, err)
	}
	if schema, _ := pf.Lookup("schema"); schema != cacheSchema {
		return Cache{}, fmt.Errorf("%s: schema %q: %w", path, schema, ErrSchema)
	}

	var c Cache
	if v, ok := pf.Lookup("created_at"); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			c.CreatedAt = ts
		}
	}

	reader := parquet.NewGenericReader[StatsRow](pf)
	defer reader.Close()

	rows := make([]StatsRow, 0, reader.NumRows())
	buf := make([]StatsRow, 1024)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Cache{}, fmt.Errorf("read parquet %s: %w", path, err)
		}
	}

	c.Table, err = RowsTable(rows)
	if err != nil {
		return Cache{}, err
	}
	if len(c.Table.Buckets) == 0 || len(c.Table.Brawlers) == 0 {
		return Cache{}, ErrCacheIncomplete
	}
	return c, nil
}
