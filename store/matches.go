// Package store persists processed matches and the statistics cache as
// parquet files.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/brawldraft/stats"
)

const matchSchema = "processed_match_v1"

// MatchRow is one processed match. Brawler and rank columns are parallel:
// WinnerRanks[i] belongs to WinnerBrawlers[i].
type MatchRow struct {
	Key            string   `parquet:"key,dict"`
	Map            string   `parquet:"map,dict"`
	Mode           string   `parquet:"mode,dict"`
	WinnerBrawlers []string `parquet:"winner_brawlers"`
	WinnerRanks    []int32  `parquet:"winner_ranks"`
	LoserBrawlers  []string `parquet:"loser_brawlers"`
	LoserRanks     []int32  `parquet:"loser_ranks"`
}

func NewMatchRow(key string, m stats.Match) MatchRow {
	row := MatchRow{Key: key, Map: m.Map, Mode: m.Mode}
	for _, p := range m.Winners {
		row.WinnerBrawlers = append(row.WinnerBrawlers, p.Brawler)
		row.WinnerRanks = append(row.WinnerRanks, int32(p.Rank))
	}
	for _, p := range m.Losers {
		row.LoserBrawlers = append(row.LoserBrawlers, p.Brawler)
		row.LoserRanks = append(row.LoserRanks, int32(p.Rank))
	}
	return row
}

func (r MatchRow) Match() (stats.Match, error) {
	if len(r.WinnerBrawlers) != len(r.WinnerRanks) || len(r.LoserBrawlers) != len(r.LoserRanks) {
		return stats.Match{}, fmt.Errorf("match %s: brawler and rank columns differ in length", r.Key)
	}
	m := stats.Match{Map: r.Map, Mode: r.Mode}
	for i, b := range r.WinnerBrawlers {
		m.Winners = append(m.Winners, stats.Player{Brawler: b, Rank: int(r.WinnerRanks[i])})
	}
	for i, b := range r.LoserBrawlers {
		m.Losers = append(m.Losers, stats.Player{Brawler: b, Rank: int(r.LoserRanks[i])})
	}
	return m, nil
}

// MatchWriter streams match rows into a batch file under outDir. Rows go to
// outDir/tmp first and the file is renamed into place by Finalize.
type MatchWriter struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[MatchRow]
	rows   int
}

func NewMatchWriter(outDir string) (*MatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	w := parquet.NewGenericWriter[MatchRow](f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", matchSchema)

	return &MatchWriter{
		tmpPath: tmpPath,
		outPath: filepath.Join(outDir, name),
		file:    f,
		writer:  w,
	}, nil
}

func (w *MatchWriter) Rows() int { return w.rows }

func (w *MatchWriter) Write(rows []MatchRow) error {
	if w.writer == nil {
		return fmt.Errorf("match writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := w.writer.Write(rows); err != nil {
		return fmt.Errorf("write matches: %w", err)
	}
	w.rows += len(rows)
	return nil
}

// Finalize closes the batch and moves it into place. An empty batch is
// discarded and "" is returned.
func (w *MatchWriter) Finalize() (string, error) {
	if w.writer == nil {
		return "", nil
	}
	closeErr := w.writer.Close()
	w.writer = nil
	_ = w.file.Sync()
	fileErr := w.file.Close()
	if closeErr != nil {
		return "", fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", fmt.Errorf("close parquet file: %w", fileErr)
	}

	if w.rows == 0 {
		_ = os.Remove(w.tmpPath)
		return "", nil
	}
	if err := os.Rename(w.tmpPath, w.outPath); err != nil {
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return w.outPath, nil
}

// ReadMatchFile reads every row of one batch file.
func ReadMatchFile(path string) ([]MatchRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	if schema, ok := pf.Lookup("schema"); ok && schema != matchSchema {
		return nil, fmt.Errorf("%s: schema %q: %w", path, schema, ErrSchema)
	}

	reader := parquet.NewGenericReader[MatchRow](pf)
	defer reader.Close()

	out := make([]MatchRow, 0, reader.NumRows())
	buf := make([]MatchRow, 512)
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
	}
	return out, nil
}

// batchNames lists the finalized batch files in dir, oldest first. A missing
// directory holds no batches.
func batchNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadMatches reads every batch in dir, oldest first.
func ReadMatches(dir string) ([]stats.Match, error) {
	names, err := batchNames(dir)
	if err != nil {
		return nil, err
	}

	var out []stats.Match
	for _, name := range names {
		rows, err := ReadMatchFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			m, err := r.Match()
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// ReadKeys returns the keys of every match stored in dir.
func ReadKeys(dir string) (map[string]struct{}, error) {
	names, err := batchNames(dir)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	for _, name := range names {
		rows, err := ReadMatchFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			keys[r.Key] = struct{}{}
		}
	}
	return keys, nil
}
