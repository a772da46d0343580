package store

import (
	"fmt"

	"github.com/brensch/brawldraft/stats"
)

// AppendMatches writes the matches whose keys are not yet stored in dir as a
// new batch. keys[i] belongs to matches[i]. The key column of the finalized
// batches is the only dedupe record, so a batch is either fully visible or
// absent. It returns the number of matches added.
func AppendMatches(dir string, keys []string, matches []stats.Match) (int, error) {
	if len(keys) != len(matches) {
		return 0, fmt.Errorf("append matches: %d keys for %d matches", len(keys), len(matches))
	}

	seen, err := ReadKeys(dir)
	if err != nil {
		return 0, err
	}

	var rows []MatchRow
	for i, m := range matches {
		k := keys[i]
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, NewMatchRow(k, m))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	w, err := NewMatchWriter(dir)
	if err != nil {
		return 0, err
	}
	if err := w.Write(rows); err != nil {
		_, _ = w.Finalize()
		return 0, err
	}
	if _, err := w.Finalize(); err != nil {
		return 0, err
	}
	return len(rows), nil
}
