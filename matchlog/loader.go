// Package matchlog reads battle logs (one JSON object per line) and turns
// them into processed match records for the statistics build.
package matchlog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/brensch/brawldraft/draft"
	"github.com/brensch/brawldraft/stats"
)

var ErrNoUsableData = errors.New("battle log contained no usable matches")

const maxLineBytes = 4 << 20

type entry struct {
	QueriedPlayerTag *string `json:"queried_player_tag"`
	Event            *event  `json:"event"`
	Battle           *battle `json:"battle"`
}

type event struct {
	Mode string `json:"mode"`
	Map  string `json:"map"`
}

type battle struct {
	Result string         `json:"result"`
	Teams  [][]*playerRaw `json:"teams"`
}

type playerRaw struct {
	Tag     string      `json:"tag"`
	Brawler *brawlerRaw `json:"brawler"`
}

type brawlerRaw struct {
	Name string   `json:"name"`
	Rank *float64 `json:"rank"`
}

// Skipped counts the lines that did not produce a match.
type Skipped struct {
	InvalidJSON   int `json:"invalid_json"`
	Format        int `json:"format"`
	Rank          int `json:"rank"`
	MissingPlayer int `json:"missing_player"`
}

func (s Skipped) Total() int {
	return s.InvalidJSON + s.Format + s.Rank + s.MissingPlayer
}

// Result is everything learned from one battle log. Keys[i] identifies the
// log line Matches[i] came from.
type Result struct {
	Matches  []stats.Match
	Keys     []string
	Brawlers []string
	MapModes map[string][]string
	Skipped  Skipped
}

// LoadFile opens path and calls Load.
func LoadFile(path string, log *zap.SugaredLogger) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open battle log: %w", err)
	}
	defer f.Close()
	return Load(f, log)
}

// Load parses a battle log. Malformed or unusable lines are counted and
// skipped; only read errors and an empty outcome are returned as errors.
func Load(r io.Reader, log *zap.SugaredLogger) (Result, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	res := Result{MapModes: make(map[string][]string)}
	brawlers := make(map[string]struct{})
	mapModes := make(map[string]map[string]struct{})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			log.Debugw("skipping invalid json", "line", lineNum, "error", err)
			res.Skipped.InvalidJSON++
			continue
		}

		m, reason := convert(e)
		switch reason {
		case "":
		case skipRank:
			res.Skipped.Rank++
			continue
		case skipMissingPlayer:
			res.Skipped.MissingPlayer++
			continue
		default:
			log.Debugw("skipping battle", "line", lineNum, "reason", reason)
			res.Skipped.Format++
			continue
		}

		res.Matches = append(res.Matches, m)
		res.Keys = append(res.Keys, lineKey(line))
		for _, p := range append(append([]stats.Player{}, m.Winners...), m.Losers...) {
			brawlers[p.Brawler] = struct{}{}
		}
		if mapModes[m.Mode] == nil {
			mapModes[m.Mode] = make(map[string]struct{})
		}
		mapModes[m.Mode][m.Map] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read battle log: %w", err)
	}

	for name := range brawlers {
		res.Brawlers = append(res.Brawlers, name)
	}
	sort.Strings(res.Brawlers)
	for mode, maps := range mapModes {
		for m := range maps {
			res.MapModes[mode] = append(res.MapModes[mode], m)
		}
		sort.Strings(res.MapModes[mode])
	}

	if res.Skipped.Total() > 0 {
		log.Warnw("skipped battles",
			"invalid_json", res.Skipped.InvalidJSON,
			"format", res.Skipped.Format,
			"rank", res.Skipped.Rank,
			"missing_player", res.Skipped.MissingPlayer,
		)
	}
	log.Infow("battle log loaded",
		"matches", len(res.Matches),
		"brawlers", len(res.Brawlers),
		"modes", len(res.MapModes),
	)

	if len(res.Brawlers) == 0 || len(res.MapModes) == 0 {
		return res, ErrNoUsableData
	}
	return res, nil
}

const (
	skipRank          = "rank"
	skipMissingPlayer = "missing_player"
)

// convert resolves the winning team from the queried player's side. It
// returns a non-empty reason when the entry must be skipped.
func convert(e entry) (stats.Match, string) {
	if e.QueriedPlayerTag == nil || e.Event == nil || e.Battle == nil {
		return stats.Match{}, "missing fields"
	}
	if e.Event.Mode == "" || e.Event.Map == "" {
		return stats.Match{}, "missing map or mode"
	}
	if e.Battle.Result == "" || len(e.Battle.Teams) != 2 {
		return stats.Match{}, "missing result or teams"
	}

	var teams [2][]stats.Player
	for i, raw := range e.Battle.Teams {
		players, ok := parseTeam(raw)
		if !ok {
			return stats.Match{}, skipRank
		}
		teams[i] = players
	}

	tag := *e.QueriedPlayerTag
	inT1 := containsTag(e.Battle.Teams[0], tag)
	inT2 := containsTag(e.Battle.Teams[1], tag)
	if !inT1 && !inT2 {
		return stats.Match{}, skipMissingPlayer
	}

	m := stats.Match{Map: e.Event.Map, Mode: e.Event.Mode}
	switch {
	case (inT1 && e.Battle.Result == "victory") || (inT2 && e.Battle.Result == "defeat"):
		m.Winners, m.Losers = teams[0], teams[1]
	case (inT1 && e.Battle.Result == "defeat") || (inT2 && e.Battle.Result == "victory"):
		m.Winners, m.Losers = teams[1], teams[0]
	default:
		return stats.Match{}, "draw or unknown result " + e.Battle.Result
	}
	return m, ""
}

func parseTeam(raw []*playerRaw) ([]stats.Player, bool) {
	if len(raw) != draft.TeamSize {
		return nil, false
	}
	out := make([]stats.Player, 0, len(raw))
	for _, p := range raw {
		if p == nil || p.Brawler == nil || p.Brawler.Name == "" || p.Brawler.Rank == nil {
			return nil, false
		}
		rank := int(*p.Brawler.Rank)
		if rank <= 0 {
			return nil, false
		}
		out = append(out, stats.Player{Brawler: p.Brawler.Name, Rank: rank})
	}
	return out, true
}

// lineKey identifies a battle by the content of its log line.
func lineKey(line string) string {
	sum := sha256.Sum256([]byte(line))
	return hex.EncodeToString(sum[:16])
}

func containsTag(team []*playerRaw, tag string) bool {
	for _, p := range team {
		if p != nil && p.Tag == tag {
			return true
		}
	}
	return false
}
