// Package draft defines the immutable draft state used by the advisor.
//
// A State is a value: every transition returns a new State and leaves the
// receiver untouched, so search tree nodes can share snapshots across
// goroutines without synchronising on them.
package draft

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Team identifies a side of the draft.
type Team string

const (
	Team1  Team = "team1"
	Team2  Team = "team2"
	NoTeam Team = ""
)

const (
	MaxBans    = 6
	TeamSize   = 3
	TotalPicks = 2 * TeamSize
)

var (
	ErrDraftComplete = errors.New("draft is complete")
	ErrUnavailable   = errors.New("brawler not available")
	ErrTeamFull      = errors.New("team already full")
	ErrBanLimit      = errors.New("ban limit reached")
	ErrInvalidTurn   = errors.New("no team to act")
	ErrNothingToUndo = errors.New("no pick to undo")
	ErrNotBanned     = errors.New("brawler not banned")
)

// nextTurn is keyed by the pick about to be made and gives the team that
// acts after it. Pick 6 completes the draft.
var nextTurn = map[int]Team{
	1: Team2,
	2: Team2,
	3: Team1,
	4: Team1,
	5: Team2,
	6: NoTeam,
}

// TurnAt returns the team that makes the given pick, or NoTeam outside
// picks 1-6.
func TurnAt(pick int) Team {
	if pick == 1 {
		return Team1
	}
	if t, ok := nextTurn[pick-1]; ok {
		return t
	}
	return NoTeam
}

// State is a snapshot of a draft. Build one with New.
type State struct {
	mapName    string
	mode       string
	brawlers   []string
	bans       []string
	team1      []string
	team2      []string
	turn       Team
	pickNumber int
	available  []string
}

// Option customises a State built by New.
type Option func(*State)

func WithBans(bans ...string) Option {
	return func(s *State) { s.bans = cloneStrings(bans) }
}

func WithTeam1(picks ...string) Option {
	return func(s *State) { s.team1 = cloneStrings(picks) }
}

func WithTeam2(picks ...string) Option {
	return func(s *State) { s.team2 = cloneStrings(picks) }
}

func WithTurn(t Team) Option {
	return func(s *State) { s.turn = t }
}

func WithPickNumber(n int) Option {
	return func(s *State) { s.pickNumber = n }
}

// New builds a draft over the given master brawler list. A fresh draft starts
// with team1 to act on pick 1.
func New(mapName, mode string, brawlers []string, opts ...Option) State {
	s := State{
		mapName:    mapName,
		mode:       mode,
		brawlers:   dedupeSorted(brawlers),
		turn:       Team1,
		pickNumber: 1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.available = s.computeAvailable()
	return s
}

func (s State) Map() string { return s.mapName }
func (s State) Mode() string { return s.mode }
func (s State) Turn() Team { return s.turn }
func (s State) PickNumber() int { return s.pickNumber }
func (s State) Bans() []string { return cloneStrings(s.bans) }
func (s State) Team1() []string { return cloneStrings(s.team1) }
func (s State) Team2() []string { return cloneStrings(s.team2) }
func (s State) Brawlers() []string { return cloneStrings(s.brawlers) }

// Available returns master − bans − picks, sorted.
func (s State) Available() []string { return cloneStrings(s.available) }

// Picks returns the picks of the given team.
func (s State) Picks(t Team) []string {
	switch t {
	case Team1:
		return s.Team1()
	case Team2:
		return s.Team2()
	}
	return nil
}

// Opponent returns the other side, or NoTeam.
func Opponent(t Team) Team {
	switch t {
	case Team1:
		return Team2
	case Team2:
		return Team1
	}
	return NoTeam
}

// IsComplete reports whether all six picks have been made.
func (s State) IsComplete() bool {
	return s.pickNumber > TotalPicks
}

// IsAvailable reports whether b can still be picked or banned.
func (s State) IsAvailable(b string) bool {
	i := sort.SearchStrings(s.available, b)
	return i < len(s.available) && s.available[i] == b
}

// LegalMoves returns the brawlers that can be picked next, sorted.
func (s State) LegalMoves() []string {
	if s.IsComplete() {
		return nil
	}
	return s.Available()
}

// ApplyMove returns the state after the acting team picks b.
func (s State) ApplyMove(b string) (State, error) {
	if s.IsComplete() {
		return s, fmt.Errorf("pick %q: %w", b, ErrDraftComplete)
	}
	if !s.IsAvailable(b) {
		return s, fmt.Errorf("pick %q: %w", b, ErrUnavailable)
	}

	next := s.clone()
	switch s.turn {
	case Team1:
		if len(s.team1) >= TeamSize {
			return s, fmt.Errorf("pick %q for %s: %w", b, s.turn, ErrTeamFull)
		}
		next.team1 = append(next.team1, b)
	case Team2:
		if len(s.team2) >= TeamSize {
			return s, fmt.Errorf("pick %q for %s: %w", b, s.turn, ErrTeamFull)
		}
		next.team2 = append(next.team2, b)
	default:
		return s, fmt.Errorf("pick %q: %w", b, ErrInvalidTurn)
	}

	if t, ok := nextTurn[s.pickNumber]; ok {
		next.turn = t
	} else {
		next.turn = NoTeam
	}
	next.pickNumber = s.pickNumber + 1
	next.available = removeSorted(s.available, b)
	return next, nil
}

// ApplyBan returns the state with b banned. Turn and pick number are kept.
func (s State) ApplyBan(b string) (State, error) {
	if len(s.bans) >= MaxBans {
		return s, fmt.Errorf("ban %q: %w", b, ErrBanLimit)
	}
	if !s.IsAvailable(b) {
		return s, fmt.Errorf("ban %q: %w", b, ErrUnavailable)
	}
	next := s.clone()
	next.bans = append(next.bans, b)
	next.available = removeSorted(s.available, b)
	return next, nil
}

// Valid checks team sizes, the ban limit, that no brawler appears twice
// across bans and picks, and that all of them belong to the master list.
func (s State) Valid() bool {
	if len(s.team1) > TeamSize || len(s.team2) > TeamSize || len(s.bans) > MaxBans {
		return false
	}
	seen := make(map[string]struct{}, len(s.bans)+len(s.team1)+len(s.team2))
	for _, group := range [][]string{s.bans, s.team1, s.team2} {
		for _, b := range group {
			if _, dup := seen[b]; dup {
				return false
			}
			i := sort.SearchStrings(s.brawlers, b)
			if i >= len(s.brawlers) || s.brawlers[i] != b {
				return false
			}
			seen[b] = struct{}{}
		}
	}
	return true
}

// Consistent reports whether the pick number, the turn and the team sizes
// agree with the pick order, i.e. whether the state is reachable from a fresh
// draft by picks alone.
func (s State) Consistent() bool {
	made := len(s.team1) + len(s.team2)
	if s.pickNumber != made+1 || s.turn != TurnAt(s.pickNumber) {
		return false
	}
	team1 := 0
	for p := 1; p <= made; p++ {
		if TurnAt(p) == Team1 {
			team1++
		}
	}
	return len(s.team1) == team1
}

// Undo returns the state before the last pick, with that pick's team to act
// again.
func (s State) Undo() (State, error) {
	prev := s.pickNumber - 1
	t := TurnAt(prev)
	next := s.clone()
	switch {
	case t == Team1 && len(s.team1) > 0:
		next.team1 = next.team1[:len(next.team1)-1]
	case t == Team2 && len(s.team2) > 0:
		next.team2 = next.team2[:len(next.team2)-1]
	default:
		return s, fmt.Errorf("undo pick %d: %w", prev, ErrNothingToUndo)
	}
	next.turn = t
	next.pickNumber = prev
	next.available = next.computeAvailable()
	return next, nil
}

// Unban returns the state with b no longer banned.
func (s State) Unban(b string) (State, error) {
	for i, v := range s.bans {
		if v != b {
			continue
		}
		next := s.clone()
		next.bans = append(next.bans[:i], next.bans[i+1:]...)
		next.available = next.computeAvailable()
		return next, nil
	}
	return s, fmt.Errorf("unban %q: %w", b, ErrNotBanned)
}

func (s State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s pick=%d turn=%s", s.mapName, s.mode, s.pickNumber, s.turn)
	fmt.Fprintf(&sb, " bans=[%s]", strings.Join(s.bans, ","))
	fmt.Fprintf(&sb, " team1=[%s]", strings.Join(s.team1, ","))
	fmt.Fprintf(&sb, " team2=[%s]", strings.Join(s.team2, ","))
	return sb.String()
}

// clone copies the mutable slices. The master list is shared; it is never
// written after New.
func (s State) clone() State {
	out := s
	out.bans = cloneStrings(s.bans)
	out.team1 = cloneStrings(s.team1)
	out.team2 = cloneStrings(s.team2)
	return out
}

func (s State) computeAvailable() []string {
	taken := make(map[string]struct{}, len(s.bans)+len(s.team1)+len(s.team2))
	for _, group := range [][]string{s.bans, s.team1, s.team2} {
		for _, b := range group {
			taken[b] = struct{}{}
		}
	}
	out := make([]string, 0, len(s.brawlers))
	for _, b := range s.brawlers {
		if _, ok := taken[b]; !ok {
			out = append(out, b)
		}
	}
	return out
}

func removeSorted(in []string, b string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != b {
			out = append(out, v)
		}
	}
	return out
}

func dedupeSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, b := range in {
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
