package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/brensch/brawldraft/draft"
	"github.com/brensch/brawldraft/heuristics"
)

const maxBodyBytes = 1 << 20

var errInvalidDraft = errors.New("invalid draft")

// DraftRequest describes a draft position. Turn is "team1", "team2" or
// "none" and PickNumber is the pick about to be made; when omitted they are
// derived from the picks already made. Weights replace the configured
// weights when set. Count caps list results. Brawler is the subject of the
// pick, ban and unban actions.
type DraftRequest struct {
	Map        string              `json:"map"`
	Mode       string              `json:"mode"`
	Bans       []string            `json:"bans"`
	Team1      []string            `json:"team1"`
	Team2      []string            `json:"team2"`
	Turn       string              `json:"turn,omitempty"`
	PickNumber int                 `json:"pick_number,omitempty"`
	Weights    *heuristics.Weights `json:"weights,omitempty"`
	Count      int                 `json:"count,omitempty"`
	Brawler    string              `json:"brawler,omitempty"`
}

// State builds the draft over brawlers and rejects positions that could not
// come out of a real draft.
func (req DraftRequest) State(brawlers []string) (draft.State, error) {
	if req.Map == "" || req.Mode == "" {
		return draft.State{}, fmt.Errorf("%w: map and mode are required", errInvalidDraft)
	}

	pick := req.PickNumber
	if pick == 0 {
		pick = len(req.Team1) + len(req.Team2) + 1
	}
	if pick < 1 || pick > draft.TotalPicks+1 {
		return draft.State{}, fmt.Errorf("%w: pick number %d out of range", errInvalidDraft, pick)
	}

	var turn draft.Team
	switch strings.ToLower(req.Turn) {
	case "":
		turn = draft.TurnAt(pick)
	case string(draft.Team1):
		turn = draft.Team1
	case string(draft.Team2):
		turn = draft.Team2
	case "none":
		turn = draft.NoTeam
	default:
		return draft.State{}, fmt.Errorf("%w: unknown turn %q", errInvalidDraft, req.Turn)
	}

	s := draft.New(req.Map, req.Mode, brawlers,
		draft.WithBans(req.Bans...),
		draft.WithTeam1(req.Team1...),
		draft.WithTeam2(req.Team2...),
		draft.WithTurn(turn),
		draft.WithPickNumber(pick),
	)
	if !s.Valid() {
		return draft.State{}, fmt.Errorf("%w: %s", errInvalidDraft, s)
	}
	if !s.Consistent() {
		return draft.State{}, fmt.Errorf("%w: turn and pick number do not follow the pick order: %s", errInvalidDraft, s)
	}
	return s, nil
}

// DraftResponse is a draft position as returned by the draft actions.
type DraftResponse struct {
	Map        string     `json:"map"`
	Mode       string     `json:"mode"`
	Bans       []string   `json:"bans"`
	Team1      []string   `json:"team1"`
	Team2      []string   `json:"team2"`
	Turn       draft.Team `json:"turn"`
	PickNumber int        `json:"pick_number"`
	Complete   bool       `json:"complete"`
	Available  []string   `json:"available"`
}

func draftResponse(s draft.State) DraftResponse {
	return DraftResponse{
		Map:        s.Map(),
		Mode:       s.Mode(),
		Bans:       nonNil(s.Bans()),
		Team1:      nonNil(s.Team1()),
		Team2:      nonNil(s.Team2()),
		Turn:       s.Turn(),
		PickNumber: s.PickNumber(),
		Complete:   s.IsComplete(),
		Available:  nonNil(s.Available()),
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func (req DraftRequest) weights(fallback heuristics.Weights) heuristics.Weights {
	if req.Weights != nil {
		return *req.Weights
	}
	return fallback
}

// decodeDraftRequest reads a JSON body, rejecting unknown fields.
func decodeDraftRequest(r *http.Request) (DraftRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return DraftRequest{}, fmt.Errorf("read body: %w", err)
	}
	defer r.Body.Close()

	var req DraftRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return DraftRequest{}, fmt.Errorf("invalid json: %w", err)
	}
	return req, nil
}

// queryDraftRequest reads a draft from query parameters. List parameters are
// comma separated.
func queryDraftRequest(r *http.Request) (DraftRequest, error) {
	q := r.URL.Query()
	req := DraftRequest{
		Map:   q.Get("map"),
		Mode:  q.Get("mode"),
		Bans:  splitList(q.Get("bans")),
		Team1: splitList(q.Get("team1")),
		Team2: splitList(q.Get("team2")),
		Turn:  q.Get("turn"),
	}
	if v := q.Get("pick"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return DraftRequest{}, fmt.Errorf("%w: pick %q is not a number", errInvalidDraft, v)
		}
		req.PickNumber = n
	}
	return req, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
