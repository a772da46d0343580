package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/brensch/brawldraft/draft"
	"github.com/brensch/brawldraft/heuristics"
)

type LegalMovesResponse struct {
	Turn       draft.Team `json:"turn"`
	PickNumber int        `json:"pick_number"`
	Complete   bool       `json:"complete"`
	Moves      []string   `json:"moves"`
}

type SuggestPickResponse struct {
	Pick   string              `json:"pick"`
	OK     bool                `json:"ok"`
	Scores []heuristics.Scored `json:"scores"`
}

type SuggestBansResponse struct {
	Bans []string `json:"bans"`
}

type PredictResponse struct {
	Team1WinProbability float64 `json:"team1_win_probability"`
	Team2WinProbability float64 `json:"team2_win_probability"`
}

type StopResponse struct {
	Stopped bool `json:"stopped"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"brawlers":  len(s.stats.Brawlers()),
		"searching": s.engine.Running(),
	})
}

func (s *Server) handleLegalMoves(w http.ResponseWriter, r *http.Request) {
	req, err := queryDraftRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, ok := s.draftState(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, LegalMovesResponse{
		Turn:       st.Turn(),
		PickNumber: st.PickNumber(),
		Complete:   st.IsComplete(),
		Moves:      st.LegalMoves(),
	})
}

func (s *Server) handleSuggestPick(w http.ResponseWriter, r *http.Request) {
	req, st, ok := s.decodeDraft(w, r)
	if !ok {
		return
	}
	sug := heuristics.SuggestPick(st, s.stats, req.weights(s.weights))
	scores := sug.Sorted()
	if n := s.count(req); len(scores) > n {
		scores = scores[:n]
	}
	writeJSON(w, http.StatusOK, SuggestPickResponse{Pick: sug.Pick, OK: sug.OK, Scores: scores})
}

func (s *Server) handleSuggestBans(w http.ResponseWriter, r *http.Request) {
	req, st, ok := s.decodeDraft(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SuggestBansResponse{
		Bans: heuristics.SuggestBans(st, s.stats, req.Count),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, st, ok := s.decodeDraft(w, r)
	if !ok {
		return
	}
	p, err := heuristics.PredictWinProbability(st.Team1(), st.Team2(), st.Map(), st.Mode(), s.stats, req.weights(s.weights))
	if errors.Is(err, heuristics.ErrIncompleteRoster) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.log.Errorw("predict failed", "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, PredictResponse{Team1WinProbability: p, Team2WinProbability: 1 - p})
}

func (s *Server) handleStopSearch(w http.ResponseWriter, r *http.Request) {
	running := s.engine.Running()
	s.engine.Stop()
	writeJSON(w, http.StatusOK, StopResponse{Stopped: running})
}

// draftErrors are the rule violations a draft action can hit. They are the
// caller's fault and answer 400.
var draftErrors = []error{
	draft.ErrDraftComplete,
	draft.ErrUnavailable,
	draft.ErrTeamFull,
	draft.ErrBanLimit,
	draft.ErrInvalidTurn,
	draft.ErrNothingToUndo,
	draft.ErrNotBanned,
}

func isDraftError(err error) bool {
	for _, target := range draftErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "pick", true, draft.State.ApplyMove)
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "ban", true, draft.State.ApplyBan)
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "unban", true, draft.State.Unban)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, "undo", false, func(st draft.State, _ string) (draft.State, error) {
		return st.Undo()
	})
}

// handleAction applies one draft action to the posted position and answers
// with the resulting position.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, action string, needsBrawler bool, apply func(draft.State, string) (draft.State, error)) {
	req, st, ok := s.decodeDraft(w, r)
	if !ok {
		return
	}
	if needsBrawler && req.Brawler == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s needs a brawler", errInvalidDraft, action))
		return
	}
	next, err := apply(st, req.Brawler)
	if isDraftError(err) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.log.Errorw("draft action failed", "action", action, "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(next))
}

func (s *Server) decodeDraft(w http.ResponseWriter, r *http.Request) (DraftRequest, draft.State, bool) {
	req, err := decodeDraftRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return DraftRequest{}, draft.State{}, false
	}
	st, ok := s.draftState(w, req)
	return req, st, ok
}

func (s *Server) draftState(w http.ResponseWriter, req DraftRequest) (draft.State, bool) {
	st, err := req.State(s.stats.Brawlers())
	if err != nil {
		s.log.Warnw("rejected draft", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return draft.State{}, false
	}
	return st, true
}

func (s *Server) count(req DraftRequest) int {
	if req.Count > 0 {
		return req.Count
	}
	return s.results
}
