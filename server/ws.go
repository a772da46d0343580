package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/brawldraft/mcts"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SearchEvent is the websocket form of an mcts.Event.
type SearchEvent struct {
	RunID          string         `json:"run_id,omitempty"`
	Kind           mcts.EventKind `json:"kind"`
	Status         string         `json:"status,omitempty"`
	Iterations     int64          `json:"iterations"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Results        []mcts.Result  `json:"results,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func searchEvent(ev mcts.Event) SearchEvent {
	out := SearchEvent{
		RunID:          ev.RunID,
		Kind:           ev.Kind,
		Status:         ev.Status,
		Iterations:     ev.Iterations,
		ElapsedSeconds: ev.Elapsed.Seconds(),
		Results:        ev.Results,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// searchControl is what a client may send once a search is running.
type searchControl struct {
	Action string `json:"action"`
}

// handleSearch upgrades the connection, reads one DraftRequest and streams
// the search events until the final one. Sending {"action":"stop"} or
// closing the connection ends the search early.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req DraftRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.log.Warnw("read search request", "error", err)
		s.writeEvent(conn, SearchEvent{Kind: mcts.EventError, Error: "invalid json: " + err.Error()})
		return
	}
	st, err := req.State(s.stats.Brawlers())
	if err != nil {
		s.writeEvent(conn, SearchEvent{Kind: mcts.EventError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.engine.Start(ctx, st, req.weights(s.weights))
	if errors.Is(err, mcts.ErrAlreadyRunning) {
		s.writeEvent(conn, SearchEvent{Kind: mcts.EventError, Error: err.Error()})
		return
	}
	if err != nil {
		s.log.Errorw("start search", "error", err)
		s.writeEvent(conn, SearchEvent{Kind: mcts.EventError, Error: err.Error()})
		return
	}

	go func() {
		for {
			var ctl searchControl
			if err := conn.ReadJSON(&ctl); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debugw("search client gone", "error", err)
				}
				cancel()
				return
			}
			if ctl.Action == "stop" {
				s.engine.Stop()
			}
		}
	}()

	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		if err := s.writeEvent(conn, searchEvent(ev)); err != nil {
			s.log.Warnw("write search event", "run_id", ev.RunID, "error", err)
			writeFailed = true
			cancel()
		}
	}

	if !writeFailed {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "search finished"),
			time.Now().Add(writeWait))
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev SearchEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
