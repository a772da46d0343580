package mcts

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/brawldraft/draft"
	"github.com/brensch/brawldraft/heuristics"
)

var ErrAlreadyRunning = errors.New("search already running")

// Config holds search configuration.
type Config struct {
	Workers        int
	Exploration    float64
	TimeBudget     time.Duration
	PollInterval   time.Duration
	ReportInterval time.Duration
	ResultCount    int
}

func DefaultConfig() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		Exploration:    1.414,
		TimeBudget:     7 * time.Second,
		PollInterval:   200 * time.Millisecond,
		ReportInterval: time.Second,
		ResultCount:    10,
	}
}

// EventKind tags an Event.
type EventKind string

const (
	EventStatus       EventKind = "status"
	EventIntermediate EventKind = "intermediate"
	EventError        EventKind = "error"
	EventFinal        EventKind = "final"
)

// Event is a notification from a running search. Every run ends with exactly
// one EventFinal, after which the channel is closed.
type Event struct {
	RunID      string
	Kind       EventKind
	Status     string
	Iterations int64
	Elapsed    time.Duration
	Results    []Result
	Err        error
}

// Result is the reporting view of a root child.
type Result struct {
	Move    string  `json:"move"`
	Visits  int64   `json:"visits"`
	WinRate float64 `json:"win_rate"`
}

// Option customises an Engine.
type Option func(*Engine)

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSeed fixes the random source of the workers.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = seed
		e.seeded = true
	}
}

// Engine runs one search at a time.
type Engine struct {
	stats   heuristics.Stats
	cfg     Config
	logger  *zap.SugaredLogger
	metrics *Metrics
	seed    int64
	seeded  bool

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce *sync.Once
	done     chan struct{}

	iterations atomic.Int64
}

func NewEngine(st heuristics.Stats, cfg Config, logger *zap.SugaredLogger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = def.ReportInterval
	}
	if cfg.ResultCount <= 0 {
		cfg.ResultCount = def.ResultCount
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		stats:  st,
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Running reports whether a search is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Iterations returns the completed iterations of the current or last run.
func (e *Engine) Iterations() int64 { return e.iterations.Load() }

// Stop asks the active run to finish. It returns immediately; the final event
// follows once in-flight iterations complete.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	ch, once := e.stopCh, e.stopOnce
	e.mu.Unlock()
	once.Do(func() { close(ch) })
}

// Wait blocks until the current run, if any, has emitted its final event.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Start launches a search from root. The returned channel must be drained
// until it is closed. Cancelling ctx stops the run like Stop.
func (e *Engine) Start(ctx context.Context, root draft.State, w heuristics.Weights) (<-chan Event, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.stopOnce = &sync.Once{}
	e.done = make(chan struct{})
	stopCh, done := e.stopCh, e.done
	e.mu.Unlock()

	e.iterations.Store(0)
	r := &run{
		id:      uuid.NewString(),
		weights: w,
		start:   time.Now(),
		events:  make(chan Event, 64),
	}
	r.log = e.logger.With("run_id", r.id)

	go func() {
		defer func() {
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			close(done)
		}()
		defer close(r.events)
		e.run(ctx, stopCh, root, r)
	}()
	return r.events, nil
}

// run holds the per-search state shared by the controller and workers.
type run struct {
	id      string
	weights heuristics.Weights
	start   time.Time
	root    *Node
	nodes   atomic.Int64
	log     *zap.SugaredLogger
	events  chan Event
}

// emit drops the event if the consumer is behind.
func (r *run) emit(ev Event) {
	ev.RunID = r.id
	select {
	case r.events <- ev:
	default:
	}
}

// deliver always delivers the event.
func (r *run) deliver(ev Event) {
	ev.RunID = r.id
	r.events <- ev
}

func (e *Engine) run(ctx context.Context, stopCh <-chan struct{}, root draft.State, r *run) {
	if root.IsComplete() || len(root.LegalMoves()) == 0 {
		r.log.Infow("nothing to search", "draft", root.String())
		e.metrics.finished(reasonEmpty, time.Since(r.start), 0)
		r.deliver(Event{Kind: EventFinal, Elapsed: time.Since(r.start), Results: []Result{}})
		return
	}

	r.root = newNode(root, nil, "")
	r.nodes.Store(1)
	r.log.Infow("search started",
		"draft", root.String(),
		"workers", e.cfg.Workers,
		"budget", e.cfg.TimeBudget,
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(workerCtx)
	base := e.seed
	if !e.seeded {
		base = time.Now().UnixNano()
	}
	for i := 0; i < e.cfg.Workers; i++ {
		rng := rand.New(rand.NewSource(base + int64(i)))
		g.Go(func() error {
			e.worker(gctx, r, rng)
			return nil
		})
	}

	reason, err := e.control(ctx, stopCh, r)
	cancel()
	_ = g.Wait()

	elapsed := time.Since(r.start)
	iters := e.iterations.Load()
	if err != nil {
		reason = reasonError
		r.log.Errorw("search controller failed", "error", err)
		r.deliver(Event{Kind: EventError, Err: err, Iterations: iters, Elapsed: elapsed})
	}

	results := rank(r.root, e.cfg.ResultCount)
	e.metrics.finished(reason, elapsed, r.nodes.Load())
	r.log.Infow("search finished",
		"reason", reason,
		"iterations", iters,
		"nodes", r.nodes.Load(),
		"elapsed", elapsed,
	)
	r.deliver(Event{Kind: EventFinal, Iterations: iters, Elapsed: elapsed, Results: results})
}

// control polls until the budget runs out or a stop is requested, emitting
// status and intermediate rankings along the way.
func (e *Engine) control(ctx context.Context, stopCh <-chan struct{}, r *run) (reason string, err error) {
	defer func() {
		if p := recover(); p != nil {
			reason = reasonError
			err = fmt.Errorf("search controller: %v", p)
		}
	}()

	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	budget := time.NewTimer(e.cfg.TimeBudget)
	defer budget.Stop()
	lastReport := r.start

	for {
		select {
		case <-ctx.Done():
			r.emit(e.status(r, "MCTS Stopped Early"))
			return reasonStopped, nil
		case <-stopCh:
			r.emit(e.status(r, "MCTS Stopped Early"))
			return reasonStopped, nil
		case <-budget.C:
			r.emit(e.status(r, "MCTS Time Limit Reached"))
			return reasonTimeout, nil
		case now := <-poll.C:
			elapsed := now.Sub(r.start)
			r.emit(e.status(r, fmt.Sprintf("Running MCTS: %d iter (%.1fs / %.1fs)",
				e.iterations.Load(), elapsed.Seconds(), e.cfg.TimeBudget.Seconds())))
			if now.Sub(lastReport) >= e.cfg.ReportInterval {
				lastReport = now
				r.emit(Event{
					Kind:       EventIntermediate,
					Iterations: e.iterations.Load(),
					Elapsed:    elapsed,
					Results:    rank(r.root, e.cfg.ResultCount),
				})
			}
		}
	}
}

func (e *Engine) status(r *run, text string) Event {
	return Event{
		Kind:       EventStatus,
		Status:     text,
		Iterations: e.iterations.Load(),
		Elapsed:    time.Since(r.start),
	}
}

// worker runs iterations until ctx is cancelled. Every worker completes at
// least one iteration, and never stops mid-iteration.
func (e *Engine) worker(ctx context.Context, r *run, rng *rand.Rand) {
	for {
		if err := e.iterate(r, rng); err != nil {
			e.metrics.failedIteration()
			r.log.Debugw("iteration abandoned", "error", err)
		} else {
			e.iterations.Add(1)
			e.metrics.iteration()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// iterate performs select, expand, simulate and backpropagate once. A failed
// iteration leaves every statistic untouched.
func (e *Engine) iterate(r *run, rng *rand.Rand) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("iteration panic: %v", p)
		}
	}()

	node := r.root
	for !node.Terminal && node.FullyExpanded() {
		next := node.selectChild(e.cfg.Exploration, rng)
		if next == nil {
			break
		}
		node = next
	}

	if !node.Terminal {
		child, err := node.expand()
		if err != nil {
			return fmt.Errorf("expand %s: %w", node.State.String(), err)
		}
		if child != nil {
			r.nodes.Add(1)
			node = child
		}
	}

	result, err := e.simulate(node.State, r.weights, rng)
	if err != nil {
		return err
	}
	backpropagate(node, result)
	return nil
}

// simulate plays the draft out with the heuristic policy and returns team1's
// win probability.
func (e *Engine) simulate(s draft.State, w heuristics.Weights, rng *rand.Rand) (float64, error) {
	for !s.IsComplete() {
		moves := s.LegalMoves()
		if len(moves) == 0 {
			break
		}
		var move string
		if sug := heuristics.SuggestPick(s, e.stats, w); sug.OK && s.IsAvailable(sug.Pick) {
			move = sug.Pick
		} else {
			move = moves[rng.Intn(len(moves))]
		}
		next, err := s.ApplyMove(move)
		if err != nil {
			return 0, fmt.Errorf("rollout: %w", err)
		}
		s = next
	}
	if !s.IsComplete() {
		return 0.5, nil
	}
	p, err := heuristics.PredictWinProbability(s.Team1(), s.Team2(), s.Map(), s.Mode(), e.stats, w)
	if err != nil {
		return 0.5, nil
	}
	return p, nil
}

// backpropagate credits result (team1's win chance) up to the root. Each node
// is scored for the team that moved into it, which is the parent's turn. The
// root has no parent and uses its own turn. This is an approximation; the
// root's own score is never used to rank moves.
func backpropagate(node *Node, result float64) {
	for n := node; n != nil; n = n.parent {
		turn := n.State.Turn()
		if n.parent != nil {
			turn = n.parent.State.Turn()
		}
		if turn == draft.Team1 {
			n.update(result)
		} else {
			n.update(1 - result)
		}
	}
}

// rank orders the visited root children by visits, then win rate, and keeps
// the first n.
func rank(root *Node, n int) []Result {
	out := []Result{}
	if root == nil {
		return out
	}
	for _, c := range root.Children() {
		v := c.Visits()
		if v == 0 {
			continue
		}
		out = append(out, Result{Move: c.Move, Visits: v, WinRate: c.Wins() / float64(v)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Visits != out[j].Visits {
			return out[i].Visits > out[j].Visits
		}
		return out[i].WinRate > out[j].WinRate
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
