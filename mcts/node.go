// Package mcts runs a parallel Monte Carlo tree search over draft states.
//
// Many workers share one tree. Visit counts and scores are lock-free atomics;
// a node's lock only guards its untried moves and the publication of a new
// child slice, so selection never blocks on expansion.
package mcts

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/brensch/brawldraft/draft"
)

// Node is one draft state in the search tree. Wins holds the summed win
// chance of the team that was to move at the parent.
type Node struct {
	State    draft.State
	Move     string
	Terminal bool

	// parent is a back-reference only; children are owned through the child
	// slice and nodes are never removed during a run.
	parent *Node

	visits atomic.Int64
	wins   atomic.Uint64 // float64 bits

	mu        sync.Mutex
	untried   []string
	remaining atomic.Int32
	children  atomic.Pointer[[]*Node]
}

func newNode(state draft.State, parent *Node, move string) *Node {
	n := &Node{
		State:    state,
		Move:     move,
		Terminal: state.IsComplete(),
		parent:   parent,
	}
	if !n.Terminal {
		n.untried = state.LegalMoves()
	}
	n.remaining.Store(int32(len(n.untried)))
	empty := []*Node{}
	n.children.Store(&empty)
	return n
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Visits() int64 { return n.visits.Load() }

func (n *Node) Wins() float64 { return math.Float64frombits(n.wins.Load()) }

// WinRate is wins/visits, or 0 for an unvisited node.
func (n *Node) WinRate() float64 {
	v := n.Visits()
	if v == 0 {
		return 0
	}
	return n.Wins() / float64(v)
}

// Children returns the current child slice. The slice is never modified after
// publication, so callers may range over it without locking.
func (n *Node) Children() []*Node {
	return *n.children.Load()
}

// FullyExpanded reports whether every legal move has a child.
func (n *Node) FullyExpanded() bool {
	return n.remaining.Load() == 0
}

func (n *Node) addWins(delta float64) {
	for {
		old := n.wins.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if n.wins.CompareAndSwap(old, next) {
			return
		}
	}
}

// update records one simulation result, seen from the team to move at the
// parent.
func (n *Node) update(score float64) {
	n.visits.Add(1)
	n.addWins(score)
}

// expand pops one untried move and publishes the resulting child. It returns
// nil when another worker already took the last move.
func (n *Node) expand() (*Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.untried) == 0 {
		return nil, nil
	}
	last := len(n.untried) - 1
	move := n.untried[last]
	n.untried = n.untried[:last]
	n.remaining.Store(int32(len(n.untried)))

	next, err := n.State.ApplyMove(move)
	if err != nil {
		return nil, err
	}
	child := newNode(next, n, move)

	old := n.Children()
	grown := make([]*Node, len(old), len(old)+1)
	copy(grown, old)
	grown = append(grown, child)
	n.children.Store(&grown)
	return child, nil
}

// selectChild picks the child with the best UCT score. Unvisited children
// score +Inf; a parent with no visits, or no usable score, gets a random
// child.
func (n *Node) selectChild(exploration float64, rng *rand.Rand) *Node {
	children := n.Children()
	if len(children) == 0 {
		return nil
	}
	parentVisits := n.Visits()
	if parentVisits == 0 {
		return children[rng.Intn(len(children))]
	}

	logN := math.Log(float64(parentVisits))
	var best *Node
	bestScore := math.Inf(-1)
	for _, c := range children {
		v := c.Visits()
		var s float64
		if v == 0 {
			s = math.Inf(1)
		} else {
			s = c.Wins()/float64(v) + exploration*math.Sqrt(logN/float64(v))
		}
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	if best == nil {
		return children[rng.Intn(len(children))]
	}
	return best
}
