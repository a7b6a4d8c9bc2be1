package searcher

import (
	"fmt"
	"math"
	"renju/game"

	"golang.org/x/exp/rand"
)

// NodeID addresses a node in a Tree's arena.
type NodeID int32

// NoParent marks the root.
const NoParent NodeID = -1

const noChildren NodeID = -1

// node holds the statistics of the edge that leads to it.
type node struct {
	parent     NodeID
	action     int        // flattened cell played to reach this node, -1 at the root
	firstChild NodeID     // children occupy [firstChild, firstChild+actions)
	color      game.Color // side to move at this node
	prior      float64
	visits     int
	total      float64
	value      float64

	terminal      bool
	terminalValue float64 // for the side to move

	inflight  int  // simulations currently passing through (virtual loss)
	expanding bool // an evaluation for this leaf is in flight
}

// Tree is an arena of nodes. Every expansion appends one child per cell, so a
// node's children form a contiguous block indexed by action. Node ids are
// local to the tree.
type Tree struct {
	nodes       []node
	root        NodeID
	actions     int
	cPuct       float64
	virtualLoss float64
}

func NewTree(boardSize int, toMove game.Color, cPuct float64) *Tree {
	t := &Tree{
		actions:     boardSize * boardSize,
		cPuct:       cPuct,
		virtualLoss: DefaultVirtualLoss,
	}
	t.nodes = append(t.nodes, newNode(NoParent, -1, toMove, 1))
	return t
}

func newNode(parent NodeID, action int, color game.Color, prior float64) node {
	return node{
		parent:     parent,
		action:     action,
		firstChild: noChildren,
		color:      color,
		prior:      prior,
	}
}

func (t *Tree) Root() NodeID {
	return t.root
}

// Len counts every node allocated in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Actions() int {
	return t.actions
}

func (t *Tree) check(id NodeID) error {
	if id < 0 || int(id) >= len(t.nodes) {
		return fmt.Errorf("node %d of %d: %w", id, len(t.nodes), game.ErrOutOfBounds)
	}
	return nil
}

func (t *Tree) Visits(id NodeID) int            { return t.nodes[id].visits }
func (t *Tree) Value(id NodeID) float64         { return t.nodes[id].value }
func (t *Tree) Prior(id NodeID) float64         { return t.nodes[id].prior }
func (t *Tree) Color(id NodeID) game.Color      { return t.nodes[id].color }
func (t *Tree) Parent(id NodeID) NodeID         { return t.nodes[id].parent }
func (t *Tree) Action(id NodeID) int            { return t.nodes[id].action }
func (t *Tree) IsLeaf(id NodeID) bool           { return t.nodes[id].firstChild == noChildren }
func (t *Tree) IsTerminal(id NodeID) bool       { return t.nodes[id].terminal }
func (t *Tree) TerminalValue(id NodeID) float64 { return t.nodes[id].terminalValue }

// Child returns the child reached by action.
func (t *Tree) Child(id NodeID, action int) (NodeID, error) {
	if err := t.check(id); err != nil {
		return NoParent, err
	}
	if action < 0 || action >= t.actions {
		return NoParent, fmt.Errorf("action %d of %d: %w", action, t.actions, game.ErrOutOfBounds)
	}
	n := t.nodes[id]
	if n.firstChild == noChildren {
		return NoParent, fmt.Errorf("node %d has no children: %w", id, ErrNoLegalChild)
	}
	return n.firstChild + NodeID(action), nil
}

// UpperConfidence is the exploration bonus of id, 0 at the root.
func (t *Tree) UpperConfidence(id NodeID) float64 {
	n := t.nodes[id]
	if n.parent == NoParent {
		return 0
	}
	p := t.nodes[n.parent]
	return newPUCT(t.cPuct, float64(p.visits+p.inflight)).bonus(n.prior, float64(n.visits+n.inflight))
}

// Score is the selection score Q + U of id.
func (t *Tree) Score(id NodeID) float64 {
	return t.quality(id) + t.UpperConfidence(id)
}

// quality is Q with in-flight simulations counted as losses.
func (t *Tree) quality(id NodeID) float64 {
	n := t.nodes[id]
	if n.inflight == 0 {
		return n.value
	}
	visits := n.visits + n.inflight
	return (n.total + float64(n.inflight)*LOSS*t.virtualLoss) / float64(visits)
}

// Select picks the legal child of id with the highest score, lowest action on
// ties. legal is indexed by action.
func (t *Tree) Select(id NodeID, legal []bool) (NodeID, int, error) {
	if err := t.check(id); err != nil {
		return NoParent, -1, err
	}
	if len(legal) != t.actions {
		return NoParent, -1, fmt.Errorf("legal mask has %d entries, want %d: %w", len(legal), t.actions, ErrContractViolation)
	}
	n := t.nodes[id]
	if n.firstChild == noChildren {
		return NoParent, -1, fmt.Errorf("selecting from leaf %d: %w", id, ErrNoLegalChild)
	}

	parentVisits := float64(n.visits + n.inflight)
	policy := newPUCT(t.cPuct, parentVisits)
	best := -1
	bestScore := math.Inf(-1)
	for action := 0; action < t.actions; action++ {
		if !legal[action] {
			continue
		}
		child := n.firstChild + NodeID(action)
		c := t.nodes[child]
		score := policy.evaluate(t.quality(child), c.prior, float64(c.visits+c.inflight))
		if score > bestScore {
			bestScore = score
			best = action
		}
	}
	if best < 0 {
		return NoParent, -1, fmt.Errorf("node %d: %w", id, ErrNoLegalChild)
	}
	return n.firstChild + NodeID(best), best, nil
}

// Expand gives leaf id one child per cell, seeded with priors. Children of
// occupied cells are kept so that children stay indexed by action.
func (t *Tree) Expand(id NodeID, priors []float64) error {
	if err := t.check(id); err != nil {
		return err
	}
	n := t.nodes[id]
	if n.terminal {
		return fmt.Errorf("expanding node %d: %w", id, ErrTerminal)
	}
	if n.firstChild != noChildren {
		return fmt.Errorf("expanding node %d: %w", id, ErrAlreadyExpanded)
	}
	if err := validatePriors(priors, t.actions); err != nil {
		return err
	}

	first := NodeID(len(t.nodes))
	for action, prior := range priors {
		t.nodes = append(t.nodes, newNode(id, action, n.color.Opponent(), prior))
	}
	t.nodes[id].firstChild = first
	return nil
}

func validatePriors(priors []float64, actions int) error {
	if len(priors) != actions {
		return fmt.Errorf("got %d priors, want %d: %w", len(priors), actions, ErrContractViolation)
	}
	for i, p := range priors {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("prior %d is %v: %w", i, p, ErrContractViolation)
		}
	}
	return nil
}

// Backup adds value to id and alternates its sign on every step up to the
// root.
func (t *Tree) Backup(id NodeID, value float64) error {
	if err := t.check(id); err != nil {
		return err
	}
	for id != NoParent {
		n := &t.nodes[id]
		n.visits++
		n.total += value
		n.value = n.total / float64(n.visits)
		value = -value
		id = n.parent
	}
	return nil
}

// MarkTerminal records that the position at id ends the game. value is for
// the side to move at id.
func (t *Tree) MarkTerminal(id NodeID, value float64) {
	t.nodes[id].terminal = true
	t.nodes[id].terminalValue = value
}

func (t *Tree) applyLoss(id NodeID) {
	t.nodes[id].inflight++
}

// reverseLoss undoes applyLoss on every node between id and the root.
func (t *Tree) reverseLoss(id NodeID) {
	for id != NoParent {
		n := &t.nodes[id]
		if n.inflight > 0 {
			n.inflight--
		}
		id = n.parent
	}
}

func (t *Tree) isExpanding(id NodeID) bool {
	return t.nodes[id].expanding
}

func (t *Tree) setExpanding(id NodeID, expanding bool) {
	t.nodes[id].expanding = expanding
}

// Reroot makes the root's child for action the new root and drops every node
// that is no longer reachable. It reports false when that child does not
// exist yet.
func (t *Tree) Reroot(action int) bool {
	child, err := t.Child(t.root, action)
	if err != nil {
		return false
	}

	type remap struct{ from, to NodeID }
	nodes := make([]node, 0, len(t.nodes))
	top := t.nodes[child]
	top.parent = NoParent
	top.action = -1
	top.prior = 1
	nodes = append(nodes, top)

	queue := []remap{{from: child, to: 0}}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		first := t.nodes[m.from].firstChild
		if first == noChildren {
			continue
		}
		newFirst := NodeID(len(nodes))
		for a := 0; a < t.actions; a++ {
			c := t.nodes[first+NodeID(a)]
			c.parent = m.to
			nodes = append(nodes, c)
			if c.firstChild != noChildren {
				queue = append(queue, remap{from: first + NodeID(a), to: newFirst + NodeID(a)})
			}
		}
		nodes[m.to].firstChild = newFirst
	}

	t.nodes = nodes
	t.root = 0
	return true
}

// Priors returns the root children's priors renormalised over legal cells.
func (t *Tree) Priors(legal []bool) []float64 {
	root := t.nodes[t.root]
	priors := make([]float64, t.actions)
	if root.firstChild == noChildren {
		return priors
	}
	for a := 0; a < t.actions; a++ {
		if legal[a] {
			priors[a] = t.nodes[root.firstChild+NodeID(a)].prior
		}
	}
	normalize(priors, legal)
	return priors
}

// RootValue is the root's mean value for the side to move at the root.
func (t *Tree) RootValue() float64 {
	// Root statistics belong to the edge into the root, i.e. the opponent
	return -t.nodes[t.root].value
}

// Distribution turns root visit counts into move probabilities over legal
// cells. A temperature of zero puts all mass on the most visited move, ties
// broken uniformly with rng; otherwise probabilities follow
// visits^(1/temperature). When no legal child has been visited yet, priors
// stand in for visit counts.
func (t *Tree) Distribution(temperature float64, legal []bool, rng *rand.Rand) ([]float64, error) {
	root := t.nodes[t.root]
	if root.visits == 0 {
		return nil, ErrNoSimulations
	}
	if root.firstChild == noChildren {
		return nil, fmt.Errorf("root has no children: %w", ErrNoSimulations)
	}
	if len(legal) != t.actions {
		return nil, fmt.Errorf("legal mask has %d entries, want %d: %w", len(legal), t.actions, ErrContractViolation)
	}

	weights := make([]float64, t.actions)
	visited := false
	for a := 0; a < t.actions; a++ {
		if !legal[a] {
			continue
		}
		visits := t.nodes[root.firstChild+NodeID(a)].visits
		weights[a] = float64(visits)
		if visits > 0 {
			visited = true
		}
	}
	if !visited {
		for a := 0; a < t.actions; a++ {
			if legal[a] {
				weights[a] = t.nodes[root.firstChild+NodeID(a)].prior
			}
		}
	}

	pi := make([]float64, t.actions)
	if temperature <= 0 {
		best := argmax(weights, legal, rng)
		if best < 0 {
			return nil, fmt.Errorf("root: %w", ErrNoLegalChild)
		}
		pi[best] = 1
		return pi, nil
	}

	for a, w := range weights {
		if legal[a] && w > 0 {
			pi[a] = math.Pow(w, 1/temperature)
		}
	}
	if !normalize(pi, legal) {
		return nil, fmt.Errorf("root: %w", ErrNoLegalChild)
	}
	return pi, nil
}

// argmax picks uniformly among the legal maxima of weights.
func argmax(weights []float64, legal []bool, rng *rand.Rand) int {
	best := -1
	ties := 0
	for a, w := range weights {
		if !legal[a] {
			continue
		}
		switch {
		case best < 0 || w > weights[best]:
			best = a
			ties = 1
		case w == weights[best]:
			ties++
			if rng.Intn(ties) == 0 {
				best = a
			}
		}
	}
	return best
}

// normalize scales the legal entries of p to sum to one, falling back to a
// uniform distribution when they sum to zero. It reports false when no cell is
// legal.
func normalize(p []float64, legal []bool) bool {
	sum := 0.0
	count := 0
	for a := range p {
		if !legal[a] {
			p[a] = 0
			continue
		}
		sum += p[a]
		count++
	}
	if count == 0 {
		return false
	}
	for a := range p {
		if !legal[a] {
			continue
		}
		if sum > 0 {
			p[a] /= sum
		} else {
			p[a] = 1 / float64(count)
		}
	}
	return true
}
