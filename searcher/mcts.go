package searcher

import (
	"context"
	"fmt"
	"math"
	"renju/game"
	"renju/metrics"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

type Option func(mcts *MCTS)

// Decision is the outcome of one search.
type Decision struct {
	Move   game.Coord
	Pi     []float64 // Move distribution over every cell
	Priors []float64 // Evaluator priors at the root, renormalised over legal cells
	Value  float64   // Root value for the side to move
	Metric metrics.SearchMetric
}

type MCTS struct {
	evaluator        Evaluator
	simulations      int
	duration         time.Duration
	goroutines       int
	cPuct            float64
	virtualLoss      float64
	explorationMoves int
	reuse            bool
	selfPlay         bool
	exploration      bool
	rng              *rand.Rand
	metrics          metrics.Collector

	mu        sync.Mutex // Guards tree during a search
	state     State
	tree      *Tree
	rootCells []int // Board at the root, to validate tree reuse
	lastMove  game.Coord
	hasLast   bool
}

func WithSimulations(simulations int) Option {
	return func(m *MCTS) {
		if simulations >= 0 {
			m.simulations = simulations
		}
	}
}

// WithDuration bounds every search by a deadline, checked between
// simulations.
func WithDuration(duration time.Duration) Option {
	return func(m *MCTS) {
		if duration > 0 {
			m.duration = duration
		}
	}
}

func WithGoroutines(goroutines int) Option {
	return func(m *MCTS) {
		if goroutines > 0 {
			m.goroutines = goroutines
		}
	}
}

func WithCPuct(c float64) Option {
	return func(m *MCTS) {
		if c > 0 {
			m.cPuct = c
		}
	}
}

func WithVirtualLoss(loss float64) Option {
	return func(m *MCTS) {
		if loss >= 0 {
			m.virtualLoss = loss
		}
	}
}

// WithExplorationMoves sets how many opening moves are sampled proportionally
// to visits in self-play mode.
func WithExplorationMoves(moves int) Option {
	return func(m *MCTS) {
		if moves >= 0 {
			m.explorationMoves = moves
		}
	}
}

func WithTreeReuse(reuse bool) Option {
	return func(m *MCTS) {
		m.reuse = reuse
	}
}

func WithSeed(seed uint64) Option {
	return func(m *MCTS) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

func WithMetrics() Option {
	return func(m *MCTS) {
		m.metrics = metrics.NewCollector()
	}
}

func NewMCTS(evaluator Evaluator, options ...Option) *MCTS {
	if evaluator == nil {
		panic("MCTS needs an evaluator")
	}
	m := &MCTS{ // Default values
		evaluator:        evaluator,
		simulations:      DefaultSimulations,
		goroutines:       1,
		cPuct:            DefaultCPuct,
		virtualLoss:      DefaultVirtualLoss,
		explorationMoves: 0,
		reuse:            true,
		rng:              rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		metrics:          metrics.NewDummyCollector(),
	}
	for _, option := range options {
		option(m)
	}
	if m.simulations <= 0 && m.duration <= 0 {
		panic("Must specify search simulations or duration")
	}
	return m
}

// SetSelfPlay switches to playing both sides: opening moves are sampled from
// the visit distribution for WithExplorationMoves plies.
func (m *MCTS) SetSelfPlay(selfPlay bool) {
	m.selfPlay = selfPlay
}

// SetExploration samples every move proportionally to visits instead of
// playing the most visited one.
func (m *MCTS) SetExploration(exploration bool) {
	m.exploration = exploration
}

// Reset discards the search tree.
func (m *MCTS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tree = nil
	m.rootCells = nil
	m.state = Idle
}

func (m *MCTS) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Tree exposes the current search tree, nil before the first search.
func (m *MCTS) Tree() *Tree {
	return m.tree
}

// ChooseMove searches from board and commits to a move. lastMove is the
// opponent's reply to our previous move, used to reuse the subtree under it.
func (m *MCTS) ChooseMove(ctx context.Context, board *game.Board, lastMove game.Coord, hasLast bool, moveNumber int) (Decision, error) {
	if board.IsEmpty() {
		return m.opening(board)
	}
	if board.Full() {
		return Decision{}, fmt.Errorf("board is full: %w", ErrNoLegalChild)
	}

	m.prepareRoot(board, lastMove, hasLast)

	m.setState(Simulating)
	m.metrics.Start(m.goroutines, m.simulations)
	err := m.runSimulations(ctx, board)
	metric := m.metrics.Complete()
	if err != nil {
		m.Reset()
		return Decision{}, err
	}
	m.setState(Ready)

	legal := board.Legal()
	pi, err := m.extractDistribution(m.temperature(moveNumber), legal)
	if err != nil {
		m.Reset()
		return Decision{}, err
	}
	action := m.sample(pi)
	move, err := board.Coord(action)
	if err != nil {
		m.Reset()
		return Decision{}, err
	}

	decision := Decision{
		Move:   move,
		Pi:     pi,
		Priors: m.tree.Priors(legal),
		Value:  m.tree.RootValue(),
		Metric: metric,
	}

	log.Debug().
		Str("move", move.String()).
		Float64("value", decision.Value).
		Int("episodes", metric.Episodes).
		Int("nodes", m.tree.Len()).
		Dur("elapsed", metric.Duration).
		Msg("move chosen")

	m.commit(board, action, move)
	return decision, nil
}

// opening plays the centre of an empty board without searching.
func (m *MCTS) opening(board *game.Board) (Decision, error) {
	move := board.Center()
	action, err := board.Index(move)
	if err != nil {
		return Decision{}, err
	}
	pi := make([]float64, board.Size()*board.Size())
	pi[action] = 1

	m.Reset()
	return Decision{Move: move, Pi: pi}, nil
}

func (m *MCTS) temperature(moveNumber int) float64 {
	if m.exploration || (m.selfPlay && moveNumber < m.explorationMoves) {
		return 1
	}
	return 0
}

func (m *MCTS) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state
}

// prepareRoot reuses the subtree matching board when there is one and starts
// a fresh tree otherwise.
func (m *MCTS) prepareRoot(board *game.Board, lastMove game.Coord, hasLast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastMove, m.hasLast = lastMove, hasLast
	cells := board.Cells()
	if m.reuse && m.tree != nil {
		if slices.Equal(cells, m.rootCells) {
			m.metrics.SetTreeReset(false)
			return
		}
		if hasLast && m.followsRoot(board, lastMove) {
			action, _ := board.Index(lastMove)
			if m.tree.Reroot(action) {
				m.rootCells = cells
				m.metrics.SetTreeReset(false)
				return
			}
		} else {
			log.Warn().Msgf("board does not follow the search root by %v, resetting tree", lastMove)
		}
	}

	m.tree = NewTree(board.Size(), board.ToMove(), m.cPuct)
	m.tree.virtualLoss = m.virtualLoss
	m.rootCells = cells
	m.metrics.SetTreeReset(true)
}

// followsRoot reports whether board is the root position plus lastMove.
func (m *MCTS) followsRoot(board *game.Board, lastMove game.Coord) bool {
	previous := board.Clone()
	if previous.At(lastMove) == game.Empty || previous.At(lastMove) != m.tree.Color(m.tree.Root()) {
		return false
	}
	if err := previous.Remove(lastMove); err != nil {
		return false
	}
	return slices.Equal(previous.Cells(), m.rootCells)
}

// commit moves the root to the chosen child so the subtree survives into the
// next decision.
func (m *MCTS) commit(board *game.Board, action int, move game.Coord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Idle
	if !m.reuse || !m.tree.Reroot(action) {
		m.tree = nil
		m.rootCells = nil
		return
	}
	next := board.Clone()
	if err := next.Set(move, board.ToMove()); err != nil {
		m.tree = nil
		m.rootCells = nil
		return
	}
	m.rootCells = next.Cells()
}

func (m *MCTS) extractDistribution(temperature float64, legal []bool) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tree.Distribution(temperature, legal, m.rng)
}

// sample draws an action from pi.
func (m *MCTS) sample(pi []float64) int {
	r := m.rng.Float64()
	last := -1
	for a, p := range pi {
		if p <= 0 {
			continue
		}
		last = a
		r -= p
		if r < 0 {
			return a
		}
	}
	return last
}

func (m *MCTS) runSimulations(ctx context.Context, board *game.Board) error {
	if m.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.duration)
		defer cancel()
	}

	m.mu.Lock()
	before := m.tree.Visits(m.tree.Root())
	m.mu.Unlock()

	var err error
	if m.goroutines > 1 {
		err = m.parallel(ctx, board)
	} else {
		err = m.iterate(ctx, board)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Every completed simulation passes through the root.
	if m.tree.Visits(m.tree.Root()) == before {
		return ErrNoSimulations
	}
	return nil
}

// iterate runs simulations one after another until the budget or the
// deadline is reached.
func (m *MCTS) iterate(ctx context.Context, board *game.Board) error {
	for i := 0; m.simulations == 0 || i < m.simulations; i++ {
		if ctx.Err() != nil {
			log.Debug().Int("episodes", i).Msg("search time ran out")
			return nil
		}
		if _, err := m.simulate(board); err != nil {
			return err
		}
		m.metrics.AddEpisode()
	}
	return nil
}

// parallel shares the tree between goroutines, using virtual loss to spread
// them over different paths.
func (m *MCTS) parallel(ctx context.Context, board *game.Board) error {
	var task chan any
	if m.simulations > 0 {
		task = make(chan any, m.simulations)
		for i := 0; i < m.simulations; i++ {
			task <- nil
		}
		close(task)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < m.goroutines; i++ {
		g.Go(func() error {
			for {
				if task != nil {
					if _, ok := <-task; !ok {
						return nil
					}
				}
				if ctx.Err() != nil {
					return nil
				}
				if err := m.simulateUntilDone(ctx, board); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

func (m *MCTS) simulateUntilDone(ctx context.Context, board *game.Board) error {
	for ctx.Err() == nil {
		done, err := m.simulate(board)
		if err != nil {
			return err
		}
		if done {
			m.metrics.AddEpisode()
			return nil
		}
		m.metrics.AddCollision()
		runtime.Gosched()
	}
	return nil
}

// simulate runs one select, expand, evaluate and backup pass on a copy of the
// root board. It reports false when the leaf it reached was already being
// expanded by another goroutine, in which case nothing changed.
func (m *MCTS) simulate(root *game.Board) (bool, error) {
	board := root.Clone()

	m.mu.Lock()
	leaf, move, played, err := m.descend(board)
	if err != nil {
		m.mu.Unlock()
		return false, err
	}
	t := m.tree

	if played && !t.IsTerminal(leaf) && t.IsLeaf(leaf) {
		if board.IsFive(move) {
			t.MarkTerminal(leaf, LOSS)
		} else if board.Full() {
			t.MarkTerminal(leaf, DRAW)
		}
	}
	if t.IsTerminal(leaf) {
		err := m.backup(leaf, t.TerminalValue(leaf))
		m.mu.Unlock()
		m.metrics.AddTerminal()
		return true, err
	}
	if t.isExpanding(leaf) {
		t.reverseLoss(leaf)
		m.mu.Unlock()
		return false, nil
	}
	t.setExpanding(leaf, true)
	pos := game.Position{Board: board, ToMove: t.Color(leaf), LastMove: move, HasLast: played}
	if !played {
		pos.LastMove, pos.HasLast = m.lastMove, m.hasLast
	}
	m.mu.Unlock()

	priors, value, err := m.evaluator.Evaluate(pos)

	m.mu.Lock()
	defer m.mu.Unlock()
	t.setExpanding(leaf, false)
	if err == nil {
		err = validateValue(value)
	}
	if err == nil {
		err = t.Expand(leaf, priors)
	}
	if err != nil {
		t.reverseLoss(leaf)
		return false, fmt.Errorf("evaluating node %d: %w", leaf, err)
	}
	return true, m.backup(leaf, value)
}

// descend follows Select from the root to a leaf or terminal node, playing
// each move on board. It returns the node reached and the last move played.
// Virtual loss is only applied when several goroutines share the tree.
func (m *MCTS) descend(board *game.Board) (NodeID, game.Coord, bool, error) {
	t := m.tree
	id := t.Root()
	legal := board.Legal()
	var move game.Coord
	played := false

	for !t.IsLeaf(id) && !t.IsTerminal(id) {
		child, action, err := t.Select(id, legal)
		if err != nil {
			t.reverseLoss(id)
			return NoParent, move, played, err
		}
		move, err = board.Coord(action)
		if err == nil {
			err = board.Set(move, t.Color(id))
		}
		if err != nil {
			t.reverseLoss(id)
			return NoParent, move, played, err
		}
		legal[action] = false
		if m.goroutines > 1 {
			t.applyLoss(child)
		}
		id = child
		played = true
	}
	return id, move, played, nil
}

// backup records value, given for the side to move at leaf, along the path.
// Node statistics belong to the edge into the node, so the leaf itself is
// credited from its parent's point of view.
func (m *MCTS) backup(leaf NodeID, value float64) error {
	m.tree.reverseLoss(leaf)
	return m.tree.Backup(leaf, -value)
}

func validateValue(value float64) error {
	if math.IsNaN(value) || value < LOSS || value > WIN {
		return fmt.Errorf("value %v outside [%v, %v]: %w", value, LOSS, WIN, ErrContractViolation)
	}
	return nil
}
