package searcher

import (
	"errors"
	"renju/game"
)

// Hyperparameters for MCTS

const DefaultCPuct = 5.0 // Exploration constant

const DefaultSimulations = 400

// Use values in [-1, 1] to estimate the expected outcome
const WIN = 1.0
const LOSS = -WIN
const DRAW = 0.0

// Virtual loss applied per in-flight simulation when searching in parallel
const DefaultVirtualLoss = 1.0

var (
	ErrNoLegalChild      = errors.New("no legal child to select")
	ErrContractViolation = errors.New("evaluator contract violation")
	ErrNoSimulations     = errors.New("no simulations completed")
	ErrAlreadyExpanded   = errors.New("node is already expanded")
	ErrTerminal          = errors.New("node is terminal")
)

// Evaluator maps a position to move priors over every cell (flattened, one
// per cell) and a value in [-1, 1] for the side to move.
type Evaluator interface {
	Evaluate(pos game.Position) (priors []float64, value float64, err error)
}

type EvaluatorFunc func(pos game.Position) ([]float64, float64, error)

func (f EvaluatorFunc) Evaluate(pos game.Position) ([]float64, float64, error) {
	return f(pos)
}

// State of the controller within one decision
type State int

const (
	Idle State = iota
	Simulating
	Ready
)

func (s State) String() string {
	switch s {
	case Simulating:
		return "simulating"
	case Ready:
		return "ready"
	default:
		return "idle"
	}
}
