package agent

import (
	"context"
	"errors"
	"fmt"
	"renju/game"
	"renju/searcher"
)

var ErrWrongTurn = errors.New("not this agent's turn")

type Agent interface {
	Color() game.Color
	// Play returns the agent's move on board together with its move policy
	// and search metrics (if collected). lastMove is the opponent's previous
	// move when hasLast is set.
	Play(ctx context.Context, board *game.Board, lastMove game.Coord, hasLast bool, moveNumber int) (searcher.Decision, error)
	// Reset forgets everything learned during the current game
	Reset()
}

type MCTSAgent struct {
	color game.Color
	mcts  *searcher.MCTS
}

// NewMCTSAgent returns an agent that searches with the given evaluator.
func NewMCTSAgent(color game.Color, evaluator searcher.Evaluator, options ...searcher.Option) *MCTSAgent {
	return &MCTSAgent{
		color: color,
		mcts:  searcher.NewMCTS(evaluator, options...),
	}
}

func (a *MCTSAgent) Color() game.Color {
	return a.color
}

func (a *MCTSAgent) Play(ctx context.Context, board *game.Board, lastMove game.Coord, hasLast bool, moveNumber int) (searcher.Decision, error) {
	if toMove := board.ToMove(); toMove != a.color {
		return searcher.Decision{}, fmt.Errorf("%v to move, agent plays %v: %w", toMove, a.color, ErrWrongTurn)
	}
	return a.mcts.ChooseMove(ctx, board, lastMove, hasLast, moveNumber)
}

// SetSelfPlay makes the agent sample its opening moves, for playing against
// itself.
func (a *MCTSAgent) SetSelfPlay(selfPlay bool) {
	a.mcts.SetSelfPlay(selfPlay)
}

// SetStochasticPolicy makes the agent sample every move from the visit
// distribution.
func (a *MCTSAgent) SetStochasticPolicy(stochastic bool) {
	a.mcts.SetExploration(stochastic)
}

func (a *MCTSAgent) Reset() {
	a.mcts.Reset()
}
