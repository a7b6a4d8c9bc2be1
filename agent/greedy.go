package agent

import (
	"context"
	"fmt"
	"renju/game"
	"renju/searcher"
	"time"

	"golang.org/x/exp/rand"
)

// GreedyAgent plays the candidate generator's top move without searching.
// It is a cheap sparring partner for the search agent.
type GreedyAgent struct {
	color     game.Color
	generator *game.Generator
	rng       *rand.Rand
}

func NewGreedyAgent(color game.Color, seed uint64) *GreedyAgent {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &GreedyAgent{
		color:     color,
		generator: game.NewGenerator(color),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (a *GreedyAgent) Color() game.Color {
	return a.color
}

func (a *GreedyAgent) Play(ctx context.Context, board *game.Board, lastMove game.Coord, hasLast bool, moveNumber int) (searcher.Decision, error) {
	if toMove := board.ToMove(); toMove != a.color {
		return searcher.Decision{}, fmt.Errorf("%v to move, agent plays %v: %w", toMove, a.color, ErrWrongTurn)
	}

	move, err := a.choose(board)
	if err != nil {
		return searcher.Decision{}, err
	}
	index, err := board.Index(move)
	if err != nil {
		return searcher.Decision{}, err
	}

	pi := make([]float64, board.Size()*board.Size())
	pi[index] = 1
	return searcher.Decision{Move: move, Pi: pi}, nil
}

func (a *GreedyAgent) choose(board *game.Board) (game.Coord, error) {
	if board.IsEmpty() {
		return board.Center(), nil
	}
	if board.Full() {
		return game.Coord{}, fmt.Errorf("board is full: %w", searcher.ErrNoLegalChild)
	}

	ranked, err := a.generator.Rank(board, true)
	if err != nil {
		return game.Coord{}, err
	}
	if len(ranked) == 0 {
		// Every stone is boxed in
		for i, ok := range board.Legal() {
			if ok {
				return board.Coord(i)
			}
		}
		return game.Coord{}, fmt.Errorf("no empty cell: %w", searcher.ErrNoLegalChild)
	}

	// Break ties among the best candidates at random
	best := 1
	for best < len(ranked) && ranked[best].Score == ranked[0].Score {
		best++
	}
	return ranked[a.rng.Intn(best)].Coord, nil
}

// Reset is a no-op, the agent keeps no state between moves.
func (a *GreedyAgent) Reset() {}
