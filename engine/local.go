package engine

import (
	"context"
	"errors"
	"fmt"
	"renju/agent"
	"renju/game"
	"renju/metrics"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrIllegalMove = errors.New("illegal move")

type LocalEngine struct {
	board    *game.Board
	agents   map[game.Color]agent.Agent
	maxMoves int
}

// NewLocalEngine sets up a game on an empty board. maxMoves of 0 plays until
// the board is full.
func NewLocalEngine(size int, black, white agent.Agent, maxMoves int) *LocalEngine {
	if black.Color() != game.Black || white.Color() != game.White {
		panic("agents do not match their colors")
	}
	if maxMoves <= 0 || maxMoves > size*size {
		maxMoves = size * size
	}
	return &LocalEngine{
		board:    game.NewBoard(size),
		agents:   map[game.Color]agent.Agent{game.Black: black, game.White: white},
		maxMoves: maxMoves,
	}
}

func (e *LocalEngine) Board() *game.Board {
	return e.board
}

// Run executes the entire game loop until a winner is found.
func (e *LocalEngine) Run(ctx context.Context) (Result, error) {
	for _, a := range e.agents {
		a.Reset()
	}

	var result Result
	result.GameMetric.StartTime = time.Now()
	log.Info().Int("size", e.board.Size()).Msg("game started")

	var lastMove game.Coord
	hasLast := false
	for step := 0; step < e.maxMoves; step++ {
		color := e.board.ToMove()
		decision, err := e.agents[color].Play(ctx, e.board.Clone(), lastMove, hasLast, step)
		if err != nil {
			return result, fmt.Errorf("%v at move %d: %w", color, step+1, err)
		}
		if err := e.board.Set(decision.Move, color); err != nil {
			return result, fmt.Errorf("%v played %v at move %d: %w: %w", color, decision.Move, step+1, ErrIllegalMove, err)
		}

		result.Moves = append(result.Moves, decision.Move)
		result.MoveMetrics = append(result.MoveMetrics, metrics.MoveMetric{
			Step:         step + 1,
			Player:       int(color),
			Move:         decision.Move.String(),
			Value:        decision.Value,
			SearchMetric: decision.Metric,
		})
		log.Debug().
			Int("step", step+1).
			Str("player", color.String()).
			Str("move", decision.Move.String()).
			Float64("value", decision.Value).
			Msg("move played")

		if e.board.IsFive(decision.Move) {
			result.Winner = color
			break
		}
		if e.board.Full() {
			break
		}
		lastMove, hasLast = decision.Move, true
	}

	result.GameMetric.EndTime = time.Now()
	result.GameMetric.Duration = result.GameMetric.EndTime.Sub(result.GameMetric.StartTime)
	result.GameMetric.TotalMoves = len(result.Moves)
	result.GameMetric.Winner = int(result.Winner)

	if result.Winner == game.Empty {
		log.Info().Int("moves", len(result.Moves)).Msg("game ended in a draw")
	} else {
		log.Info().Int("moves", len(result.Moves)).Str("winner", result.Winner.String()).Msg("game over")
	}
	return result, nil
}
