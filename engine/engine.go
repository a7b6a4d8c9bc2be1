package engine

import (
	"context"
	"renju/game"
	"renju/metrics"
)

// Result of a finished game.
type Result struct {
	Winner      game.Color // Empty on a draw
	Moves       []game.Coord
	GameMetric  metrics.GameMetric
	MoveMetrics []metrics.MoveMetric
}

type Engine interface {
	// Run plays a game till five in a row, a full board or the move limit
	Run(ctx context.Context) (Result, error)
}
