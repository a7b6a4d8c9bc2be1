package agent

import (
	"context"
	"renju/game"
	"renju/searcher"
	"testing"

	"github.com/stretchr/testify/require"
)

func place(t *testing.T, b *game.Board, color game.Color, coords ...game.Coord) {
	t.Helper()
	for _, c := range coords {
		require.NoError(t, b.Set(c, color))
	}
}

// openFour has Black to move with four in a row open at (7,2) and (7,7).
func openFour(t *testing.T) *game.Board {
	b := game.NewBoard(game.DefaultSize)
	place(t, b, game.Black, game.Coord{Row: 7, Col: 3}, game.Coord{Row: 7, Col: 4}, game.Coord{Row: 7, Col: 5}, game.Coord{Row: 7, Col: 6})
	place(t, b, game.White, game.Coord{Row: 0, Col: 0}, game.Coord{Row: 0, Col: 14}, game.Coord{Row: 14, Col: 0}, game.Coord{Row: 14, Col: 14})
	return b
}

// blockedFour has White to move facing four in a row open only at (7,7).
func blockedFour(t *testing.T) *game.Board {
	b := game.NewBoard(game.DefaultSize)
	place(t, b, game.Black, game.Coord{Row: 7, Col: 3}, game.Coord{Row: 7, Col: 4}, game.Coord{Row: 7, Col: 5}, game.Coord{Row: 7, Col: 6})
	place(t, b, game.White, game.Coord{Row: 7, Col: 2}, game.Coord{Row: 0, Col: 0}, game.Coord{Row: 0, Col: 14})
	return b
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func TestHeuristicEvaluator(t *testing.T) {
	evaluator := NewHeuristicEvaluator()

	t.Run("empty board is uniform and even", func(t *testing.T) {
		b := game.NewBoard(game.DefaultSize)

		priors, value, err := evaluator.Evaluate(game.Position{Board: b, ToMove: game.Black})

		require.NoError(t, err)
		require.Len(t, priors, 225)
		for _, p := range priors {
			require.InDelta(t, 1.0/225, p, 1e-12)
		}
		require.Equal(t, 0.0, value)
	})

	t.Run("favours the winning cell", func(t *testing.T) {
		b := openFour(t)

		priors, value, err := evaluator.Evaluate(game.Position{Board: b, ToMove: game.Black})

		require.NoError(t, err)
		require.Equal(t, 7*15+2, argmax(priors))
		require.Greater(t, priors[7*15+2], 0.9)
		require.InDelta(t, game.ScoreLiveFour/(game.ScoreFive+game.ThreatBonus), value, 1e-9)
	})

	t.Run("priors form a distribution over empty cells", func(t *testing.T) {
		b := openFour(t)

		priors, _, err := evaluator.Evaluate(game.Position{Board: b, ToMove: game.Black})

		require.NoError(t, err)
		sum := 0.0
		for i, p := range priors {
			require.GreaterOrEqual(t, p, 0.0)
			sum += p
			c, _ := b.Coord(i)
			if b.At(c) != game.Empty {
				require.Equal(t, 0.0, p, "Occupied cell %v", c)
			}
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("value is negative for the threatened side", func(t *testing.T) {
		b := openFour(t)

		priors, value, err := evaluator.Evaluate(game.Position{Board: b, ToMove: game.White})

		require.NoError(t, err)
		require.Less(t, value, 0.0)
		require.Contains(t, []int{7*15 + 2, 7*15 + 7}, argmax(priors), "Should point at a defence")
	})

	t.Run("board is left untouched", func(t *testing.T) {
		b := openFour(t)
		before := b.Cells()

		_, _, err := evaluator.Evaluate(game.Position{Board: b, ToMove: game.Black})

		require.NoError(t, err)
		require.Equal(t, before, b.Cells())
	})
}

func TestMCTSAgent(t *testing.T) {
	t.Run("opens in the centre", func(t *testing.T) {
		a := NewMCTSAgent(game.Black, NewHeuristicEvaluator(), searcher.WithSimulations(20), searcher.WithSeed(1))

		decision, err := a.Play(context.Background(), game.NewBoard(game.DefaultSize), game.Coord{}, false, 0)

		require.NoError(t, err)
		require.Equal(t, game.Coord{Row: 7, Col: 7}, decision.Move)
	})

	t.Run("refuses to move out of turn", func(t *testing.T) {
		a := NewMCTSAgent(game.White, NewHeuristicEvaluator(), searcher.WithSimulations(20))

		_, err := a.Play(context.Background(), openFour(t), game.Coord{Row: 14, Col: 14}, true, 8)

		require.ErrorIs(t, err, ErrWrongTurn)
	})

	t.Run("completes an open four", func(t *testing.T) {
		a := NewMCTSAgent(game.Black, NewHeuristicEvaluator(), searcher.WithSimulations(50), searcher.WithSeed(1))

		decision, err := a.Play(context.Background(), openFour(t), game.Coord{Row: 14, Col: 14}, true, 8)

		require.NoError(t, err)
		require.Contains(t, []game.Coord{{Row: 7, Col: 2}, {Row: 7, Col: 7}}, decision.Move)
		require.Greater(t, decision.Value, 0.0)
	})

	t.Run("blocks a four", func(t *testing.T) {
		a := NewMCTSAgent(game.White, NewHeuristicEvaluator(), searcher.WithSimulations(200), searcher.WithSeed(1))

		decision, err := a.Play(context.Background(), blockedFour(t), game.Coord{Row: 7, Col: 6}, true, 7)

		require.NoError(t, err)
		require.Equal(t, game.Coord{Row: 7, Col: 7}, decision.Move)
	})

	t.Run("stochastic policy spreads the distribution", func(t *testing.T) {
		a := NewMCTSAgent(game.Black, NewHeuristicEvaluator(), searcher.WithSimulations(60), searcher.WithSeed(1))
		a.SetStochasticPolicy(true)
		b := game.NewBoard(game.DefaultSize)
		place(t, b, game.Black, game.Coord{Row: 7, Col: 7})
		place(t, b, game.White, game.Coord{Row: 7, Col: 8})

		decision, err := a.Play(context.Background(), b, game.Coord{Row: 7, Col: 8}, true, 2)

		require.NoError(t, err)
		support := 0
		for _, p := range decision.Pi {
			if p > 0 {
				support++
			}
		}
		require.Greater(t, support, 1)
		a.Reset()
	})
}

func TestGreedyAgent(t *testing.T) {
	t.Run("opens in the centre", func(t *testing.T) {
		a := NewGreedyAgent(game.Black, 1)

		decision, err := a.Play(context.Background(), game.NewBoard(game.DefaultSize), game.Coord{}, false, 0)

		require.NoError(t, err)
		require.Equal(t, game.Coord{Row: 7, Col: 7}, decision.Move)
		require.Equal(t, 1.0, decision.Pi[7*15+7])
	})

	t.Run("takes a win", func(t *testing.T) {
		a := NewGreedyAgent(game.Black, 1)

		decision, err := a.Play(context.Background(), openFour(t), game.Coord{Row: 14, Col: 14}, true, 8)

		require.NoError(t, err)
		require.Equal(t, game.Coord{Row: 7, Col: 2}, decision.Move)
	})

	t.Run("blocks a four", func(t *testing.T) {
		a := NewGreedyAgent(game.White, 1)

		decision, err := a.Play(context.Background(), blockedFour(t), game.Coord{Row: 7, Col: 6}, true, 7)

		require.NoError(t, err)
		require.Equal(t, game.Coord{Row: 7, Col: 7}, decision.Move)
	})

	t.Run("refuses to move out of turn", func(t *testing.T) {
		a := NewGreedyAgent(game.Black, 1)

		_, err := a.Play(context.Background(), blockedFour(t), game.Coord{}, false, 7)

		require.ErrorIs(t, err, ErrWrongTurn)
	})
}
