package engine

import (
	"context"
	"path/filepath"
	"renju/agent"
	"renju/game"
	"renju/metrics"
	"renju/searcher"
	"testing"

	"github.com/stretchr/testify/require"
)

// scripted plays a fixed sequence of moves.
type scripted struct {
	color game.Color
	moves []game.Coord
	next  int
}

func (s *scripted) Color() game.Color {
	return s.color
}

func (s *scripted) Play(ctx context.Context, board *game.Board, lastMove game.Coord, hasLast bool, moveNumber int) (searcher.Decision, error) {
	move := s.moves[s.next]
	s.next++
	return searcher.Decision{Move: move}, nil
}

func (s *scripted) Reset() {
	s.next = 0
}

func row(r int, cols ...int) []game.Coord {
	coords := make([]game.Coord, len(cols))
	for i, c := range cols {
		coords[i] = game.Coord{Row: r, Col: c}
	}
	return coords
}

func TestLocalEngine(t *testing.T) {
	t.Run("five in a row wins", func(t *testing.T) {
		black := &scripted{color: game.Black, moves: row(0, 0, 1, 2, 3, 4)}
		white := &scripted{color: game.White, moves: row(1, 0, 1, 2, 3)}

		result, err := NewLocalEngine(9, black, white, 0).Run(context.Background())

		require.NoError(t, err)
		require.Equal(t, game.Black, result.Winner)
		require.Len(t, result.Moves, 9)
		require.Equal(t, 9, result.GameMetric.TotalMoves)
		require.Equal(t, 1, result.GameMetric.Winner)
		require.Len(t, result.MoveMetrics, 9)
		require.Equal(t, -1, result.MoveMetrics[1].Player)
		require.Equal(t, "(0,4)", result.MoveMetrics[8].Move)
	})

	t.Run("illegal move ends the game", func(t *testing.T) {
		black := &scripted{color: game.Black, moves: row(0, 0, 1)}
		white := &scripted{color: game.White, moves: row(0, 0)}

		_, err := NewLocalEngine(9, black, white, 0).Run(context.Background())

		require.ErrorIs(t, err, ErrIllegalMove)
		require.ErrorIs(t, err, game.ErrOccupied)
	})

	t.Run("full board is a draw", func(t *testing.T) {
		e := NewLocalEngine(3, agent.NewGreedyAgent(game.Black, 1), agent.NewGreedyAgent(game.White, 2), 0)

		result, err := e.Run(context.Background())

		require.NoError(t, err)
		require.Equal(t, game.Empty, result.Winner)
		require.Len(t, result.Moves, 9)
		require.True(t, e.Board().Full())
	})

	t.Run("stops at the move limit", func(t *testing.T) {
		e := NewLocalEngine(9, agent.NewGreedyAgent(game.Black, 1), agent.NewGreedyAgent(game.White, 2), 4)

		result, err := e.Run(context.Background())

		require.NoError(t, err)
		require.Equal(t, game.Empty, result.Winner)
		require.Len(t, result.Moves, 4)
		require.Equal(t, 4, e.Board().Stones())
	})

	t.Run("greedy game ends with a five or a full board", func(t *testing.T) {
		e := NewLocalEngine(9, agent.NewGreedyAgent(game.Black, 3), agent.NewGreedyAgent(game.White, 4), 0)

		result, err := e.Run(context.Background())

		require.NoError(t, err)
		last := result.Moves[len(result.Moves)-1]
		if result.Winner == game.Empty {
			require.True(t, e.Board().Full())
		} else {
			require.True(t, e.Board().IsFive(last))
			require.Equal(t, result.Winner, e.Board().At(last))
		}
	})

	t.Run("panics on swapped agents", func(t *testing.T) {
		require.Panics(t, func() {
			NewLocalEngine(9, agent.NewGreedyAgent(game.White, 1), agent.NewGreedyAgent(game.Black, 1), 0)
		})
	})
}

func TestMatch(t *testing.T) {
	root := t.TempDir()
	writer, err := metrics.NewWriter(root, "test")
	require.NoError(t, err)
	match := Match{
		Name: "test",
		Agents: [2]metrics.AgentConfig{
			{ID: 1, Kind: "greedy"},
			{ID: 2, Kind: "mcts", Simulations: 20},
		},
		Games:    2,
		Size:     7,
		MaxMoves: 12,
		Parallel: 2,
		Seed:     1,
	}

	summary, err := match.Run(context.Background(), writer)

	require.NoError(t, err)
	require.Equal(t, 2, summary.Wins[0]+summary.Wins[1]+summary.Draws)
	require.Len(t, summary.Games, 2)
	require.Equal(t, 1, summary.Games[0].Black)
	require.Equal(t, 2, summary.Games[1].Black, "Colors should alternate")
	moves := 0
	for _, g := range summary.Games {
		moves += g.TotalMoves
	}
	require.Len(t, summary.Moves, moves)
	for _, name := range []string{"agent_configs.csv", "game_records.csv", "move_records.csv"} {
		require.FileExists(t, filepath.Join(writer.Dir(), name))
	}
}
