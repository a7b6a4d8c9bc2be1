package engine

import (
	"context"
	"fmt"
	"renju/agent"
	"renju/game"
	"renju/metrics"
	"renju/searcher"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Match plays Games games between two agent configurations, swapping colors
// after every game.
type Match struct {
	Name     string
	Agents   [2]metrics.AgentConfig
	Games    int
	Size     int
	MaxMoves int
	Parallel int // Games played at once
	Seed     uint64
	// Search options shared by every MCTS agent, before the per-agent budget
	Options []searcher.Option
	// Evaluator for MCTS agents, the heuristic one when nil
	Evaluator searcher.Evaluator
}

// Summary counts wins per agent configuration, in the order of Match.Agents.
type Summary struct {
	Wins  [2]int
	Draws int
	Games []metrics.GameRecord
	Moves []metrics.MoveRecord
}

// Run plays the match and, when writer is not nil, stores its records.
func (m Match) Run(ctx context.Context, writer *metrics.Writer) (Summary, error) {
	log.Info().Msgf("starting %s match of %d games between agent %d and agent %d...", m.Name, m.Games, m.Agents[0].ID, m.Agents[1].ID)

	var (
		mu      sync.Mutex
		summary Summary
	)
	summary.Games = make([]metrics.GameRecord, m.Games)
	moves := make([][]metrics.MoveRecord, m.Games)

	g, ctx := errgroup.WithContext(ctx)
	if m.Parallel > 0 {
		g.SetLimit(m.Parallel)
	}
	for i := 0; i < m.Games; i++ {
		i := i
		g.Go(func() error {
			// Alternate who plays black
			first, second := i%2, 1-i%2
			black := m.createAgent(m.Agents[first], game.Black, uint64(2*i+1))
			white := m.createAgent(m.Agents[second], game.White, uint64(2*i+2))

			result, err := NewLocalEngine(m.Size, black, white, m.MaxMoves).Run(ctx)
			if err != nil {
				return fmt.Errorf("game %d: %w", i+1, err)
			}

			record := metrics.GameRecord{
				ID:         i + 1,
				Black:      m.Agents[first].ID,
				White:      m.Agents[second].ID,
				Winner:     winnerName(result.Winner),
				GameMetric: result.GameMetric,
			}
			records := make([]metrics.MoveRecord, len(result.MoveMetrics))
			for j, mm := range result.MoveMetrics {
				records[j] = metrics.MoveRecord{Game: i + 1, MoveMetric: mm}
			}

			mu.Lock()
			defer mu.Unlock()
			summary.Games[i] = record
			moves[i] = records
			switch result.Winner {
			case game.Black:
				summary.Wins[first]++
			case game.White:
				summary.Wins[second]++
			default:
				summary.Draws++
			}
			log.Info().Msgf("completed game %d of %d with winner: %s", i+1, m.Games, record.Winner)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for _, records := range moves {
		summary.Moves = append(summary.Moves, records...)
	}

	log.Info().
		Int("agent1_wins", summary.Wins[0]).
		Int("agent2_wins", summary.Wins[1]).
		Int("draws", summary.Draws).
		Msgf("completed %s match", m.Name)

	if writer == nil {
		return summary, nil
	}
	if err := writer.WriteAgentConfigs(m.Agents[:]); err != nil {
		return summary, err
	}
	log.Info().Msg("stored agent configs")
	if err := writer.WriteGameRecords(summary.Games); err != nil {
		return summary, err
	}
	log.Info().Msg("stored game records")
	if err := writer.WriteMoveRecords(summary.Moves); err != nil {
		return summary, err
	}
	log.Info().Str("dir", writer.Dir()).Msg("stored move records")
	return summary, nil
}

func (m Match) createAgent(config metrics.AgentConfig, color game.Color, stream uint64) agent.Agent {
	seed := uint64(0)
	if m.Seed != 0 {
		seed = m.Seed*1000 + stream
	}
	if config.Kind == "greedy" {
		return agent.NewGreedyAgent(color, seed)
	}

	options := append([]searcher.Option{}, m.Options...)
	if config.Goroutines > 0 {
		options = append(options, searcher.WithGoroutines(config.Goroutines))
	}
	if config.Simulations > 0 {
		options = append(options, searcher.WithSimulations(config.Simulations))
	}
	if config.Duration > 0 {
		options = append(options, searcher.WithDuration(config.Duration))
		if config.Simulations == 0 {
			options = append(options, searcher.WithSimulations(0))
		}
	}
	if seed != 0 {
		options = append(options, searcher.WithSeed(seed))
	}
	options = append(options, searcher.WithMetrics())
	evaluator := m.Evaluator
	if evaluator == nil {
		evaluator = agent.NewHeuristicEvaluator()
	}
	return agent.NewMCTSAgent(color, evaluator, options...)
}

func winnerName(winner game.Color) string {
	if winner == game.Empty {
		return "draw"
	}
	return winner.String()
}
