package agent

import (
	"math"
	"renju/game"
)

// Share of the prior mass spread evenly over every empty cell, so that moves
// the candidate generator skips can still be explored.
const DefaultPriorFloor = 0.05

// HeuristicEvaluator scores positions with the pattern scorer instead of a
// learned model. Priors are a softmax over the candidate generator's
// priorities and the value is the strongest pattern on the board, scaled to
// [-1, 1].
type HeuristicEvaluator struct {
	// Temperature of the softmax over candidate priorities
	Temperature float64
	PriorFloor  float64
}

func NewHeuristicEvaluator() HeuristicEvaluator {
	return HeuristicEvaluator{Temperature: 1, PriorFloor: DefaultPriorFloor}
}

func (e HeuristicEvaluator) Evaluate(pos game.Position) ([]float64, float64, error) {
	board := pos.Board
	priors := make([]float64, board.Size()*board.Size())

	generator := game.NewGenerator(pos.ToMove)
	ranked, err := generator.Rank(board, true)
	if err != nil {
		return nil, 0, err
	}
	if err := e.candidatePriors(board, ranked, priors); err != nil {
		return nil, 0, err
	}

	value := game.Evaluate(board, pos.ToMove) / (game.ScoreFive + game.ThreatBonus)
	return priors, math.Max(-1, math.Min(1, value)), nil
}

func (e HeuristicEvaluator) candidatePriors(board *game.Board, ranked []game.Candidate, priors []float64) error {
	legal := board.Legal()
	empty := 0
	for _, ok := range legal {
		if ok {
			empty++
		}
	}
	if empty == 0 {
		return nil
	}

	floor := e.PriorFloor
	if len(ranked) == 0 {
		floor = 1
	}
	for i, ok := range legal {
		if ok {
			priors[i] = floor / float64(empty)
		}
	}
	if len(ranked) == 0 {
		return nil
	}

	temperature := e.Temperature
	if temperature <= 0 {
		temperature = 1
	}
	// Ranked is sorted, the first candidate has the highest priority
	top := ranked[0].Score
	weights := make([]float64, len(ranked))
	sum := 0.0
	for i, c := range ranked {
		weights[i] = math.Exp((c.Score - top) / temperature)
		sum += weights[i]
	}
	for i, c := range ranked {
		index, err := board.Index(c.Coord)
		if err != nil {
			return err
		}
		priors[index] += (1 - floor) * weights[i] / sum
	}
	return nil
}
