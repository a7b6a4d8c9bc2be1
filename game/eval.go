package game

import "fmt"

// Pattern scores on the discrete threat scale.
const (
	ScoreNone      = 0.0
	ScoreTwo       = 2.0
	ScoreLiveTwo   = 2.5
	ScoreThree     = 3.0
	ScoreLiveThree = 3.5
	ScoreFour      = 4.0
	ScoreLiveFour  = 4.5
	ScoreFive      = 5.0
)

// Opponent threats are slightly more urgent than our own of the same shape.
const ThreatBonus = 0.1

// Cells scanned outward from the scored stone in each sense.
const scanReach = 4

// Horizontal, vertical and both diagonals.
var lineDirections = [4]Coord{{Row: 1, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}, {Row: 1, Col: -1}}

type run struct {
	count       int  // same-colour stones seen, gaps included
	consecutive int  // same-colour stones before the first gap
	blocked     bool // opponent stone directly closes the run
}

// EvaluatePoint scores the strongest line pattern through the stone at c.
func EvaluatePoint(b *Board, c Coord) (float64, error) {
	if !b.InBounds(c) {
		return ScoreNone, fmt.Errorf("scoring %v: %w", c, ErrOutOfBounds)
	}
	if b.At(c) == Empty {
		return ScoreNone, fmt.Errorf("scoring %v: %w", c, ErrEmptyCell)
	}
	return scorePoint(b, c), nil
}

func scorePoint(b *Board, c Coord) float64 {
	color := b.At(c)
	maxCount := 0
	maxScore := ScoreNone
	for _, d := range lineDirections {
		forward := scan(b, c, d, color)
		backward := scan(b, c, Coord{Row: -d.Row, Col: -d.Col}, color)
		count := 1 + forward.count + backward.count
		consecutive := 1 + forward.consecutive + backward.consecutive

		if count < maxCount {
			continue
		}
		maxCount = count
		if count >= FiveInRow {
			return ScoreFive
		}

		score := classify(count, consecutive, forward.blocked, backward.blocked)
		if score >= maxScore {
			if maxScore == ScoreFour {
				// Double four, or four plus live three
				maxScore = ScoreLiveFour
			} else {
				maxScore = score
			}
		}
	}
	return maxScore
}

// scan walks up to scanReach cells from c along d. It tolerates one empty
// cell, gives up at the second, and stops at an opponent stone or the edge.
func scan(b *Board, c Coord, d Coord, color Color) run {
	var r run
	gaps := 0
	for k := 1; k <= scanReach; k++ {
		next := Coord{Row: c.Row + k*d.Row, Col: c.Col + k*d.Col}
		if !b.InBounds(next) {
			break
		}
		cell := b.At(next)
		if cell == color {
			r.count++
			if gaps == 0 {
				r.consecutive++
			}
			continue
		}
		if cell == color.Opponent() {
			if gaps == 0 {
				r.blocked = true
			}
			break
		}
		gaps++
		if gaps == 2 {
			break
		}
	}
	return r
}

func classify(count, consecutive int, blocked1, blocked2 bool) float64 {
	bothOpen := !blocked1 && !blocked2
	oneOpen := !blocked1 || !blocked2
	switch count {
	case 4:
		if bothOpen && consecutive == count {
			return ScoreLiveFour
		}
		if oneOpen {
			return ScoreFour
		}
	case 3:
		if bothOpen {
			return ScoreLiveThree
		}
		if oneOpen {
			return ScoreThree
		}
	case 2:
		if bothOpen {
			return ScoreLiveTwo
		}
		if oneOpen {
			return ScoreTwo
		}
	}
	return ScoreNone
}

// Evaluate scores the whole board for color: the largest threat on the board,
// positive when it belongs to color and negative when it belongs to the
// opponent.
func Evaluate(b *Board, color Color) float64 {
	score := 0.0
	for _, c := range b.Occupied() {
		point := scorePoint(b, c)
		if b.At(c) != color {
			point += ThreatBonus
			if abs(score) < point {
				score = -point
			}
		} else if abs(score) < point {
			score = point
		}
	}
	return score
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
