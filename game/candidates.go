package game

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Number of recent moves whose neighbourhood is searched in windowed mode.
const HistoryWindow = 5

// The eight neighbours, in scan order.
var neighbourDirections = [8]Coord{
	{Row: 1, Col: 0}, {Row: 1, Col: -1}, {Row: 0, Col: -1}, {Row: -1, Col: -1},
	{Row: -1, Col: 0}, {Row: -1, Col: 1}, {Row: 0, Col: 1}, {Row: 1, Col: 1},
}

type Candidate struct {
	Coord Coord
	Score float64
}

// Generator ranks empty cells next to existing stones, forcing moves first.
// It is a move-ordering heuristic: the result is not a full legal move list.
type Generator struct {
	color   Color
	history []Coord
}

func NewGenerator(color Color) *Generator {
	return &Generator{color: color}
}

func (g *Generator) Color() Color {
	return g.color
}

// Push records a played move in the history window.
func (g *Generator) Push(c Coord) {
	g.history = append(g.history, c)
}

// Pop forgets the most recent move.
func (g *Generator) Pop() {
	if len(g.history) > 0 {
		g.history = g.history[:len(g.history)-1]
	}
}

func (g *Generator) Reset() {
	g.history = g.history[:0]
}

func (g *Generator) History() []Coord {
	return slices.Clone(g.history)
}

// Generate returns candidate cells, highest priority first. With all set every
// stone on the board is an anchor, otherwise only the last HistoryWindow moves
// are. The board is left as it was found.
func (g *Generator) Generate(b *Board, all bool) ([]Coord, error) {
	scored, err := g.Rank(b, all)
	if err != nil {
		return nil, err
	}
	coords := make([]Coord, len(scored))
	for i, s := range scored {
		coords[i] = s.Coord
	}
	return coords, nil
}

// Rank is Generate with the priority of each cell attached.
func (g *Generator) Rank(b *Board, all bool) ([]Candidate, error) {
	anchors, err := g.anchors(b, all)
	if err != nil {
		return nil, err
	}

	seen := make(map[Coord]struct{})
	var forcing, near []Candidate

scanning:
	for _, anchor := range anchors {
		for _, d := range neighbourDirections {
			pos := Coord{Row: anchor.Row + d.Row, Col: anchor.Col + d.Col}
			if !b.InBounds(pos) || b.At(pos) != Empty {
				continue
			}
			if _, ok := seen[pos]; ok {
				continue
			}
			seen[pos] = struct{}{}

			b.put(pos, g.color)
			attack := scorePoint(b, pos)
			b.put(pos, g.color.Opponent())
			defense := scorePoint(b, pos)
			b.put(pos, Empty)

			score := max(attack, defense)
			if score < ScoreLiveThree {
				near = append(near, Candidate{Coord: pos, Score: score})
				continue
			}
			forcing = append(forcing, Candidate{Coord: pos, Score: score})
			if attack == ScoreFive {
				// Winning move found
				break scanning
			}
		}
	}

	ranked := near
	if len(forcing) > 0 {
		ranked = forcing
	}
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		default:
			return 0
		}
	})
	slices.Reverse(ranked)
	return ranked, nil
}

func (g *Generator) anchors(b *Board, all bool) ([]Coord, error) {
	if all {
		return b.Occupied(), nil
	}
	window := g.history
	if len(window) > HistoryWindow {
		window = window[len(window)-HistoryWindow:]
	}
	for _, c := range window {
		if !b.InBounds(c) {
			return nil, fmt.Errorf("history move %v: %w", c, ErrOutOfBounds)
		}
	}
	return window, nil
}
