package game

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultSize = 15

// Winning run length
const FiveInRow = 5

var (
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	ErrOccupied    = errors.New("cell is occupied")
	ErrEmptyCell   = errors.New("cell is empty")
)

// Color is the state of a cell and doubles as the side to move. Opponents are
// negations of each other.
type Color int8

const (
	White Color = -1
	Empty Color = 0
	Black Color = 1
)

func (c Color) Opponent() Color {
	return -c
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Board is a square grid stored row-major.
type Board struct {
	size   int
	cells  []Color
	stones int
}

func NewBoard(size int) *Board {
	if size <= 0 {
		panic("board size must be positive")
	}
	return &Board{
		size:  size,
		cells: make([]Color, size*size),
	}
}

func (b *Board) Size() int {
	return b.size
}

func (b *Board) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Col >= 0 && c.Row < b.size && c.Col < b.size
}

// Index flattens c into [0, size²).
func (b *Board) Index(c Coord) (int, error) {
	if !b.InBounds(c) {
		return 0, fmt.Errorf("%v on %dx%d board: %w", c, b.size, b.size, ErrOutOfBounds)
	}
	return c.Row*b.size + c.Col, nil
}

func (b *Board) Coord(index int) (Coord, error) {
	if index < 0 || index >= len(b.cells) {
		return Coord{}, fmt.Errorf("index %d on %dx%d board: %w", index, b.size, b.size, ErrOutOfBounds)
	}
	return Coord{Row: index / b.size, Col: index % b.size}, nil
}

// Center is the opening cell.
func (b *Board) Center() Coord {
	return Coord{Row: b.size / 2, Col: b.size / 2}
}

// At returns Empty for out-of-bounds coordinates.
func (b *Board) At(c Coord) Color {
	if !b.InBounds(c) {
		return Empty
	}
	return b.cells[c.Row*b.size+c.Col]
}

func (b *Board) Set(c Coord, color Color) error {
	i, err := b.Index(c)
	if err != nil {
		return err
	}
	if color == Empty {
		return b.Remove(c)
	}
	if b.cells[i] != Empty {
		return fmt.Errorf("placing %v at %v: %w", color, c, ErrOccupied)
	}
	b.cells[i] = color
	b.stones++
	return nil
}

func (b *Board) Remove(c Coord) error {
	i, err := b.Index(c)
	if err != nil {
		return err
	}
	if b.cells[i] != Empty {
		b.cells[i] = Empty
		b.stones--
	}
	return nil
}

// put and clear skip bookkeeping checks on the scorer's hot path.
func (b *Board) put(c Coord, color Color) {
	i := c.Row*b.size + c.Col
	if b.cells[i] == Empty && color != Empty {
		b.stones++
	} else if b.cells[i] != Empty && color == Empty {
		b.stones--
	}
	b.cells[i] = color
}

func (b *Board) Stones() int {
	return b.stones
}

func (b *Board) IsEmpty() bool {
	return b.stones == 0
}

func (b *Board) Full() bool {
	return b.stones == len(b.cells)
}

// ToMove assumes Black opens and the sides alternate.
func (b *Board) ToMove() Color {
	black, white := 0, 0
	for _, cell := range b.cells {
		switch cell {
		case Black:
			black++
		case White:
			white++
		}
	}
	if black > white {
		return White
	}
	return Black
}

// Occupied lists stones in row-major order.
func (b *Board) Occupied() []Coord {
	coords := make([]Coord, 0, b.stones)
	for i, cell := range b.cells {
		if cell != Empty {
			coords = append(coords, Coord{Row: i / b.size, Col: i % b.size})
		}
	}
	return coords
}

// Legal is the flattened mask of empty cells.
func (b *Board) Legal() []bool {
	mask := make([]bool, len(b.cells))
	for i, cell := range b.cells {
		mask[i] = cell == Empty
	}
	return mask
}

// IsFive reports whether the stone at c is part of an unbroken run of at least
// five in any direction.
func (b *Board) IsFive(c Coord) bool {
	color := b.At(c)
	if color == Empty {
		return false
	}
	for _, d := range lineDirections {
		run := 1
		for _, sense := range []int{1, -1} {
			for k := 1; k < FiveInRow; k++ {
				next := Coord{Row: c.Row + sense*k*d.Row, Col: c.Col + sense*k*d.Col}
				if b.At(next) != color {
					break
				}
				run++
			}
		}
		if run >= FiveInRow {
			return true
		}
	}
	return false
}

func (b *Board) Clone() *Board {
	clone := &Board{size: b.size, stones: b.stones}
	clone.cells = make([]Color, len(b.cells))
	copy(clone.cells, b.cells)
	return clone
}

// Cells exposes the flattened grid as integers (1 black, -1 white, 0 empty).
func (b *Board) Cells() []int {
	cells := make([]int, len(b.cells))
	for i, cell := range b.cells {
		cells[i] = int(cell)
	}
	return cells
}

// FromRows builds a board from rows of 1 / -1 / 0.
func FromRows(rows [][]int) (*Board, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty board: %w", ErrOutOfBounds)
	}
	b := NewBoard(len(rows))
	for r, row := range rows {
		if len(row) != b.size {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", r, len(row), b.size, ErrOutOfBounds)
		}
		for c, v := range row {
			if v == 0 {
				continue
			}
			color := Black
			if v < 0 {
				color = White
			}
			if err := b.Set(Coord{Row: r, Col: c}, color); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (b *Board) String() string {
	var sb strings.Builder
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			switch b.cells[r*b.size+c] {
			case Black:
				sb.WriteByte('X')
			case White:
				sb.WriteByte('O')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Position is what an evaluator sees: the board and whose turn it is.
type Position struct {
	Board    *Board
	ToMove   Color
	LastMove Coord
	HasLast  bool
}
