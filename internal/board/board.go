package board

import (
	"errors"
	"fmt"
)

var (
	ErrOccupied    = errors.New("cell is occupied")
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	ErrSuicide     = errors.New("placement leaves own group without liberties")
	ErrInvalidSize = errors.New("unsupported board size")
	ErrEmptyColor  = errors.New("cannot place an empty cell")
)

// Cell is the content of one intersection.
type Cell uint8

const (
	Empty Cell = iota
	Black
	White
)

func (c Cell) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Opponent returns the other stone colour; Empty maps to Empty.
func (c Cell) Opponent() Cell {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// SuicidePolicy decides what happens when a placement leaves the placer's own
// group with no liberties after opponent captures were resolved.
type SuicidePolicy int

const (
	// SuicideAllow keeps the stone on the board.
	SuicideAllow SuicidePolicy = iota
	// SuicideForbid rejects the placement with ErrSuicide.
	SuicideForbid
)

func ParseSuicidePolicy(s string) SuicidePolicy {
	if s == "forbid" || s == "reject" {
		return SuicideForbid
	}
	return SuicideAllow
}

// Point is a zero-based (row, col) pair.
type Point struct {
	Row int
	Col int
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

var supportedSizes = map[int]struct{}{9: {}, 13: {}, 15: {}, 19: {}}

// ValidSize reports whether size is one of the supported board sizes.
func ValidSize(size int) bool {
	_, ok := supportedSizes[size]
	return ok
}

// Board is a square grid of cells stored row-major.
type Board struct {
	size     int
	cells    []Cell
	lastMove *Point
	suicide  SuicidePolicy
}

func New(size int) (*Board, error) {
	if !ValidSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	b := &Board{}
	b.reset(size)
	return b, nil
}

// WithSuicidePolicy sets the self-capture policy and returns the board.
func (b *Board) WithSuicidePolicy(p SuicidePolicy) *Board {
	b.suicide = p
	return b
}

func (b *Board) SuicidePolicy() SuicidePolicy { return b.suicide }

// Reset empties every cell and clears the last move.
func (b *Board) Reset() { b.reset(b.size) }

func (b *Board) reset(size int) {
	b.size = size
	b.cells = make([]Cell, size*size)
	b.lastMove = nil
}

func (b *Board) Size() int { return b.size }

func (b *Board) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < b.size && col < b.size
}

// At returns the cell at (row, col); out-of-bounds reads are Empty.
func (b *Board) At(row, col int) Cell {
	if !b.InBounds(row, col) {
		return Empty
	}
	return b.cells[b.index(row, col)]
}

// Set writes a cell without rule checks. Only decoders use it.
func (b *Board) Set(row, col int, c Cell) error {
	if !b.InBounds(row, col) {
		return ErrOutOfBounds
	}
	b.cells[b.index(row, col)] = c
	return nil
}

// SetLastMove records the highlight point; nil clears it.
func (b *Board) SetLastMove(p *Point) {
	if p == nil {
		b.lastMove = nil
		return
	}
	cp := *p
	b.lastMove = &cp
}

func (b *Board) LastMove() (Point, bool) {
	if b.lastMove == nil {
		return Point{}, false
	}
	return *b.lastMove, true
}

// Place puts a stone of colour c at (row, col) and removes every adjacent
// opponent group left without liberties. It returns the number of removed stones.
func (b *Board) Place(row, col int, c Cell) (int, error) {
	if c != Black && c != White {
		return 0, ErrEmptyColor
	}
	if !b.InBounds(row, col) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfBounds, Point{row, col})
	}
	idx := b.index(row, col)
	if b.cells[idx] != Empty {
		return 0, fmt.Errorf("%w: %s", ErrOccupied, Point{row, col})
	}

	b.cells[idx] = c
	opp := c.Opponent()
	var dead [][]Point
	for _, n := range b.neighbors(row, col) {
		if b.At(n.Row, n.Col) != opp {
			continue
		}
		if containsGroup(dead, n) {
			continue
		}
		g := b.GroupOf(n.Row, n.Col)
		if !b.HasLiberty(g) {
			dead = append(dead, g)
		}
	}

	if len(dead) == 0 && b.suicide == SuicideForbid {
		if !b.HasLiberty(b.GroupOf(row, col)) {
			b.cells[idx] = Empty
			return 0, fmt.Errorf("%w: %s", ErrSuicide, Point{row, col})
		}
	}

	captured := 0
	for _, g := range dead {
		for _, p := range g {
			b.cells[b.index(p.Row, p.Col)] = Empty
		}
		captured += len(g)
	}
	b.lastMove = &Point{Row: row, Col: col}
	return captured, nil
}

// GroupOf returns the connected same-coloured stones containing (row, col),
// in breadth-first order. An empty or out-of-bounds start yields nil.
func (b *Board) GroupOf(row, col int) []Point {
	color := b.At(row, col)
	if color == Empty {
		return nil
	}
	seen := make([]bool, len(b.cells))
	start := Point{row, col}
	seen[b.index(row, col)] = true
	queue := []Point{start}
	group := make([]Point, 0, 8)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		group = append(group, p)
		for _, n := range b.neighbors(p.Row, p.Col) {
			i := b.index(n.Row, n.Col)
			if seen[i] || b.cells[i] != color {
				continue
			}
			seen[i] = true
			queue = append(queue, n)
		}
	}
	return group
}

// HasLiberty reports whether any stone of the group touches an empty cell.
func (b *Board) HasLiberty(group []Point) bool {
	for _, p := range group {
		for _, n := range b.neighbors(p.Row, p.Col) {
			if b.cells[b.index(n.Row, n.Col)] == Empty {
				return true
			}
		}
	}
	return false
}

// Liberties counts the distinct empty cells adjacent to the group.
func (b *Board) Liberties(group []Point) int {
	seen := make(map[int]struct{})
	for _, p := range group {
		for _, n := range b.neighbors(p.Row, p.Col) {
			i := b.index(n.Row, n.Col)
			if b.cells[i] == Empty {
				seen[i] = struct{}{}
			}
		}
	}
	return len(seen)
}

// CountStones is the area approximation used for scoring: stones on board per colour.
// Empty territory is deliberately not attributed to either side.
func (b *Board) CountStones() (black, white int) {
	for _, c := range b.cells {
		switch c {
		case Black:
			black++
		case White:
			white++
		}
	}
	return black, white
}

func (b *Board) CountEmpty() int {
	n := 0
	for _, c := range b.cells {
		if c == Empty {
			n++
		}
	}
	return n
}

func (b *Board) Full() bool { return b.CountEmpty() == 0 }

func (b *Board) Clone() *Board {
	clone := &Board{size: b.size, suicide: b.suicide}
	clone.cells = make([]Cell, len(b.cells))
	copy(clone.cells, b.cells)
	if b.lastMove != nil {
		lm := *b.lastMove
		clone.lastMove = &lm
	}
	return clone
}

// Equal compares size and cell contents; the last-move highlight is ignored.
func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.size != o.size {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

func (b *Board) index(row, col int) int { return row*b.size + col }

func (b *Board) neighbors(row, col int) []Point {
	out := make([]Point, 0, 4)
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		r, c := row+d[0], col+d[1]
		if b.InBounds(r, c) {
			out = append(out, Point{r, c})
		}
	}
	return out
}

func containsGroup(groups [][]Point, p Point) bool {
	for _, g := range groups {
		for _, q := range g {
			if q == p {
				return true
			}
		}
	}
	return false
}
