// Package codec converts boards and game messages to and from their wire
// representation.
package codec

import (
	"math/bits"

	"github.com/park285/baduk-omok-server/internal/board"
)

// BitBoard is the packed board: bit i of word w is coordinate w*64+i.
type BitBoard struct {
	Size  int
	Black []uint64
	White []uint64
}

// WordCount is the number of uint64 words one colour needs on a size×size board.
func WordCount(size int) int { return (size*size + 63) / 64 }

// Coordinate is the canonical row-major index.
func Coordinate(row, col, size int) int { return row*size + col }

func Point(coord, size int) board.Point {
	return board.Point{Row: coord / size, Col: coord % size}
}

func EncodeBoard(b *board.Board) BitBoard {
	size := b.Size()
	bb := BitBoard{
		Size:  size,
		Black: make([]uint64, WordCount(size)),
		White: make([]uint64, WordCount(size)),
	}
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			coord := Coordinate(row, col, size)
			switch b.At(row, col) {
			case board.Black:
				bb.Black[coord/64] |= 1 << (coord % 64)
			case board.White:
				bb.White[coord/64] |= 1 << (coord % 64)
			}
		}
	}
	return bb
}

// DecodeBoard rebuilds a board from bb. A colour with no words is an empty
// layer; otherwise the word count must match the size exactly.
func DecodeBoard(bb BitBoard) (*board.Board, error) {
	b, err := board.New(bb.Size)
	if err != nil {
		return nil, &DecodeError{Field: "board.size", Err: err}
	}
	n := WordCount(bb.Size)
	black, err := layer("board.black", bb.Black, n, bb.Size)
	if err != nil {
		return nil, err
	}
	white, err := layer("board.white", bb.White, n, bb.Size)
	if err != nil {
		return nil, err
	}
	for w := 0; w < n; w++ {
		if black[w]&white[w] != 0 {
			return nil, malformed("board", "black and white overlap in word %d", w)
		}
		for set := black[w]; set != 0; set &= set - 1 {
			p := Point(w*64+bits.TrailingZeros64(set), bb.Size)
			_ = b.Set(p.Row, p.Col, board.Black)
		}
		for set := white[w]; set != 0; set &= set - 1 {
			p := Point(w*64+bits.TrailingZeros64(set), bb.Size)
			_ = b.Set(p.Row, p.Col, board.White)
		}
	}
	return b, nil
}

func layer(name string, words []uint64, n, size int) ([]uint64, error) {
	if len(words) == 0 {
		return make([]uint64, n), nil
	}
	if len(words) != n {
		return nil, malformed(name, "got %d words, want %d", len(words), n)
	}
	if tail := size * size % 64; tail != 0 {
		if words[n-1]>>tail != 0 {
			return nil, malformed(name, "bits set beyond coordinate %d", size*size-1)
		}
	}
	return words, nil
}
