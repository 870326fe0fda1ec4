package opponent

import (
	"context"
	"math/rand"
	"sync"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/rules"
)

// Heuristic plays weighted-random moves near existing stones. In omok it
// always takes an immediate win and blocks an immediate loss.
type Heuristic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewHeuristic(seed int64) *Heuristic {
	return &Heuristic{rng: rand.New(rand.NewSource(seed))}
}

func (h *Heuristic) Choose(ctx context.Context, pos Position, color board.Cell) (Move, error) {
	if err := ctx.Err(); err != nil {
		return Move{}, err
	}
	b := pos.Board
	size := b.Size()

	if pos.Rules == rules.KindOmok {
		if coord, ok := omokForced(b, color); ok {
			return Move{Coord: coord}, nil
		}
	}

	weights := make([]int, size*size)
	total := 0
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if b.At(row, col) != board.Empty {
				continue
			}
			if pos.Rules != rules.KindOmok && !legalGoMove(b, row, col, color) {
				continue
			}
			w := 1 + 4*adjacentStones(b, row, col)
			weights[row*size+col] = w
			total += w
		}
	}
	if total == 0 {
		return Move{Pass: true}, nil
	}

	h.mu.Lock()
	pick := h.rng.Intn(total)
	h.mu.Unlock()
	for coord, w := range weights {
		if pick < w {
			return Move{Coord: coord}, nil
		}
		pick -= w
	}
	return Move{Pass: true}, nil
}

// omokForced finds a winning point for color, or else a point the opponent
// would win on.
func omokForced(b *board.Board, color board.Cell) (int, bool) {
	o := rules.Omok{WinLength: 5}
	b = b.Clone()
	size := b.Size()
	block := -1
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if b.At(row, col) != board.Empty {
				continue
			}
			p := board.Point{Row: row, Col: col}
			_ = b.Set(row, col, color)
			win := o.IsWin(b, p)
			_ = b.Set(row, col, color.Opponent())
			lose := o.IsWin(b, p)
			_ = b.Set(row, col, board.Empty)
			if win {
				return row*size + col, true
			}
			if lose && block < 0 {
				block = row*size + col
			}
		}
	}
	return block, block >= 0
}

// legalGoMove rejects self-capturing points so the heuristic never throws
// stones away.
func legalGoMove(b *board.Board, row, col int, color board.Cell) bool {
	trial := b.Clone().WithSuicidePolicy(board.SuicideForbid)
	_, err := trial.Place(row, col, color)
	return err == nil
}

func adjacentStones(b *board.Board, row, col int) int {
	n := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if b.At(row+dr, col+dc) != board.Empty {
				n++
			}
		}
	}
	return n
}
