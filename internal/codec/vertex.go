package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidVertex = errors.New("invalid vertex label")

// Column letters skip I.
const columnLetters = "ABCDEFGHJKLMNOPQRST"

// ParseVertex converts a label such as "D4" into a canonical coordinate. Rows
// in labels count from the bottom starting at 1.
func ParseVertex(label string, size int) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVertex, label)
	}
	col := strings.IndexByte(columnLetters, s[0]) + 1
	row, err := strconv.Atoi(s[1:])
	if col <= 0 || col > size || err != nil || row < 1 || row > size {
		return 0, fmt.Errorf("%w: %q on %dx%d", ErrInvalidVertex, label, size, size)
	}
	return (size-row)*size + (col - 1), nil
}

func FormatVertex(coord, size int) (string, error) {
	if size <= 0 || size > len(columnLetters) || coord < 0 || coord >= size*size {
		return "", fmt.Errorf("%w: coordinate %d on %dx%d", ErrInvalidVertex, coord, size, size)
	}
	p := Point(coord, size)
	return fmt.Sprintf("%c%d", columnLetters[p.Col], size-p.Row), nil
}
