package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LineTerminator ends every line on the wire.
const LineTerminator = '\n'

var (
	ErrTokenCount    = errors.New("move line must hold exactly two fields")
	ErrNotNumeric    = errors.New("move field is not a decimal integer")
	ErrSquareOutside = errors.New("square index outside the board")
)

// Encode serializes a move into its wire line, terminator included.
func Encode(m Move) []byte {
	return append([]byte(m.String()), LineTerminator)
}

// ParseMove parses "<from> <to>" with arbitrary surrounding whitespace.
// The line terminator may or may not be present.
func ParseMove(line string) (Move, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Move{}, fmt.Errorf("%w: got %d in %q", ErrTokenCount, len(fields), line)
	}

	from, err := parseSquare(fields[0])
	if err != nil {
		return Move{}, err
	}
	to, err := parseSquare(fields[1])
	if err != nil {
		return Move{}, err
	}

	return Move{From: from, To: to}, nil
}

func parseSquare(field string) (uint8, error) {
	n, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s", ErrSquareOutside, field)
		}
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, field)
	}
	if n >= BoardSquares {
		return 0, fmt.Errorf("%w: %d", ErrSquareOutside, n)
	}
	return uint8(n), nil
}
