// Package protocol defines the line format moves travel in between the peers.
package protocol

import "fmt"

// BoardSquares is the number of addressable squares; indices run 0..63.
const BoardSquares = 64

// Move is a single move notification: source and destination square index.
type Move struct {
	From uint8
	To   uint8
}

// Valid reports whether both squares are on the board.
func (m Move) Valid() bool {
	return m.From < BoardSquares && m.To < BoardSquares
}

// String renders the move without a line terminator, e.g. "12 28".
func (m Move) String() string {
	return fmt.Sprintf("%d %d", m.From, m.To)
}
