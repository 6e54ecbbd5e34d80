package game

import (
	"fmt"

	"github.com/1ureka/duel/internal/protocol"
)

// Rules is the chess engine the game defers to. Apply must reject a move
// without changing the position.
type Rules interface {
	Apply(m protocol.Move) error
}

// Permissive accepts every move whose squares are on the board. It stands in
// for a real engine in local testing.
type Permissive struct{}

func (Permissive) Apply(m protocol.Move) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %s", protocol.ErrSquareOutside, m)
	}
	return nil
}
