package blackjack

import (
	"slices"

	"points-game-bot/internal/game"
)

// Brain is the automated blackjack opponent. It accepts every duel request
// and hits while its simulated bust probability stays under 50%.
type Brain struct{}

func (Brain) AcceptRequest(args []string) ([]string, bool) {
	return nil, true
}

// Move tries every remaining card in the deck against the current hand and
// hits only if fewer than half of them would bust it.
func (Brain) Move(g game.Game) (string, []string, bool) {
	bj, ok := g.(*BlackJack)
	if !ok {
		return "", nil, false
	}
	hand := bj.Hand(bj.CurrentPlayer())
	deck := bj.Deck()
	busts := 0
	for _, card := range deck.Cards {
		if HandValue(append(slices.Clone(hand), card)) > 21 {
			busts++
		}
	}
	if busts*2 >= len(deck.Cards) {
		return MoveStand, nil, true
	}
	return MoveHit, nil, true
}
