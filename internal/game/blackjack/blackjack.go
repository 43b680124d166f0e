// Package blackjack implements two-player blackjack as a duel game.
package blackjack

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"points-game-bot/internal/game"
)

// Suit is a card suit.
type Suit int

const (
	Heart Suit = iota
	Club
	Spade
	Diamond
)

func (s Suit) String() string {
	switch s {
	case Heart:
		return "♥"
	case Club:
		return "♣"
	case Spade:
		return "♠"
	default:
		return "♦"
	}
}

// Card is a playing card. Value 1 is the ace, 11-13 are J/Q/K.
type Card struct {
	Value int
	Suit  Suit
}

func (c Card) String() string {
	var v string
	switch c.Value {
	case 1:
		v = "A"
	case 11:
		v = "J"
	case 12:
		v = "Q"
	case 13:
		v = "K"
	default:
		v = fmt.Sprintf("%d", c.Value)
	}
	return v + c.Suit.String()
}

// Deck is a stack of cards dealt from the top (the end of the slice).
type Deck struct {
	Cards []Card
}

// NewDeck returns an unshuffled 52-card deck.
func NewDeck() *Deck {
	d := &Deck{Cards: make([]Card, 0, 52)}
	for v := 1; v <= 13; v++ {
		for _, s := range []Suit{Heart, Club, Spade, Diamond} {
			d.Cards = append(d.Cards, Card{Value: v, Suit: s})
		}
	}
	return d
}

// Shuffle permutes the deck in place.
func (d *Deck) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.Cards), func(i, j int) {
		d.Cards[i], d.Cards[j] = d.Cards[j], d.Cards[i]
	})
}

// Pop deals the top card.
func (d *Deck) Pop() Card {
	c := d.Cards[len(d.Cards)-1]
	d.Cards = d.Cards[:len(d.Cards)-1]
	return c
}

// Moves understood by the game.
const (
	MoveHit   = "hit"
	MoveStand = "stand"
)

// HandValue evaluates a hand with the standard soft-ace rule: one ace counts
// as 11 unless that busts the total. Recomputed from scratch every time.
func HandValue(hand []Card) int {
	hasAce := false
	value := 0
	for _, c := range hand {
		hasAce = hasAce || c.Value == 1
		value += min(c.Value, 10)
	}
	if hasAce && value+10 <= 21 {
		value += 10
	}
	return value
}

// handScore ranks hands at game end: a two-card 21 outranks any other 21
// (sentinel 22), a bust scores 0.
func handScore(hand []Card) int {
	value := HandValue(hand)
	if value == 21 && len(hand) == 2 {
		return 22
	}
	if value > 21 {
		return 0
	}
	return value
}

// BlackJack is a duel blackjack round. Each player is dealt two cards up
// front; turns proceed in player order, skipping anyone already on 21 or
// busted.
type BlackJack struct {
	deck    *Deck
	hands   map[string][]Card
	players []string
	current int
}

// New deals two cards to each player from the given deck. The deck carries
// all the randomness; pass a pre-shuffled one.
func New(players []string, deck *Deck) *BlackJack {
	g := &BlackJack{
		deck:    deck,
		hands:   make(map[string][]Card, len(players)),
		players: slices.Clone(players),
		current: -1,
	}
	for _, p := range players {
		g.hands[p] = []Card{deck.Pop(), deck.Pop()}
	}
	return g
}

func (g *BlackJack) Players() []string {
	return g.players
}

// Hand returns a player's cards.
func (g *BlackJack) Hand(player string) []Card {
	return g.hands[player]
}

// HandString renders a player's hand for chat output.
func (g *BlackJack) HandString(player string) string {
	parts := make([]string, len(g.hands[player]))
	for i, c := range g.hands[player] {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// Deck exposes the remaining cards; the brain samples them to estimate bust
// probability.
func (g *BlackJack) Deck() *Deck {
	return g.deck
}

func (g *BlackJack) CurrentPlayer() string {
	if g.current < 0 || g.current >= len(g.players) {
		return ""
	}
	return g.players[g.current]
}

func (g *BlackJack) Init() *game.Result {
	return g.selectNextPlayer()
}

func (g *BlackJack) Moves() []string {
	return []string{MoveHit, MoveStand}
}

func (g *BlackJack) Move(name string, args []string) (game.MoveResult, error) {
	switch name {
	case MoveHit:
		return g.hit(), nil
	case MoveStand:
		return g.stand(), nil
	default:
		return game.MoveResult{}, fmt.Errorf("%w: %q", game.ErrUnknownMove, name)
	}
}

func (g *BlackJack) isPlaying(player string) bool {
	return HandValue(g.hands[player]) < 21
}

func (g *BlackJack) nPlaying() int {
	n := 0
	for _, p := range g.players {
		if g.isPlaying(p) {
			n++
		}
	}
	return n
}

// selectNextPlayer advances past players in a terminal hand state and
// returns the final ranking once no turn remains (or only one player is
// still in play).
func (g *BlackJack) selectNextPlayer() *game.Result {
	for {
		g.current++
		if g.current >= len(g.players) || g.isPlaying(g.players[g.current]) {
			break
		}
	}
	if g.current >= len(g.players) || g.nPlaying() == 1 {
		return g.calcResult()
	}
	return nil
}

// calcResult groups players by score descending; ids within a tie group are
// sorted for determinism.
func (g *BlackJack) calcResult() *game.Result {
	byScore := make(map[int][]string)
	for _, p := range g.players {
		score := handScore(g.hands[p])
		byScore[score] = append(byScore[score], p)
	}
	scores := make([]int, 0, len(byScore))
	for score := range byScore {
		scores = append(scores, score)
	}
	slices.SortFunc(scores, func(a, b int) int { return b - a })

	ranking := make([][]string, 0, len(scores))
	for _, score := range scores {
		group := byScore[score]
		slices.Sort(group)
		ranking = append(ranking, group)
	}
	return &game.Result{Ranking: ranking}
}

func (g *BlackJack) hit() game.MoveResult {
	player := g.CurrentPlayer()
	card := g.deck.Pop()
	g.hands[player] = append(g.hands[player], card)
	value := HandValue(g.hands[player])

	var result *game.Result
	if !g.isPlaying(player) {
		result = g.selectNextPlayer()
	}
	return game.MoveResult{
		Result: result,
		Describe: func(names game.UsernameFunc) string {
			msg := fmt.Sprintf("%s pulls a %s, totaling %d", names(player), card, value)
			if value > 21 {
				msg += " - they busted"
			} else if value == 21 {
				msg += " - they got 21"
			}
			return msg + "!"
		},
	}
}

func (g *BlackJack) stand() game.MoveResult {
	player := g.CurrentPlayer()
	value := HandValue(g.hands[player])
	return game.MoveResult{
		Result: g.selectNextPlayer(),
		Describe: func(names game.UsernameFunc) string {
			return fmt.Sprintf("%s stands with %d.", names(player), value)
		},
	}
}
