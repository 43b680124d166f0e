// Package game defines the contract every turn-based duel game satisfies.
package game

import "errors"

// ErrUnknownMove is returned by Move for a move name the game does not
// recognize. The duel layer turns it into a generic apology reply.
var ErrUnknownMove = errors.New("unknown move")

// Result is the terminal ranking of a finished game: tie groups ordered
// most-favorable first, player ids sorted within each group.
type Result struct {
	Ranking [][]string
}

// UsernameFunc resolves a player id to a display name at render time.
type UsernameFunc func(playerID string) string

// MoveResult is the outcome of one move. Result is non-nil the instant the
// game becomes terminal, which may happen before every player has moved.
type MoveResult struct {
	Result   *Result
	Describe func(names UsernameFunc) string
}

// Game is a minimal turn-based state machine. A game is constructed with its
// randomness already injected (e.g. a shuffled deck) and advances strictly
// through Move calls.
type Game interface {
	// Players returns the play order.
	Players() []string

	// CurrentPlayer returns the id whose turn it is, or "" once terminal.
	CurrentPlayer() string

	// Init advances past players whose opening state is already terminal
	// and returns a Result if the game is decided before anyone moves.
	Init() *Result

	// Moves lists the move names the game understands.
	Moves() []string

	// Move applies a named move for the current player.
	Move(name string, args []string) (MoveResult, error)
}

// Brain is a pluggable automated opponent policy.
type Brain interface {
	// AcceptRequest decides whether to accept an incoming duel request,
	// returning the brain's own argument vector when it does.
	AcceptRequest(args []string) ([]string, bool)

	// Move picks the brain's next move for the given game, or reports false
	// to resign.
	Move(g Game) (move string, args []string, ok bool)
}
