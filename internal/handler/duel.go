package handler

import (
	"context"
	"fmt"

	"points-game-bot/internal/dispatch"
	"points-game-bot/internal/duel"
)

// DuelHandler serves the duel negotiation commands plus one command per game
// move, all relayed into the duel manager.
type DuelHandler struct {
	manager *duel.Manager
	moves   []string
}

// NewDuelHandler creates a DuelHandler. moves lists the game's move names,
// each of which becomes its own chat command.
func NewDuelHandler(manager *duel.Manager, moves []string) *DuelHandler {
	return &DuelHandler{manager: manager, moves: moves}
}

// Register wires the duel commands into the router.
func (h *DuelHandler) Register(r *dispatch.Router) error {
	commands := map[string]dispatch.Handler{
		"duel": {
			Action:      h.Duel,
			Description: "Request a duel, or change the bet of an outstanding request",
			Format:      "<amount of points> <opponent username>",
		},
		"accept": {
			Action:      h.Accept,
			Description: "Accept a duel request",
			Format:      "[<opponent username>]",
		},
		"unduel": {
			Action:      h.Unduel,
			Description: "Forfeit your duel or retract your requests",
			Format:      "",
		},
		"check": {
			Action:      h.Check,
			Description: "Check the state of your duel",
			Format:      "",
		},
		"rendezvous": {
			Action:      h.RendezvousList,
			Description: "List the duels and requests you participate in",
			Format:      "",
		},
	}
	for _, move := range h.moves {
		move := move
		commands[move] = dispatch.Handler{
			Action: func(ctx context.Context, c dispatch.ChatContext, args []string) string {
				return h.manager.Move(ctx, c.UserID, c.Username, move, args)
			},
			Description: fmt.Sprintf("Make the '%s' move in your duel", move),
			Format:      "",
		}
	}
	for key, handler := range commands {
		if err := r.Register(key, handler); err != nil {
			return err
		}
	}
	return nil
}

// Duel requests a duel against the named opponent for the given stake.
func (h *DuelHandler) Duel(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if len(args) < 2 {
		return fmt.Sprintf("Parse error: too few arguments, try %%{format}, %s!", c.Username)
	}
	if len(args) > 2 {
		return fmt.Sprintf("Parse error: too many arguments, try %%{format}, %s!", c.Username)
	}
	amount, all, err := ParseAmount(args[0])
	if err != nil {
		return fmt.Sprintf("Parse error: %s, try %%{format}, %s!", err, c.Username)
	}
	return h.manager.Request(ctx, c.UserID, c.Username, amount, all, args[1], args)
}

// Accept accepts a pending duel request, optionally naming the proposer to
// disambiguate.
func (h *DuelHandler) Accept(ctx context.Context, c dispatch.ChatContext, args []string) string {
	proposer := ""
	if len(args) > 0 {
		proposer = args[0]
	}
	return h.manager.Accept(ctx, c.UserID, c.Username, proposer, args)
}

// Unduel forfeits an active duel or retracts all pending requests.
func (h *DuelHandler) Unduel(ctx context.Context, c dispatch.ChatContext, args []string) string {
	return h.manager.Unduel(ctx, c.UserID, c.Username)
}

// Check prints the state of the caller's duel, or their last result.
func (h *DuelHandler) Check(ctx context.Context, c dispatch.ChatContext, args []string) string {
	return h.manager.Check(ctx, c.UserID, c.Username)
}

// RendezvousList lists every duel and request the caller participates in.
func (h *DuelHandler) RendezvousList(ctx context.Context, c dispatch.ChatContext, args []string) string {
	return h.manager.Rendezvous(ctx, c.UserID, c.Username)
}
