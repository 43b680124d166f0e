package handler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"points-game-bot/internal/bank"
	"points-game-bot/internal/dispatch"
	"points-game-bot/internal/roulette"
)

// RouletteHandler serves the classic roulette table: bet, unbet, spin.
type RouletteHandler struct {
	bank  *bank.Bank
	table *roulette.Table
	rng   *rand.Rand
}

// NewRouletteHandler creates a RouletteHandler over its table.
func NewRouletteHandler(b *bank.Bank, table *roulette.Table, rng *rand.Rand) *RouletteHandler {
	return &RouletteHandler{bank: b, table: table, rng: rng}
}

// Register wires the roulette commands into the router.
func (h *RouletteHandler) Register(r *dispatch.Router) error {
	commands := map[string]dispatch.Handler{
		"bet": {
			Action:      h.Bet,
			Description: "Place a bet, replacing any previous one",
			Format:      "<amount of points> <outcome...>",
		},
		"unbet": {
			Action:      h.Unbet,
			Description: "Remove your bet",
			Format:      "",
		},
		"roulette": {
			Action:      h.Spin,
			Description: "Spin the wheel and settle all bets",
			Format:      "",
		},
	}
	for key, handler := range commands {
		if err := r.Register(key, handler); err != nil {
			return err
		}
	}
	return nil
}

// betCommand is a parsed bet: the outcome set, its display name and the
// staked amount.
type betCommand struct {
	numbers []int
	name    string
	amount  int64
	all     bool
}

// parseBetCommand parses "<amount> <outcome...>" where the outcomes are a
// named bet or any mix of numbers and L-H ranges.
func parseBetCommand(args []string, outcomes int) (*betCommand, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("too few arguments")
	}
	amount, all, err := ParseAmount(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("too few arguments")
	}

	name := strings.ToLower(args[1])
	if numbers, ok := NamedBet(name, outcomes); ok {
		return &betCommand{numbers: numbers, name: name, amount: amount, all: all}, nil
	}
	numbers, err := ParseOutcomes(args[1:], outcomes)
	if err != nil {
		return nil, err
	}
	name = "custom bet"
	if len(numbers) == 1 {
		name = strconv.Itoa(numbers[0])
	}
	return &betCommand{numbers: numbers, name: name, amount: amount, all: all}, nil
}

// Bet places a wager on the table, replacing the user's previous one.
func (h *RouletteHandler) Bet(ctx context.Context, c dispatch.ChatContext, args []string) string {
	cmd, err := parseBetCommand(args, h.table.Outcomes())
	if err != nil {
		return fmt.Sprintf("Parse error: %s, try %%{format}, %s!", err, c.Username)
	}
	amount, err := h.bank.PlaceBet(ctx, h.table, c.UserID, cmd.amount, cmd.all, cmd.numbers)
	if err != nil {
		return errReply(err, c.Username)
	}
	log.Info().Str("user_id", c.UserID).Int64("amount", amount).Ints("numbers", cmd.numbers).Msg("bet placed")
	return fmt.Sprintf("%s placed a bet of %d on %s!", c.Username, amount, cmd.name)
}

// Unbet removes the user's bet and releases the reservation.
func (h *RouletteHandler) Unbet(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if err := h.bank.RefundBet(ctx, h.table, c.UserID); err != nil {
		return errReply(err, c.Username)
	}
	return fmt.Sprintf("%s is not betting anymore!", c.Username)
}

// Spin draws the winning pocket and settles every bet, reporting each
// bettor's result with the chance their outcome set carried.
func (h *RouletteHandler) Spin(ctx context.Context, c dispatch.ChatContext, args []string) string {
	outcome := h.table.Draw(h.rng)
	msg := fmt.Sprintf("Ball landed on: %d", outcome)
	settler := h.bank.NewSettler(ctx, func(username string, didWin bool, payout int64, chance float64, balance int64) string {
		percent := int(math.Round(chance * 100))
		if didWin {
			return fmt.Sprintf("%s won %d points with a chance of %d%% and now has %d points",
				username, payout, percent, balance)
		}
		return fmt.Sprintf("%s lost %d points with a chance of %d%% and now has %d points",
			username, -payout, 100-percent, balance)
	})
	h.table.ComputeWinnings(settler.Settle)
	for _, line := range settler.Messages {
		msg += ", " + line
	}
	if err := settler.Err(); err != nil {
		msg += ". " + errReply(err, c.Username)
	}
	return msg
}
