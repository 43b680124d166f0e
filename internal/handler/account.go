package handler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"points-game-bot/internal/bank"
	"points-game-bot/internal/dispatch"
)

// AccountHandler serves the balance, claim and leaderboard commands.
type AccountHandler struct {
	bank          *bank.Bank
	claimSize     int64
	claimCooldown time.Duration
	now           func() time.Time
}

// NewAccountHandler creates an AccountHandler. now is injectable for the
// cooldown tests.
func NewAccountHandler(b *bank.Bank, claimSize int64, claimCooldown time.Duration, now func() time.Time) *AccountHandler {
	if now == nil {
		now = time.Now
	}
	return &AccountHandler{bank: b, claimSize: claimSize, claimCooldown: claimCooldown, now: now}
}

// Register wires the account commands into the router.
func (h *AccountHandler) Register(r *dispatch.Router) error {
	commands := map[string]dispatch.Handler{
		"balance": {
			Action:      h.Balance,
			Description: "Print your current points",
			Format:      "",
		},
		"claim": {
			Action:      h.Claim,
			Description: "Claim free points every half an hour",
			Format:      "",
		},
		"leaderboard": {
			Action:      h.Leaderboard,
			Description: "Print the richest people in the chat",
			Format:      "[<size>]",
		},
	}
	for key, handler := range commands {
		if err := r.Register(key, handler); err != nil {
			return err
		}
	}
	return nil
}

// Balance prints the user's points, mentioning the part locked up in
// pending bets.
func (h *AccountHandler) Balance(ctx context.Context, c dispatch.ChatContext, args []string) string {
	rec, err := h.bank.Store().Get(ctx, c.UserID)
	if err != nil {
		return errReply(err, c.Username)
	}
	msg := fmt.Sprintf("You have %d points", rec.Balance)
	if rec.ReservedBalance > 0 {
		msg += fmt.Sprintf(" (currently betted %d of those)", rec.ReservedBalance)
	}
	return msg + fmt.Sprintf(", %s!", c.Username)
}

// Claim grants the periodic free points, or reports the remaining cooldown.
func (h *AccountHandler) Claim(ctx context.Context, c dispatch.ChatContext, args []string) string {
	rec, eta, err := h.bank.Claim(ctx, c.UserID, h.claimSize, h.claimCooldown, h.now())
	if err != nil {
		return errReply(err, c.Username)
	}
	if rec == nil {
		return fmt.Sprintf("You are on cooldown, %s! Please wait for %s", c.Username, formatETA(eta))
	}
	return fmt.Sprintf("You claimed %d points and now have %d points, %s!", h.claimSize, rec.Balance, c.Username)
}

// formatETA renders a wait duration the way a human would say it.
func formatETA(eta time.Duration) string {
	switch {
	case eta < 90*time.Second:
		return "a minute"
	case eta < time.Hour:
		return fmt.Sprintf("%d minutes", int(eta.Round(time.Minute)/time.Minute))
	default:
		return fmt.Sprintf("%d hours", int(eta.Round(time.Hour)/time.Hour))
	}
}

// Leaderboard prints the top balances. The house account is bookkeeping,
// not a player, and is skipped.
func (h *AccountHandler) Leaderboard(ctx context.Context, c dispatch.ChatContext, args []string) string {
	size := 3
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Sprintf("Parse error: %s, try %%{format}, %s!", args[0], c.Username)
		}
		size = parsed
	}
	records, err := h.bank.Store().All(ctx)
	if err != nil {
		return errReply(err, c.Username)
	}
	type row struct {
		username string
		balance  int64
	}
	rows := make([]row, 0, len(records))
	for id, rec := range records {
		if id == h.bank.HouseID() {
			continue
		}
		rows = append(rows, row{username: rec.Username, balance: rec.Balance})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].balance > rows[j].balance })
	if size < len(rows) {
		rows = rows[:size]
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = fmt.Sprintf("%s with %d points", r.username, r.balance)
	}
	return fmt.Sprintf("Top %d richest people in our chat: %s.", size, strings.Join(parts, ", "))
}
