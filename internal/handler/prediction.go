package handler

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"points-game-bot/internal/bank"
	"points-game-bot/internal/dispatch"
	"points-game-bot/internal/roulette"
)

// PredictionHandler serves a moderated pari-mutuel prediction market:
// moderators open and resolve it, everyone else stakes points on outcomes.
type PredictionHandler struct {
	bank  *bank.Bank
	table *roulette.Table
	open  bool
}

// NewPredictionHandler creates a PredictionHandler over an n-outcome
// pari-mutuel table.
func NewPredictionHandler(b *bank.Bank, table *roulette.Table) *PredictionHandler {
	return &PredictionHandler{bank: b, table: table}
}

// Register wires the prediction commands into the router.
func (h *PredictionHandler) Register(r *dispatch.Router) error {
	commands := map[string]dispatch.Handler{
		"predict": {
			Action:      h.Predict,
			Description: "Predict an outcome, replacing any previous predictions",
			Format:      "<amount of points> <outcome number>",
		},
		"unpredict": {
			Action:      h.Unpredict,
			Description: "Remove all your predictions",
			Format:      "",
		},
		"open": {
			Action:      h.Open,
			Description: "Open a prediction (mod-only)",
			Format:      "",
		},
		"close": {
			Action:      h.Close,
			Description: "Close the current prediction (mod-only)",
			Format:      "",
		},
		"status": {
			Action:      h.Status,
			Description: "View the status of the current prediction",
			Format:      "",
		},
		"refund": {
			Action:      h.Refund,
			Description: "Refund the current prediction (mod-only)",
			Format:      "",
		},
		"outcome": {
			Action:      h.Outcome,
			Description: "Select a prediction outcome (mod-only)",
			Format:      "<outcome number>",
		},
	}
	for key, handler := range commands {
		if err := r.Register(key, handler); err != nil {
			return err
		}
	}
	return nil
}

// parsePredict parses "<amount> <outcome>", rejecting multi-outcome sets.
func parsePredict(args []string, outcomes int) (amount int64, all bool, number int, err error) {
	if len(args) < 2 {
		return 0, false, 0, fmt.Errorf("too few arguments")
	}
	if len(args) > 2 {
		return 0, false, 0, fmt.Errorf("too many arguments")
	}
	amount, all, err = ParseAmount(args[0])
	if err != nil {
		return 0, false, 0, err
	}
	numbers, err := ParseOutcomeRange(args[1], outcomes)
	if err != nil {
		return 0, false, 0, err
	}
	if len(numbers) != 1 {
		return 0, false, 0, fmt.Errorf("can only predict a single outcome")
	}
	return amount, all, numbers[0], nil
}

// Predict stakes points on one outcome while the prediction is open.
func (h *PredictionHandler) Predict(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if !h.open {
		return fmt.Sprintf("Predictions are closed, %s!", c.Username)
	}
	amount, all, number, err := parsePredict(args, h.table.Outcomes())
	if err != nil {
		return fmt.Sprintf("Parse error: %s, try %%{format}, %s!", err, c.Username)
	}
	staked, err := h.bank.PlaceBet(ctx, h.table, c.UserID, amount, all, []int{number})
	if err != nil {
		return errReply(err, c.Username)
	}
	log.Info().Str("user_id", c.UserID).Int64("amount", staked).Int("outcome", number).Msg("prediction placed")
	return fmt.Sprintf("%s predicted %d with %d points!", c.Username, number, staked)
}

// Unpredict removes the user's prediction while the market is open.
func (h *PredictionHandler) Unpredict(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if !h.open {
		return fmt.Sprintf("Predictions are closed, %s!", c.Username)
	}
	if err := h.bank.RefundBet(ctx, h.table, c.UserID); err != nil {
		return errReply(err, c.Username)
	}
	return fmt.Sprintf("%s is not predicting anymore!", c.Username)
}

// Status prints each predicted outcome's share of the pool and the payout
// coefficient a win would carry.
func (h *PredictionHandler) Status(ctx context.Context, c dispatch.ChatContext, args []string) string {
	chances := h.table.Chances()
	msg := "Prediction status: "
	first := true
	for i, chance := range chances {
		if chance <= 0 {
			continue
		}
		if !first {
			msg += ", "
		}
		first = false
		msg += fmt.Sprintf("outcome %d: %d%% of votes (%sx coef)",
			i, int(math.Round(chance*100)), formatCoef(chance))
	}
	if first {
		return "Nothing is predicted yet!"
	}
	return msg
}

// formatCoef renders the net payout multiplier for a winning stake at the
// given chance, rounded to two decimals with trailing zeros trimmed.
func formatCoef(chance float64) string {
	coef := math.Round(100*(1/chance-1)) / 100
	return strconv.FormatFloat(coef, 'f', -1, 64)
}

// Open opens the prediction for staking. Mod-only.
func (h *PredictionHandler) Open(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if !c.Mod {
		return fmt.Sprintf("Peasant %s, you can't open predictions!", c.Username)
	}
	h.open = true
	log.Info().Msg("prediction opened")
	return "An honorable mod has opened a prediction!"
}

// Close stops further staking without resolving. Mod-only.
func (h *PredictionHandler) Close(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if !c.Mod {
		return fmt.Sprintf("Peasant %s, you can't close predictions!", c.Username)
	}
	h.open = false
	log.Info().Msg("prediction closed")
	return "An honorable mod has closed the prediction!"
}

// Refund closes the prediction and returns every stake. Mod-only.
func (h *PredictionHandler) Refund(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if !c.Mod {
		return fmt.Sprintf("Peasant %s, you can't refund a prediction!", c.Username)
	}
	h.open = false
	if err := h.bank.RefundAll(ctx, h.table); err != nil {
		return errReply(err, c.Username)
	}
	log.Info().Msg("prediction refunded")
	return "An honorable mod has refunded the prediction!"
}

// Outcome resolves the prediction to one outcome and settles the pool.
// Mod-only. An open prediction is closed first.
func (h *PredictionHandler) Outcome(ctx context.Context, c dispatch.ChatContext, args []string) string {
	if !c.Mod {
		return fmt.Sprintf("Peasant %s, you can't select a prediction outcome!", c.Username)
	}
	msg := ""
	if h.open {
		msg += "Closing the prediction. "
		h.open = false
	}
	if len(args) < 1 {
		return msg + fmt.Sprintf("Dear mod %s, too few arguments", c.Username)
	}
	numbers, err := ParseOutcomeRange(args[0], h.table.Outcomes())
	if err != nil {
		return msg + fmt.Sprintf("Dear mod %s, I couldn't parse the outcome: %s!", c.Username, err)
	}
	if len(numbers) != 1 {
		return msg + fmt.Sprintf("Dear mod %s, I can only handle a single outcome", c.Username)
	}

	h.table.LastOutcome = numbers[0]
	msg += fmt.Sprintf("Prediction resulted in outcome '%d'", numbers[0])
	settler := h.bank.NewSettler(ctx, func(username string, didWin bool, payout int64, chance float64, balance int64) string {
		if didWin {
			return fmt.Sprintf("%s won %d points (coef %sx) and now has %d points",
				username, payout, formatCoef(chance), balance)
		}
		return fmt.Sprintf("%s lost %d points (coef %sx) and now has %d points",
			username, -payout, formatCoef(chance), balance)
	})
	h.table.ComputeWinnings(settler.Settle)
	for _, line := range settler.Messages {
		msg += ", " + line
	}
	if err := settler.Err(); err != nil {
		msg += ". " + errReply(err, c.Username)
	}
	log.Info().Int("outcome", numbers[0]).Msg("prediction resolved")
	return msg
}
