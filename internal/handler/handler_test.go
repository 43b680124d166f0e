package handler

import (
	"context"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"points-game-bot/internal/bank"
	"points-game-bot/internal/dispatch"
	"points-game-bot/internal/ledger"
	"points-game-bot/internal/model"
	"points-game-bot/internal/pkg/lock"
	"points-game-bot/internal/roulette"
)

func newTestBank() *bank.Bank {
	store := ledger.NewMemory(nil, nil, 100)
	return bank.New(store, lock.NewUserLock(), "")
}

func chat(id string) dispatch.ChatContext {
	return dispatch.ChatContext{UserID: id, Username: id}
}

func modChat(id string) dispatch.ChatContext {
	return dispatch.ChatContext{UserID: id, Username: id, Mod: true}
}

func touch(t *testing.T, b *bank.Bank, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, b.SetUsername(context.Background(), id, id))
	}
}

func TestBalanceShowsReservedPart(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice")
	h := NewAccountHandler(b, 100, 30*time.Minute, nil)

	assert.Equal(t, "You have 100 points, alice!", h.Balance(ctx, chat("alice"), nil))

	_, err := b.Ensure(ctx, "alice", 10, false, 0)
	require.NoError(t, err)
	assert.Equal(t, "You have 100 points (currently betted 10 of those), alice!",
		h.Balance(ctx, chat("alice"), nil))
}

func TestClaimFlow(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice")
	now := time.Unix(1_700_000_000, 0)
	h := NewAccountHandler(b, 100, 30*time.Minute, func() time.Time { return now })

	assert.Equal(t, "You claimed 100 points and now have 200 points, alice!",
		h.Claim(ctx, chat("alice"), nil))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, "You are on cooldown, alice! Please wait for 20 minutes",
		h.Claim(ctx, chat("alice"), nil))

	now = now.Add(19*time.Minute + 30*time.Second)
	assert.Equal(t, "You are on cooldown, alice! Please wait for a minute",
		h.Claim(ctx, chat("alice"), nil))
}

func TestClaimETAHours(t *testing.T) {
	assert.Equal(t, "a minute", formatETA(80*time.Second))
	assert.Equal(t, "20 minutes", formatETA(20*time.Minute))
	assert.Equal(t, "2 hours", formatETA(2*time.Hour+10*time.Minute))
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice", "bob", "carol", "dave")
	h := NewAccountHandler(b, 100, 30*time.Minute, nil)

	for id, balance := range map[string]int64{"alice": 50, "bob": 300, "carol": 200} {
		_, err := b.Store().Update(ctx, id, func(r *model.BalanceRecord) { r.Balance = balance })
		require.NoError(t, err)
	}

	assert.Equal(t, "Top 3 richest people in our chat: bob with 300 points, carol with 200 points, dave with 100 points.",
		h.Leaderboard(ctx, chat("alice"), nil))
	assert.Equal(t, "Top 1 richest people in our chat: bob with 300 points.",
		h.Leaderboard(ctx, chat("alice"), []string{"1"}))
	assert.Contains(t, h.Leaderboard(ctx, chat("alice"), []string{"many"}), "Parse error: many")
	assert.Contains(t, h.Leaderboard(ctx, chat("alice"), []string{"-1"}), "Parse error: -1")
	assert.Contains(t, h.Leaderboard(ctx, chat("alice"), []string{"0"}), "Parse error: 0")
}

// The house account never shows up on the leaderboard.
func TestLeaderboardSkipsHouse(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice")
	h := NewAccountHandler(b, 100, 30*time.Minute, nil)

	// Make the house rich.
	_, err := b.Store().Update(ctx, b.HouseID(), func(r *model.BalanceRecord) { r.Balance = 100000 })
	require.NoError(t, err)

	reply := h.Leaderboard(ctx, chat("alice"), nil)
	assert.NotContains(t, reply, "100000")
}

func TestBetCommand(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice")
	table := roulette.NewRoulette(37)
	h := NewRouletteHandler(b, table, rand.New(rand.NewSource(1)))

	assert.Equal(t, "alice placed a bet of 10 on 7!",
		h.Bet(ctx, chat("alice"), []string{"10", "7"}))
	assert.Equal(t, "alice placed a bet of 20 on red!",
		h.Bet(ctx, chat("alice"), []string{"20", "red"}))
	assert.Equal(t, "alice placed a bet of 30 on custom bet!",
		h.Bet(ctx, chat("alice"), []string{"30", "1-6", "9"}))
	assert.Equal(t, "alice placed a bet of 100 on 0!",
		h.Bet(ctx, chat("alice"), []string{"all", "0"}))

	assert.Contains(t, h.Bet(ctx, chat("alice"), []string{"10"}), "Parse error: too few arguments")
	assert.Contains(t, h.Bet(ctx, chat("alice"), []string{"ten", "7"}), "amount must be a number or 'all'")
	assert.Contains(t, h.Bet(ctx, chat("alice"), []string{"10", "99"}), "invalid space '99'")
}

func TestBetReplacesAndUnbet(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice")
	table := roulette.NewRoulette(37)
	h := NewRouletteHandler(b, table, rand.New(rand.NewSource(1)))

	h.Bet(ctx, chat("alice"), []string{"90", "1"})
	// Replacing nets the old reservation out, so 95 still fits.
	assert.Equal(t, "alice placed a bet of 95 on 2!",
		h.Bet(ctx, chat("alice"), []string{"95", "2"}))

	assert.Equal(t, "alice is not betting anymore!", h.Unbet(ctx, chat("alice"), nil))
	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.ReservedBalance)
}

func TestSpinNoBets(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	table := roulette.NewRoulette(37)
	h := NewRouletteHandler(b, table, rand.New(rand.NewSource(1)))

	reply := h.Spin(ctx, chat("alice"), nil)
	assert.Regexp(t, regexp.MustCompile(`^Ball landed on: \d+$`), reply)
}

// A bet covering the whole wheel always "wins" but pays the house edge.
func TestSpinSettlesFullCoverBet(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice")
	table := roulette.NewRoulette(37)
	h := NewRouletteHandler(b, table, rand.New(rand.NewSource(1)))

	h.Bet(ctx, chat("alice"), []string{"10", "all0"})
	reply := h.Spin(ctx, chat("alice"), nil)
	assert.Contains(t, reply, "with a chance of 100%")

	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	// -10 + 10/37 * 36 floored.
	assert.Equal(t, int64(99), rec.Balance)
	assert.Equal(t, int64(0), rec.ReservedBalance)
	assert.Empty(t, table.Bets())
}

func TestPredictionGating(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice", "mod")
	table := roulette.NewPrediction(4)
	h := NewPredictionHandler(b, table)

	assert.Equal(t, "Predictions are closed, alice!",
		h.Predict(ctx, chat("alice"), []string{"10", "1"}))
	assert.Equal(t, "Peasant alice, you can't open predictions!",
		h.Open(ctx, chat("alice"), nil))

	assert.Equal(t, "An honorable mod has opened a prediction!",
		h.Open(ctx, modChat("mod"), nil))
	assert.Equal(t, "alice predicted 1 with 10 points!",
		h.Predict(ctx, chat("alice"), []string{"10", "1"}))

	assert.Equal(t, "An honorable mod has closed the prediction!",
		h.Close(ctx, modChat("mod"), nil))
	assert.Equal(t, "Predictions are closed, alice!",
		h.Unpredict(ctx, chat("alice"), nil))
}

func TestPredictionParseErrors(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice", "mod")
	h := NewPredictionHandler(b, roulette.NewPrediction(4))
	h.Open(ctx, modChat("mod"), nil)

	assert.Contains(t, h.Predict(ctx, chat("alice"), []string{"10"}), "too few arguments")
	assert.Contains(t, h.Predict(ctx, chat("alice"), []string{"10", "1", "2"}), "too many arguments")
	assert.Contains(t, h.Predict(ctx, chat("alice"), []string{"10", "1-2"}), "can only predict a single outcome")
}

func TestPredictionStatus(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice", "bob", "mod")
	table := roulette.NewPrediction(4)
	h := NewPredictionHandler(b, table)
	h.Open(ctx, modChat("mod"), nil)

	assert.Equal(t, "Nothing is predicted yet!", h.Status(ctx, chat("alice"), nil))

	h.Predict(ctx, chat("alice"), []string{"20", "0"})
	h.Predict(ctx, chat("bob"), []string{"10", "1"})
	assert.Equal(t, "Prediction status: outcome 0: 67% of votes (0.5x coef), outcome 1: 33% of votes (2x coef)",
		h.Status(ctx, chat("alice"), nil))
}

func TestPredictionOutcomeSettles(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice", "bob", "mod")
	table := roulette.NewPrediction(4)
	h := NewPredictionHandler(b, table)
	h.Open(ctx, modChat("mod"), nil)
	h.Predict(ctx, chat("alice"), []string{"10", "0"})
	h.Predict(ctx, chat("bob"), []string{"10", "1"})

	assert.Equal(t, "Peasant alice, you can't select a prediction outcome!",
		h.Outcome(ctx, chat("alice"), []string{"0"}))

	reply := h.Outcome(ctx, modChat("mod"), []string{"0"})
	assert.Contains(t, reply, "Closing the prediction. ")
	assert.Contains(t, reply, "Prediction resulted in outcome '0'")
	assert.Contains(t, reply, "alice won 10 points (coef 1x) and now has 110 points")
	assert.Contains(t, reply, "bob lost 10 points (coef 1x) and now has 90 points")

	assert.Empty(t, table.Bets())
}

func TestPredictionRefund(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "alice", "mod")
	table := roulette.NewPrediction(4)
	h := NewPredictionHandler(b, table)
	h.Open(ctx, modChat("mod"), nil)
	h.Predict(ctx, chat("alice"), []string{"10", "0"})

	assert.Equal(t, "An honorable mod has refunded the prediction!",
		h.Refund(ctx, modChat("mod"), nil))
	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.Balance)
	assert.Equal(t, int64(0), rec.ReservedBalance)
}

func TestPredictionOutcomeArgErrors(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	touch(t, b, "mod")
	h := NewPredictionHandler(b, roulette.NewPrediction(4))

	assert.Equal(t, "Dear mod mod, too few arguments",
		h.Outcome(ctx, modChat("mod"), nil))
	assert.Contains(t, h.Outcome(ctx, modChat("mod"), []string{"9"}),
		"I couldn't parse the outcome")
	assert.Equal(t, "Dear mod mod, I can only handle a single outcome",
		h.Outcome(ctx, modChat("mod"), []string{"0-1"}))
}
