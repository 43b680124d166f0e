package roulette

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type settled struct {
	userID string
	didWin bool
	chance float64
	amount int64
	payout float64
}

func collect(t *Table) []settled {
	var out []settled
	t.ComputeWinnings(func(userID string, didWin bool, chance float64, amount int64, payout float64) {
		out = append(out, settled{userID, didWin, chance, amount, payout})
	})
	return out
}

// A 10-point bet on a single pocket of a 37-pocket wheel nets 350 points on
// a win: 10/1 * (1-1/37)/(1/37) - 10.
func TestRouletteSingleNumberPayout(t *testing.T) {
	table := NewRoulette(37)
	table.PlaceBet("alice", 10, []int{7})
	table.LastOutcome = 7

	results := collect(table)
	require.Len(t, results, 1)
	assert.True(t, results[0].didWin)
	assert.InDelta(t, 350, results[0].payout, 1e-9)
	assert.InDelta(t, 1.0/37, results[0].chance, 1e-12)
}

// An 18-pocket bet wins close to even money minus the house edge.
func TestRouletteHalfBoardPayout(t *testing.T) {
	table := NewRoulette(37)
	numbers := make([]int, 18)
	for i := range numbers {
		numbers[i] = i + 1
	}
	table.PlaceBet("alice", 10, numbers)
	table.LastOutcome = 1

	results := collect(table)
	require.Len(t, results, 1)
	assert.True(t, results[0].didWin)
	assert.InDelta(t, 10, results[0].payout, 1e-9)
}

func TestRouletteLosingBet(t *testing.T) {
	table := NewRoulette(37)
	table.PlaceBet("alice", 10, []int{7})
	table.LastOutcome = 8

	results := collect(table)
	require.Len(t, results, 1)
	assert.False(t, results[0].didWin)
	assert.InDelta(t, -10, results[0].payout, 1e-9)
}

// Two opposite 10-point predictions transfer exactly 10 points: edge 0,
// winner chance 1/2.
func TestPredictionEvenPayout(t *testing.T) {
	table := NewPrediction(2)
	table.PlaceBet("alice", 10, []int{0})
	table.PlaceBet("bob", 10, []int{1})
	table.LastOutcome = 0

	results := collect(table)
	require.Len(t, results, 2)
	for _, r := range results {
		switch r.userID {
		case "alice":
			assert.True(t, r.didWin)
			assert.InDelta(t, 10, r.payout, 1e-9)
		case "bob":
			assert.False(t, r.didWin)
			assert.InDelta(t, -10, r.payout, 1e-9)
		}
	}
}

// PlaceBet replaces any previous bet by the same user.
func TestPlaceBetOverwrites(t *testing.T) {
	table := NewRoulette(37)
	table.PlaceBet("alice", 10, []int{1})
	table.PlaceBet("alice", 25, []int{2, 3})

	amount, ok := table.GetBet("alice")
	require.True(t, ok)
	assert.Equal(t, int64(25), amount)
	assert.Len(t, table.Bets(), 1)
}

func TestUnplaceBet(t *testing.T) {
	table := NewRoulette(37)
	table.PlaceBet("alice", 10, []int{1})
	table.UnplaceBet("alice")
	_, ok := table.GetBet("alice")
	assert.False(t, ok)
}

// The table is wiped after settlement even though LastOutcome survives.
func TestComputeWinningsResets(t *testing.T) {
	table := NewRoulette(37)
	table.PlaceBet("alice", 10, []int{7})
	table.LastOutcome = 7
	collect(table)

	assert.Empty(t, table.Bets())
	assert.Equal(t, 7, table.LastOutcome)
}

// With zero total stake the pari-mutuel distribution falls back to counting
// bets, each split evenly across its outcome set.
func TestPariMutuelZeroStakeFallback(t *testing.T) {
	table := NewPrediction(4)
	table.PlaceBet("alice", 0, []int{0})
	table.PlaceBet("bob", 0, []int{1, 2})

	chances := table.Chances()
	assert.InDelta(t, 0.5, chances[0], 1e-9)
	assert.InDelta(t, 0.25, chances[1], 1e-9)
	assert.InDelta(t, 0.25, chances[2], 1e-9)
	assert.InDelta(t, 0, chances[3], 1e-9)
}

// A zero-stake winner against a funded pool: the winning outcome has no
// stake weight, so the payout is rescaled from the count-based distribution
// with unit weight.
func TestPariMutuelZeroStakeWinnerRescale(t *testing.T) {
	table := NewPrediction(2)
	table.PlaceBet("alice", 0, []int{0})
	table.PlaceBet("bob", 10, []int{1})
	table.LastOutcome = 0

	results := collect(table)
	require.Len(t, results, 2)
	for _, r := range results {
		switch r.userID {
		case "alice":
			assert.True(t, r.didWin)
			// -0 + 1/1 * 1/(1/2) = 2
			assert.InDelta(t, 2, r.payout, 1e-9)
		case "bob":
			assert.False(t, r.didWin)
			assert.InDelta(t, -10, r.payout, 1e-9)
		}
	}
}

func TestDrawStaysInRange(t *testing.T) {
	table := NewRoulette(37)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		outcome := table.Draw(rng)
		assert.GreaterOrEqual(t, outcome, 0)
		assert.Less(t, outcome, 37)
		assert.Equal(t, outcome, table.LastOutcome)
	}
}

func TestAllNumbers(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3}, AllNumbers(4))
}

// For any pari-mutuel bet set with positive stakes on the winning outcome,
// realized payouts sum to zero: the pool only moves between bettors.
func TestPariMutuelZeroSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		outcomes := rapid.IntRange(2, 6).Draw(t, "outcomes")
		table := NewPrediction(outcomes)
		players := rapid.IntRange(1, 8).Draw(t, "players")
		covered := make(map[int]bool)
		for i := 0; i < players; i++ {
			id := fmt.Sprintf("player%d", i)
			amount := rapid.Int64Range(1, 1000).Draw(t, "amount")
			count := rapid.IntRange(1, outcomes).Draw(t, "count")
			numbers := rapid.Permutation(AllNumbers(outcomes)).Draw(t, "numbers")[:count]
			table.PlaceBet(id, amount, numbers)
			for _, n := range numbers {
				covered[n] = true
			}
		}
		// The pool only balances when somebody holds the winning outcome;
		// otherwise every stake is simply lost.
		coveredList := make([]int, 0, len(covered))
		for n := range covered {
			coveredList = append(coveredList, n)
		}
		table.LastOutcome = rapid.SampledFrom(coveredList).Draw(t, "winner")

		var sum float64
		table.ComputeWinnings(func(_ string, _ bool, _ float64, _ int64, payout float64) {
			sum += payout
		})
		if math.Abs(sum) > 1e-6 {
			t.Fatalf("pool leaked %v points", sum)
		}
	})
}
