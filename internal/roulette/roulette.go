// Package roulette implements the weighted-outcome betting engine shared by
// the roulette table, prediction markets and duel settlement.
package roulette

import (
	"math/rand"
	"slices"
)

// NoOutcome is the LastOutcome value before any outcome has been chosen.
const NoOutcome = -1

// Bet is a single wager on a set of outcomes. A user holds at most one Bet
// per table; placing again overwrites.
type Bet struct {
	Amount  int64
	Numbers []int
}

// Odds computes the probability of each outcome given the live bet set.
// The returned vector sums to 1 whenever any probability mass exists.
type Odds interface {
	Chances(outcomes int, bets map[string]Bet) []float64
}

// Uniform gives every outcome the same fixed chance, independent of the
// bets. Classic roulette.
type Uniform struct{}

func (Uniform) Chances(outcomes int, _ map[string]Bet) []float64 {
	chances := make([]float64, outcomes)
	for i := range chances {
		chances[i] = 1 / float64(outcomes)
	}
	return chances
}

// PariMutuel derives each outcome's chance from the distribution of staked
// amounts, each bettor's stake split evenly across their chosen outcomes.
// With zero total stake every existing bet weighs 1 instead, so a
// distribution still exists for status display.
type PariMutuel struct{}

func (PariMutuel) Chances(outcomes int, bets map[string]Bet) []float64 {
	chances := make([]float64, outcomes)
	var sum float64
	for _, b := range bets {
		sum += float64(b.Amount)
		for _, n := range b.Numbers {
			chances[n] += float64(b.Amount) / float64(len(b.Numbers))
		}
	}
	if sum == 0 {
		for i := range chances {
			chances[i] = 0
		}
		for _, b := range bets {
			for _, n := range b.Numbers {
				sum++
				chances[n]++
			}
		}
	}
	if sum == 0 {
		return chances
	}
	for i := range chances {
		chances[i] /= sum
	}
	return chances
}

// Table holds the pending bets on a numbered outcome set and settles them
// once a winning outcome is chosen. The odds model and the house edge are
// the only things that differ between the roulette and prediction variants.
type Table struct {
	bets map[string]Bet

	// LastOutcome is the most recent winning outcome, NoOutcome before the
	// first draw. Prediction tables have it assigned externally by the
	// resolver instead of Draw.
	LastOutcome int

	outcomes int
	edge     float64
	odds     Odds
}

// NewRoulette creates an n-outcome table with uniform odds and a house edge
// of 1/n.
func NewRoulette(n int) *Table {
	return New(n, 1/float64(n), Uniform{})
}

// NewPrediction creates an n-outcome pari-mutuel table. The pool is zero-sum
// among the bettors: the house takes no cut.
func NewPrediction(n int) *Table {
	return New(n, 0, PariMutuel{})
}

// New creates a table with an explicit odds model and edge.
func New(n int, edge float64, odds Odds) *Table {
	return &Table{
		bets:        make(map[string]Bet),
		LastOutcome: NoOutcome,
		outcomes:    n,
		edge:        edge,
		odds:        odds,
	}
}

// AllNumbers returns the outcome ids 0..n-1.
func AllNumbers(n int) []int {
	numbers := make([]int, n)
	for i := range numbers {
		numbers[i] = i
	}
	return numbers
}

// Outcomes returns the number of outcomes on the table.
func (t *Table) Outcomes() int {
	return t.outcomes
}

// PlaceBet records a wager, replacing any previous bet by the same user.
// Validation of amount and numbers is the caller's job.
func (t *Table) PlaceBet(userID string, amount int64, numbers []int) {
	t.bets[userID] = Bet{Amount: amount, Numbers: slices.Clone(numbers)}
}

// UnplaceBet removes the user's bet if present.
func (t *Table) UnplaceBet(userID string) {
	delete(t.bets, userID)
}

// GetBet returns the user's staked amount, if any.
func (t *Table) GetBet(userID string) (int64, bool) {
	b, ok := t.bets[userID]
	return b.Amount, ok
}

// Bets returns the live bet map. Callers must not mutate it.
func (t *Table) Bets() map[string]Bet {
	return t.bets
}

// Draw samples a winning outcome uniformly, records it as LastOutcome and
// returns it. Pari-mutuel tables never call this: their outcome is supplied
// by a moderator or by the duel result.
func (t *Table) Draw(rng *rand.Rand) int {
	t.LastOutcome = rng.Intn(t.outcomes)
	return t.LastOutcome
}

// Chances returns the current probability vector over all outcomes.
func (t *Table) Chances() []float64 {
	return t.odds.Chances(t.outcomes, t.bets)
}

// SettleFunc receives one settled bet. Payout is the bettor's net result
// (stake already subtracted), chance the probability mass of their chosen
// outcome set at settlement time.
type SettleFunc func(userID string, didWin bool, chance float64, amount int64, payout float64)

// ComputeWinnings settles every pending bet against LastOutcome and wipes
// the table. The wipe is unconditional: settlement is an atomic
// resolve-and-clear step even if a callback misbehaves.
//
// A winner's payout is -amount + weight/len(numbers) * (1-edge)/chance(last)
// where weight is the stake. When the winning outcome carries zero
// stake-weight while the total stake is positive (possible when a zero-stake
// bettor wins), the chance is re-derived from the count-based fallback
// distribution and the weight becomes 1.
func (t *Table) ComputeWinnings(settle SettleFunc) {
	chances := t.Chances()

	winChance := 0.0
	rescaled := false
	if t.LastOutcome != NoOutcome {
		winChance = chances[t.LastOutcome]
		if winChance == 0 && t.anyoneWon() {
			winChance = t.fallbackChance(t.LastOutcome)
			rescaled = true
		}
	}

	for userID, b := range t.bets {
		var chance float64
		for _, n := range b.Numbers {
			chance += chances[n]
		}
		payout := -float64(b.Amount)
		didWin := slices.Contains(b.Numbers, t.LastOutcome)
		if didWin && winChance > 0 {
			weight := float64(b.Amount)
			if rescaled {
				weight = 1
			}
			payout += weight / float64(len(b.Numbers)) * ((1 - t.edge) / winChance)
		}
		settle(userID, didWin, chance, b.Amount, payout)
	}
	t.Reset()
}

// Reset wipes all pending bets.
func (t *Table) Reset() {
	t.bets = make(map[string]Bet)
}

func (t *Table) anyoneWon() bool {
	for _, b := range t.bets {
		if slices.Contains(b.Numbers, t.LastOutcome) {
			return true
		}
	}
	return false
}

// fallbackChance weighs every bet as 1 split across its outcome set,
// mirroring the zero-stake branch of PariMutuel.
func (t *Table) fallbackChance(outcome int) float64 {
	var weight, total float64
	for _, b := range t.bets {
		total++
		if slices.Contains(b.Numbers, outcome) {
			weight += 1 / float64(len(b.Numbers))
		}
	}
	if total == 0 {
		return 0
	}
	return weight / total
}
