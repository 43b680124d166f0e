package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"points-game-bot/internal/ledger"
	"points-game-bot/internal/model"
	"points-game-bot/internal/pkg/lock"
	"points-game-bot/internal/roulette"
)

func newTestBank() *Bank {
	store := ledger.NewMemory(nil, nil, 100)
	return New(store, lock.NewUserLock(), "")
}

func TestEnsureReservesStake(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	ensured, err := b.Ensure(ctx, "alice", 30, false, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30), ensured)

	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.Balance)
	assert.Equal(t, int64(30), rec.ReservedBalance)
	assert.Equal(t, int64(70), rec.Available())
}

func TestEnsureRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	for _, amount := range []int64{0, -5} {
		_, err := b.Ensure(ctx, "alice", amount, false, 0)
		require.Error(t, err)
		var uerr UserError
		assert.ErrorAs(t, err, &uerr)
		assert.Contains(t, err.Error(), "positive amount")
	}
}

func TestEnsureRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	_, err := b.Ensure(ctx, "alice", 101, false, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "don't have that many points")
}

// "all" stakes everything available, even when that is zero.
func TestEnsureAll(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	ensured, err := b.Ensure(ctx, "alice", 0, true, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ensured)

	ensured, err = b.Ensure(ctx, "alice", 0, true, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ensured)
}

// extraReserve nets a replaced reservation out of the new one, so replacing
// a 40-point bet with a 70-point bet only needs 30 more available points.
func TestEnsureExtraReserve(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	_, err := b.Ensure(ctx, "alice", 40, false, 0)
	require.NoError(t, err)
	ensured, err := b.Ensure(ctx, "alice", 70, false, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(70), ensured)

	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(70), rec.ReservedBalance)
}

// Commit releases the reservation, applies the delta and mirrors -delta on
// the house so the total supply never changes.
func TestCommitMirrorsHouse(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	_, err := b.Ensure(ctx, "alice", 10, false, 0)
	require.NoError(t, err)
	rec, err := b.Commit(ctx, "alice", 10, 350)
	require.NoError(t, err)
	assert.Equal(t, int64(450), rec.Balance)
	assert.Equal(t, int64(0), rec.ReservedBalance)

	house, err := b.Store().Get(ctx, b.HouseID())
	require.NoError(t, err)
	assert.Equal(t, int64(100-350), house.Balance)
}

// The user delta and the house mirror land in a single store write, so a
// crash between them cannot leave the ledger non-zero-sum on disk.
func TestCommitPersistsAtomically(t *testing.T) {
	ctx := context.Background()
	saves := 0
	store := ledger.NewMemory(nil, ledger.PersisterFunc(func(map[string]*model.BalanceRecord) error {
		saves++
		return nil
	}), 100)
	b := New(store, lock.NewUserLock(), "")

	_, err := b.Ensure(ctx, "alice", 10, false, 0)
	require.NoError(t, err)

	before := saves
	rec, err := b.Commit(ctx, "alice", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(105), rec.Balance)
	assert.Equal(t, before+1, saves)

	house, err := b.Store().Get(ctx, b.HouseID())
	require.NoError(t, err)
	assert.Equal(t, int64(95), house.Balance)
}

func TestCommitOnHouseDoesNotMirror(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	rec, err := b.Commit(ctx, b.HouseID(), 0, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), rec.Balance)
}

func TestClaimAndCooldown(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	now := time.Unix(1_700_000_000, 0)

	rec, eta, err := b.Claim(ctx, "alice", 100, 30*time.Minute, now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(200), rec.Balance)
	assert.Zero(t, eta)

	rec, eta, err = b.Claim(ctx, "alice", 100, 30*time.Minute, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 20*time.Minute, eta)

	rec, _, err = b.Claim(ctx, "alice", 100, 30*time.Minute, now.Add(31*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(300), rec.Balance)

	// Claims come out of the house account.
	house, err := b.Store().Get(ctx, b.HouseID())
	require.NoError(t, err)
	assert.Equal(t, int64(100-200), house.Balance)
}

func TestPlaceBetNetsReplacedBet(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	table := roulette.NewRoulette(37)

	_, err := b.PlaceBet(ctx, table, "alice", 90, false, []int{1})
	require.NoError(t, err)
	// 90 reserved, 10 available; replacing with 95 must succeed.
	amount, err := b.PlaceBet(ctx, table, "alice", 95, false, []int{2})
	require.NoError(t, err)
	assert.Equal(t, int64(95), amount)

	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(95), rec.ReservedBalance)
}

func TestRefundBet(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	table := roulette.NewRoulette(37)

	_, err := b.PlaceBet(ctx, table, "alice", 40, false, []int{1})
	require.NoError(t, err)
	require.NoError(t, b.RefundBet(ctx, table, "alice"))

	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.ReservedBalance)
	_, ok := table.GetBet("alice")
	assert.False(t, ok)
}

func TestRefundAll(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	table := roulette.NewPrediction(2)

	_, err := b.PlaceBet(ctx, table, "alice", 40, false, []int{0})
	require.NoError(t, err)
	_, err = b.PlaceBet(ctx, table, "bob", 60, false, []int{1})
	require.NoError(t, err)
	require.NoError(t, b.RefundAll(ctx, table))

	for _, id := range []string{"alice", "bob"} {
		rec, err := b.Store().Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.ReservedBalance)
		assert.Equal(t, int64(100), rec.Balance)
	}
	assert.Empty(t, table.Bets())
}

// Settler floors fractional payouts before committing.
func TestSettlerFloorsPayout(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	_, err := b.Ensure(ctx, "alice", 10, false, 0)
	require.NoError(t, err)
	require.NoError(t, b.SetUsername(ctx, "alice", "alice"))

	settler := b.NewSettler(ctx, func(username string, didWin bool, payout int64, chance float64, balance int64) string {
		assert.Equal(t, int64(3), payout)
		return "ok"
	})
	settler.Settle("alice", true, 0.5, 10, 3.9)
	require.NoError(t, settler.Err())
	assert.Equal(t, []string{"ok"}, settler.Messages)

	rec, err := b.Store().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(103), rec.Balance)
}

// Random ensure/refund/commit sequences keep 0 <= reserved <= balance and
// the player plus house total constant.
func TestReservationInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		b := newTestBank()
		reserved := int64(0)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				amount := rapid.Int64Range(1, 150).Draw(t, "ensure")
				if ensured, err := b.Ensure(ctx, "alice", amount, false, 0); err == nil {
					reserved += ensured
				}
			case 1:
				if reserved > 0 {
					require.NoError(t, b.Reserve(ctx, "alice", -reserved))
					reserved = 0
				}
			case 2:
				if reserved > 0 {
					delta := rapid.Int64Range(-reserved, reserved).Draw(t, "delta")
					_, err := b.Commit(ctx, "alice", reserved, delta)
					require.NoError(t, err)
					reserved = 0
				}
			}

			rec, err := b.Store().Get(ctx, "alice")
			require.NoError(t, err)
			require.GreaterOrEqual(t, rec.ReservedBalance, int64(0))
			require.LessOrEqual(t, rec.ReservedBalance, rec.Balance)

			house, err := b.Store().Get(ctx, b.HouseID())
			require.NoError(t, err)
			require.Equal(t, int64(200), rec.Balance+house.Balance)
		}
	})
}

func TestSetUsernameSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()

	require.NoError(t, b.SetUsername(ctx, "alice", "Alice"))
	require.NoError(t, b.SetUsername(ctx, "alice", ""))
	assert.Equal(t, "Alice", b.Username(ctx, "alice"))
}

func TestAvailableLazyRecord(t *testing.T) {
	ctx := context.Background()
	b := newTestBank()
	available, err := b.Available(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(100), available)
}
