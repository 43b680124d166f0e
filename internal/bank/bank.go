// Package bank wraps the ledger with soft-reserve wager semantics: a staked
// amount is reserved (unspendable by other concurrent wagers) until the bet
// resolves, then committed and released in one step.
package bank

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"points-game-bot/internal/ledger"
	"points-game-bot/internal/model"
	"points-game-bot/internal/pkg/lock"
	"points-game-bot/internal/roulette"
)

// DefaultHouseID is the synthetic ledger id the casino plays against.
const DefaultHouseID = "house"

// UserError is an error whose text is the chat reply itself. Callers relay
// it verbatim instead of degrading it to a generic apology.
type UserError string

func (e UserError) Error() string {
	return string(e)
}

// Userf formats a UserError.
func Userf(format string, args ...any) UserError {
	return UserError(fmt.Sprintf(format, args...))
}

// Bank mediates every balance mutation. All point movement is zero-sum
// against the house account: each point a player wins, the house loses.
type Bank struct {
	store   ledger.Store
	locks   *lock.UserLock
	houseID string
}

// New creates a Bank over the given store. houseID may be empty to use
// DefaultHouseID.
func New(store ledger.Store, locks *lock.UserLock, houseID string) *Bank {
	if houseID == "" {
		houseID = DefaultHouseID
	}
	return &Bank{store: store, locks: locks, houseID: houseID}
}

// Store exposes the underlying ledger for read-only display paths.
func (b *Bank) Store() ledger.Store {
	return b.store
}

// HouseID returns the id of the house account.
func (b *Bank) HouseID() string {
	return b.houseID
}

// SetUsername records the last-observed display name for a user. Called on
// every command, so records track name changes opportunistically.
func (b *Bank) SetUsername(ctx context.Context, userID, username string) error {
	if username == "" {
		return nil
	}
	return b.locks.WithLock(userID, func() error {
		_, err := b.store.Update(ctx, userID, func(rec *model.BalanceRecord) {
			rec.Username = username
		})
		return err
	})
}

// Username returns the last-observed display name for a user.
func (b *Bank) Username(ctx context.Context, userID string) string {
	rec, err := b.store.Get(ctx, userID)
	if err != nil {
		return ""
	}
	return rec.Username
}

// Available returns balance minus reserved for a user.
func (b *Bank) Available(ctx context.Context, userID string) (int64, error) {
	rec, err := b.store.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return rec.Available(), nil
}

// Ensure validates and reserves a wager. all means "stake everything
// available"; extraReserve is the amount of an existing reservation being
// replaced, notionally returned before computing the maximum and netted out
// of the new reservation. The returned error text, if any, is the
// user-facing reply.
func (b *Bank) Ensure(ctx context.Context, userID string, amount int64, all bool, extraReserve int64) (int64, error) {
	var ensured int64
	err := b.locks.WithLock(userID, func() error {
		rec, err := b.store.Get(ctx, userID)
		if err != nil {
			return err
		}
		if !all && amount <= 0 {
			return Userf("You can bet only a positive amount of points, %s!", rec.Username)
		}
		available := rec.Available() + extraReserve
		if all {
			amount = available
		}
		if amount > available {
			return Userf("You don't have that many points, %s!", rec.Username)
		}
		if _, err := b.store.Update(ctx, userID, func(rec *model.BalanceRecord) {
			rec.ReservedBalance += amount - extraReserve
		}); err != nil {
			return err
		}
		ensured = amount
		return nil
	})
	return ensured, err
}

// Reserve adjusts a user's reserved balance by amount without validation.
// Negative amounts release a reservation (retracted offers, removed bets).
func (b *Bank) Reserve(ctx context.Context, userID string, amount int64) error {
	return b.locks.WithLock(userID, func() error {
		_, err := b.store.Update(ctx, userID, func(rec *model.BalanceRecord) {
			rec.ReservedBalance += amount
		})
		return err
	})
}

// Commit resolves a wager: releases the reservation, applies the payout
// delta to the user's balance, and mirrors -delta onto the house account in
// the same store write, so no reader or crash can observe a non-zero-sum
// ledger. Returns the user's updated record.
func (b *Bank) Commit(ctx context.Context, userID string, release, delta int64) (*model.BalanceRecord, error) {
	var rec *model.BalanceRecord
	if userID == b.houseID {
		err := b.locks.WithLock(userID, func() error {
			var err error
			rec, err = b.store.Update(ctx, userID, func(rec *model.BalanceRecord) {
				rec.ReservedBalance -= release
				rec.Balance += delta
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	// Lock order is always user then house.
	err := b.locks.WithLock(userID, func() error {
		return b.locks.WithLock(b.houseID, func() error {
			var err error
			rec, err = b.store.UpdatePair(ctx,
				userID, func(rec *model.BalanceRecord) {
					rec.ReservedBalance -= release
					rec.Balance += delta
				},
				b.houseID, func(rec *model.BalanceRecord) {
					rec.Balance -= delta
				})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Claim grants the periodic free points if the cooldown has elapsed since the
// user's last claim. On cooldown it returns a nil record and the remaining
// wait. The grant is debited from the house account in the same store write.
func (b *Bank) Claim(ctx context.Context, userID string, amount int64, cooldown time.Duration, now time.Time) (*model.BalanceRecord, time.Duration, error) {
	var rec *model.BalanceRecord
	var eta time.Duration
	err := b.locks.WithLock(userID, func() error {
		cur, err := b.store.Get(ctx, userID)
		if err != nil {
			return err
		}
		if cur.LastClaim != 0 {
			elapsed := now.UnixMilli() - cur.LastClaim
			if elapsed < cooldown.Milliseconds() {
				eta = time.Duration(cooldown.Milliseconds()-elapsed) * time.Millisecond
				return nil
			}
		}
		return b.locks.WithLock(b.houseID, func() error {
			var err error
			rec, err = b.store.UpdatePair(ctx,
				userID, func(r *model.BalanceRecord) {
					r.LastClaim = now.UnixMilli()
					r.Balance += amount
				},
				b.houseID, func(r *model.BalanceRecord) {
					r.Balance -= amount
				})
			return err
		})
	})
	if err != nil || rec == nil {
		return nil, eta, err
	}
	return rec, 0, nil
}

// PlaceBet reserves a wager and records it on the table, netting out any bet
// the user already holds there. Returns the actual staked amount.
func (b *Bank) PlaceBet(ctx context.Context, t *roulette.Table, userID string, amount int64, all bool, numbers []int) (int64, error) {
	extraReserve, _ := t.GetBet(userID)
	ensured, err := b.Ensure(ctx, userID, amount, all, extraReserve)
	if err != nil {
		return 0, err
	}
	t.PlaceBet(userID, ensured, numbers)
	return ensured, nil
}

// RefundBet releases the user's reservation for their bet on the table, if
// any, and removes the bet.
func (b *Bank) RefundBet(ctx context.Context, t *roulette.Table, userID string) error {
	if amount, ok := t.GetBet(userID); ok {
		if err := b.Reserve(ctx, userID, -amount); err != nil {
			return err
		}
	}
	t.UnplaceBet(userID)
	return nil
}

// RefundAll returns every pending stake on the table to its owner and wipes
// the table. Used for prediction refunds and duel ties.
func (b *Bank) RefundAll(ctx context.Context, t *roulette.Table) error {
	for userID := range t.Bets() {
		if err := b.RefundBet(ctx, t, userID); err != nil {
			return err
		}
	}
	t.Reset()
	return nil
}

// FormatFunc renders one settled bet into a chat sentence.
type FormatFunc func(username string, didWin bool, payout int64, chance float64, balance int64) string

// Settler adapts a FormatFunc into a roulette settlement callback that
// commits each payout through the reservation protocol and collects the
// rendered sentences.
type Settler struct {
	bank     *Bank
	ctx      context.Context
	format   FormatFunc
	Messages []string
	err      error
}

// NewSettler creates a Settler for one settlement round.
func (b *Bank) NewSettler(ctx context.Context, format FormatFunc) *Settler {
	return &Settler{bank: b, ctx: ctx, format: format}
}

// Settle is the roulette.SettleFunc for this round. Payouts are floored to
// whole points before committing.
func (s *Settler) Settle(userID string, didWin bool, chance float64, amount int64, payout float64) {
	delta := int64(math.Floor(payout))
	rec, err := s.bank.Commit(s.ctx, userID, amount, delta)
	if err != nil {
		// A failure here leaves this round partially settled; the table has
		// already been cleared by the time the caller sees the error.
		log.Error().Err(err).Str("user_id", userID).Int64("payout", delta).
			Msg("ledger write failed during settlement")
		if s.err == nil {
			s.err = err
		}
		return
	}
	if msg := s.format(rec.Username, didWin, delta, chance, rec.Balance); msg != "" {
		s.Messages = append(s.Messages, msg)
	}
}

// Err returns the first commit failure of the round, if any.
func (s *Settler) Err() error {
	return s.err
}
