// Package ledger provides the durable per-user balance store.
package ledger

import (
	"context"

	"points-game-bot/internal/model"
)

// Store is the balance ledger. Get lazily creates a default record, Update
// applies a mutation and persists before returning. Both must be
// linearizable per user id: callers never read-modify-write across two
// separate Store calls without re-deriving from the stored state.
type Store interface {
	// Get returns the record for id, creating and persisting the default
	// record if none exists.
	Get(ctx context.Context, id string) (*model.BalanceRecord, error)

	// Update applies mutate to the record for id (creating the default
	// record first if needed), persists the result and returns it.
	Update(ctx context.Context, id string, mutate func(*model.BalanceRecord)) (*model.BalanceRecord, error)

	// UpdatePair applies two mutations to two distinct records and persists
	// both in one step, so no reader or crash can observe one without the
	// other. Returns the record for id1.
	UpdatePair(ctx context.Context, id1 string, mutate1 func(*model.BalanceRecord), id2 string, mutate2 func(*model.BalanceRecord)) (*model.BalanceRecord, error)

	// All returns every record keyed by user id. The returned map may be a
	// live view; callers must not mutate it.
	All(ctx context.Context) (map[string]*model.BalanceRecord, error)
}
