// Package model defines the data models for the points game bot.
package model

// BalanceRecord is the per-user ledger entry. One exists for every user the
// bot has ever seen, plus the synthetic house account.
type BalanceRecord struct {
	Balance         int64  `db:"balance" json:"balance"`
	ReservedBalance int64  `db:"reserved_balance" json:"reservedBalance"`
	Username        string `db:"username" json:"username,omitempty"`
	LastClaim       int64  `db:"last_claim" json:"lastClaim,omitempty"` // unix millis of last free-points claim, 0 = never
}

// Available returns the part of the balance not locked by pending wagers.
func (r *BalanceRecord) Available() int64 {
	return r.Balance - r.ReservedBalance
}
