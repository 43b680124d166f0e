package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"points-game-bot/internal/model"
)

// Postgres is a Store backed by a balances table. Every Update runs in its
// own transaction with the row locked, so updates are linearizable per user.
type Postgres struct {
	pool            *pgxpool.Pool
	startingBalance int64
}

// NewPostgres creates a Postgres store on the given pool.
func NewPostgres(pool *pgxpool.Pool, startingBalance int64) *Postgres {
	return &Postgres{pool: pool, startingBalance: startingBalance}
}

// Migrate creates the balances table if it does not exist. Reserved balances
// are kept in the schema for observability but zeroed on every load.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS balances (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL,
			reserved_balance BIGINT NOT NULL DEFAULT 0,
			username TEXT NOT NULL DEFAULT '',
			last_claim BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_balances_balance ON balances(balance DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate balances table: %w", err)
	}
	// Reservations belong to in-flight wagers, which did not survive the
	// restart that brought us here.
	if _, err := p.pool.Exec(ctx, `UPDATE balances SET reserved_balance = 0 WHERE reserved_balance <> 0`); err != nil {
		return fmt.Errorf("reset reserved balances: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*model.BalanceRecord, error) {
	const query = `
		SELECT balance, reserved_balance, username, last_claim
		FROM balances
		WHERE user_id = $1
	`
	var rec model.BalanceRecord
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&rec.Balance,
		&rec.ReservedBalance,
		&rec.Username,
		&rec.LastClaim,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p.Update(ctx, id, func(*model.BalanceRecord) {})
	}
	if err != nil {
		return nil, fmt.Errorf("get balance record: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) Update(ctx context.Context, id string, mutate func(*model.BalanceRecord)) (*model.BalanceRecord, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insert, id, p.startingBalance); err != nil {
		return nil, fmt.Errorf("ensure balance record: %w", err)
	}

	const selectForUpdate = `
		SELECT balance, reserved_balance, username, last_claim
		FROM balances
		WHERE user_id = $1
		FOR UPDATE
	`
	var rec model.BalanceRecord
	err = tx.QueryRow(ctx, selectForUpdate, id).Scan(
		&rec.Balance,
		&rec.ReservedBalance,
		&rec.Username,
		&rec.LastClaim,
	)
	if err != nil {
		return nil, fmt.Errorf("lock balance record: %w", err)
	}

	mutate(&rec)

	const update = `
		UPDATE balances
		SET balance = $2, reserved_balance = $3, username = $4, last_claim = $5, updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, update, id, rec.Balance, rec.ReservedBalance, rec.Username, rec.LastClaim); err != nil {
		return nil, fmt.Errorf("update balance record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return &rec, nil
}

// UpdatePair mutates two records inside one transaction, locking the rows in
// a fixed order. Used for zero-sum transfers against the house account.
func (p *Postgres) UpdatePair(ctx context.Context, id1 string, mutate1 func(*model.BalanceRecord), id2 string, mutate2 func(*model.BalanceRecord)) (*model.BalanceRecord, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO balances (user_id, balance)
		VALUES ($1, $3), ($2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insert, id1, id2, p.startingBalance); err != nil {
		return nil, fmt.Errorf("ensure balance records: %w", err)
	}

	const selectForUpdate = `
		SELECT balance, reserved_balance, username, last_claim
		FROM balances
		WHERE user_id = $1
		FOR UPDATE
	`
	ordered := []string{id1, id2}
	if id2 < id1 {
		ordered[0], ordered[1] = id2, id1
	}
	recs := make(map[string]*model.BalanceRecord, 2)
	for _, id := range ordered {
		var rec model.BalanceRecord
		err := tx.QueryRow(ctx, selectForUpdate, id).Scan(
			&rec.Balance,
			&rec.ReservedBalance,
			&rec.Username,
			&rec.LastClaim,
		)
		if err != nil {
			return nil, fmt.Errorf("lock balance record: %w", err)
		}
		recs[id] = &rec
	}

	mutate1(recs[id1])
	mutate2(recs[id2])

	const update = `
		UPDATE balances
		SET balance = $2, reserved_balance = $3, username = $4, last_claim = $5, updated_at = NOW()
		WHERE user_id = $1
	`
	for _, id := range []string{id1, id2} {
		rec := recs[id]
		if _, err := tx.Exec(ctx, update, id, rec.Balance, rec.ReservedBalance, rec.Username, rec.LastClaim); err != nil {
			return nil, fmt.Errorf("update balance record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return recs[id1], nil
}

func (p *Postgres) All(ctx context.Context) (map[string]*model.BalanceRecord, error) {
	const query = `
		SELECT user_id, balance, reserved_balance, username, last_claim
		FROM balances
	`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list balance records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]*model.BalanceRecord)
	for rows.Next() {
		var id string
		var rec model.BalanceRecord
		if err := rows.Scan(&id, &rec.Balance, &rec.ReservedBalance, &rec.Username, &rec.LastClaim); err != nil {
			return nil, fmt.Errorf("scan balance record: %w", err)
		}
		records[id] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance records: %w", err)
	}
	return records, nil
}
