package ledger

import (
	"context"
	"fmt"
	"sync"

	"points-game-bot/internal/model"
)

// Persister writes the full ledger snapshot to durable storage. It is called
// synchronously on every mutation, write-through with no batching.
type Persister interface {
	Save(records map[string]*model.BalanceRecord) error
}

// PersisterFunc adapts a function to the Persister interface.
type PersisterFunc func(map[string]*model.BalanceRecord) error

func (f PersisterFunc) Save(records map[string]*model.BalanceRecord) error {
	return f(records)
}

// Memory is a map-backed Store with synchronous write-through persistence.
type Memory struct {
	mu              sync.Mutex
	records         map[string]*model.BalanceRecord
	persister       Persister
	startingBalance int64
}

// NewMemory creates a Memory store seeded with initial records (typically
// read back by the Persister's counterpart on startup). initial may be nil.
// Reserved balances are dropped on load: reservations never survive a
// restart, the wagers that held them are gone.
func NewMemory(initial map[string]*model.BalanceRecord, persister Persister, startingBalance int64) *Memory {
	records := make(map[string]*model.BalanceRecord, len(initial))
	for id, rec := range initial {
		cp := *rec
		cp.ReservedBalance = 0
		records[id] = &cp
	}
	return &Memory{
		records:         records,
		persister:       persister,
		startingBalance: startingBalance,
	}
}

func (m *Memory) Get(ctx context.Context, id string) (*model.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	return m.update(id, func(*model.BalanceRecord) {})
}

func (m *Memory) Update(ctx context.Context, id string, mutate func(*model.BalanceRecord)) (*model.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(id, mutate)
}

func (m *Memory) UpdatePair(ctx context.Context, id1 string, mutate1 func(*model.BalanceRecord), id2 string, mutate2 func(*model.BalanceRecord)) (*model.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec1, rec2 := m.fetch(id1), m.fetch(id2)
	mutate1(rec1)
	mutate2(rec2)
	if err := m.persist(); err != nil {
		return nil, err
	}
	return rec1, nil
}

func (m *Memory) update(id string, mutate func(*model.BalanceRecord)) (*model.BalanceRecord, error) {
	rec := m.fetch(id)
	mutate(rec)
	if err := m.persist(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *Memory) fetch(id string) *model.BalanceRecord {
	rec, ok := m.records[id]
	if !ok {
		rec = &model.BalanceRecord{Balance: m.startingBalance}
		m.records[id] = rec
	}
	return rec
}

func (m *Memory) persist() error {
	if m.persister == nil {
		return nil
	}
	if err := m.persister.Save(m.records); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func (m *Memory) All(ctx context.Context) (map[string]*model.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}
