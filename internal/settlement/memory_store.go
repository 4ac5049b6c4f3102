package settlement

import (
	"context"
	"sync"
)

// MemoryStore keeps ledger state in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	contracts map[string]ContractState
	balances  map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: map[string]ContractState{},
		balances:  map[string]float64{},
	}
}

func (m *MemoryStore) Insert(ctx context.Context, c *ContractState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contracts[c.Ref] = *c
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, ref string) (*ContractState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[ref]
	if !ok {
		return nil, ErrContractNotFound
	}
	return &c, nil
}

func (m *MemoryStore) Mutate(ctx context.Context, ref string, fn func(c *ContractState) (*Credit, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[ref]
	if !ok {
		return ErrContractNotFound
	}

	credit, err := fn(&c)
	if err != nil {
		return err
	}

	m.contracts[ref] = c
	if credit != nil {
		m.balances[credit.Addr] += credit.Amount
	}
	return nil
}

func (m *MemoryStore) BalanceOf(ctx context.Context, addr string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balances[addr], nil
}
