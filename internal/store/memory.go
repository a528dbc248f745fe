package store

import (
	"context"
	"sort"
	"sync"

	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
)

type machineState struct {
	version      int64
	products     map[string]model.Product
	balance      money.Set
	transactions []model.TransactionRecord
}

// MemoryStore keeps machines in process memory. A single RWMutex guards all
// machines, so every commit is serialized.
type MemoryStore struct {
	mu       sync.RWMutex
	machines map[string]*machineState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{machines: make(map[string]*machineState)}
}

// Provision creates the machine with the given balance, or replaces the
// balance of an existing one.
func (s *MemoryStore) Provision(machineID string, balance money.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[machineID]
	if !ok {
		m = &machineState{products: make(map[string]model.Product)}
		s.machines[machineID] = m
	}
	m.balance = balance.Clone()
	m.version++
}

func (s *MemoryStore) machine(machineID string) (*machineState, error) {
	m, ok := s.machines[machineID]
	if !ok {
		return nil, ErrMachineNotFound
	}
	return m, nil
}

func (s *MemoryStore) ReadSnapshot(_ context.Context, machineID string, productID string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.machine(machineID)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap := model.Snapshot{
		Version:   m.version,
		Inventory: m.balance.Clone(),
	}
	if p, ok := m.products[productID]; ok {
		snap.Product = &p
	}
	return snap, nil
}

func (s *MemoryStore) CommitMutation(_ context.Context, machineID string, expectedVersion int64, mutation model.Mutation) error {
	if err := checkMutation(mutation); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.machine(machineID)
	if err != nil {
		return err
	}
	if m.version != expectedVersion {
		return ErrVersionConflict
	}
	p, ok := m.products[mutation.ProductID]
	if !ok {
		return ErrNoRows
	}

	p.Stock = mutation.NewStock
	m.products[p.ID] = p
	m.balance = mutation.NewInventory.Clone()
	rec := mutation.Record
	rec.MachineID = machineID
	rec.Inserted = rec.Inserted.Clone()
	rec.Returned = rec.Returned.Clone()
	m.transactions = append(m.transactions, rec)
	m.version++
	return nil
}

func (s *MemoryStore) ProductList(_ context.Context, machineID string) ([]model.AdminProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.machine(machineID)
	if err != nil {
		return nil, err
	}
	sold := make(map[string]int64)
	for _, tx := range m.transactions {
		if tx.Status == model.TransactionStatusSuccess {
			sold[tx.ProductID]++
		}
	}
	products := make([]model.AdminProduct, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, model.AdminProduct{Product: p, TotalSold: sold[p.ID]})
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (s *MemoryStore) ProductCreate(_ context.Context, machineID string, product model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.machine(machineID)
	if err != nil {
		return err
	}
	if _, ok := m.products[product.ID]; ok {
		return ErrAlreadyExists
	}
	m.products[product.ID] = product
	m.version++
	return nil
}

func (s *MemoryStore) ProductUpdate(_ context.Context, machineID string, product model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.machine(machineID)
	if err != nil {
		return err
	}
	current, ok := m.products[product.ID]
	if !ok {
		return ErrNoRows
	}
	if product.Image == "" {
		product.Image = current.Image
	}
	m.products[product.ID] = product
	m.version++
	return nil
}

func (s *MemoryStore) ProductDelete(_ context.Context, machineID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.machine(machineID)
	if err != nil {
		return err
	}
	if _, ok := m.products[productID]; !ok {
		return ErrNoRows
	}
	delete(m.products, productID)
	m.version++
	return nil
}

func (s *MemoryStore) BalanceGet(_ context.Context, machineID string) (money.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.machine(machineID)
	if err != nil {
		return nil, err
	}
	return m.balance.Clone(), nil
}

func (s *MemoryStore) BalanceSet(_ context.Context, machineID string, balance money.Set) error {
	if err := money.Validate(balance); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.machine(machineID)
	if err != nil {
		return err
	}
	next := m.balance.Clone()
	for d, n := range balance {
		next[d] = n
	}
	m.balance = next
	m.version++
	return nil
}

func (s *MemoryStore) TransactionList(_ context.Context, machineID string, limit int) ([]model.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.machine(machineID)
	if err != nil {
		return nil, err
	}
	records := make([]model.TransactionRecord, 0, len(m.transactions))
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if limit > 0 && len(records) == limit {
			break
		}
		rec := m.transactions[i]
		rec.Inserted = rec.Inserted.Clone()
		rec.Returned = rec.Returned.Clone()
		records = append(records, rec)
	}
	return records, nil
}

func (s *MemoryStore) SalesStats(_ context.Context, machineID string) (model.SalesStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.machine(machineID)
	if err != nil {
		return model.SalesStats{}, err
	}
	var stats model.SalesStats
	for _, tx := range m.transactions {
		if tx.Status != model.TransactionStatusSuccess {
			continue
		}
		stats.TotalSold++
		stats.TotalEarned += tx.ProductPrice
	}
	return stats, nil
}

func (s *MemoryStore) Close() {}
