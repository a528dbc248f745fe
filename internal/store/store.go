package store

import (
	"context"
	"errors"

	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
	"github.com/iurnickita/vending/internal/store/config"
)

// Store is the persistence boundary of a vending machine. Every write that
// touches a machine's products or inventory advances the machine version, so
// CommitMutation can reject snapshots that went stale.
type Store interface {
	ReadSnapshot(ctx context.Context, machineID string, productID string) (model.Snapshot, error)
	CommitMutation(ctx context.Context, machineID string, expectedVersion int64, mutation model.Mutation) error
	ProductList(ctx context.Context, machineID string) ([]model.AdminProduct, error)
	ProductCreate(ctx context.Context, machineID string, product model.Product) error
	ProductUpdate(ctx context.Context, machineID string, product model.Product) error
	ProductDelete(ctx context.Context, machineID string, productID string) error
	BalanceGet(ctx context.Context, machineID string) (money.Set, error)
	BalanceSet(ctx context.Context, machineID string, balance money.Set) error
	TransactionList(ctx context.Context, machineID string, limit int) ([]model.TransactionRecord, error)
	SalesStats(ctx context.Context, machineID string) (model.SalesStats, error)
	Close()
}

var (
	ErrNoRows            = errors.New("no rows")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMachineNotFound   = errors.New("machine not found")
	ErrVersionConflict   = errors.New("machine state changed since snapshot")
	ErrMutationIncorrect = errors.New("mutation is incorrect")
)

// DefaultBalances is the denomination stock a freshly provisioned machine
// starts with.
var DefaultBalances = money.Set{
	1:    10,
	5:    10,
	10:   10,
	20:   10,
	50:   10,
	100:  10,
	500:  10,
	1000: 10,
}

// NewStore opens PostgreSQL when a DSN is configured, otherwise an in-memory
// store with one provisioned machine.
func NewStore(ctx context.Context, cfg config.Config) (Store, error) {
	if cfg.DBDsn != "" {
		return NewPostgresStore(ctx, cfg.DBDsn)
	}
	mem := NewMemoryStore()
	if cfg.MachineID != "" {
		mem.Provision(cfg.MachineID, DefaultBalances)
	}
	return mem, nil
}

func checkMutation(mutation model.Mutation) error {
	if mutation.ProductID == "" || mutation.NewStock < 0 {
		return ErrMutationIncorrect
	}
	if err := money.Validate(mutation.NewInventory); err != nil {
		return errors.Join(ErrMutationIncorrect, err)
	}
	return nil
}
