package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/iurnickita/vending/internal/balance"
	"github.com/iurnickita/vending/internal/bus"
	"github.com/iurnickita/vending/internal/lock"
	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
	"github.com/iurnickita/vending/internal/purchase"
	"github.com/iurnickita/vending/internal/service/config"
	"github.com/iurnickita/vending/internal/store"
)

type Service interface {
	Purchase(ctx context.Context, req model.PurchaseRequest) (model.PurchaseResult, error)
	Products(ctx context.Context, machineID string) ([]model.Product, error)
	AdminProducts(ctx context.Context, machineID string) ([]model.AdminProduct, error)
	CreateProduct(ctx context.Context, machineID string, product model.Product) (model.Product, error)
	UpdateProduct(ctx context.Context, machineID string, product model.Product) (model.AdminProduct, error)
	DeleteProduct(ctx context.Context, machineID string, productID string) error
	GetBalance(ctx context.Context, machineID string) ([]balance.Item, error)
	SetBalance(ctx context.Context, machineID string, items []balance.Item) ([]balance.Item, error)
	Stats(ctx context.Context, machineID string) (model.SalesStats, error)
	Transactions(ctx context.Context, machineID string, limit int) ([]model.TransactionRecord, error)
}

var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrUnknownDenomination = errors.New("denomination is not accepted")
	ErrMachineNotFound     = errors.New("machine not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrConflict            = errors.New("machine is busy, try again")

	ErrProductNotFound   = purchase.ErrProductNotFound
	ErrOutOfStock        = purchase.ErrOutOfStock
	ErrInsufficientFunds = purchase.ErrInsufficientFunds
	ErrCannotMakeChange  = purchase.ErrCannotMakeChange
	ErrInvalidMoney      = money.ErrInvalidMoney
)

type service struct {
	cfg       config.Config
	store     store.Store
	balance   balance.Balance
	locker    lock.Locker
	publisher bus.Publisher
	accepted  map[int64]bool
	zaplog    *zap.Logger
}

func NewService(cfg config.Config, store store.Store, locker lock.Locker, publisher bus.Publisher, zaplog *zap.Logger) (Service, error) {
	if cfg.MachineID != "" {
		if _, err := uuid.Parse(cfg.MachineID); err != nil {
			return nil, fmt.Errorf("machine id %q: %w", cfg.MachineID, err)
		}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 10 * time.Millisecond
	}
	accepted := make(map[int64]bool, len(cfg.Denominations))
	for _, d := range cfg.Denominations {
		if d <= 0 {
			return nil, fmt.Errorf("%w: denomination %d", ErrInvalidMoney, d)
		}
		accepted[d] = true
	}

	service := service{
		cfg:       cfg,
		store:     store,
		balance:   balance.NewBalance(store),
		locker:    locker,
		publisher: publisher,
		accepted:  accepted,
		zaplog:    zaplog,
	}
	return &service, nil
}

// machine подставляет автомат по умолчанию
func (service *service) machine(machineID string) string {
	if machineID == "" {
		return service.cfg.MachineID
	}
	return machineID
}

// checkInserted отклоняет некорректные купюры до слияния с балансом автомата
func (service *service) checkInserted(inserted money.Set) (money.Set, error) {
	if err := money.Validate(inserted); err != nil {
		return nil, err
	}
	inserted = inserted.Compact()
	if len(service.accepted) == 0 {
		return inserted, nil
	}
	for d := range inserted {
		if !service.accepted[d] {
			return nil, fmt.Errorf("%w: %d", ErrUnknownDenomination, d)
		}
	}
	return inserted, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrMachineNotFound):
		return ErrMachineNotFound
	case errors.Is(err, store.ErrNoRows):
		return ErrProductNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrAlreadyExists
	default:
		return err
	}
}

// Purchase sells one unit of a product.
//
// The machine lock is held across snapshot, decision and commit. The commit
// is still version-checked, so a stale snapshot is re-read and the decision
// recomputed, up to MaxAttempts times.
func (service *service) Purchase(ctx context.Context, req model.PurchaseRequest) (model.PurchaseResult, error) {
	machineID := service.machine(req.MachineID)
	if machineID == "" {
		return model.PurchaseResult{}, ErrInsufficientData
	}
	if _, err := uuid.Parse(req.ProductID); err != nil {
		return model.PurchaseResult{}, ErrProductNotFound
	}
	inserted, err := service.checkInserted(req.Inserted)
	if err != nil {
		return model.PurchaseResult{}, err
	}

	unlock, err := service.locker.Lock(ctx, machineID)
	if err != nil {
		return model.PurchaseResult{}, fmt.Errorf("lock machine: %w", err)
	}
	defer unlock()

	var (
		result  model.PurchaseResult
		record  model.TransactionRecord
		attempt int
	)
	backoff := retry.WithMaxRetries(uint64(service.cfg.MaxAttempts-1), retry.NewExponential(service.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		snap, err := service.store.ReadSnapshot(ctx, machineID, req.ProductID)
		if err != nil {
			return mapStoreErr(err)
		}

		res, mutation, err := purchase.Execute(snap.Product, inserted, snap.Inventory)
		if err != nil {
			return err
		}
		mutation.Record.ID = uuid.NewString()
		mutation.Record.MachineID = machineID
		mutation.Record.CreatedAt = time.Now().UTC()

		err = service.store.CommitMutation(ctx, machineID, snap.Version, mutation)
		if errors.Is(err, store.ErrVersionConflict) {
			service.zaplog.Debug("purchase snapshot is stale",
				zap.String("machine", machineID),
				zap.String("product", req.ProductID),
				zap.Int("attempt", attempt),
				zap.Int64("version", snap.Version),
			)
			return retry.RetryableError(err)
		}
		if err != nil {
			return mapStoreErr(err)
		}

		result = res
		record = mutation.Record
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			err = fmt.Errorf("%w: %w", ErrConflict, err)
		}
		service.zaplog.Info("purchase rejected",
			zap.String("machine", machineID),
			zap.String("product", req.ProductID),
			zap.Int64("paid", money.Total(inserted)),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return model.PurchaseResult{}, err
	}

	service.zaplog.Info("purchase committed",
		zap.String("machine", machineID),
		zap.String("product", req.ProductID),
		zap.String("transaction", record.ID),
		zap.Int64("paid", result.PaidAmount),
		zap.Int64("change", result.ChangeAmount),
		zap.Int("attempts", attempt),
	)
	if err := service.publisher.PublishTransaction(record); err != nil {
		// покупка уже зафиксирована
		service.zaplog.Warn("publish transaction failed",
			zap.String("transaction", record.ID),
			zap.Error(err),
		)
	}
	return result, nil
}

func (service *service) Products(ctx context.Context, machineID string) ([]model.Product, error) {
	adminProducts, err := service.AdminProducts(ctx, machineID)
	if err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(adminProducts))
	for _, p := range adminProducts {
		products = append(products, p.Product)
	}
	return products, nil
}

func (service *service) AdminProducts(ctx context.Context, machineID string) ([]model.AdminProduct, error) {
	products, err := service.store.ProductList(ctx, service.machine(machineID))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return products, nil
}

func checkProduct(product model.Product) error {
	if strings.TrimSpace(product.Name) == "" || product.Price <= 0 || product.Stock < 0 {
		return ErrInsufficientData
	}
	return nil
}

func (service *service) CreateProduct(ctx context.Context, machineID string, product model.Product) (model.Product, error) {
	if err := checkProduct(product); err != nil {
		return model.Product{}, err
	}
	product.ID = uuid.NewString()

	if err := service.store.ProductCreate(ctx, service.machine(machineID), product); err != nil {
		return model.Product{}, mapStoreErr(err)
	}
	service.zaplog.Info("product created",
		zap.String("product", product.ID),
		zap.String("name", product.Name),
		zap.Int64("price", product.Price),
		zap.Int64("stock", product.Stock),
	)
	return product, nil
}

func (service *service) UpdateProduct(ctx context.Context, machineID string, product model.Product) (model.AdminProduct, error) {
	if _, err := uuid.Parse(product.ID); err != nil {
		return model.AdminProduct{}, ErrProductNotFound
	}
	if err := checkProduct(product); err != nil {
		return model.AdminProduct{}, err
	}
	machineID = service.machine(machineID)

	if err := service.store.ProductUpdate(ctx, machineID, product); err != nil {
		return model.AdminProduct{}, mapStoreErr(err)
	}

	products, err := service.store.ProductList(ctx, machineID)
	if err != nil {
		return model.AdminProduct{}, mapStoreErr(err)
	}
	for _, p := range products {
		if p.ID == product.ID {
			return p, nil
		}
	}
	// удален параллельно
	return model.AdminProduct{}, ErrProductNotFound
}

func (service *service) DeleteProduct(ctx context.Context, machineID string, productID string) error {
	if _, err := uuid.Parse(productID); err != nil {
		return ErrProductNotFound
	}
	if err := service.store.ProductDelete(ctx, service.machine(machineID), productID); err != nil {
		return mapStoreErr(err)
	}
	service.zaplog.Info("product deleted", zap.String("product", productID))
	return nil
}

func (service *service) GetBalance(ctx context.Context, machineID string) ([]balance.Item, error) {
	items, err := service.balance.Get(ctx, service.machine(machineID))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return items, nil
}

// SetBalance is the administrative override of the machine inventory. It
// takes the machine lock so it never interleaves with a purchase.
func (service *service) SetBalance(ctx context.Context, machineID string, items []balance.Item) ([]balance.Item, error) {
	machineID = service.machine(machineID)

	unlock, err := service.locker.Lock(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("lock machine: %w", err)
	}
	defer unlock()

	set, err := service.balance.Set(ctx, machineID, items)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	service.zaplog.Info("balance overridden",
		zap.String("machine", machineID),
		zap.Int("denominations", len(set)),
	)
	return set, nil
}

func (service *service) Stats(ctx context.Context, machineID string) (model.SalesStats, error) {
	stats, err := service.store.SalesStats(ctx, service.machine(machineID))
	if err != nil {
		return model.SalesStats{}, mapStoreErr(err)
	}
	return stats, nil
}

func (service *service) Transactions(ctx context.Context, machineID string, limit int) ([]model.TransactionRecord, error) {
	records, err := service.store.TransactionList(ctx, service.machine(machineID), limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return records, nil
}
