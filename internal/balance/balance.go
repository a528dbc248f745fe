package balance

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iurnickita/vending/internal/money"
	"github.com/iurnickita/vending/internal/store"
)

// Item is one denomination line of a machine balance.
type Item struct {
	Denomination int64
	Quantity     int64
	Type         string
}

// Balance is the administrative view of a machine's coins and banknotes.
type Balance interface {
	Get(ctx context.Context, machineID string) ([]Item, error)
	Set(ctx context.Context, machineID string, items []Item) ([]Item, error)
}

var ErrDuplicateDenomination = errors.New("duplicate denomination")

type balance struct {
	store store.Store
}

func NewBalance(store store.Store) Balance {
	balance := balance{store: store}
	return &balance
}

func (balance *balance) Get(ctx context.Context, machineID string) ([]Item, error) {
	set, err := balance.store.BalanceGet(ctx, machineID)
	if err != nil {
		return nil, err
	}
	return FromSet(set), nil
}

// Set overrides the listed denominations and leaves the rest untouched.
func (balance *balance) Set(ctx context.Context, machineID string, items []Item) ([]Item, error) {
	set, err := ToSet(items)
	if err != nil {
		return nil, err
	}
	if err := balance.store.BalanceSet(ctx, machineID, set); err != nil {
		return nil, err
	}
	return FromSet(set), nil
}

// ToSet converts items into a validated money set.
func ToSet(items []Item) (money.Set, error) {
	set := make(money.Set, len(items))
	for _, item := range items {
		if _, ok := set[item.Denomination]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateDenomination, item.Denomination)
		}
		set[item.Denomination] = item.Quantity
	}
	if err := money.Validate(set); err != nil {
		return nil, err
	}
	return set, nil
}

// FromSet lists a money set in ascending denomination order.
func FromSet(set money.Set) []Item {
	ds := set.Denominations()
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	items := make([]Item, 0, len(ds))
	for _, d := range ds {
		items = append(items, Item{Denomination: d, Quantity: set[d], Type: money.Kind(d)})
	}
	return items
}
