package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iurnickita/vending/internal/money"
	"github.com/iurnickita/vending/internal/store"
)

func TestBalanceGetSet(t *testing.T) {
	const machine = "00000000-0000-0000-0000-000000000001"
	ctx := context.Background()

	mem := store.NewMemoryStore()
	mem.Provision(machine, money.Set{1: 10, 20: 3})
	b := NewBalance(mem)

	items, err := b.Get(ctx, machine)
	require.NoError(t, err)
	require.Equal(t, []Item{
		{Denomination: 1, Quantity: 10, Type: money.KindCoin},
		{Denomination: 20, Quantity: 3, Type: money.KindBanknote},
	}, items)

	_, err = b.Set(ctx, machine, []Item{{Denomination: 20, Quantity: 0}, {Denomination: 5, Quantity: 4}})
	require.NoError(t, err)

	items, err = b.Get(ctx, machine)
	require.NoError(t, err)
	require.Equal(t, []Item{
		{Denomination: 1, Quantity: 10, Type: money.KindCoin},
		{Denomination: 5, Quantity: 4, Type: money.KindCoin},
		{Denomination: 20, Quantity: 0, Type: money.KindBanknote},
	}, items)
}

func TestBalanceSetRejectsBadItems(t *testing.T) {
	const machine = "m"
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Provision(machine, money.Set{1: 1})
	b := NewBalance(mem)

	_, err := b.Set(ctx, machine, []Item{{Denomination: 5, Quantity: 1}, {Denomination: 5, Quantity: 2}})
	require.ErrorIs(t, err, ErrDuplicateDenomination)

	_, err = b.Set(ctx, machine, []Item{{Denomination: 5, Quantity: -1}})
	require.ErrorIs(t, err, money.ErrInvalidMoney)

	_, err = b.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrMachineNotFound)
}
