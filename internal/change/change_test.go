package change

import (
	"testing"

	"github.com/iurnickita/vending/internal/money"
	"github.com/stretchr/testify/require"
)

func TestComputeZeroAmount(t *testing.T) {
	for _, inv := range []money.Set{nil, {}, {50: 10}, {1: 0, 5: 3}} {
		got, err := Compute(inv, 0)
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		inventory money.Set
		amount    int64
		want      money.Set
		wantErr   error
	}{
		{
			name:      "inserted coins reused",
			inventory: money.Set{10: 1, 5: 1, 1: 5},
			amount:    8,
			want:      money.Set{5: 1, 1: 3},
		},
		{
			name:      "largest first",
			inventory: money.Set{1: 10, 5: 10, 10: 10, 20: 10, 50: 10, 100: 10},
			amount:    186,
			want:      money.Set{100: 1, 50: 1, 20: 1, 10: 1, 5: 1, 1: 1},
		},
		{
			name:      "limited counts fall through to smaller",
			inventory: money.Set{10: 1, 5: 3, 1: 2},
			amount:    27,
			want:      money.Set{10: 1, 5: 3, 1: 2},
		},
		{
			name:      "no small denominations",
			inventory: money.Set{50: 11},
			amount:    15,
			wantErr:   ErrCannotMakeChange,
		},
		{
			name:      "insufficient total",
			inventory: money.Set{1: 3},
			amount:    4,
			wantErr:   ErrCannotMakeChange,
		},
		{
			name:      "greedy misses non-canonical breakdown",
			inventory: money.Set{4: 2, 3: 2},
			amount:    6,
			wantErr:   ErrCannotMakeChange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.inventory, tt.amount)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.amount, money.Total(got))
		})
	}
}

func TestComputeDoesNotTouchInventory(t *testing.T) {
	inv := money.Set{10: 2, 1: 5}
	_, err := Compute(inv, 13)
	require.NoError(t, err)
	require.Equal(t, money.Set{10: 2, 1: 5}, inv)
}
