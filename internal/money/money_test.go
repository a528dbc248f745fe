package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTotal(t *testing.T) {
	require.Equal(t, int64(0), Total(nil))
	require.Equal(t, int64(20), Total(Set{10: 1, 5: 1, 1: 5}))
	require.Equal(t, int64(1550), Total(Set{1000: 1, 500: 1, 50: 1, 20: 0}))
}

func TestMergeKeepsBase(t *testing.T) {
	base := Set{10: 0, 5: 2}
	add := Set{10: 1, 1: 5}

	merged, err := Merge(base, add)
	require.NoError(t, err)

	require.Equal(t, Set{10: 1, 5: 2, 1: 5}, merged)
	require.Equal(t, Set{10: 0, 5: 2}, base)
	require.Equal(t, Set{10: 1, 1: 5}, add)
}

func TestMergeSkipsZeroAdditions(t *testing.T) {
	merged, err := Merge(Set{5: 1}, Set{7: 0})
	require.NoError(t, err)
	_, ok := merged[7]
	require.False(t, ok)
}

func TestMergeAssociativeCommutative(t *testing.T) {
	a := Set{1: 3, 5: 1}
	b := Set{5: 2, 10: 4}
	c := Set{1: 1, 100: 2}

	require.True(t, Equal(mustMerge(t, mustMerge(t, a, b), c), mustMerge(t, a, mustMerge(t, b, c))))
	require.True(t, Equal(mustMerge(t, a, b), mustMerge(t, b, a)))
}

func mustMerge(t *testing.T, base, additions Set) Set {
	t.Helper()
	merged, err := Merge(base, additions)
	require.NoError(t, err)
	return merged
}

func TestMergeRejectsCountOverflow(t *testing.T) {
	base := Set{1: 10}
	_, err := Merge(base, Set{1: math.MaxInt64})
	require.ErrorIs(t, err, ErrInvalidMoney)
	require.Equal(t, Set{1: 10}, base)

	merged, err := Merge(Set{1: 0}, Set{1: math.MaxInt64})
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), merged[1])
}

func TestSub(t *testing.T) {
	left, err := Sub(Set{10: 1, 5: 1, 1: 5}, Set{5: 1, 1: 3})
	require.NoError(t, err)
	require.Equal(t, Set{10: 1, 5: 0, 1: 2}, left)

	_, err = Sub(Set{5: 1}, Set{5: 2})
	require.ErrorIs(t, err, ErrInvalidMoney)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     Set
		wantErr bool
	}{
		{name: "valid", set: Set{1: 0, 5: 3}},
		{name: "empty", set: Set{}},
		{name: "zero denomination", set: Set{0: 1}, wantErr: true},
		{name: "negative denomination", set: Set{-5: 1}, wantErr: true},
		{name: "negative quantity", set: Set{5: -1}, wantErr: true},
		{name: "largest single line", set: Set{1: math.MaxInt64}},
		{name: "largest count for denomination", set: Set{1000: math.MaxInt64 / 1000}},
		{name: "line value wraps to an exact price", set: Set{1000: 1<<61 + 1}, wantErr: true},
		{name: "huge denomination", set: Set{math.MaxInt64: 2}, wantErr: true},
		{name: "lines overflow together", set: Set{1000: math.MaxInt64 / 1000, 500: math.MaxInt64 / 500}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.set)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMoney)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestKind(t *testing.T) {
	require.Equal(t, KindCoin, Kind(1))
	require.Equal(t, KindCoin, Kind(10))
	require.Equal(t, KindBanknote, Kind(20))
	require.Equal(t, KindBanknote, Kind(1000))
}

func TestDenominationsDescending(t *testing.T) {
	require.Equal(t, []int64{100, 10, 5, 1}, Set{5: 1, 100: 0, 1: 2, 10: 9}.Denominations())
}

func TestEqualTreatsMissingAsZero(t *testing.T) {
	require.True(t, Equal(Set{5: 0, 1: 2}, Set{1: 2}))
	require.False(t, Equal(Set{5: 1}, Set{1: 5}))
	require.Equal(t, Set{1: 2}, Set{5: 0, 1: 2}.Compact())
}
