// Package money holds the denomination → count value type shared by machine
// inventory and inserted money.
package money

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Set maps a denomination face value to a count. A missing denomination
// counts as zero. Callers treat a Set as a snapshot: operations return new
// sets and never modify their arguments.
type Set map[int64]int64

var ErrInvalidMoney = errors.New("invalid money")

const (
	KindCoin     = "coin"
	KindBanknote = "banknote"
)

// Total returns the sum of denomination × count. The set must pass Validate,
// otherwise the sum can wrap.
func Total(set Set) int64 {
	var total int64
	for d, n := range set {
		total += d * n
	}
	return total
}

// Merge returns base + additions denomination-wise. It fails when a count
// would leave the int64 range.
func Merge(base, additions Set) (Set, error) {
	merged := make(Set, len(base)+len(additions))
	for d, n := range base {
		merged[d] = n
	}
	for d, n := range additions {
		if n == 0 {
			continue
		}
		sum, ok := addCount(merged[d], n)
		if !ok {
			return nil, fmt.Errorf("%w: quantity for denomination %d overflows", ErrInvalidMoney, d)
		}
		merged[d] = sum
	}
	return merged, nil
}

func addCount(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// Sub returns base - taken denomination-wise. It fails when any count would
// go negative.
func Sub(base, taken Set) (Set, error) {
	result := base.Clone()
	for d, n := range taken {
		if n == 0 {
			continue
		}
		left := result[d] - n
		if left < 0 {
			return nil, fmt.Errorf("%w: %d x %d exceeds available %d", ErrInvalidMoney, n, d, result[d])
		}
		result[d] = left
	}
	return result, nil
}

// Validate checks that every denomination is positive, every count is
// non-negative, and the value of the set fits in int64.
func Validate(set Set) error {
	var total int64
	for d, n := range set {
		if d <= 0 {
			return fmt.Errorf("%w: denomination %d", ErrInvalidMoney, d)
		}
		if n < 0 {
			return fmt.Errorf("%w: quantity %d for denomination %d", ErrInvalidMoney, n, d)
		}
		if n > math.MaxInt64/d {
			return fmt.Errorf("%w: %d x %d overflows", ErrInvalidMoney, n, d)
		}
		value := d * n
		if total > math.MaxInt64-value {
			return fmt.Errorf("%w: total overflows", ErrInvalidMoney)
		}
		total += value
	}
	return nil
}

// Kind classifies a denomination for display.
func Kind(denomination int64) string {
	if denomination < 20 {
		return KindCoin
	}
	return KindBanknote
}

// Denominations returns the denominations present in the set in descending order.
func (s Set) Denominations() []int64 {
	ds := make([]int64, 0, len(s))
	for d := range s {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] > ds[j] })
	return ds
}

func (s Set) Clone() Set {
	c := make(Set, len(s))
	for d, n := range s {
		c[d] = n
	}
	return c
}

// Compact drops zero-count entries.
func (s Set) Compact() Set {
	c := make(Set, len(s))
	for d, n := range s {
		if n != 0 {
			c[d] = n
		}
	}
	return c
}

// Equal reports whether two sets hold the same counts, treating missing
// denominations as zero.
func Equal(a, b Set) bool {
	for d, n := range a {
		if b[d] != n {
			return false
		}
	}
	for d, n := range b {
		if a[d] != n {
			return false
		}
	}
	return true
}
