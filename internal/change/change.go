// Package change computes the coins and banknotes a machine dispenses.
package change

import (
	"errors"

	"github.com/iurnickita/vending/internal/money"
)

var ErrCannotMakeChange = errors.New("machine cannot provide change")

// Compute returns a breakdown of amount drawn from inventory, taking the
// largest denominations first.
//
// Greedy selection is exact for canonical denomination systems such as
// 1-5-10-20-50-100-500-1000. For other systems it can miss a breakdown that
// exists and fail with ErrCannotMakeChange.
//
// inventory must pass money.Validate.
func Compute(inventory money.Set, amount int64) (money.Set, error) {
	change := money.Set{}
	if amount == 0 {
		return change, nil
	}

	remaining := amount
	for _, d := range inventory.Denominations() {
		if remaining == 0 {
			break
		}
		usable := min(inventory[d], remaining/d)
		if usable > 0 {
			change[d] = usable
			remaining -= d * usable
		}
	}

	if remaining != 0 {
		return nil, ErrCannotMakeChange
	}
	return change, nil
}
