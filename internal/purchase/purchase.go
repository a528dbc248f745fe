// Package purchase decides a single purchase against an inventory snapshot.
//
// Nothing here performs I/O. Execute either returns the full mutation for a
// successful sale or an error with no mutation; committing that mutation is
// the caller's job.
package purchase

import (
	"errors"
	"fmt"

	"github.com/iurnickita/vending/internal/change"
	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
)

var (
	ErrInvalidMoney      = money.ErrInvalidMoney
	ErrProductNotFound   = errors.New("product not found")
	ErrOutOfStock        = errors.New("product out of stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCannotMakeChange  = change.ErrCannotMakeChange
)

// Validate runs the cheap checks in order: stock first, then paid amount.
func Validate(product model.Product, inserted money.Set) error {
	if product.Stock <= 0 {
		return ErrOutOfStock
	}
	if money.Total(inserted) < product.Price {
		return ErrInsufficientFunds
	}
	return nil
}

// Execute computes the outcome of selling product for inserted money from a
// machine holding inventory. A nil product means the machine does not carry it.
//
// Inserted money joins the inventory before change is computed, so a customer's
// own coins can come back as change.
func Execute(product *model.Product, inserted, inventory money.Set) (model.PurchaseResult, model.Mutation, error) {
	if err := money.Validate(inserted); err != nil {
		return model.PurchaseResult{}, model.Mutation{}, err
	}
	if product == nil {
		return model.PurchaseResult{}, model.Mutation{}, ErrProductNotFound
	}
	if err := Validate(*product, inserted); err != nil {
		return model.PurchaseResult{}, model.Mutation{}, err
	}

	paid := money.Total(inserted)
	changeAmount := paid - product.Price

	merged, err := money.Merge(inventory, inserted)
	if err != nil {
		return model.PurchaseResult{}, model.Mutation{}, err
	}
	// change.Compute считает только по корректному набору
	if err := money.Validate(merged); err != nil {
		return model.PurchaseResult{}, model.Mutation{}, err
	}
	returned, err := change.Compute(merged, changeAmount)
	if err != nil {
		return model.PurchaseResult{}, model.Mutation{}, err
	}

	newInventory, err := money.Sub(merged, returned)
	if err != nil {
		// change.Compute never takes more than merged holds
		return model.PurchaseResult{}, model.Mutation{}, fmt.Errorf("apply change: %w", err)
	}

	result := model.PurchaseResult{
		ProductName:  product.Name,
		ProductPrice: product.Price,
		PaidAmount:   paid,
		ChangeAmount: changeAmount,
		Change:       returned,
	}
	mutation := model.Mutation{
		ProductID:    product.ID,
		NewInventory: newInventory,
		NewStock:     product.Stock - 1,
		Record: model.TransactionRecord{
			ProductID:    product.ID,
			ProductPrice: product.Price,
			PaidAmount:   paid,
			ChangeAmount: changeAmount,
			Status:       model.TransactionStatusSuccess,
			Inserted:     inserted.Compact(),
			Returned:     returned.Clone(),
		},
	}
	return result, mutation, nil
}
