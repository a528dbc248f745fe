package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
)

type purchaseTestContext struct {
	product   *model.Product
	inventory money.Set
	result    model.PurchaseResult
	mutation  model.Mutation
	err       error
}

func (c *purchaseTestContext) reset() {
	*c = purchaseTestContext{}
}

func parseSet(s string) (money.Set, error) {
	set := money.Set{}
	if s == "" {
		return set, nil
	}
	for _, pair := range strings.Split(s, ",") {
		d, n, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("bad money pair %q", pair)
		}
		denom, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return nil, err
		}
		count, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, err
		}
		set[denom] = count
	}
	return set, nil
}

func (c *purchaseTestContext) aProductPricedWithStock(price, stock int) error {
	c.product = &model.Product{ID: "feature-product", Name: "Feature", Price: int64(price), Stock: int64(stock)}
	return nil
}

func (c *purchaseTestContext) noProduct() error {
	c.product = nil
	return nil
}

func (c *purchaseTestContext) theMachineHolds(s string) error {
	set, err := parseSet(s)
	if err != nil {
		return err
	}
	c.inventory = set
	return nil
}

func (c *purchaseTestContext) theCustomerInserts(s string) error {
	inserted, err := parseSet(s)
	if err != nil {
		return err
	}
	c.result, c.mutation, c.err = Execute(c.product, inserted, c.inventory)
	return nil
}

func (c *purchaseTestContext) thePurchaseSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success, got %v", c.err)
	}
	return nil
}

func (c *purchaseTestContext) thePaidAmountIs(n int) error {
	if c.result.PaidAmount != int64(n) {
		return fmt.Errorf("paid amount %d, want %d", c.result.PaidAmount, n)
	}
	return nil
}

func (c *purchaseTestContext) theChangeAmountIs(n int) error {
	if c.result.ChangeAmount != int64(n) {
		return fmt.Errorf("change amount %d, want %d", c.result.ChangeAmount, n)
	}
	return nil
}

func (c *purchaseTestContext) theChangeIs(s string) error {
	want, err := parseSet(s)
	if err != nil {
		return err
	}
	if !money.Equal(c.result.Change, want) {
		return fmt.Errorf("change %v, want %v", c.result.Change, want)
	}
	return nil
}

func (c *purchaseTestContext) theNewStockIs(n int) error {
	if c.mutation.NewStock != int64(n) {
		return fmt.Errorf("new stock %d, want %d", c.mutation.NewStock, n)
	}
	return nil
}

var failureCodes = map[string]error{
	"PRODUCT_NOT_FOUND":  ErrProductNotFound,
	"OUT_OF_STOCK":       ErrOutOfStock,
	"INSUFFICIENT_FUNDS": ErrInsufficientFunds,
	"CANNOT_MAKE_CHANGE": ErrCannotMakeChange,
}

func (c *purchaseTestContext) thePurchaseFailsWith(code string) error {
	want, ok := failureCodes[code]
	if !ok {
		return fmt.Errorf("unknown failure code %q", code)
	}
	if !errors.Is(c.err, want) {
		return fmt.Errorf("expected %v, got %v", want, c.err)
	}
	if c.mutation.NewInventory != nil {
		return errors.New("failed purchase produced a mutation")
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &purchaseTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a product priced (\d+) with stock (\d+)$`, tc.aProductPricedWithStock)
	ctx.Step(`^no product$`, tc.noProduct)
	ctx.Step(`^the machine holds "([^"]*)"$`, tc.theMachineHolds)

	ctx.Step(`^the customer inserts "([^"]*)"$`, tc.theCustomerInserts)

	ctx.Step(`^the purchase succeeds$`, tc.thePurchaseSucceeds)
	ctx.Step(`^the paid amount is (\d+)$`, tc.thePaidAmountIs)
	ctx.Step(`^the change amount is (\d+)$`, tc.theChangeAmountIs)
	ctx.Step(`^the change is "([^"]*)"$`, tc.theChangeIs)
	ctx.Step(`^the new stock is (\d+)$`, tc.theNewStockIs)
	ctx.Step(`^the purchase fails with "([^"]*)"$`, tc.thePurchaseFailsWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
