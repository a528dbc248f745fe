package model

import (
	"time"

	"github.com/iurnickita/vending/internal/money"
)

// Товары автомата

type Product struct {
	ID    string
	Name  string
	Price int64
	Stock int64
	Image string
}

type AdminProduct struct {
	Product
	TotalSold int64
}

// Покупка

type PurchaseRequest struct {
	MachineID string
	ProductID string
	Inserted  money.Set
}

type PurchaseResult struct {
	ProductName  string
	ProductPrice int64
	PaidAmount   int64
	ChangeAmount int64
	Change       money.Set
}

// Снимок и мутация состояния автомата

// Snapshot is a consistent read of one product and the machine inventory at
// Version. Product is nil when the machine does not carry it.
type Snapshot struct {
	Version   int64
	Product   *Product
	Inventory money.Set
}

// Mutation is the complete effect of one successful purchase.
type Mutation struct {
	ProductID    string
	NewInventory money.Set
	NewStock     int64
	Record       TransactionRecord
}

// Журнал транзакций

type TransactionRecord struct {
	ID           string
	MachineID    string
	ProductID    string
	ProductPrice int64
	PaidAmount   int64
	ChangeAmount int64
	Status       string
	Inserted     money.Set
	Returned     money.Set
	CreatedAt    time.Time
}

const (
	TransactionStatusSuccess = "success"
)

const (
	MoneyDirectionInserted = "inserted"
	MoneyDirectionChange   = "change"
)

type SalesStats struct {
	TotalSold   int64
	TotalEarned int64
}
