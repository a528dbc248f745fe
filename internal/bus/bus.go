// Package bus publishes committed purchases to other services.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iurnickita/vending/internal/bus/config"
	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
)

const DefaultSubject = "transactions.created"

type Publisher interface {
	PublishTransaction(rec model.TransactionRecord) error
}

// MoneyItem is one denomination line of a published transaction.
type MoneyItem struct {
	Denomination int64 `json:"denomination"`
	Quantity     int64 `json:"quantity"`
}

type TransactionEvent struct {
	ID           string      `json:"id"`
	MachineID    string      `json:"machine_id"`
	ProductID    string      `json:"product_id"`
	ProductPrice int64       `json:"product_price"`
	PaidAmount   int64       `json:"paid_amount"`
	ChangeAmount int64       `json:"change_amount"`
	Status       string      `json:"status"`
	Inserted     []MoneyItem `json:"inserted"`
	Change       []MoneyItem `json:"change"`
	CreatedAt    time.Time   `json:"created_at"`
}

func NewTransactionEvent(rec model.TransactionRecord) TransactionEvent {
	return TransactionEvent{
		ID:           rec.ID,
		MachineID:    rec.MachineID,
		ProductID:    rec.ProductID,
		ProductPrice: rec.ProductPrice,
		PaidAmount:   rec.PaidAmount,
		ChangeAmount: rec.ChangeAmount,
		Status:       rec.Status,
		Inserted:     items(rec.Inserted),
		Change:       items(rec.Returned),
		CreatedAt:    rec.CreatedAt,
	}
}

func items(set money.Set) []MoneyItem {
	out := make([]MoneyItem, 0, len(set))
	for _, d := range set.Denominations() {
		if n := set[d]; n > 0 {
			out = append(out, MoneyItem{Denomination: d, Quantity: n})
		}
	}
	return out
}

// NewPublisher connects to NATS when a URL is configured. Without one,
// transactions are not published.
func NewPublisher(cfg config.Config) (Publisher, func(), error) {
	if cfg.NatsURL == "" {
		return NopPublisher{}, func() {}, nil
	}
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNatsPublisher(nc, cfg.Subject), nc.Close, nil
}

type NopPublisher struct{}

func (NopPublisher) PublishTransaction(model.TransactionRecord) error { return nil }

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

type NatsPublisher struct {
	nc      conn
	subject string
}

func NewNatsPublisher(nc conn, subject string) *NatsPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NatsPublisher{nc: nc, subject: subject}
}

func (p *NatsPublisher) PublishTransaction(rec model.TransactionRecord) error {
	data, err := json.Marshal(NewTransactionEvent(rec))
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}
