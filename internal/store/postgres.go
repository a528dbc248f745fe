package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iurnickita/vending/internal/model"
	"github.com/iurnickita/vending/internal/money"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL. The schema is managed by
// RunMigrations.
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{pool: pool}, nil
}

func (store *postgresStore) Close() {
	store.pool.Close()
}

// machineVersion читает версию автомата внутри транзакции
func machineVersion(ctx context.Context, tx pgx.Tx, machineID string) (int64, error) {
	var version int64
	err := tx.QueryRow(ctx,
		"SELECT version FROM machines WHERE id = $1",
		machineID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMachineNotFound
		}
		return 0, err
	}
	return version, nil
}

// bumpVersion отмечает любое изменение товаров или баланса автомата
func bumpVersion(ctx context.Context, tx pgx.Tx, machineID string) error {
	tag, err := tx.Exec(ctx,
		"UPDATE machines SET version = version + 1 WHERE id = $1",
		machineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMachineNotFound
	}
	return nil
}

func readBalance(ctx context.Context, tx pgx.Tx, machineID string) (money.Set, error) {
	rows, err := tx.Query(ctx,
		"SELECT denomination, amount FROM balances WHERE machine_id = $1",
		machineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balance := money.Set{}
	for rows.Next() {
		var d, n int64
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		balance[d] = n
	}
	return balance, rows.Err()
}

func queueBalanceUpsert(batch *pgx.Batch, machineID string, balance money.Set) {
	for d, n := range balance {
		batch.Queue(
			"INSERT INTO balances (machine_id, denomination, amount, type)"+
				" VALUES ($1, $2, $3, $4)"+
				" ON CONFLICT (machine_id, denomination) DO UPDATE SET amount = EXCLUDED.amount",
			machineID, d, n, money.Kind(d))
	}
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (store *postgresStore) ReadSnapshot(ctx context.Context, machineID string, productID string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := pgx.BeginTxFunc(ctx, store.pool,
		pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
		func(tx pgx.Tx) error {
			version, err := machineVersion(ctx, tx, machineID)
			if err != nil {
				return err
			}
			snap.Version = version

			var p model.Product
			err = tx.QueryRow(ctx,
				"SELECT p.id::text, p.name, p.price, p.image, mp.stock"+
					" FROM products AS p"+
					" JOIN machine_products AS mp ON mp.product_id = p.id"+
					" WHERE mp.machine_id = $1 AND p.id = $2",
				machineID, productID).Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Stock)
			switch {
			case err == nil:
				snap.Product = &p
			case errors.Is(err, pgx.ErrNoRows):
				// автомат не продает этот товар
			default:
				return err
			}

			snap.Inventory, err = readBalance(ctx, tx, machineID)
			return err
		})
	if err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// CommitMutation применяет покупку целиком или не применяет ничего.
// Условный UPDATE версии блокирует строку автомата до конца транзакции,
// поэтому параллельные коммиты выстраиваются в очередь, и проигравший видит
// уже новую версию.
func (store *postgresStore) CommitMutation(ctx context.Context, machineID string, expectedVersion int64, mutation model.Mutation) error {
	if err := checkMutation(mutation); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE machines SET version = version + 1"+
				" WHERE id = $1 AND version = $2",
			machineID, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := machineVersion(ctx, tx, machineID); err != nil {
				return err
			}
			return ErrVersionConflict
		}

		tag, err = tx.Exec(ctx,
			"UPDATE machine_products SET stock = $3"+
				" WHERE machine_id = $1 AND product_id = $2",
			machineID, mutation.ProductID, mutation.NewStock)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNoRows
		}

		rec := mutation.Record
		batch := &pgx.Batch{}
		queueBalanceUpsert(batch, machineID, mutation.NewInventory)
		batch.Queue(
			"INSERT INTO transaction_logs (id, machine_id, product_id, product_price, paid_amount, change_amount, status, created_at)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			rec.ID, machineID, rec.ProductID, rec.ProductPrice, rec.PaidAmount, rec.ChangeAmount, rec.Status, rec.CreatedAt)
		queueTransactionMoney(batch, rec.ID, model.MoneyDirectionInserted, rec.Inserted)
		queueTransactionMoney(batch, rec.ID, model.MoneyDirectionChange, rec.Returned)
		return sendBatch(ctx, tx, batch)
	})
}

func queueTransactionMoney(batch *pgx.Batch, transactionID string, direction string, set money.Set) {
	for d, n := range set {
		if n == 0 {
			continue
		}
		batch.Queue(
			"INSERT INTO transaction_money (transaction_id, denomination, quantity, direction)"+
				" VALUES ($1, $2, $3, $4)",
			transactionID, d, n, direction)
	}
}

func (store *postgresStore) ProductList(ctx context.Context, machineID string) ([]model.AdminProduct, error) {
	var products []model.AdminProduct
	err := pgx.BeginTxFunc(ctx, store.pool,
		pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
		func(tx pgx.Tx) error {
			if _, err := machineVersion(ctx, tx, machineID); err != nil {
				return err
			}
			rows, err := tx.Query(ctx,
				"SELECT p.id::text, p.name, p.price, p.image, mp.stock,"+
					" (SELECT count(*) FROM transaction_logs AS t"+
					"   WHERE t.machine_id = mp.machine_id AND t.product_id = p.id AND t.status = $2)"+
					" FROM products AS p"+
					" JOIN machine_products AS mp ON mp.product_id = p.id"+
					" WHERE mp.machine_id = $1"+
					" ORDER BY p.name, p.id",
				machineID, model.TransactionStatusSuccess)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var p model.AdminProduct
				if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Stock, &p.TotalSold); err != nil {
					return err
				}
				products = append(products, p)
			}
			return rows.Err()
		})
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (store *postgresStore) ProductCreate(ctx context.Context, machineID string, product model.Product) error {
	err := pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, machineID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO products (id, name, price, image)"+
				" VALUES ($1, $2, $3, $4)",
			product.ID, product.Name, product.Price, product.Image); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO machine_products (machine_id, product_id, stock)"+
				" VALUES ($1, $2, $3)",
			machineID, product.ID, product.Stock)
		return err
	})
	if err != nil {
		// Проверка: уже существует
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (store *postgresStore) ProductUpdate(ctx context.Context, machineID string, product model.Product) error {
	return pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, machineID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			"UPDATE machine_products SET stock = $3"+
				" WHERE machine_id = $1 AND product_id = $2",
			machineID, product.ID, product.Stock)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNoRows
		}
		_, err = tx.Exec(ctx,
			"UPDATE products"+
				" SET name = $2, price = $3, image = COALESCE(NULLIF($4, ''), image), updated_at = now()"+
				" WHERE id = $1",
			product.ID, product.Name, product.Price, product.Image)
		return err
	})
}

func (store *postgresStore) ProductDelete(ctx context.Context, machineID string, productID string) error {
	return pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, machineID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			"DELETE FROM machine_products WHERE machine_id = $1 AND product_id = $2",
			machineID, productID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNoRows
		}
		// товар без автоматов больше не нужен
		_, err = tx.Exec(ctx,
			"DELETE FROM products AS p WHERE p.id = $1"+
				" AND NOT EXISTS (SELECT 1 FROM machine_products AS mp WHERE mp.product_id = p.id)",
			productID)
		return err
	})
}

func (store *postgresStore) BalanceGet(ctx context.Context, machineID string) (money.Set, error) {
	var balance money.Set
	err := pgx.BeginTxFunc(ctx, store.pool,
		pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
		func(tx pgx.Tx) error {
			if _, err := machineVersion(ctx, tx, machineID); err != nil {
				return err
			}
			var err error
			balance, err = readBalance(ctx, tx, machineID)
			return err
		})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (store *postgresStore) BalanceSet(ctx context.Context, machineID string, balance money.Set) error {
	if err := money.Validate(balance); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		if err := bumpVersion(ctx, tx, machineID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		queueBalanceUpsert(batch, machineID, balance)
		return sendBatch(ctx, tx, batch)
	})
}

func (store *postgresStore) TransactionList(ctx context.Context, machineID string, limit int) ([]model.TransactionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []model.TransactionRecord
	err := pgx.BeginTxFunc(ctx, store.pool,
		pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
		func(tx pgx.Tx) error {
			if _, err := machineVersion(ctx, tx, machineID); err != nil {
				return err
			}
			rows, err := tx.Query(ctx,
				"SELECT id::text, product_id::text, product_price, paid_amount, change_amount, status, created_at"+
					" FROM transaction_logs"+
					" WHERE machine_id = $1"+
					" ORDER BY created_at DESC, id"+
					" LIMIT $2",
				machineID, limit)
			if err != nil {
				return err
			}
			index := make(map[string]int)
			for rows.Next() {
				rec := model.TransactionRecord{
					MachineID: machineID,
					Inserted:  money.Set{},
					Returned:  money.Set{},
				}
				if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.ProductPrice, &rec.PaidAmount,
					&rec.ChangeAmount, &rec.Status, &rec.CreatedAt); err != nil {
					rows.Close()
					return err
				}
				index[rec.ID] = len(records)
				records = append(records, rec)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			rows, err = tx.Query(ctx,
				"SELECT m.transaction_id::text, m.denomination, m.quantity, m.direction"+
					" FROM transaction_money AS m"+
					" JOIN (SELECT id FROM transaction_logs WHERE machine_id = $1"+
					"       ORDER BY created_at DESC, id LIMIT $2) AS t ON t.id = m.transaction_id",
				machineID, limit)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var (
					id        string
					d, n      int64
					direction string
				)
				if err := rows.Scan(&id, &d, &n, &direction); err != nil {
					return err
				}
				i, ok := index[id]
				if !ok {
					continue
				}
				switch direction {
				case model.MoneyDirectionInserted:
					records[i].Inserted[d] = n
				case model.MoneyDirectionChange:
					records[i].Returned[d] = n
				}
			}
			return rows.Err()
		})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (store *postgresStore) SalesStats(ctx context.Context, machineID string) (model.SalesStats, error) {
	var stats model.SalesStats
	err := pgx.BeginTxFunc(ctx, store.pool,
		pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly},
		func(tx pgx.Tx) error {
			if _, err := machineVersion(ctx, tx, machineID); err != nil {
				return err
			}
			return tx.QueryRow(ctx,
				"SELECT count(*), COALESCE(sum(product_price), 0)::bigint"+
					" FROM transaction_logs"+
					" WHERE machine_id = $1 AND status = $2",
				machineID, model.TransactionStatusSuccess).Scan(&stats.TotalSold, &stats.TotalEarned)
		})
	if err != nil {
		return model.SalesStats{}, fmt.Errorf("sales stats: %w", err)
	}
	return stats, nil
}
