package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger stores confirmed orders. transaction_id is unique, which is what
// keeps a replayed or concurrent confirmation from promoting twice.
type Ledger struct{ DB DB }

const orderColumns = `id, transaction_id, user_id, customer_name, customer_email, order_items,
	delivery_address, amount_minor, delivery_status, placed_at, created_at, updated_at`

func (l *Ledger) Insert(ctx context.Context, o ConfirmedOrder) (string, error) {
	items, err := json.Marshal(o.CartItems)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	addr, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	ct, err := l.DB.Exec(ctx, `
		INSERT INTO orders(id, transaction_id, user_id, customer_name, customer_email, order_items,
		                   delivery_address, amount_minor, delivery_status, placed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (transaction_id) DO NOTHING`,
		o.ID, o.TransactionID, o.CustomerID, o.CustomerName, o.CustomerEmail, items,
		addr, o.AmountMinor, string(o.DeliveryStatus), o.PlacedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTransaction, o.TransactionID)
	}
	return o.ID, nil
}

// FindByUser returns the user's orders, newest first.
func (l *Ledger) FindByUser(ctx context.Context, userID string) ([]ConfirmedOrder, error) {
	rows, err := l.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (l *Ledger) FindAll(ctx context.Context) ([]ConfirmedOrder, error) {
	rows, err := l.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (l *Ledger) FindByID(ctx context.Context, id string) (ConfirmedOrder, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ConfirmedOrder{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	o, err := scanOrder(l.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, err
}

func (l *Ledger) FindByTransactionID(ctx context.Context, transactionID string) (ConfirmedOrder, error) {
	o, err := scanOrder(l.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE transaction_id=$1`, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, fmt.Errorf("%w: transaction %s", ErrOrderNotFound, transactionID)
	}
	return o, err
}

// UpdateDeliveryStatus moves the order from -> to as a compare-and-set, so
// two admins racing on the same order cannot both apply a step.
func (l *Ledger) UpdateDeliveryStatus(ctx context.Context, id string, from, to DeliveryStatus) (ConfirmedOrder, error) {
	o, err := scanOrder(l.DB.QueryRow(ctx, `
		UPDATE orders SET delivery_status=$3, updated_at=now()
		WHERE id=$1 AND delivery_status=$2
		RETURNING `+orderColumns, id, string(from), string(to)))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return o, err
	}
	// distinguish a missing order from one that moved underneath us
	if _, ferr := l.FindByID(ctx, id); ferr != nil {
		return ConfirmedOrder{}, ferr
	}
	return ConfirmedOrder{}, fmt.Errorf("%w: order %s is no longer %s", ErrInvalidTransition, id, from)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (ConfirmedOrder, error) {
	var (
		o           ConfirmedOrder
		items, addr []byte
		status      string
	)
	if err := row.Scan(&o.ID, &o.TransactionID, &o.CustomerID, &o.CustomerName, &o.CustomerEmail, &items,
		&addr, &o.AmountMinor, &status, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return ConfirmedOrder{}, err
	}
	o.DeliveryStatus = DeliveryStatus(status)
	if err := json.Unmarshal(items, &o.CartItems); err != nil {
		return ConfirmedOrder{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(addr, &o.DeliveryAddress); err != nil {
		return ConfirmedOrder{}, fmt.Errorf("decode address: %w", err)
	}
	return o, nil
}

func collect(rows pgx.Rows) ([]ConfirmedOrder, error) {
	defer rows.Close()
	out := []ConfirmedOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
