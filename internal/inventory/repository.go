package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	store db.Store
}

// NewRepository constructs Repository.
func NewRepository(store db.Store) *Repository {
	return &Repository{store: store}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, sku, ean, channel string) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListBalances returns every channel balance of (sku, ean).
func (r *Repository) ListBalances(ctx context.Context, sku, ean string) ([]Balance, error) {
	rows, err := r.store.Query(ctx, `SELECT sku, ean, channel, qty, updated_at FROM inventory_balances
	WHERE sku = $1 AND ean = $2 ORDER BY channel`, sku, ean)
	if err != nil {
		return nil, fmt.Errorf("inventory: list balances: %w", err)
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.SKU, &b.EAN, &b.Channel, &b.Qty, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListEntries returns journal rows tagged with sourceRowID, oldest first.
func (r *Repository) ListEntries(ctx context.Context, sourceRowID int64) ([]Entry, error) {
	rows, err := r.store.Query(ctx, `SELECT id, direction, sku, ean, channel, qty, balance_after, reason,
		source_row_id, operation_id, actor, created_at
	FROM inventory_movements WHERE source_row_id = $1 ORDER BY id`, sourceRowID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var dir string
		if err := rows.Scan(&e.ID, &dir, &e.SKU, &e.EAN, &e.Channel, &e.Qty, &e.BalanceAfter, &e.Reason,
			&e.SourceRowID, &e.OperationID, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Direction = Direction(dir)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *txRepo) GetBalanceForUpdate(ctx context.Context, sku, ean, channel string) (Balance, error) {
	var b Balance
	err := t.tx.QueryRow(ctx, `SELECT sku, ean, channel, qty, updated_at FROM inventory_balances
	WHERE sku = $1 AND ean = $2 AND channel = $3 FOR UPDATE`, sku, ean, channel).
		Scan(&b.SKU, &b.EAN, &b.Channel, &b.Qty, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{SKU: sku, EAN: ean, Channel: channel}, ErrBalanceNotFound
	}
	return b, err
}

func (t *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_balances (sku, ean, channel, qty, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (sku, ean, channel) DO UPDATE SET qty = EXCLUDED.qty, updated_at = NOW()`,
		b.SKU, b.EAN, b.Channel, b.Qty)
	return err
}

func (t *txRepo) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_movements (sku, ean, channel, direction, qty, balance_after,
		reason, source_row_id, operation_id, actor)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		e.SKU, e.EAN, e.Channel, string(e.Direction), e.Qty, e.BalanceAfter, e.Reason, e.SourceRowID, e.OperationID, e.Actor).Scan(&id)
	return id, err
}
