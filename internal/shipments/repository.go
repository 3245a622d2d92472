package shipments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
)

// Repository persists partial shipments in PostgreSQL.
type Repository struct {
	store db.Store
}

// NewRepository constructs Repository.
func NewRepository(store db.Store) *Repository {
	return &Repository{store: store}
}

const shipmentColumns = `id, riepilogo_id, numero_parziale, items, confirmed, colli_confermati, gestito, created_at, updated_at`

func scanShipment(row pgx.Row) (PartialShipment, error) {
	var s PartialShipment
	var items, packages []byte
	if err := row.Scan(&s.ID, &s.SummaryOrderID, &s.Number, &items, &s.Confirmed, &packages, &s.Handled,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return PartialShipment{}, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return PartialShipment{}, fmt.Errorf("shipments: decode items of %d: %w", s.ID, err)
	}
	if err := json.Unmarshal(packages, &s.Packages); err != nil {
		return PartialShipment{}, fmt.Errorf("shipments: decode packages of %d: %w", s.ID, err)
	}
	return s, nil
}

func collectShipments(rows pgx.Rows) ([]PartialShipment, error) {
	defer rows.Close()
	var out []PartialShipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// List returns the shipments of a summary order.
func (r *Repository) List(ctx context.Context, summaryID int64) ([]PartialShipment, error) {
	rows, err := r.store.Query(ctx, `SELECT `+shipmentColumns+` FROM parziali WHERE riepilogo_id = $1 ORDER BY numero_parziale`, summaryID)
	if err != nil {
		return nil, fmt.Errorf("shipments: list: %w", err)
	}
	return collectShipments(rows)
}

// Get loads one shipment.
func (r *Repository) Get(ctx context.Context, id int64) (PartialShipment, error) {
	s, err := scanShipment(r.store.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM parziali WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PartialShipment{}, fmt.Errorf("%w: id %d", ErrShipmentNotFound, id)
	}
	return s, err
}

// SetHandled stores the gestito flag.
func (r *Repository) SetHandled(ctx context.Context, id int64, handled bool) error {
	tag, err := r.store.Exec(ctx, `UPDATE parziali SET gestito = $2, updated_at = NOW() WHERE id = $1`, id, handled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrShipmentNotFound, id)
	}
	return nil
}

// SetPackages replaces the package confirmation map.
func (r *Repository) SetPackages(ctx context.Context, id int64, packages map[string]bool) error {
	raw, err := json.Marshal(packages)
	if err != nil {
		return err
	}
	tag, err := r.store.Exec(ctx, `UPDATE parziali SET colli_confermati = $2::jsonb, updated_at = NOW() WHERE id = $1`, id, string(raw))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrShipmentNotFound, id)
	}
	return nil
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) ListForUpdate(ctx context.Context, summaryID int64) ([]PartialShipment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+shipmentColumns+` FROM parziali WHERE riepilogo_id = $1
	ORDER BY numero_parziale FOR UPDATE`, summaryID)
	if err != nil {
		return nil, err
	}
	return collectShipments(rows)
}

func (t *txRepo) Upsert(ctx context.Context, s PartialShipment) (PartialShipment, error) {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return PartialShipment{}, err
	}
	packages, err := json.Marshal(s.Packages)
	if err != nil {
		return PartialShipment{}, err
	}
	return scanShipment(t.tx.QueryRow(ctx, `INSERT INTO parziali (riepilogo_id, numero_parziale, items, colli_confermati)
	VALUES ($1, $2, $3::jsonb, $4::jsonb)
	ON CONFLICT (riepilogo_id, numero_parziale) DO UPDATE
		SET items = EXCLUDED.items, colli_confermati = EXCLUDED.colli_confermati, updated_at = NOW()
	RETURNING `+shipmentColumns, s.SummaryOrderID, s.Number, string(items), string(packages)))
}

func (t *txRepo) Confirm(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE parziali SET confirmed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrShipmentNotFound, id)
	}
	return nil
}

func (t *txRepo) DeleteDraft(ctx context.Context, summaryID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM parziali WHERE riepilogo_id = $1 AND NOT confirmed`, summaryID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
