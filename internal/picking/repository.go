package picking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
)

// Repository persists pick rows in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const pickColumns = `id, sku, ean, radice, delivery_date, qty, centers, riscontro, plus, note, stato,
	channel_usage, usage_total, updated_at`

// Get loads one pick row.
func (r *Repository) Get(ctx context.Context, id int64) (PickRow, error) {
	row, err := scanPickRow(r.db.QueryRow(ctx, `SELECT `+pickColumns+` FROM prelievi WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PickRow{}, fmt.Errorf("%w: id %d", ErrPickRowNotFound, id)
	}
	return row, err
}

// GetMany loads the rows among ids that exist.
func (r *Repository) GetMany(ctx context.Context, ids []int64) ([]PickRow, error) {
	rows, err := r.db.Query(ctx, `SELECT `+pickColumns+` FROM prelievi WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("picking: get many: %w", err)
	}
	return collectPickRows(rows)
}

// List returns the rows of a delivery date, optionally narrowed to a state.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]PickRow, error) {
	rows, err := r.db.Query(ctx, `SELECT `+pickColumns+` FROM prelievi
	WHERE delivery_date = $1 AND ($2 = '' OR stato = $2)
	ORDER BY sku, ean`, f.Date, string(f.State))
	if err != nil {
		return nil, fmt.Errorf("picking: list: %w", err)
	}
	return collectPickRows(rows)
}

// DeleteByDate removes every row of day.
func (r *Repository) DeleteByDate(ctx context.Context, day time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM prelievi WHERE delivery_date = $1`, day)
	if err != nil {
		return 0, fmt.Errorf("picking: delete date: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// InsertBatch inserts rows with a single statement.
func (r *Repository) InsertBatch(ctx context.Context, rows []PickRow) (int, error) {
	n := len(rows)
	sku, ean, root := make([]string, n), make([]string, n), make([]string, n)
	days, qty := make([]time.Time, n), make([]int32, n)
	centers, states := make([]string, n), make([]string, n)
	for i, row := range rows {
		raw, err := json.Marshal(row.Centers)
		if err != nil {
			return 0, err
		}
		sku[i], ean[i], root[i] = row.SKU, row.EAN, row.Root
		days[i], qty[i] = row.DeliveryDate, int32(row.Qty)
		centers[i], states[i] = string(raw), string(row.State)
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO prelievi (sku, ean, radice, delivery_date, qty, centers, stato)
	SELECT t.sku, t.ean, t.radice, t.d, t.q, t.c::jsonb, t.st
	FROM unnest($1::text[], $2::text[], $3::text[], $4::date[], $5::int[], $6::text[], $7::text[]) AS t(sku, ean, radice, d, q, c, st)`,
		sku, ean, root, days, qty, centers, states)
	if err != nil {
		return 0, fmt.Errorf("picking: insert batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Update writes the mutable fields of row.
func (r *Repository) Update(ctx context.Context, row PickRow) error {
	var usage any
	if row.ChannelUsage != nil {
		raw, err := json.Marshal(row.ChannelUsage)
		if err != nil {
			return err
		}
		usage = string(raw)
	}
	tag, err := r.db.Exec(ctx, `UPDATE prelievi SET riscontro = $2, plus = $3, note = $4, stato = $5,
		channel_usage = $6::jsonb, usage_total = $7, updated_at = NOW()
	WHERE id = $1`, row.ID, row.Counted, row.Surplus, row.Note, string(row.State), usage, row.UsageTotal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrPickRowNotFound, row.ID)
	}
	return nil
}

// BulkSet applies set to every row in ids with one statement.
func (r *Repository) BulkSet(ctx context.Context, ids []int64, set BulkSet) (int, error) {
	var state *string
	if set.State != nil {
		s := string(*set.State)
		state = &s
	}
	tag, err := r.db.Exec(ctx, `UPDATE prelievi SET
		riscontro = COALESCE($2::int, riscontro),
		stato = COALESCE($3::text, stato),
		plus = COALESCE($4::int, plus),
		note = COALESCE($5::text, note),
		updated_at = NOW()
	WHERE id = ANY($1)`, ids, set.Counted, state, set.Surplus, set.Note)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanPickRow(row pgx.Row) (PickRow, error) {
	var (
		p              PickRow
		qty, surplus   int32
		counted, total *int32
		centers, usage []byte
		state          string
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.EAN, &p.Root, &p.DeliveryDate, &qty, &centers, &counted, &surplus,
		&p.Note, &state, &usage, &total, &p.UpdatedAt); err != nil {
		return PickRow{}, err
	}
	p.Qty, p.Surplus, p.State = int(qty), int(surplus), State(state)
	p.Counted, p.UsageTotal = intPtr(counted), intPtr(total)
	if err := json.Unmarshal(centers, &p.Centers); err != nil {
		return PickRow{}, fmt.Errorf("picking: decode centers: %w", err)
	}
	if usage != nil {
		if err := json.Unmarshal(usage, &p.ChannelUsage); err != nil {
			return PickRow{}, fmt.Errorf("picking: decode channel usage: %w", err)
		}
	}
	return p, nil
}

func collectPickRows(rows pgx.Rows) ([]PickRow, error) {
	defer rows.Close()
	var out []PickRow
	for rows.Next() {
		p, err := scanPickRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
