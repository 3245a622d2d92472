package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
)

// Repository persists production rows and their movement log in PostgreSQL.
type Repository struct {
	store db.Store
}

// NewRepository constructs Repository.
func NewRepository(store db.Store) *Repository {
	return &Repository{store: store}
}

const productionColumns = `id, prelievo_id, sku, ean, radice, delivery_date, riscontro, qty_ordered, plus,
	stato, da_produrre, modifica_manuale, note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProductionRow(s rowScanner) (ProductionRow, error) {
	var r ProductionRow
	var counted *int32
	err := s.Scan(&r.ID, &r.PickRowID, &r.SKU, &r.EAN, &r.Root, &r.DeliveryDate, &counted, &r.QtyOrdered,
		&r.Surplus, &r.State, &r.ToProduce, &r.ManualEdit, &r.Note, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return ProductionRow{}, err
	}
	if counted != nil {
		r.Counted = intRef(int(*counted))
	}
	return r, nil
}

func collectProductionRows(rows pgx.Rows) ([]ProductionRow, error) {
	defer rows.Close()
	var out []ProductionRow
	for rows.Next() {
		r, err := scanProductionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get loads one row.
func (r *Repository) Get(ctx context.Context, id int64) (ProductionRow, error) {
	row, err := scanProductionRow(r.store.QueryRow(ctx, `SELECT `+productionColumns+` FROM produzione WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductionRow{}, fmt.Errorf("%w: id %d", ErrProductionRowNotFound, id)
	}
	return row, err
}

// List returns rows matching filter ordered by product and date.
func (r *Repository) List(ctx context.Context, f Filter) ([]ProductionRow, error) {
	rows, err := r.store.Query(ctx, `SELECT `+productionColumns+` FROM produzione
	WHERE ($1 = '' OR sku = $1) AND ($2 = '' OR ean = $2) AND ($3 = '' OR stato = $3)
	ORDER BY sku, ean, delivery_date, id`, f.SKU, f.EAN, f.State)
	if err != nil {
		return nil, fmt.Errorf("production: list: %w", err)
	}
	return collectProductionRows(rows)
}

// ListByKeys returns every row, in any state and date, of the given products.
func (r *Repository) ListByKeys(ctx context.Context, keys []Key) ([]ProductionRow, error) {
	skus, eans := make([]string, len(keys)), make([]string, len(keys))
	for i, k := range keys {
		skus[i], eans[i] = k.SKU, k.EAN
	}
	rows, err := r.store.Query(ctx, `SELECT `+productionColumns+` FROM produzione
	WHERE (sku, ean) IN (SELECT * FROM unnest($1::text[], $2::text[]))
	ORDER BY sku, ean, delivery_date, id`, skus, eans)
	if err != nil {
		return nil, fmt.Errorf("production: list by keys: %w", err)
	}
	return collectProductionRows(rows)
}

// DeleteBatch removes to-print rows among ids. Rows moved to another state meanwhile are kept.
func (r *Repository) DeleteBatch(ctx context.Context, ids []int64) (int, error) {
	tag, err := r.store.Exec(ctx, `DELETE FROM produzione WHERE id = ANY($1) AND stato = $2`, ids, StateToPrint)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// UpdateBatch writes snapshot and quantity of rows with one statement.
func (r *Repository) UpdateBatch(ctx context.Context, rows []ProductionRow) (int, error) {
	n := len(rows)
	ids, pickIDs := make([]int64, n), make([]*int64, n)
	roots, days := make([]string, n), make([]time.Time, n)
	counted := make([]*int32, n)
	ordered, plus, qty := make([]int32, n), make([]int32, n), make([]int32, n)
	for i, row := range rows {
		ids[i], pickIDs[i] = row.ID, row.PickRowID
		roots[i], days[i] = row.Root, row.DeliveryDate
		if row.Counted != nil {
			v := int32(*row.Counted)
			counted[i] = &v
		}
		ordered[i], plus[i], qty[i] = int32(row.QtyOrdered), int32(row.Surplus), int32(row.ToProduce)
	}
	tag, err := r.store.Exec(ctx, `UPDATE produzione p SET
		prelievo_id = t.pid, radice = t.radice, delivery_date = t.d, riscontro = t.riscontro,
		qty_ordered = t.ordered, plus = t.plus, da_produrre = t.qty, updated_at = NOW()
	FROM unnest($1::bigint[], $2::bigint[], $3::text[], $4::date[], $5::int[], $6::int[], $7::int[], $8::int[])
		AS t(id, pid, radice, d, riscontro, ordered, plus, qty)
	WHERE p.id = t.id`, ids, pickIDs, roots, days, counted, ordered, plus, qty)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// InsertBatch inserts rows and returns their ids aligned with rows. Rows must be distinct
// per (sku, ean).
func (r *Repository) InsertBatch(ctx context.Context, rows []ProductionRow) ([]int64, error) {
	n := len(rows)
	pickIDs := make([]*int64, n)
	skus, eans, roots, states := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	days := make([]time.Time, n)
	counted := make([]*int32, n)
	ordered, plus, qty := make([]int32, n), make([]int32, n), make([]int32, n)
	for i, row := range rows {
		pickIDs[i] = row.PickRowID
		skus[i], eans[i], roots[i], states[i] = row.SKU, row.EAN, row.Root, row.State
		days[i] = row.DeliveryDate
		if row.Counted != nil {
			v := int32(*row.Counted)
			counted[i] = &v
		}
		ordered[i], plus[i], qty[i] = int32(row.QtyOrdered), int32(row.Surplus), int32(row.ToProduce)
	}
	res, err := r.store.Query(ctx, `INSERT INTO produzione
		(prelievo_id, sku, ean, radice, delivery_date, riscontro, qty_ordered, plus, stato, da_produrre)
	SELECT t.pid, t.sku, t.ean, t.radice, t.d, t.riscontro, t.ordered, t.plus, t.st, t.qty
	FROM unnest($1::bigint[], $2::text[], $3::text[], $4::text[], $5::date[], $6::int[], $7::int[], $8::int[], $9::text[], $10::int[])
		AS t(pid, sku, ean, radice, d, riscontro, ordered, plus, st, qty)
	RETURNING id, sku, ean`, pickIDs, skus, eans, roots, days, counted, ordered, plus, states, qty)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	byKey := make(map[Key]int64, n)
	for res.Next() {
		var id int64
		var k Key
		if err := res.Scan(&id, &k.SKU, &k.EAN); err != nil {
			return nil, err
		}
		byKey[k] = id
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i, row := range rows {
		out[i] = byKey[row.Key()]
	}
	return out, nil
}

// InsertMovements appends log entries with one statement.
func (r *Repository) InsertMovements(ctx context.Context, entries []MovementLogEntry) (int, error) {
	return insertMovements(ctx, r.store, entries)
}

// Movements returns the log of one row, oldest first.
func (r *Repository) Movements(ctx context.Context, productionID int64) ([]MovementLogEntry, error) {
	rows, err := r.store.Query(ctx, `SELECT id, produzione_id, sku, ean, stato_old, stato_new, qty_old, qty_new,
		plus_old, plus_new, actor, reason, created_at
	FROM produzione_movimenti WHERE produzione_id = $1 ORDER BY id`, productionID)
	if err != nil {
		return nil, fmt.Errorf("production: movements: %w", err)
	}
	defer rows.Close()
	var out []MovementLogEntry
	for rows.Next() {
		var e MovementLogEntry
		var qtyOld, qtyNew, plusOld, plusNew *int32
		if err := rows.Scan(&e.ID, &e.ProductionID, &e.SKU, &e.EAN, &e.StateOld, &e.StateNew,
			&qtyOld, &qtyNew, &plusOld, &plusNew, &e.Actor, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.QtyOld, e.QtyNew = fromInt32(qtyOld), fromInt32(qtyNew)
		e.PlusOld, e.PlusNew = fromInt32(plusOld), fromInt32(plusNew)
		out = append(out, e)
	}
	return out, rows.Err()
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

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (ProductionRow, error) {
	row, err := scanProductionRow(t.tx.QueryRow(ctx, `SELECT `+productionColumns+` FROM produzione WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductionRow{}, fmt.Errorf("%w: id %d", ErrProductionRowNotFound, id)
	}
	return row, err
}

func (t *txRepo) ToPrintIDs(ctx context.Context, key Key) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM produzione WHERE sku = $1 AND ean = $2 AND stato = $3`, key.SKU, key.EAN, StateToPrint)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepo) Update(ctx context.Context, row ProductionRow) error {
	_, err := t.tx.Exec(ctx, `UPDATE produzione SET stato = $2, da_produrre = $3, modifica_manuale = $4, note = $5,
		updated_at = NOW() WHERE id = $1`, row.ID, row.State, row.ToProduce, row.ManualEdit, row.Note)
	return err
}

func (t *txRepo) InsertMovements(ctx context.Context, entries []MovementLogEntry) (int, error) {
	return insertMovements(ctx, t.tx, entries)
}

func (t *txRepo) DeleteWithMovements(ctx context.Context, ids []int64) (int, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM produzione_movimenti WHERE produzione_id = ANY($1)`, ids); err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM produzione WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func insertMovements(ctx context.Context, conn db.DBTX, entries []MovementLogEntry) (int, error) {
	n := len(entries)
	if n == 0 {
		return 0, nil
	}
	prodIDs := make([]int64, n)
	skus, eans, actors, reasons := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	stateOld, stateNew := make([]*string, n), make([]*string, n)
	qtyOld, qtyNew, plusOld, plusNew := make([]*int32, n), make([]*int32, n), make([]*int32, n), make([]*int32, n)
	for i, e := range entries {
		prodIDs[i], skus[i], eans[i] = e.ProductionID, e.SKU, e.EAN
		actors[i], reasons[i] = e.Actor, e.Reason
		stateOld[i], stateNew[i] = e.StateOld, e.StateNew
		qtyOld[i], qtyNew[i] = toInt32(e.QtyOld), toInt32(e.QtyNew)
		plusOld[i], plusNew[i] = toInt32(e.PlusOld), toInt32(e.PlusNew)
	}
	tag, err := conn.Exec(ctx, `INSERT INTO produzione_movimenti
		(produzione_id, sku, ean, stato_old, stato_new, qty_old, qty_new, plus_old, plus_new, actor, reason)
	SELECT * FROM unnest($1::bigint[], $2::text[], $3::text[], $4::text[], $5::text[],
		$6::int[], $7::int[], $8::int[], $9::int[], $10::text[], $11::text[])`,
		prodIDs, skus, eans, stateOld, stateNew, qtyOld, qtyNew, plusOld, plusNew, actors, reasons)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func toInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	x := int32(*v)
	return &x
}

func fromInt32(v *int32) *int {
	if v == nil {
		return nil
	}
	return intRef(int(*v))
}
