package production

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/picking"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// EngineStore is the persistence used by reconciliation. Batch methods write many rows with
// one statement.
type EngineStore interface {
	ListByKeys(ctx context.Context, keys []Key) ([]ProductionRow, error)
	DeleteBatch(ctx context.Context, ids []int64) (int, error)
	UpdateBatch(ctx context.Context, rows []ProductionRow) (int, error)
	InsertBatch(ctx context.Context, rows []ProductionRow) ([]int64, error)
	InsertMovements(ctx context.Context, entries []MovementLogEntry) (int, error)
}

// SyncMetrics receives the outcome of each pass. Optional.
type SyncMetrics interface {
	ObserveSync(report shared.SyncReport)
}

// EngineConfig groups optional settings.
type EngineConfig struct {
	BatchSize int
}

// Engine derives production demand from pick rows.
type Engine struct {
	store     EngineStore
	metrics   SyncMetrics
	batchSize int
	logger    *slog.Logger
}

// NewEngine builds Engine. metrics may be nil.
func NewEngine(store EngineStore, metrics SyncMetrics, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, metrics: metrics, batchSize: cfg.BatchSize, logger: logger}
}

type change struct {
	row   ProductionRow
	entry *MovementLogEntry
}

type plan struct {
	deletes []change
	updates []change
	inserts []change
}

// Sync reconciles the to-print rows of every (sku, ean) touched by rows. Per product the
// newest delivery date wins: older to-print rows are removed and an older pick row never
// creates or updates one. Batches run delete, update, insert and finally one movement log
// insert; a failed batch is reported and the rest still run.
func (e *Engine) Sync(ctx context.Context, rows []picking.PickRow) (shared.SyncReport, error) {
	if len(rows) == 0 {
		return shared.SyncReport{}, nil
	}
	latest := make(map[Key]picking.PickRow, len(rows))
	keys := make([]Key, 0, len(rows))
	for _, p := range rows {
		p.DeliveryDate = shared.Day(p.DeliveryDate)
		k := Key{SKU: p.SKU, EAN: p.EAN}
		cur, seen := latest[k]
		if !seen {
			keys = append(keys, k)
		}
		if !seen || !p.DeliveryDate.Before(cur.DeliveryDate) {
			latest[k] = p
		}
	}

	existing, err := e.store.ListByKeys(ctx, keys)
	if err != nil {
		return shared.SyncReport{}, fmt.Errorf("production: load rows: %w", err)
	}
	byKey := make(map[Key][]ProductionRow, len(keys))
	for _, r := range existing {
		byKey[r.Key()] = append(byKey[r.Key()], r)
	}

	actor := shared.ActorFromContext(ctx)
	var p plan
	for _, k := range keys {
		planKey(&p, latest[k], byKey[k], actor)
	}
	report := e.apply(ctx, p)
	if e.metrics != nil {
		e.metrics.ObserveSync(report)
	}
	e.logger.Info("production sync",
		slog.Int("products", len(keys)),
		slog.Int("inserted", report.Inserted), slog.Int("updated", report.Updated),
		slog.Int("deleted", report.Deleted), slog.Int("logged", report.Logged),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}

func planKey(p *plan, pick picking.PickRow, rows []ProductionRow, actor string) {
	day := pick.DeliveryDate
	fabricated := 0
	var current *ProductionRow
	newer := false
	for i := range rows {
		r := rows[i]
		if !r.ToPrint() {
			fabricated += r.ToProduce
			continue
		}
		switch {
		case r.DeliveryDate.Before(day):
			p.deletes = append(p.deletes, change{row: r, entry: &MovementLogEntry{
				ProductionID: r.ID, SKU: r.SKU, EAN: r.EAN,
				StateOld: strRef(r.State), QtyOld: intRef(r.ToProduce), QtyNew: intRef(0),
				PlusOld: intRef(r.Surplus), Actor: actor, Reason: ReasonDateChange,
			}})
		case r.DeliveryDate.Equal(day) && current == nil:
			current = &rows[i]
		default:
			newer = true
		}
	}
	if newer {
		return
	}

	qty := ToPrintQty(Required(pick.Qty, pick.Counted, pick.State), fabricated, pick.Surplus)
	if current == nil {
		if qty <= 0 {
			return
		}
		row := snapshot(ProductionRow{State: StateToPrint}, pick)
		row.ToProduce = qty
		p.inserts = append(p.inserts, change{row: row, entry: &MovementLogEntry{
			SKU: row.SKU, EAN: row.EAN,
			StateNew: strRef(StateToPrint), QtyNew: intRef(qty), PlusNew: intRef(row.Surplus),
			Actor: actor, Reason: ReasonCreated,
		}})
		return
	}

	old := *current
	if old.ManualEdit {
		if next := snapshot(old, pick); !sameSnapshot(old, next) {
			p.updates = append(p.updates, change{row: next})
		}
		return
	}
	if qty <= 0 {
		p.deletes = append(p.deletes, change{row: old, entry: &MovementLogEntry{
			ProductionID: old.ID, SKU: old.SKU, EAN: old.EAN,
			StateOld: strRef(old.State), QtyOld: intRef(old.ToProduce), QtyNew: intRef(0),
			PlusOld: intRef(old.Surplus), PlusNew: intRef(pick.Surplus),
			Actor: actor, Reason: ReasonRemoved,
		}})
		return
	}
	next := snapshot(old, pick)
	next.ToProduce = qty
	if sameSnapshot(old, next) && old.ToProduce == qty {
		return
	}
	c := change{row: next}
	if old.ToProduce != qty || old.Surplus != next.Surplus {
		c.entry = &MovementLogEntry{
			ProductionID: old.ID, SKU: old.SKU, EAN: old.EAN,
			StateOld: strRef(old.State), StateNew: strRef(next.State),
			QtyOld: intRef(old.ToProduce), QtyNew: intRef(qty),
			PlusOld: intRef(old.Surplus), PlusNew: intRef(next.Surplus),
			Actor: actor, Reason: ReasonUpdated,
		}
	}
	p.updates = append(p.updates, c)
}

// snapshot copies the pick row figures onto row.
func snapshot(row ProductionRow, pick picking.PickRow) ProductionRow {
	if pick.ID != 0 {
		id := pick.ID
		row.PickRowID = &id
	}
	row.SKU, row.EAN = pick.SKU, pick.EAN
	row.Root = pick.Root
	if row.Root == "" {
		row.Root = picking.Root(pick.SKU)
	}
	row.DeliveryDate = pick.DeliveryDate
	row.Counted = nil
	if pick.Counted != nil {
		row.Counted = intRef(*pick.Counted)
	}
	row.QtyOrdered = pick.Qty
	row.Surplus = pick.Surplus
	return row
}

func sameSnapshot(a, b ProductionRow) bool {
	return sameInt(a.Counted, b.Counted) && a.QtyOrdered == b.QtyOrdered && a.Surplus == b.Surplus &&
		a.Root == b.Root && a.DeliveryDate.Equal(b.DeliveryDate) && sameInt64(a.PickRowID, b.PickRowID)
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (e *Engine) apply(ctx context.Context, p plan) shared.SyncReport {
	var report shared.SyncReport
	var logs []MovementLogEntry
	fail := func(op string, batch, rows int, err error) {
		e.logger.Error("production batch failed", slog.String("op", op), slog.Int("batch", batch), slog.Int("rows", rows), slog.Any("error", err))
		report.Failures = append(report.Failures, shared.BatchFailure{Op: op, Batch: batch, Rows: rows, Reason: err.Error()})
	}

	for i, w := range shared.Chunk(len(p.deletes), e.batchSize) {
		batch := p.deletes[w[0]:w[1]]
		ids := make([]int64, len(batch))
		for j, c := range batch {
			ids[j] = c.row.ID
		}
		n, err := e.store.DeleteBatch(ctx, ids)
		if err != nil {
			fail("delete", i, len(batch), err)
			continue
		}
		report.Deleted += n
		logs = appendEntries(logs, batch)
	}

	for i, w := range shared.Chunk(len(p.updates), e.batchSize) {
		batch := p.updates[w[0]:w[1]]
		rows := make([]ProductionRow, len(batch))
		for j, c := range batch {
			rows[j] = c.row
		}
		n, err := e.store.UpdateBatch(ctx, rows)
		if err != nil {
			fail("update", i, len(batch), err)
			continue
		}
		report.Updated += n
		logs = appendEntries(logs, batch)
	}

	for i, w := range shared.Chunk(len(p.inserts), e.batchSize) {
		batch := p.inserts[w[0]:w[1]]
		rows := make([]ProductionRow, len(batch))
		for j, c := range batch {
			rows[j] = c.row
		}
		ids, err := e.store.InsertBatch(ctx, rows)
		if err != nil {
			fail("insert", i, len(batch), err)
			continue
		}
		report.Inserted += len(ids)
		for j, id := range ids {
			if j < len(batch) && batch[j].entry != nil {
				batch[j].entry.ProductionID = id
			}
		}
		logs = appendEntries(logs, batch)
	}

	if len(logs) > 0 {
		n, err := e.store.InsertMovements(ctx, logs)
		if err != nil {
			fail("log", 0, len(logs), err)
		} else {
			report.Logged = n
		}
	}
	return report
}

func appendEntries(logs []MovementLogEntry, batch []change) []MovementLogEntry {
	now := time.Now().UTC()
	for _, c := range batch {
		if c.entry == nil {
			continue
		}
		entry := *c.entry
		entry.CreatedAt = now
		logs = append(logs, entry)
	}
	return logs
}
