package picking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// RepositoryPort abstracts pick row persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (PickRow, error)
	GetMany(ctx context.Context, ids []int64) ([]PickRow, error)
	List(ctx context.Context, filter ListFilter) ([]PickRow, error)
	DeleteByDate(ctx context.Context, day time.Time) (int, error)
	InsertBatch(ctx context.Context, rows []PickRow) (int, error)
	Update(ctx context.Context, row PickRow) error
	BulkSet(ctx context.Context, ids []int64, set BulkSet) (int, error)
}

// OrderLinesPort reads vendor order lines.
type OrderLinesPort interface {
	LinesForDate(ctx context.Context, day time.Time, status orders.Status) ([]orders.VendorOrderLine, error)
}

// Syncer reconciles production demand after pick rows change.
type Syncer interface {
	Sync(ctx context.Context, rows []PickRow) (shared.SyncReport, error)
}

// Locker serialises generation of one delivery date.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Metrics receives pick list counters. Optional.
type Metrics interface {
	ObservePickRows(op string, rows int, failed bool)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	BatchSize   int
	Parallelism int
}

// Service coordinates pick list generation and operator updates.
type Service struct {
	repo        RepositoryPort
	lines       OrderLinesPort
	ledger      LedgerPort
	syncer      Syncer
	locker      Locker
	metrics     Metrics
	batchSize   int
	parallelism int
	logger      *slog.Logger
}

// NewService builds Service. locker and metrics may be nil.
func NewService(repo RepositoryPort, lines OrderLinesPort, ledger LedgerPort, syncer Syncer, locker Locker, metrics Metrics, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		lines:       lines,
		ledger:      ledger,
		syncer:      syncer,
		locker:      locker,
		metrics:     metrics,
		batchSize:   cfg.BatchSize,
		parallelism: cfg.Parallelism,
		logger:      logger,
	}
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Row  PickRow           `json:"row"`
	Sync shared.SyncReport `json:"sync"`
}

// BulkResult is returned by BulkUpdate.
type BulkResult struct {
	OK       bool                  `json:"ok"`
	Updated  int                   `json:"updated"`
	Skipped  []int64               `json:"skipped,omitempty"`
	Failures []shared.BatchFailure `json:"failures,omitempty"`
	Sync     shared.SyncReport     `json:"sync"`
}

// Generate replaces the pick rows of day with a fresh aggregation of the order lines of
// summary orders still in status new.
func (s *Service) Generate(ctx context.Context, day time.Time) (shared.ImportReport, error) {
	if day.IsZero() {
		return shared.ImportReport{}, shared.NewValidationError("date", "required")
	}
	day = shared.Day(day)
	var report shared.ImportReport
	run := func(ctx context.Context) error {
		var err error
		report, err = s.generate(ctx, day)
		return err
	}
	if s.locker == nil {
		return report, run(ctx)
	}
	err := s.locker.WithLock(ctx, "picking:"+day.Format(shared.DateLayout), run)
	return report, err
}

func (s *Service) generate(ctx context.Context, day time.Time) (shared.ImportReport, error) {
	lines, err := s.lines.LinesForDate(ctx, day, orders.StatusNew)
	if err != nil {
		return shared.ImportReport{}, fmt.Errorf("picking: load order lines: %w", err)
	}
	rows := Aggregate(lines)
	deleted, err := s.repo.DeleteByDate(ctx, day)
	if err != nil {
		return shared.ImportReport{}, fmt.Errorf("picking: clear date: %w", err)
	}

	report := &shared.BatchReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, window := range shared.Chunk(len(rows), s.batchSize) {
		i, batch := i, rows[window[0]:window[1]]
		g.Go(func() error {
			n, err := s.repo.InsertBatch(gctx, batch)
			if err != nil {
				s.logger.Error("pick batch insert failed", slog.Int("batch", i), slog.Int("rows", len(batch)), slog.Any("error", err))
				report.Fail("insert", i, len(batch), err)
				return nil
			}
			report.Success(n)
			return nil
		})
	}
	_ = g.Wait()

	out := shared.ImportReport{OK: report.OK(), ImportedCount: report.Succeeded, TotalCount: len(rows), Errors: []string{}}
	sort.Slice(report.Failures, func(a, b int) bool { return report.Failures[a].Batch < report.Failures[b].Batch })
	for _, f := range report.Failures {
		out.Errors = append(out.Errors, fmt.Sprintf("batch %d (%d rows): %s", f.Batch, f.Rows, f.Reason))
	}
	if s.metrics != nil {
		s.metrics.ObservePickRows("generate", out.ImportedCount, !out.OK)
	}
	s.logger.Info("pick list generated",
		slog.String("date", day.Format(shared.DateLayout)),
		slog.Int("lines", len(lines)), slog.Int("deleted", deleted),
		slog.Int("imported", out.ImportedCount), slog.Int("total", out.TotalCount))
	return out, nil
}

// List returns pick rows matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PickRow, error) {
	if filter.Date.IsZero() {
		return nil, shared.NewValidationError("date", "required")
	}
	filter.Date = shared.Day(filter.Date)
	return s.repo.List(ctx, filter)
}

// Update applies a validated patch to one row. Ledger calls for the channel breakdown run
// before the row is written; if any ledger call or the write fails, the calls already made
// are reversed and the row is left untouched. Production demand is then re-synced.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (UpdateResult, error) {
	patch, err := patch.normalize()
	if err != nil {
		return UpdateResult{}, err
	}
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	next, err := patch.Apply(row)
	if err != nil {
		return UpdateResult{}, err
	}

	var applied []appliedCall
	if patch.ChannelUsage != nil {
		applied, err = s.applyLedger(ctx, row, ChannelDeltas(row.ChannelUsage, next.ChannelUsage))
		if err != nil {
			return UpdateResult{}, err
		}
	}
	if err := s.repo.Update(ctx, next); err != nil {
		s.compensate(ctx, row, applied)
		return UpdateResult{}, fmt.Errorf("picking: update %d: %w", id, err)
	}
	if s.metrics != nil {
		s.metrics.ObservePickRows("update", 1, false)
	}

	res := UpdateResult{Row: next}
	if s.syncer != nil {
		res.Sync, err = s.syncer.Sync(ctx, []PickRow{next})
		if err != nil {
			s.logger.Error("sync after pick update failed", slog.Int64("id", id), slog.Any("error", err))
		}
	}
	return res, nil
}

type appliedCall struct {
	call  LedgerCall
	debit bool
}

func (s *Service) applyLedger(ctx context.Context, row PickRow, deltas []ChannelDelta) ([]appliedCall, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	if s.ledger == nil {
		return nil, fmt.Errorf("picking: ledger not configured")
	}
	opID := uuid.NewString()
	applied := make([]appliedCall, 0, len(deltas))
	for _, d := range deltas {
		call := LedgerCall{
			SKU:         row.SKU,
			EAN:         row.EAN,
			Channel:     d.Channel,
			Reason:      LedgerReason,
			SourceRowID: row.ID,
			OperationID: opID,
		}
		var err error
		if d.Delta > 0 {
			call.Qty = d.Delta
			err = s.ledger.Debit(ctx, call)
		} else {
			call.Qty = -d.Delta
			err = s.ledger.Credit(ctx, call)
		}
		if err != nil {
			s.compensate(ctx, row, applied)
			return nil, fmt.Errorf("picking: ledger for row %d: %w", row.ID, err)
		}
		applied = append(applied, appliedCall{call: call, debit: d.Delta > 0})
	}
	return applied, nil
}

// compensate reverses applied ledger calls, newest first. Failures are only logged.
func (s *Service) compensate(ctx context.Context, row PickRow, applied []appliedCall) {
	ctx = context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		call := a.call
		call.Reason = LedgerReason + " (storno)"
		var err error
		if a.debit {
			err = s.ledger.Credit(ctx, call)
		} else {
			err = s.ledger.Debit(ctx, call)
		}
		if err != nil {
			s.logger.Error("ledger compensation failed",
				slog.Int64("row", row.ID), slog.String("channel", call.Channel), slog.Int("qty", call.Qty), slog.Any("error", err))
		}
	}
}

// BulkUpdate applies counted/surplus/note to many rows with one statement per resulting
// state. A zero count only touches rows still pending; other rows are skipped.
func (s *Service) BulkUpdate(ctx context.Context, patch BulkPatch) (BulkResult, error) {
	patch, err := patch.normalize()
	if err != nil {
		return BulkResult{}, err
	}
	rows, err := s.repo.GetMany(ctx, patch.IDs)
	if err != nil {
		return BulkResult{}, err
	}
	found := make(map[int64]PickRow, len(rows))
	for _, r := range rows {
		found[r.ID] = r
	}
	for _, id := range patch.IDs {
		if _, ok := found[id]; !ok {
			return BulkResult{}, fmt.Errorf("%w: id %d", ErrPickRowNotFound, id)
		}
	}

	var res BulkResult
	targets := make([]PickRow, 0, len(rows))
	for _, r := range rows {
		if patch.Counted != nil && *patch.Counted == 0 && r.State != StatePending {
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}
		if patch.Counted != nil && r.UsageTotal != nil && *patch.Counted < *r.UsageTotal {
			return BulkResult{}, shared.NewValidationError("riscontro", fmt.Sprintf("row %d: must be >= stock usage %d", r.ID, *r.UsageTotal))
		}
		targets = append(targets, r)
	}

	groups := map[State][]int64{}
	var order []State
	for _, r := range targets {
		st := r.State
		if patch.Counted != nil {
			st = DeriveState(r.Qty, patch.Counted)
		}
		if _, ok := groups[st]; !ok {
			order = append(order, st)
		}
		groups[st] = append(groups[st], r.ID)
	}

	report := &shared.BatchReport{}
	updated := map[int64]bool{}
	for i, st := range order {
		ids := groups[st]
		set := BulkSet{Counted: patch.Counted, Surplus: patch.Surplus, Note: patch.Note}
		if patch.Counted != nil {
			state := st
			set.State = &state
		}
		if _, err := s.repo.BulkSet(ctx, ids, set); err != nil {
			s.logger.Error("bulk pick update failed", slog.String("state", string(st)), slog.Int("rows", len(ids)), slog.Any("error", err))
			report.Fail("update:"+string(st), i, len(ids), err)
			continue
		}
		report.Success(len(ids))
		for _, id := range ids {
			updated[id] = true
		}
	}
	res.Updated = report.Succeeded
	res.Failures = report.Failures
	res.OK = report.OK()
	if s.metrics != nil {
		s.metrics.ObservePickRows("bulk_update", res.Updated, !res.OK)
	}

	var synced []PickRow
	for _, r := range targets {
		if !updated[r.ID] {
			continue
		}
		next := r
		if patch.Counted != nil {
			v := *patch.Counted
			next.Counted = &v
			next.State = DeriveState(r.Qty, next.Counted)
		}
		if patch.Surplus != nil {
			next.Surplus = *patch.Surplus
		}
		if patch.Note != nil {
			next.Note = *patch.Note
		}
		synced = append(synced, next)
	}
	if s.syncer != nil && len(synced) > 0 {
		res.Sync, err = s.syncer.Sync(ctx, synced)
		if err != nil {
			s.logger.Error("sync after bulk update failed", slog.Any("error", err))
		}
	}
	return res, nil
}

// Resync re-runs reconciliation for every pick row of day.
func (s *Service) Resync(ctx context.Context, day time.Time) (shared.SyncReport, error) {
	if day.IsZero() {
		return shared.SyncReport{}, shared.NewValidationError("date", "required")
	}
	if s.syncer == nil {
		return shared.SyncReport{}, errors.New("picking: syncer not configured")
	}
	rows, err := s.repo.List(ctx, ListFilter{Date: shared.Day(day)})
	if err != nil {
		return shared.SyncReport{}, err
	}
	return s.syncer.Sync(ctx, rows)
}
