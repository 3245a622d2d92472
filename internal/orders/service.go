package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/storage"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	BatchSize int
}

// Service imports vendor order files and serves summary orders.
type Service struct {
	repo      RepositoryPort
	store     storage.FileStore
	importer  Importer
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service. store may be nil when files are only imported inline.
func NewService(repo RepositoryPort, store storage.FileStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, batchSize: cfg.BatchSize, logger: logger, now: time.Now}
}

// Upload keeps the raw file in the file store and returns its storage path.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("orders: file store not configured")
	}
	key := storage.ImportKey(s.now(), filename)
	if err := s.store.Put(ctx, key, r, size); err != nil {
		return "", err
	}
	return key, nil
}

// ImportFromStorage imports a file previously stored under path.
func (s *Service) ImportFromStorage(ctx context.Context, path string) (ImportResult, error) {
	if s.store == nil {
		return ImportResult{}, fmt.Errorf("orders: file store not configured")
	}
	rc, err := s.store.Open(ctx, path)
	if err != nil {
		return ImportResult{}, err
	}
	defer rc.Close()
	return s.ImportFile(ctx, rc)
}

// ImportFile parses a vendor order spreadsheet, upserts its lines in batches and refreshes
// the summary order of every (center, expected date) it touches. Batch failures are reported,
// not returned.
func (s *Service) ImportFile(ctx context.Context, r io.Reader) (ImportResult, error) {
	parsed, err := s.importer.Parse(r)
	if err != nil {
		return ImportResult{}, err
	}
	lines := dedupe(parsed.Lines)
	res := ImportResult{ImportReport: shared.ImportReport{TotalCount: parsed.Total}}
	res.Errors = append(res.Errors, parsed.Errors...)

	type summaryKey struct {
		center string
		day    time.Time
	}
	pos := map[summaryKey]map[string]struct{}{}
	for i, window := range shared.Chunk(len(lines), s.batchSize) {
		batch := lines[window[0]:window[1]]
		if _, err := s.repo.UpsertLines(ctx, batch); err != nil {
			s.logger.Error("import batch failed", slog.Int("batch", i), slog.Int("rows", len(batch)), slog.Any("error", err))
			res.Errors = append(res.Errors, fmt.Sprintf("batch %d (%d rows): %v", i, len(batch), err))
			continue
		}
		res.ImportedCount += len(batch)
		for _, l := range batch {
			k := summaryKey{center: l.FulfillmentCenter, day: shared.Day(l.ExpectedDate)}
			if pos[k] == nil {
				pos[k] = map[string]struct{}{}
			}
			pos[k][l.PONumber] = struct{}{}
		}
	}

	dates := map[string]struct{}{}
	for k, set := range pos {
		list := make([]string, 0, len(set))
		for po := range set {
			list = append(list, po)
		}
		sort.Strings(list)
		if _, err := s.repo.UpsertSummary(ctx, k.center, k.day, list); err != nil {
			s.logger.Error("summary upsert failed", slog.String("center", k.center), slog.Any("error", err))
			res.Errors = append(res.Errors, fmt.Sprintf("summary %s %s: %v", k.center, k.day.Format(shared.DateLayout), err))
			continue
		}
		res.Summaries++
		dates[k.day.Format(shared.DateLayout)] = struct{}{}
	}
	for d := range dates {
		res.Dates = append(res.Dates, d)
	}
	sort.Strings(res.Dates)
	res.OK = len(res.Errors) == 0
	s.logger.Info("vendor orders imported",
		slog.Int("imported", res.ImportedCount), slog.Int("total", res.TotalCount), slog.Int("errors", len(res.Errors)))
	return res, nil
}

// Summary returns the summary order of (center, date).
func (s *Service) Summary(ctx context.Context, center string, day time.Time) (SummaryOrder, error) {
	center = strings.ToUpper(strings.TrimSpace(center))
	if center == "" {
		return SummaryOrder{}, shared.NewValidationError("centro", "required")
	}
	return s.repo.FindSummary(ctx, center, shared.Day(day))
}

// dedupe keeps the last occurrence of each (po, model, center) so one batch never hits the
// same conflict key twice.
func dedupe(lines []VendorOrderLine) []VendorOrderLine {
	type key struct{ po, model, center string }
	pos := make(map[key]int, len(lines))
	out := make([]VendorOrderLine, 0, len(lines))
	for _, l := range lines {
		k := key{l.PONumber, l.ModelNumber, l.FulfillmentCenter}
		if i, ok := pos[k]; ok {
			out[i] = l
			continue
		}
		pos[k] = len(out)
		out = append(out, l)
	}
	return out
}
