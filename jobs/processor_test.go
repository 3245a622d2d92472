package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/CiaoMoro1/gestionale-backend-sub000/internal/jobs"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shipments"
)

type fakeImporter struct {
	paths []string
	res   orders.ImportResult
	err   error
}

func (f *fakeImporter) ImportFromStorage(_ context.Context, path string) (orders.ImportResult, error) {
	f.paths = append(f.paths, path)
	return f.res, f.err
}

type fakeGenerator struct {
	days   []time.Time
	report shared.ImportReport
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, day time.Time) (shared.ImportReport, error) {
	f.days = append(f.days, day)
	return f.report, f.err
}

type fakeCloser struct {
	reqs []shipments.CloseRequest
	err  error
}

func (f *fakeCloser) CloseOrder(_ context.Context, req shipments.CloseRequest) (shipments.CloseReport, error) {
	f.reqs = append(f.reqs, req)
	return shipments.CloseReport{SummaryOrderID: 7, LinesUpdated: 3}, f.err
}

type capture struct {
	results []Result
}

func (c *capture) last(t *testing.T) Result {
	t.Helper()
	require.NotEmpty(t, c.results)
	return c.results[len(c.results)-1]
}

var finished = time.Date(2025, 8, 11, 10, 0, 0, 0, time.UTC)

func newTestProcessor(imp *fakeImporter, gen *fakeGenerator, closer *fakeCloser, metrics *jobmetrics.Metrics) (*Processor, *capture) {
	p := NewProcessor(imp, gen, closer, nil, metrics)
	c := &capture{}
	p.clock = func() time.Time { return finished }
	p.write = func(_ *asynq.Task, data []byte) error {
		var res Result
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		c.results = append(c.results, res)
		return nil
	}
	return p, c
}

func TestHandleImportWritesResult(t *testing.T) {
	imp := &fakeImporter{res: orders.ImportResult{ImportReport: shared.ImportReport{OK: true, ImportedCount: 4, TotalCount: 4}}}
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	p, c := newTestProcessor(imp, &fakeGenerator{}, &fakeCloser{}, metrics)

	task, err := NewImportTask(ImportPayload{StoragePath: "imports/2025/08/orders.xlsx"})
	require.NoError(t, err)
	require.NoError(t, p.HandleImport(context.Background(), task))

	assert.Equal(t, []string{"imports/2025/08/orders.xlsx"}, imp.paths)
	res := c.last(t)
	assert.Equal(t, StatusOK, res.Status)
	assert.True(t, res.FinishedAt.Equal(finished))
	assert.Equal(t, 4.0, rowsCounter(t, registry, TaskOrdersImport, "written"))
}

func rowsCounter(t *testing.T, registry *prometheus.Registry, job, outcome string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "gestionale_job_rows_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["job"] == job && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no rows metric for %s/%s", job, outcome)
	return 0
}

func TestHandlePickListPartial(t *testing.T) {
	gen := &fakeGenerator{report: shared.ImportReport{OK: false, ImportedCount: 3, TotalCount: 5, Errors: []string{"insert batch 2 (2 rows): boom"}}}
	p, c := newTestProcessor(&fakeImporter{}, gen, &fakeCloser{}, nil)

	task, err := NewPickListTask(PickListPayload{StartDelivery: "2025-08-11"})
	require.NoError(t, err)
	require.NoError(t, p.HandlePickList(context.Background(), task))

	require.Len(t, gen.days, 1)
	assert.Equal(t, time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC), gen.days[0])
	assert.Equal(t, StatusPartial, c.last(t).Status)
}

func TestHandleCloseForwardsRequest(t *testing.T) {
	closer := &fakeCloser{}
	p, c := newTestProcessor(&fakeImporter{}, &fakeGenerator{}, closer, nil)

	task, err := NewCloseTask(ClosePayload{Centro: "MXP5", StartDelivery: "2025-08-11", POList: []string{"PO1"}})
	require.NoError(t, err)
	require.NoError(t, p.HandleClose(context.Background(), task))

	require.Len(t, closer.reqs, 1)
	assert.Equal(t, "MXP5", closer.reqs[0].Center)
	assert.Equal(t, []string{"PO1"}, closer.reqs[0].POList)
	assert.Equal(t, StatusOK, c.last(t).Status)
}

func TestBadPayloadSkipsRetry(t *testing.T) {
	p, c := newTestProcessor(&fakeImporter{}, &fakeGenerator{}, &fakeCloser{}, nil)

	err := p.HandleImport(context.Background(), asynq.NewTask(TaskOrdersImport, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, StatusError, c.last(t).Status)
}

func TestMissingFieldSkipsRetry(t *testing.T) {
	gen := &fakeGenerator{}
	p, c := newTestProcessor(&fakeImporter{}, gen, &fakeCloser{}, nil)

	task, err := NewPickListTask(PickListPayload{})
	require.NoError(t, err)
	err = p.HandlePickList(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, gen.days)
	assert.Contains(t, c.last(t).Error, "start_delivery")
}

func TestPermanentErrorsSkipRetry(t *testing.T) {
	cases := map[string]error{
		"not found":     shared.ErrNotFound,
		"business rule": shared.BusinessRule("order closed"),
		"validation":    shared.NewValidationError("centro", "required"),
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			p, c := newTestProcessor(&fakeImporter{}, &fakeGenerator{}, &fakeCloser{err: cause}, nil)
			task, err := NewCloseTask(ClosePayload{Centro: "MXP5", StartDelivery: "2025-08-11"})
			require.NoError(t, err)

			err = p.HandleClose(context.Background(), task)
			assert.ErrorIs(t, err, asynq.SkipRetry)
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, StatusError, c.last(t).Status)
		})
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	cases := map[string]error{
		"transient": &shared.TransientError{Attempts: 3, Err: errors.New("connection reset")},
		"conflict":  shared.ErrConflict,
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			p, _ := newTestProcessor(&fakeImporter{err: cause}, &fakeGenerator{}, &fakeCloser{}, nil)
			task, err := NewImportTask(ImportPayload{StoragePath: "imports/a.xlsx"})
			require.NoError(t, err)

			err = p.HandleImport(context.Background(), task)
			require.Error(t, err)
			assert.NotErrorIs(t, err, asynq.SkipRetry)
		})
	}
}

func TestHandlersCoverTaskTypes(t *testing.T) {
	p := NewProcessor(&fakeImporter{}, &fakeGenerator{}, &fakeCloser{}, nil, nil)
	types := map[string]bool{}
	for _, h := range p.Handlers() {
		types[h.Type] = h.Handler != nil
	}
	assert.Equal(t, map[string]bool{TaskOrdersImport: true, TaskPickListGenerate: true, TaskShipmentsClose: true}, types)
}
