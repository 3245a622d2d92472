package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	jobmetrics "github.com/CiaoMoro1/gestionale-backend-sub000/internal/jobs"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shipments"
)

// OrderImporter imports stored vendor order files.
type OrderImporter interface {
	ImportFromStorage(ctx context.Context, path string) (orders.ImportResult, error)
}

// PickListGenerator regenerates pick lists.
type PickListGenerator interface {
	Generate(ctx context.Context, day time.Time) (shared.ImportReport, error)
}

// OrderCloser closes summary orders.
type OrderCloser interface {
	CloseOrder(ctx context.Context, req shipments.CloseRequest) (shipments.CloseReport, error)
}

// Processor runs the reconciliation jobs.
type Processor struct {
	Orders    OrderImporter
	Picking   PickListGenerator
	Shipments OrderCloser
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
	write     func(t *asynq.Task, data []byte) error
}

// NewProcessor initialises the job handlers.
func NewProcessor(importer OrderImporter, generator PickListGenerator, closer OrderCloser, logger *slog.Logger, metrics *jobmetrics.Metrics) *Processor {
	return &Processor{
		Orders:    importer,
		Picking:   generator,
		Shipments: closer,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		write: func(t *asynq.Task, data []byte) error {
			w := t.ResultWriter()
			if w == nil {
				return nil
			}
			_, err := w.Write(data)
			return err
		},
	}
}

// Handlers lists the task handlers for the worker mux.
func (p *Processor) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskOrdersImport, Handler: p.HandleImport},
		{Type: TaskPickListGenerate, Handler: p.HandlePickList},
		{Type: TaskShipmentsClose, Handler: p.HandleClose},
	}
}

// HandleImport imports the file at storage_path.
func (p *Processor) HandleImport(ctx context.Context, t *asynq.Task) error {
	var payload ImportPayload
	if err := p.decode(t, &payload); err != nil {
		return err
	}
	tracker := p.Metrics.Track(TaskOrdersImport)
	res, err := p.Orders.ImportFromStorage(ctx, payload.StoragePath)
	if err != nil {
		return tracker.End(p.fail(t, err))
	}
	p.Metrics.AddRows(TaskOrdersImport, res.ImportedCount, res.TotalCount-res.ImportedCount)
	return tracker.End(p.finish(t, res, res.OK))
}

// HandlePickList regenerates the pick list of start_delivery.
func (p *Processor) HandlePickList(ctx context.Context, t *asynq.Task) error {
	var payload PickListPayload
	if err := p.decode(t, &payload); err != nil {
		return err
	}
	day, err := shared.ParseDay("start_delivery", payload.StartDelivery)
	if err != nil {
		return p.fail(t, err)
	}
	tracker := p.Metrics.Track(TaskPickListGenerate)
	report, err := p.Picking.Generate(ctx, day)
	if err != nil {
		return tracker.End(p.fail(t, err))
	}
	p.Metrics.AddRows(TaskPickListGenerate, report.ImportedCount, report.TotalCount-report.ImportedCount)
	return tracker.End(p.finish(t, report, report.OK))
}

// HandleClose closes the summary order of (centro, start_delivery).
func (p *Processor) HandleClose(ctx context.Context, t *asynq.Task) error {
	var payload ClosePayload
	if err := p.decode(t, &payload); err != nil {
		return err
	}
	day, err := shared.ParseDay("start_delivery", payload.StartDelivery)
	if err != nil {
		return p.fail(t, err)
	}
	tracker := p.Metrics.Track(TaskShipmentsClose)
	report, err := p.Shipments.CloseOrder(ctx, shipments.CloseRequest{Center: payload.Centro, Date: day, POList: payload.POList})
	if err != nil {
		return tracker.End(p.fail(t, err))
	}
	return tracker.End(p.finish(t, report, true))
}

func (p *Processor) decode(t *asynq.Task, target any) error {
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		p.writeResult(t, Result{Status: StatusError, Error: "invalid payload: " + err.Error(), FinishedAt: p.clock()})
		return fmt.Errorf("%s: invalid payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if err := shared.ValidateStruct(target); err != nil {
		p.writeResult(t, Result{Status: StatusError, Error: err.Error(), FinishedAt: p.clock()})
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func (p *Processor) finish(t *asynq.Task, result any, ok bool) error {
	status := StatusOK
	if !ok {
		status = StatusPartial
	}
	p.writeResult(t, Result{Status: status, Result: result, FinishedAt: p.clock()})
	p.logger().Info("job finished", slog.String("type", t.Type()), slog.String("status", status))
	return nil
}

// fail records err as the job result. Input and business rule errors are final; transient
// failures and lock contention are returned for asynq to retry.
func (p *Processor) fail(t *asynq.Task, err error) error {
	p.writeResult(t, Result{Status: StatusError, Error: err.Error(), FinishedAt: p.clock()})
	p.logger().Error("job failed", slog.String("type", t.Type()), slog.Any("error", err))
	if permanent(err) {
		return fmt.Errorf("%s: %w: %w", t.Type(), err, asynq.SkipRetry)
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrBusinessRule)
}

func (p *Processor) writeResult(t *asynq.Task, res Result) {
	data, err := json.Marshal(res)
	if err != nil {
		p.logger().Error("encode job result", slog.Any("error", err))
		return
	}
	if err := p.write(t, data); err != nil {
		p.logger().Warn("write job result", slog.String("type", t.Type()), slog.Any("error", err))
	}
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
