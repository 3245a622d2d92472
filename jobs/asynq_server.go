package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/httpx"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Concurrency int
	Logger      *slog.Logger
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		IsFailure: func(err error) bool {
			return !errors.Is(err, shared.ErrConflict)
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Enqueuer submits tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector reads queue state.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueContext enqueues task.
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints to enqueue and inspect jobs.
type Handler struct {
	enqueuer  Enqueuer
	inspector Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(enqueuer Enqueuer, inspector Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{enqueuer: enqueuer, inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/import", h.enqueueImport)
	r.Post("/picklist", h.enqueuePickList)
	r.Post("/close", h.enqueueClose)
	r.Get("/{id}", h.status)
}

type enqueued struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

func (h *Handler) enqueueImport(w http.ResponseWriter, r *http.Request) {
	var payload ImportPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.enqueue(w, r, payload, func() (*asynq.Task, error) { return NewImportTask(payload) })
}

func (h *Handler) enqueuePickList(w http.ResponseWriter, r *http.Request) {
	var payload PickListPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := shared.ParseDay("start_delivery", payload.StartDelivery); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.enqueue(w, r, payload, func() (*asynq.Task, error) { return NewPickListTask(payload) })
}

func (h *Handler) enqueueClose(w http.ResponseWriter, r *http.Request) {
	var payload ClosePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := shared.ParseDay("start_delivery", payload.StartDelivery); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.enqueue(w, r, payload, func() (*asynq.Task, error) { return NewCloseTask(payload) })
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, payload any, build func() (*asynq.Task, error)) {
	if err := shared.ValidateStruct(payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := build()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	info, err := h.enqueuer.EnqueueContext(r.Context(), task)
	if err != nil {
		h.logger.Error("enqueue job", slog.String("type", task.Type()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, httpx.Envelope{OK: true, Data: enqueued{ID: info.ID, Type: info.Type, Queue: info.Queue}})
}

type taskStatus struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	State       string          `json:"state"`
	Retried     int             `json:"retried"`
	LastError   string          `json:"last_error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.RespondError(w, errors.New("jobs: inspector not configured"))
		return
	}
	info, err := h.inspector.GetTaskInfo(QueueDefault, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			httpx.RespondError(w, shared.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	out := taskStatus{ID: info.ID, Type: info.Type, State: info.State.String(), Retried: info.Retried, LastError: info.LastErr}
	if !info.CompletedAt.IsZero() {
		at := info.CompletedAt
		out.CompletedAt = &at
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		out.Result = info.Result
	}
	httpx.OK(w, out)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.OK(w, map[string]any{"queue": QueueDefault, "pending": 0})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = info.Pending
		queueName = info.Queue
	}
	httpx.OK(w, map[string]any{"queue": queueName, "pending": pending})
}
