package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrdersImport imports a stored vendor order file.
	TaskOrdersImport = "orders:import"
	// TaskPickListGenerate regenerates the pick list of one delivery date.
	TaskPickListGenerate = "picking:generate"
	// TaskShipmentsClose closes a summary order.
	TaskShipmentsClose = "shipments:close"
)

// resultRetention keeps finished tasks inspectable through GET /jobs/{id}.
const resultRetention = 24 * time.Hour

// ImportPayload is the payload of TaskOrdersImport.
type ImportPayload struct {
	StoragePath string `json:"storage_path" validate:"required"`
}

// PickListPayload is the payload of TaskPickListGenerate.
type PickListPayload struct {
	StartDelivery string `json:"start_delivery" validate:"required"`
}

// ClosePayload is the payload of TaskShipmentsClose.
type ClosePayload struct {
	Centro        string   `json:"centro" validate:"required"`
	StartDelivery string   `json:"start_delivery" validate:"required"`
	POList        []string `json:"po_list"`
}

// Result is written through the task result writer when a job finishes.
type Result struct {
	Status     string    `json:"status"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Result statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Retention(resultRetention)}, opts...)
	return asynq.NewTask(typ, data, opts...), nil
}

// NewImportTask builds an import task.
func NewImportTask(payload ImportPayload) (*asynq.Task, error) {
	return newTask(TaskOrdersImport, payload)
}

// NewPickListTask builds a pick list task.
func NewPickListTask(payload PickListPayload) (*asynq.Task, error) {
	return newTask(TaskPickListGenerate, payload)
}

// NewCloseTask builds a close order task.
func NewCloseTask(payload ClosePayload) (*asynq.Task, error) {
	return newTask(TaskShipmentsClose, payload)
}
