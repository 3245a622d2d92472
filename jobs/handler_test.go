package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueDefault}, nil
}

type fakeInspector struct {
	tasks map[string]*asynq.TaskInfo
}

func (f *fakeInspector) GetTaskInfo(_ string, id string) (*asynq.TaskInfo, error) {
	info, ok := f.tasks[id]
	if !ok {
		return nil, asynq.ErrTaskNotFound
	}
	return info, nil
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: len(f.tasks)}, nil
}

func newTestRouter(enq *fakeEnqueuer, insp *fakeInspector) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(enq, insp, nil).MountRoutes)
	return r
}

type envelope struct {
	OK     bool            `json:"ok"`
	Data   json.RawMessage `json:"data"`
	Errors []string        `json:"errors"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestEnqueueClose(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := newTestRouter(enq, &fakeInspector{})

	rec, env := do(t, h, http.MethodPost, "/jobs/close", `{"centro":"MXP5","start_delivery":"2025-08-11","po_list":["PO1"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, env.OK)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskShipmentsClose, enq.tasks[0].Type())

	var payload ClosePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, ClosePayload{Centro: "MXP5", StartDelivery: "2025-08-11", POList: []string{"PO1"}}, payload)
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := newTestRouter(enq, &fakeInspector{})

	rec, _ := do(t, h, http.MethodPost, "/jobs/picklist", `{"start_delivery":"11/08/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/jobs/import", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/jobs/close", `{"start_delivery":"2025-08-11"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, enq.tasks)
}

func TestEnqueueFailureIsInternal(t *testing.T) {
	h := newTestRouter(&fakeEnqueuer{err: errors.New("redis down")}, &fakeInspector{})
	rec, env := do(t, h, http.MethodPost, "/jobs/import", `{"storage_path":"imports/a.xlsx"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.OK)
}

func TestTaskStatus(t *testing.T) {
	done := time.Date(2025, 8, 11, 10, 0, 0, 0, time.UTC)
	insp := &fakeInspector{tasks: map[string]*asynq.TaskInfo{
		"abc": {ID: "abc", Type: TaskPickListGenerate, State: asynq.TaskStateCompleted, CompletedAt: done, Result: []byte(`{"status":"ok"}`)},
	}}
	h := newTestRouter(&fakeEnqueuer{}, insp)

	rec, env := do(t, h, http.MethodGet, "/jobs/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status taskStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "completed", status.State)
	require.NotNil(t, status.CompletedAt)
	assert.True(t, status.CompletedAt.Equal(done))
	assert.JSONEq(t, `{"status":"ok"}`, string(status.Result))

	rec, _ = do(t, h, http.MethodGet, "/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsHealth(t *testing.T) {
	h := newTestRouter(&fakeEnqueuer{}, &fakeInspector{tasks: map[string]*asynq.TaskInfo{"a": {}}})
	rec, env := do(t, h, http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":1}`, string(env.Data))
}
