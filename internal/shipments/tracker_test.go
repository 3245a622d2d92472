package shipments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

type memoryRepo struct {
	rows   map[int64]PartialShipment
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]PartialShipment{}}
}

func (r *memoryRepo) List(_ context.Context, summaryID int64) ([]PartialShipment, error) {
	var out []PartialShipment
	for _, s := range r.rows {
		if s.SummaryOrderID == summaryID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Number < out[b].Number })
	return out, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (PartialShipment, error) {
	s, ok := r.rows[id]
	if !ok {
		return PartialShipment{}, ErrShipmentNotFound
	}
	return s, nil
}

func (r *memoryRepo) SetHandled(_ context.Context, id int64, handled bool) error {
	s, ok := r.rows[id]
	if !ok {
		return ErrShipmentNotFound
	}
	s.Handled = handled
	r.rows[id] = s
	return nil
}

func (r *memoryRepo) SetPackages(_ context.Context, id int64, packages map[string]bool) error {
	s, ok := r.rows[id]
	if !ok {
		return ErrShipmentNotFound
	}
	s.Packages = packages
	r.rows[id] = s
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, rows: map[int64]PartialShipment{}, nextID: r.nextID}
	for id, s := range r.rows {
		tx.rows[id] = s
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.rows, r.nextID = tx.rows, tx.nextID
	return nil
}

type memoryTx struct {
	repo   *memoryRepo
	rows   map[int64]PartialShipment
	nextID int64
}

func (t *memoryTx) ListForUpdate(ctx context.Context, summaryID int64) ([]PartialShipment, error) {
	return (&memoryRepo{rows: t.rows}).List(ctx, summaryID)
}

func (t *memoryTx) Upsert(_ context.Context, s PartialShipment) (PartialShipment, error) {
	for id, cur := range t.rows {
		if cur.SummaryOrderID == s.SummaryOrderID && cur.Number == s.Number {
			cur.Items, cur.Packages = s.Items, s.Packages
			t.rows[id] = cur
			return cur, nil
		}
		if cur.SummaryOrderID == s.SummaryOrderID && !cur.Confirmed {
			return PartialShipment{}, errors.New("duplicate key value violates unique constraint \"parziali_one_draft_idx\"")
		}
	}
	t.nextID++
	s.ID = t.nextID
	t.rows[s.ID] = s
	return s, nil
}

func (t *memoryTx) Confirm(_ context.Context, id int64) error {
	s, ok := t.rows[id]
	if !ok {
		return ErrShipmentNotFound
	}
	s.Confirmed = true
	t.rows[id] = s
	return nil
}

func (t *memoryTx) DeleteDraft(_ context.Context, summaryID int64) (int, error) {
	n := 0
	for id, s := range t.rows {
		if s.SummaryOrderID == summaryID && !s.Confirmed {
			delete(t.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeOrders struct {
	summary   orders.SummaryOrder
	lines     map[string]map[string]*int
	statusLog []orders.Status
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		summary: orders.SummaryOrder{ID: 7, Center: "MXP5", DeliveryDate: testDay, POList: []string{"PO1", "PO2"}, Status: orders.StatusNew},
		lines: map[string]map[string]*int{
			"PO1": {"SKU-A": nil, "SKU-B": nil},
			"PO2": {"SKU-C": nil},
			"PO9": {"SKU-A": nil},
		},
	}
}

func (f *fakeOrders) FindSummary(_ context.Context, center string, day time.Time) (orders.SummaryOrder, error) {
	if center != f.summary.Center || !day.Equal(f.summary.DeliveryDate) {
		return orders.SummaryOrder{}, orders.ErrSummaryNotFound
	}
	return f.summary, nil
}

func (f *fakeOrders) SetSummaryStatus(_ context.Context, id int64, status orders.Status) error {
	f.summary.Status = status
	f.statusLog = append(f.statusLog, status)
	return nil
}

func (f *fakeOrders) SetConfirmedQty(_ context.Context, poList []string, qty map[string]int) (int, error) {
	n := 0
	for _, po := range poList {
		for model := range f.lines[po] {
			v := qty[model]
			f.lines[po][model] = &v
			n++
		}
	}
	return n, nil
}

var testDay = time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC)

func draft(items ...Item) DraftRequest {
	return DraftRequest{Center: "mxp5", Date: testDay, Items: items}
}

func TestSaveDraftNumbering(t *testing.T) {
	repo, ords := newMemoryRepo(), newFakeOrders()
	tr := NewTracker(repo, ords, nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: i + 1, PackageID: "C1"}))
		require.NoError(t, err)
		require.Equal(t, 1, s.Number)
	}
	require.Len(t, repo.rows, 1)

	confirmed, err := tr.ConfirmDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	require.Equal(t, 1, confirmed.Number)
	require.Equal(t, orders.StatusPartial, ords.summary.Status)

	s, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-B", Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, 2, s.Number)

	list, err := tr.List(ctx, "MXP5", testDay)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].Confirmed)
	require.Equal(t, 3, list[0].Items[0].Quantity)
	require.False(t, list[1].Confirmed)
}

func TestConfirmWithoutDraft(t *testing.T) {
	tr := NewTracker(newMemoryRepo(), newFakeOrders(), nil, nil, nil)
	_, err := tr.ConfirmDraft(context.Background(), "MXP5", testDay)
	require.ErrorIs(t, err, ErrDraftNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = tr.ConfirmDraft(context.Background(), "FCO1", testDay)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConfirmKeepsStatusPartial(t *testing.T) {
	repo, ords := newMemoryRepo(), newFakeOrders()
	tr := NewTracker(repo, ords, nil, nil, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 1}))
		require.NoError(t, err)
		_, err = tr.ConfirmDraft(ctx, "MXP5", testDay)
		require.NoError(t, err)
	}
	require.Equal(t, []orders.Status{orders.StatusPartial}, ords.statusLog)
}

func TestCloseOrderOverwritesConfirmedQty(t *testing.T) {
	repo, ords := newMemoryRepo(), newFakeOrders()
	tr := NewTracker(repo, ords, nil, nil, nil)
	ctx := context.Background()

	_, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 3}, Item{ModelNumber: "SKU-B", Quantity: 2}))
	require.NoError(t, err)
	_, err = tr.ConfirmDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	_, err = tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 2}))
	require.NoError(t, err)

	ords.lines["PO2"]["SKU-C"] = intPtr(9)
	for i := 0; i < 2; i++ {
		report, err := tr.CloseOrder(ctx, CloseRequest{Center: "MXP5", Date: testDay})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"SKU-A": 5, "SKU-B": 2}, report.Totals)
		assert.Equal(t, 2, report.Partials)
		assert.Equal(t, 3, report.LinesUpdated)
		assert.Equal(t, 5, *ords.lines["PO1"]["SKU-A"])
		assert.Equal(t, 2, *ords.lines["PO1"]["SKU-B"])
		assert.Equal(t, 0, *ords.lines["PO2"]["SKU-C"])
		assert.Nil(t, ords.lines["PO9"]["SKU-A"], "lines of other orders are untouched")
	}
	require.Equal(t, orders.StatusCompleted, ords.summary.Status)
	for _, s := range repo.rows {
		require.True(t, s.Confirmed, "draft folded in on close")
	}

	_, err = tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 1}))
	require.ErrorIs(t, err, ErrOrderClosed)
	_, err = tr.ConfirmDraft(ctx, "MXP5", testDay)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestCloseOrderRestrictedPOList(t *testing.T) {
	tr := NewTracker(newMemoryRepo(), newFakeOrders(), nil, nil, nil)
	_, err := tr.CloseOrder(context.Background(), CloseRequest{Center: "MXP5", Date: testDay, POList: []string{"PO9"}})
	require.ErrorIs(t, err, shared.ErrValidation)

	report, err := tr.CloseOrder(context.Background(), CloseRequest{Center: "MXP5", Date: testDay, POList: []string{"PO2"}})
	require.NoError(t, err)
	require.Equal(t, 1, report.LinesUpdated)
}

func TestResetDraft(t *testing.T) {
	repo, ords := newMemoryRepo(), newFakeOrders()
	tr := NewTracker(repo, ords, nil, nil, nil)
	ctx := context.Background()
	_, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 1}))
	require.NoError(t, err)
	_, err = tr.ConfirmDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	_, err = tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 4}))
	require.NoError(t, err)

	deleted, err := tr.ResetDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Len(t, repo.rows, 1)
	require.Equal(t, orders.StatusPartial, ords.summary.Status)

	deleted, err = tr.ResetDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestResetDraftReleasesNumber(t *testing.T) {
	repo, ords := newMemoryRepo(), newFakeOrders()
	tr := NewTracker(repo, ords, nil, nil, nil)
	ctx := context.Background()
	_, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 1}))
	require.NoError(t, err)
	_, err = tr.ConfirmDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)

	s, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 4}))
	require.NoError(t, err)
	require.Equal(t, 2, s.Number)
	deleted, err := tr.ResetDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	require.True(t, deleted)

	s, err = tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-B", Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, 2, s.Number)
	require.False(t, s.Confirmed)

	confirmed, err := tr.ConfirmDraft(ctx, "MXP5", testDay)
	require.NoError(t, err)
	require.Equal(t, 2, confirmed.Number)
	s, err = tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-C", Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, 3, s.Number)
}

func TestConfirmPackageAndHandled(t *testing.T) {
	repo := newMemoryRepo()
	tr := NewTracker(repo, newFakeOrders(), nil, nil, nil)
	ctx := context.Background()
	s, err := tr.SaveDraft(ctx, draft(Item{ModelNumber: "SKU-A", Quantity: 1, PackageID: "C1"}))
	require.NoError(t, err)

	got, err := tr.ConfirmPackage(ctx, s.ID, "C1", true)
	require.NoError(t, err)
	require.True(t, got.Packages["C1"])
	_, err = tr.ConfirmPackage(ctx, s.ID, "C2", true)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, tr.MarkHandled(ctx, s.ID, true))
	require.True(t, repo.rows[s.ID].Handled)
	require.ErrorIs(t, tr.MarkHandled(ctx, 99, true), shared.ErrNotFound)
}

func TestSaveDraftValidation(t *testing.T) {
	tr := NewTracker(newMemoryRepo(), newFakeOrders(), nil, nil, nil)
	_, err := tr.SaveDraft(context.Background(), draft(Item{ModelNumber: "", Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = tr.SaveDraft(context.Background(), draft(Item{ModelNumber: "SKU-A", Quantity: -2}))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = tr.SaveDraft(context.Background(), DraftRequest{Date: testDay})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerConfirmWithoutDraftIs404(t *testing.T) {
	tr := NewTracker(newMemoryRepo(), newFakeOrders(), nil, nil, nil)
	r := chi.NewRouter()
	NewHandler(nil, tr).MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/confirm", strings.NewReader(`{"centro":"MXP5","date":"2025-08-11"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok":false`)

	req = httptest.NewRequest(http.MethodPut, "/draft", strings.NewReader(`{"centro":"MXP5","date":"2025-08-11","items":[{"model_number":"SKU-A","quantity":2,"collo":"C1"}]}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"numero_parziale":1`)
}

func intPtr(v int) *int { return &v }
