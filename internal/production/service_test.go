package production

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

type memoryRepo struct {
	*memoryStore
	audits []shared.AuditLog
}

func (r *memoryRepo) Get(_ context.Context, id int64) (ProductionRow, error) {
	row, ok := r.rows[id]
	if !ok {
		return ProductionRow{}, ErrProductionRowNotFound
	}
	return row, nil
}

func (r *memoryRepo) List(_ context.Context, f Filter) ([]ProductionRow, error) {
	var out []ProductionRow
	for id := int64(1); id <= r.nextID; id++ {
		row, ok := r.rows[id]
		if !ok {
			continue
		}
		if (f.SKU == "" || row.SKU == f.SKU) && (f.EAN == "" || row.EAN == f.EAN) && (f.State == "" || row.State == f.State) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryRepo) Movements(_ context.Context, id int64) ([]MovementLogEntry, error) {
	var out []MovementLogEntry
	for _, m := range r.movements {
		if m.ProductionID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

// WithTx stages writes on a copy and commits them only when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{rows: map[int64]ProductionRow{}, movements: append([]MovementLogEntry(nil), r.movements...)}
	for id, row := range r.rows {
		tx.rows[id] = row
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.rows = tx.rows
	r.movements = tx.movements
	return nil
}

type memoryTx struct {
	rows      map[int64]ProductionRow
	movements []MovementLogEntry
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (ProductionRow, error) {
	row, ok := t.rows[id]
	if !ok {
		return ProductionRow{}, ErrProductionRowNotFound
	}
	return row, nil
}

func (t *memoryTx) ToPrintIDs(_ context.Context, key Key) ([]int64, error) {
	var ids []int64
	for id, row := range t.rows {
		if row.Key() == key && row.ToPrint() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *memoryTx) Update(_ context.Context, row ProductionRow) error {
	t.rows[row.ID] = row
	return nil
}

func (t *memoryTx) InsertMovements(_ context.Context, entries []MovementLogEntry) (int, error) {
	t.movements = append(t.movements, entries...)
	return len(entries), nil
}

func (t *memoryTx) DeleteWithMovements(_ context.Context, ids []int64) (int, error) {
	drop := map[int64]bool{}
	n := 0
	for _, id := range ids {
		drop[id] = true
		if _, ok := t.rows[id]; ok {
			delete(t.rows, id)
			n++
		}
	}
	kept := t.movements[:0]
	for _, m := range t.movements {
		if !drop[m.ProductionID] {
			kept = append(kept, m)
		}
	}
	t.movements = kept
	return n, nil
}

func (r *memoryRepo) Record(_ context.Context, log shared.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

func newTestService(rows ...ProductionRow) (*Service, *memoryRepo) {
	repo := &memoryRepo{memoryStore: newMemoryStore(rows...)}
	return NewService(repo, repo, nil), repo
}

func TestUpdateSetsManualFlagAndLogs(t *testing.T) {
	svc, repo := newTestService(ProductionRow{SKU: "SKU-1", EAN: "111", DeliveryDate: day1, State: StateToPrint, ToProduce: 6})
	ctx := shared.ContextWithActor(context.Background(), "laura")

	row, err := svc.Update(ctx, 1, Edit{Qty: intRef(8)})
	require.NoError(t, err)
	require.True(t, row.ManualEdit)
	require.Equal(t, 8, repo.rows[1].ToProduce)

	entries, err := svc.Movements(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ReasonManualEdit, entries[0].Reason)
	require.Equal(t, "laura", entries[0].Actor)
	require.Equal(t, 6, *entries[0].QtyOld)
	require.Len(t, repo.audits, 1)
}

func TestUpdateManualRowNeedsConfirm(t *testing.T) {
	svc, repo := newTestService(ProductionRow{SKU: "SKU-1", EAN: "111", DeliveryDate: day1, State: StateToPrint, ToProduce: 6, ManualEdit: true})

	_, err := svc.Update(context.Background(), 1, Edit{Qty: intRef(3)})
	require.ErrorIs(t, err, ErrConfirmRequired)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	require.Equal(t, 6, repo.rows[1].ToProduce)

	_, err = svc.Update(context.Background(), 1, Edit{Qty: intRef(3), Confirm: true})
	require.NoError(t, err)
	require.Equal(t, 3, repo.rows[1].ToProduce)

	_, err = svc.Update(context.Background(), 1, Edit{Note: strRef("urgente")})
	require.NoError(t, err, "notes never need confirmation")
}

func TestUpdateRejectsSecondToPrint(t *testing.T) {
	svc, repo := newTestService(
		ProductionRow{SKU: "SKU-1", EAN: "111", DeliveryDate: day1, State: StateToPrint, ToProduce: 6},
		ProductionRow{SKU: "SKU-1", EAN: "111", DeliveryDate: day1, State: "Stampato", ToProduce: 2},
	)
	_, err := svc.Update(context.Background(), 2, Edit{State: strRef(StateToPrint)})
	require.ErrorIs(t, err, ErrToPrintExists)
	require.Equal(t, "Stampato", repo.rows[2].State)

	_, err = svc.Update(context.Background(), 1, Edit{State: strRef("Stampato")})
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), 2, Edit{State: strRef(StateToPrint)})
	require.NoError(t, err)
}

func TestUpdateValidation(t *testing.T) {
	svc, _ := newTestService(ProductionRow{SKU: "SKU-1", EAN: "111", State: StateToPrint})

	_, err := svc.Update(context.Background(), 1, Edit{})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Update(context.Background(), 1, Edit{Qty: intRef(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Update(context.Background(), 1, Edit{Note: strRef(strings.Repeat("x", 256))})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Update(context.Background(), 9, Edit{Qty: intRef(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteCascadesMovements(t *testing.T) {
	svc, repo := newTestService(
		ProductionRow{SKU: "SKU-1", EAN: "111", State: StateToPrint, ToProduce: 6},
		ProductionRow{SKU: "SKU-2", EAN: "222", State: StateToPrint, ToProduce: 1},
	)
	repo.movements = []MovementLogEntry{{ProductionID: 1, Reason: ReasonCreated}, {ProductionID: 2, Reason: ReasonCreated}}

	n, err := svc.Delete(context.Background(), []int64{1, 7})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, repo.movements, 1)
	require.Equal(t, int64(2), repo.movements[0].ProductionID)

	_, err = svc.Delete(context.Background(), []int64{7})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Delete(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestList(t *testing.T) {
	svc, _ := newTestService(
		ProductionRow{SKU: "SKU-1", EAN: "111", State: StateToPrint},
		ProductionRow{SKU: "SKU-1", EAN: "111", State: "Stampato"},
		ProductionRow{SKU: "SKU-2", EAN: "222", State: StateToPrint},
	)
	rows, err := svc.List(context.Background(), Filter{SKU: " SKU-1 "})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	rows, err = svc.List(context.Background(), Filter{State: StateToPrint})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
