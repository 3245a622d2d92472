package shipments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// RepositoryPort abstracts partial shipment persistence.
type RepositoryPort interface {
	List(ctx context.Context, summaryID int64) ([]PartialShipment, error)
	Get(ctx context.Context, id int64) (PartialShipment, error)
	SetHandled(ctx context.Context, id int64, handled bool) error
	SetPackages(ctx context.Context, id int64, packages map[string]bool) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by the tracker.
type TxRepository interface {
	ListForUpdate(ctx context.Context, summaryID int64) ([]PartialShipment, error)
	Upsert(ctx context.Context, shipment PartialShipment) (PartialShipment, error)
	Confirm(ctx context.Context, id int64) error
	DeleteDraft(ctx context.Context, summaryID int64) (int, error)
}

// OrdersPort is the summary order side of the tracker.
type OrdersPort interface {
	FindSummary(ctx context.Context, center string, day time.Time) (orders.SummaryOrder, error)
	SetSummaryStatus(ctx context.Context, id int64, status orders.Status) error
	SetConfirmedQty(ctx context.Context, poList []string, qty map[string]int) (int, error)
}

// Locker serialises mutations of one summary order.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Tracker drives the partial shipment lifecycle of summary orders.
type Tracker struct {
	repo   RepositoryPort
	orders OrdersPort
	locker Locker
	audit  AuditPort
	logger *slog.Logger
}

// NewTracker builds Tracker. locker and audit may be nil.
func NewTracker(repo RepositoryPort, ordersPort OrdersPort, locker Locker, audit AuditPort, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{repo: repo, orders: ordersPort, locker: locker, audit: audit, logger: logger}
}

func (t *Tracker) summary(ctx context.Context, center string, day time.Time) (orders.SummaryOrder, error) {
	center = strings.ToUpper(strings.TrimSpace(center))
	if center == "" {
		return orders.SummaryOrder{}, shared.NewValidationError("centro", "required")
	}
	if day.IsZero() {
		return orders.SummaryOrder{}, shared.NewValidationError("start_delivery", "required")
	}
	return t.orders.FindSummary(ctx, center, shared.Day(day))
}

func (t *Tracker) locked(ctx context.Context, summaryID int64, fn func(context.Context) error) error {
	if t.locker == nil {
		return fn(ctx)
	}
	return t.locker.WithLock(ctx, "shipments:"+strconv.FormatInt(summaryID, 10), fn)
}

// List returns the partial shipments of a summary order ordered by number.
func (t *Tracker) List(ctx context.Context, center string, day time.Time) ([]PartialShipment, error) {
	so, err := t.summary(ctx, center, day)
	if err != nil {
		return nil, err
	}
	out, err := t.repo.List(ctx, so.ID)
	if err != nil {
		return nil, err
	}
	sortByNumber(out)
	return out, nil
}

// SaveDraft stores the working partial. An existing draft keeps its number; otherwise the
// draft takes the number after the highest confirmed one.
func (t *Tracker) SaveDraft(ctx context.Context, req DraftRequest) (PartialShipment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return PartialShipment{}, err
	}
	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		it.ModelNumber = strings.TrimSpace(it.ModelNumber)
		it.PackageID = strings.TrimSpace(it.PackageID)
		items = append(items, it)
	}
	so, err := t.summary(ctx, req.Center, req.Date)
	if err != nil {
		return PartialShipment{}, err
	}
	if so.Status == orders.StatusCompleted {
		return PartialShipment{}, ErrOrderClosed
	}

	var saved PartialShipment
	err = t.locked(ctx, so.ID, func(ctx context.Context) error {
		return t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			existing, err := tx.ListForUpdate(ctx, so.ID)
			if err != nil {
				return err
			}
			draft, ok := draftOf(existing)
			if !ok {
				var confirmed []PartialShipment
				for _, s := range existing {
					if s.Confirmed {
						confirmed = append(confirmed, s)
					}
				}
				draft = PartialShipment{SummaryOrderID: so.ID, Number: NextNumber(confirmed)}
			}
			draft.Items = items
			draft.Packages = req.Packages
			if draft.Packages == nil {
				draft.Packages = map[string]bool{}
			}
			saved, err = tx.Upsert(ctx, draft)
			return err
		})
	})
	if err != nil {
		return PartialShipment{}, fmt.Errorf("shipments: save draft: %w", err)
	}
	return saved, nil
}

// ConfirmDraft commits the current draft and moves the summary order to partial.
func (t *Tracker) ConfirmDraft(ctx context.Context, center string, day time.Time) (PartialShipment, error) {
	so, err := t.summary(ctx, center, day)
	if err != nil {
		return PartialShipment{}, err
	}
	if so.Status == orders.StatusCompleted {
		return PartialShipment{}, ErrOrderClosed
	}
	var confirmed PartialShipment
	err = t.locked(ctx, so.ID, func(ctx context.Context) error {
		err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			existing, err := tx.ListForUpdate(ctx, so.ID)
			if err != nil {
				return err
			}
			draft, ok := draftOf(existing)
			if !ok {
				return ErrDraftNotFound
			}
			if err := tx.Confirm(ctx, draft.ID); err != nil {
				return err
			}
			draft.Confirmed = true
			confirmed = draft
			return nil
		})
		if err != nil {
			return err
		}
		if next := so.Status.Advance(orders.StatusPartial); next != so.Status {
			return t.orders.SetSummaryStatus(ctx, so.ID, next)
		}
		return nil
	})
	if err != nil {
		return PartialShipment{}, fmt.Errorf("shipments: confirm: %w", err)
	}
	t.record(ctx, "shipments.confirm", so.ID, map[string]any{"numero_parziale": confirmed.Number})
	return confirmed, nil
}

// CloseOrder folds the draft into the confirmed history, overwrites qty_confirmed of every
// line of the order with the per-model totals and completes the order. Models with no
// shipped quantity get 0. Running it again yields the same quantities.
func (t *Tracker) CloseOrder(ctx context.Context, req CloseRequest) (CloseReport, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return CloseReport{}, err
	}
	so, err := t.summary(ctx, req.Center, req.Date)
	if err != nil {
		return CloseReport{}, err
	}
	poList, err := closePOList(so, req.POList)
	if err != nil {
		return CloseReport{}, err
	}

	report := CloseReport{SummaryOrderID: so.ID}
	err = t.locked(ctx, so.ID, func(ctx context.Context) error {
		var all []PartialShipment
		err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			existing, err := tx.ListForUpdate(ctx, so.ID)
			if err != nil {
				return err
			}
			if draft, ok := draftOf(existing); ok {
				if err := tx.Confirm(ctx, draft.ID); err != nil {
					return err
				}
			}
			all = existing
			return nil
		})
		if err != nil {
			return err
		}
		report.Partials = len(all)
		report.Totals = Totals(all)
		n, err := t.orders.SetConfirmedQty(ctx, poList, report.Totals)
		if err != nil {
			return err
		}
		report.LinesUpdated = n
		if so.Status != orders.StatusCompleted {
			return t.orders.SetSummaryStatus(ctx, so.ID, so.Status.Advance(orders.StatusCompleted))
		}
		return nil
	})
	if err != nil {
		return CloseReport{}, fmt.Errorf("shipments: close: %w", err)
	}
	t.logger.Info("summary order closed",
		slog.Int64("riepilogo_id", so.ID), slog.Int("partials", report.Partials), slog.Int("lines", report.LinesUpdated))
	t.record(ctx, "shipments.close", so.ID, map[string]any{"totals": report.Totals, "lines": report.LinesUpdated})
	return report, nil
}

func closePOList(so orders.SummaryOrder, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return so.POList, nil
	}
	known := make(map[string]bool, len(so.POList))
	for _, po := range so.POList {
		known[po] = true
	}
	out := make([]string, 0, len(requested))
	for _, po := range requested {
		po = strings.TrimSpace(po)
		if !known[po] {
			return nil, shared.NewValidationError("po_list", fmt.Sprintf("%s is not part of the order", po))
		}
		out = append(out, po)
	}
	return out, nil
}

// ResetDraft drops the unconfirmed partial. Status and confirmed history are untouched.
// The dropped draft's number is released: the next draft takes 1 + max confirmed again.
func (t *Tracker) ResetDraft(ctx context.Context, center string, day time.Time) (bool, error) {
	so, err := t.summary(ctx, center, day)
	if err != nil {
		return false, err
	}
	var deleted int
	err = t.locked(ctx, so.ID, func(ctx context.Context) error {
		return t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			deleted, err = tx.DeleteDraft(ctx, so.ID)
			return err
		})
	})
	if err != nil {
		return false, fmt.Errorf("shipments: reset: %w", err)
	}
	return deleted > 0, nil
}

// MarkHandled sets the gestito flag.
func (t *Tracker) MarkHandled(ctx context.Context, id int64, handled bool) error {
	return t.repo.SetHandled(ctx, id, handled)
}

// ConfirmPackage flags one package of a shipment as checked or unchecked.
func (t *Tracker) ConfirmPackage(ctx context.Context, id int64, pkg string, confirmed bool) (PartialShipment, error) {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return PartialShipment{}, shared.NewValidationError("collo", "required")
	}
	s, err := t.repo.Get(ctx, id)
	if err != nil {
		return PartialShipment{}, err
	}
	if !s.HasPackage(pkg) {
		return PartialShipment{}, shared.NewValidationError("collo", fmt.Sprintf("%s not in shipment", pkg))
	}
	packages := make(map[string]bool, len(s.Packages)+1)
	for k, v := range s.Packages {
		packages[k] = v
	}
	packages[pkg] = confirmed
	if err := t.repo.SetPackages(ctx, id, packages); err != nil {
		return PartialShipment{}, err
	}
	s.Packages = packages
	return s, nil
}

func (t *Tracker) record(ctx context.Context, action string, summaryID int64, meta map[string]any) {
	if t.audit == nil {
		return
	}
	if err := t.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "riepilogo",
		EntityID: strconv.FormatInt(summaryID, 10),
		Meta:     meta,
	}); err != nil {
		t.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
