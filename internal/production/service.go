package production

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/picking"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (ProductionRow, error)
	List(ctx context.Context, filter Filter) ([]ProductionRow, error)
	Movements(ctx context.Context, productionID int64) ([]MovementLogEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (ProductionRow, error)
	ToPrintIDs(ctx context.Context, key Key) ([]int64, error)
	Update(ctx context.Context, row ProductionRow) error
	InsertMovements(ctx context.Context, entries []MovementLogEntry) (int, error)
	DeleteWithMovements(ctx context.Context, ids []int64) (int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles operator actions on production rows.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns production rows matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]ProductionRow, error) {
	filter.SKU = strings.TrimSpace(filter.SKU)
	filter.EAN = strings.TrimSpace(filter.EAN)
	return s.repo.List(ctx, filter)
}

// Movements returns the movement log of one row, oldest first.
func (s *Service) Movements(ctx context.Context, id int64) ([]MovementLogEntry, error) {
	return s.repo.Movements(ctx, id)
}

// Update applies an operator edit. Setting a quantity marks the row as manually edited; once
// marked, further quantity changes require Confirm.
func (s *Service) Update(ctx context.Context, id int64, edit Edit) (ProductionRow, error) {
	if edit.State == nil && edit.Qty == nil && edit.Note == nil {
		return ProductionRow{}, shared.NewValidationError("edit", "no field to update")
	}
	if err := shared.ValidateStruct(edit); err != nil {
		return ProductionRow{}, err
	}
	if edit.State != nil {
		st := strings.TrimSpace(*edit.State)
		if st == "" {
			return ProductionRow{}, shared.NewValidationError("stato", "required")
		}
		edit.State = &st
	}
	if edit.Note != nil {
		note, err := picking.NormalizeNote(*edit.Note)
		if err != nil {
			return ProductionRow{}, err
		}
		edit.Note = &note
	}

	var result ProductionRow
	var logged bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		row, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next := row
		if edit.State != nil && *edit.State != row.State {
			if *edit.State == StateToPrint {
				ids, err := tx.ToPrintIDs(ctx, row.Key())
				if err != nil {
					return err
				}
				for _, other := range ids {
					if other != row.ID {
						return ErrToPrintExists
					}
				}
			}
			next.State = *edit.State
		}
		if edit.Qty != nil && *edit.Qty != row.ToProduce {
			if row.ManualEdit && !edit.Confirm {
				return ErrConfirmRequired
			}
			next.ToProduce = *edit.Qty
			next.ManualEdit = true
		}
		if edit.Note != nil {
			next.Note = *edit.Note
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		if next.State != row.State || next.ToProduce != row.ToProduce {
			entry := MovementLogEntry{
				ProductionID: row.ID, SKU: row.SKU, EAN: row.EAN,
				StateOld: strRef(row.State), StateNew: strRef(next.State),
				QtyOld: intRef(row.ToProduce), QtyNew: intRef(next.ToProduce),
				PlusOld: intRef(row.Surplus), PlusNew: intRef(next.Surplus),
				Actor: shared.ActorFromContext(ctx), Reason: ReasonManualEdit,
			}
			if _, err := tx.InsertMovements(ctx, []MovementLogEntry{entry}); err != nil {
				return err
			}
			logged = true
		}
		result = next
		return nil
	})
	if err != nil {
		return ProductionRow{}, err
	}
	if logged && s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "production.update",
			Entity:   "produzione",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"stato": result.State, "da_produrre": result.ToProduce},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Int64("id", id), slog.Any("error", err))
		}
	}
	return result, nil
}

// Delete removes rows and their movement logs.
func (s *Service) Delete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, shared.NewValidationError("ids", "required")
	}
	for _, id := range ids {
		if id <= 0 {
			return 0, shared.NewValidationError("ids", "must be positive")
		}
	}
	var deleted int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.DeleteWithMovements(ctx, ids)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrProductionRowNotFound
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("production rows deleted", slog.Int("requested", len(ids)), slog.Int("deleted", deleted))
	return deleted, nil
}
