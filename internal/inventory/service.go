package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBalances(ctx context.Context, sku, ean string) ([]Balance, error)
	ListEntries(ctx context.Context, sourceRowID int64) ([]Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims and releases movement keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the multi-channel inventory ledger.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	allowNeg    bool
	logger      *slog.Logger
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock, logger: logger}
}

// Debit removes qty from the channel balance. A repeated (source row, channel, operation)
// is a successful no-op.
func (s *Service) Debit(ctx context.Context, m Movement) (Result, error) {
	return s.post(ctx, DirectionDebit, m)
}

// Credit returns qty to the channel balance.
func (s *Service) Credit(ctx context.Context, m Movement) (Result, error) {
	return s.post(ctx, DirectionCredit, m)
}

// Balances lists channel balances of (sku, ean).
func (s *Service) Balances(ctx context.Context, sku, ean string) ([]Balance, error) {
	if sku == "" || ean == "" {
		return nil, shared.NewValidationError("sku", "sku and ean required")
	}
	return s.repo.ListBalances(ctx, sku, ean)
}

// Entries lists the journal of one source row.
func (s *Service) Entries(ctx context.Context, sourceRowID int64) ([]Entry, error) {
	return s.repo.ListEntries(ctx, sourceRowID)
}

func (s *Service) post(ctx context.Context, dir Direction, m Movement) (Result, error) {
	m = m.normalized()
	if err := shared.ValidateStruct(m); err != nil {
		return Result{}, err
	}
	if m.OperationID == "" {
		m.OperationID = uuid.NewString()
	}
	key := m.IdempotencyKey(dir)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.logger.Info("ledger movement already applied", slog.String("key", key))
				return Result{Applied: false}, nil
			}
			return Result{}, fmt.Errorf("inventory: claim %s: %w", key, err)
		}
		insertedKey = true
	}

	actor := shared.ActorFromContext(ctx)
	var balanceAfter int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.GetBalanceForUpdate(ctx, m.SKU, m.EAN, m.Channel)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{SKU: m.SKU, EAN: m.EAN, Channel: m.Channel}
		}
		delta := m.Qty
		if dir == DirectionDebit {
			delta = -m.Qty
		}
		newQty := balance.Qty + delta
		if !s.allowNeg && newQty < 0 {
			return fmt.Errorf("%w: %s/%s on %s has %d, requested %d", ErrNegativeStock, m.SKU, m.EAN, m.Channel, balance.Qty, m.Qty)
		}
		balance.Qty = newQty
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		_, err = tx.InsertEntry(ctx, Entry{
			Direction:    dir,
			SKU:          m.SKU,
			EAN:          m.EAN,
			Channel:      m.Channel,
			Qty:          m.Qty,
			BalanceAfter: newQty,
			Reason:       m.Reason,
			SourceRowID:  m.SourceRowID,
			OperationID:  m.OperationID,
			Actor:        actor,
		})
		balanceAfter = newQty
		return err
	})
	if err != nil {
		if insertedKey {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return Result{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   fmt.Sprintf("inventory:%s", dir),
			Entity:   "inventory_balance",
			EntityID: fmt.Sprintf("%s:%s:%s", m.SKU, m.EAN, m.Channel),
			Meta: map[string]any{
				"qty":           m.Qty,
				"reason":        m.Reason,
				"source_row_id": m.SourceRowID,
				"balance":       balanceAfter,
			},
		})
	}
	return Result{Applied: true, Balance: balanceAfter}, nil
}
