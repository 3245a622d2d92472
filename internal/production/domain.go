package production

import (
	"fmt"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/picking"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// StateToPrint is the only state managed by automatic reconciliation.
const StateToPrint = "Da Stampare"

// Movement log reasons written by the engine.
const (
	ReasonDateChange = "auto-delete on date change"
	ReasonCreated    = "sync: created"
	ReasonUpdated    = "sync: quantity changed"
	ReasonRemoved    = "sync: nothing to produce"
	ReasonManualEdit = "manual edit"
)

var (
	// ErrProductionRowNotFound indicates a missing production row.
	ErrProductionRowNotFound = fmt.Errorf("%w: production row", shared.ErrNotFound)
	// ErrConfirmRequired rejects a quantity overwrite on a manually edited row.
	ErrConfirmRequired = fmt.Errorf("%w: row was edited manually, confirm to overwrite quantity", shared.ErrBusinessRule)
	// ErrToPrintExists rejects a second to-print row for the same sku and ean.
	ErrToPrintExists = fmt.Errorf("%w: another row for this sku/ean is already to print", shared.ErrBusinessRule)
)

// ProductionRow is one manufacturing task.
type ProductionRow struct {
	ID           int64     `json:"id"`
	PickRowID    *int64    `json:"prelievo_id,omitempty"`
	SKU          string    `json:"sku"`
	EAN          string    `json:"ean"`
	Root         string    `json:"radice"`
	DeliveryDate time.Time `json:"delivery_date"`
	Counted      *int      `json:"riscontro"`
	QtyOrdered   int       `json:"qty_ordered"`
	Surplus      int       `json:"plus"`
	State        string    `json:"stato"`
	ToProduce    int       `json:"da_produrre"`
	ManualEdit   bool      `json:"modifica_manuale"`
	Note         string    `json:"note"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToPrint reports whether the row is owned by the engine.
func (r ProductionRow) ToPrint() bool { return r.State == StateToPrint }

// Key identifies the product a row belongs to.
func (r ProductionRow) Key() Key { return Key{SKU: r.SKU, EAN: r.EAN} }

// Key is a (sku, ean) pair.
type Key struct {
	SKU string
	EAN string
}

// MovementLogEntry is an append-only record of one production row change.
type MovementLogEntry struct {
	ID           int64     `json:"id"`
	ProductionID int64     `json:"produzione_id"`
	SKU          string    `json:"sku"`
	EAN          string    `json:"ean"`
	StateOld     *string   `json:"stato_old"`
	StateNew     *string   `json:"stato_new"`
	QtyOld       *int      `json:"qty_old"`
	QtyNew       *int      `json:"qty_new"`
	PlusOld      *int      `json:"plus_old"`
	PlusNew      *int      `json:"plus_new"`
	Actor        string    `json:"actor"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Required is the shortfall implied by a pick row state.
func Required(qtyOrdered int, counted *int, state picking.State) int {
	switch state {
	case picking.StateMissing:
		return qtyOrdered
	case picking.StatePartial:
		if counted == nil {
			return qtyOrdered
		}
		return qtyOrdered - *counted
	case picking.StateComplete:
		return 0
	default:
		return qtyOrdered
	}
}

// ToPrintQty is the quantity the to-print row should carry. Surplus is always added on
// top; work already in progress only offsets the shortfall.
func ToPrintQty(required, alreadyFabricated, surplus int) int {
	if alreadyFabricated >= required {
		if surplus > 0 {
			return surplus
		}
		return 0
	}
	return required - alreadyFabricated + surplus
}

// Edit is an operator change to one row. Nil fields are left untouched.
type Edit struct {
	State   *string `json:"stato" validate:"omitempty,min=1,max=64"`
	Qty     *int    `json:"da_produrre" validate:"omitempty,gte=0"`
	Note    *string `json:"note"`
	Confirm bool    `json:"confirm"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	SKU   string
	EAN   string
	State string
}

func intRef(v int) *int { return &v }

func strRef(v string) *string { return &v }
