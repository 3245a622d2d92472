package shipments

import (
	"fmt"
	"sort"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

var (
	// ErrDraftNotFound indicates the summary order has no unconfirmed partial.
	ErrDraftNotFound = fmt.Errorf("%w: no draft partial shipment", shared.ErrNotFound)
	// ErrShipmentNotFound indicates a missing partial shipment.
	ErrShipmentNotFound = fmt.Errorf("%w: partial shipment", shared.ErrNotFound)
	// ErrOrderClosed rejects changes to a completed summary order.
	ErrOrderClosed = fmt.Errorf("%w: summary order already completed", shared.ErrBusinessRule)
)

// Item is one packed model inside a partial shipment.
type Item struct {
	ModelNumber string `json:"model_number" validate:"required,max=64"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	PackageID   string `json:"collo" validate:"max=64"`
}

// PartialShipment is one numbered batch of packed items of a summary order.
type PartialShipment struct {
	ID             int64           `json:"id"`
	SummaryOrderID int64           `json:"riepilogo_id"`
	Number         int             `json:"numero_parziale"`
	Items          []Item          `json:"items"`
	Confirmed      bool            `json:"confirmed"`
	Packages       map[string]bool `json:"colli_confermati"`
	Handled        bool            `json:"gestito"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasPackage reports whether any item is packed in pkg.
func (p PartialShipment) HasPackage(pkg string) bool {
	for _, it := range p.Items {
		if it.PackageID == pkg {
			return true
		}
	}
	return false
}

// DraftRequest saves the working partial of a summary order.
type DraftRequest struct {
	Center   string          `json:"centro" validate:"required"`
	Date     time.Time       `json:"-"`
	Items    []Item          `json:"items" validate:"dive"`
	Packages map[string]bool `json:"colli_confermati"`
}

// CloseRequest closes a summary order. POList, when set, narrows the lines whose confirmed
// quantity is overwritten and must be part of the order.
type CloseRequest struct {
	Center string    `json:"centro" validate:"required"`
	Date   time.Time `json:"-"`
	POList []string  `json:"po_list"`
}

// CloseReport is the outcome of CloseOrder.
type CloseReport struct {
	SummaryOrderID int64          `json:"riepilogo_id"`
	Partials       int            `json:"partials"`
	Totals         map[string]int `json:"totals"`
	LinesUpdated   int            `json:"lines_updated"`
}

// Totals sums item quantity per model across shipments.
func Totals(shipments []PartialShipment) map[string]int {
	out := map[string]int{}
	for _, s := range shipments {
		for _, it := range s.Items {
			out[it.ModelNumber] += it.Quantity
		}
	}
	return out
}

// NextNumber is one past the highest number used by shipments, starting at 1.
func NextNumber(shipments []PartialShipment) int {
	max := 0
	for _, s := range shipments {
		if s.Number > max {
			max = s.Number
		}
	}
	return max + 1
}

// draftOf returns the unconfirmed shipment, if any.
func draftOf(shipments []PartialShipment) (PartialShipment, bool) {
	for _, s := range shipments {
		if !s.Confirmed {
			return s, true
		}
	}
	return PartialShipment{}, false
}

func sortByNumber(shipments []PartialShipment) {
	sort.Slice(shipments, func(a, b int) bool { return shipments[a].Number < shipments[b].Number })
}
