package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Status of a summary order. Transitions only move forward.
type Status string

const (
	StatusNew       Status = "nuovo"
	StatusPartial   Status = "parziale"
	StatusCompleted Status = "completato"
)

func (s Status) rank() int {
	switch s {
	case StatusPartial:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// Advance returns next unless it would move the order backwards.
func (s Status) Advance(next Status) Status {
	if next.rank() < s.rank() {
		return s
	}
	return next
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPartial, StatusCompleted:
		return true
	}
	return false
}

var (
	// ErrSummaryNotFound indicates a missing (center, date) summary order.
	ErrSummaryNotFound = fmt.Errorf("%w: summary order", shared.ErrNotFound)
	// ErrMissingColumns is returned when the header lacks required columns.
	ErrMissingColumns = shared.NewValidationError("file", "missing required columns")
)

// VendorOrderLine is one ordered SKU of a purchase order at one fulfillment center.
type VendorOrderLine struct {
	ID                int64           `json:"id"`
	PONumber          string          `json:"po_number"`
	ExternalID        string          `json:"external_id"`
	ModelNumber       string          `json:"model_number"`
	ASIN              string          `json:"asin"`
	Title             string          `json:"title"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	QtyOrdered        int             `json:"qty_ordered"`
	QtyConfirmed      *int            `json:"qty_confirmed"`
	WindowStart       *time.Time      `json:"window_start,omitempty"`
	WindowEnd         *time.Time      `json:"window_end,omitempty"`
	ExpectedDate      time.Time       `json:"expected_date"`
	Availability      string          `json:"availability"`
	VendorCode        string          `json:"vendor_code"`
	FulfillmentCenter string          `json:"fulfillment_center"`
}

// SKU is the model number.
func (l VendorOrderLine) SKU() string { return l.ModelNumber }

// EAN is the vendor product id.
func (l VendorOrderLine) EAN() string { return l.ExternalID }

// LineTotal is unit cost times ordered quantity.
func (l VendorOrderLine) LineTotal() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.QtyOrdered)))
}

// SummaryOrder aggregates the purchase orders of one fulfillment center and delivery date.
type SummaryOrder struct {
	ID           int64     `json:"id"`
	Center       string    `json:"fulfillment_center"`
	DeliveryDate time.Time `json:"delivery_date"`
	POList       []string  `json:"po_list"`
	ArticleCount int       `json:"article_count"`
	Status       Status    `json:"status"`
}

// ImportResult extends the import report with the delivery dates touched by the file.
type ImportResult struct {
	shared.ImportReport
	Summaries int      `json:"summaries"`
	Dates     []string `json:"dates"`
}
