package picking

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// State of a pick row, always derived from ordered and counted quantity.
type State string

const (
	StatePending  State = "in verifica"
	StateMissing  State = "manca"
	StatePartial  State = "parziale"
	StateComplete State = "completo"
)

// MaxNoteLength is measured in runes after NFC normalisation.
const MaxNoteLength = 255

// LedgerReason tags every ledger call issued from a pick row update.
const LedgerReason = "prelievo: utilizzo stock per canale"

var (
	// ErrPickRowNotFound indicates a missing pick row.
	ErrPickRowNotFound = fmt.Errorf("%w: pick row", shared.ErrNotFound)
	// ErrEmptyPatch is returned when a patch carries no field.
	ErrEmptyPatch = shared.NewValidationError("patch", "no field to update")
)

// DeriveState maps (ordered, counted) to a state. Invalid counts fall back to pending.
func DeriveState(qtyOrdered int, counted *int) State {
	switch {
	case counted == nil:
		return StatePending
	case *counted < 0 || *counted > qtyOrdered:
		return StatePending
	case *counted == 0:
		return StateMissing
	case *counted < qtyOrdered:
		return StatePartial
	default:
		return StateComplete
	}
}

// Root is the upper-cased sku prefix before the first "-".
func Root(sku string) string {
	root, _, _ := strings.Cut(strings.TrimSpace(sku), "-")
	return strings.ToUpper(root)
}

// NormalizeNote trims and NFC-normalises a note and enforces MaxNoteLength.
func NormalizeNote(note string) (string, error) {
	note = norm.NFC.String(strings.TrimSpace(note))
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return "", shared.NewValidationError("note", fmt.Sprintf("max %d characters", MaxNoteLength))
	}
	return note, nil
}

// PickRow is one aggregated demand line of a delivery date.
type PickRow struct {
	ID           int64          `json:"id"`
	SKU          string         `json:"sku"`
	EAN          string         `json:"ean"`
	Root         string         `json:"radice"`
	DeliveryDate time.Time      `json:"delivery_date"`
	Qty          int            `json:"qty"`
	Centers      map[string]int `json:"centers"`
	Counted      *int           `json:"riscontro"`
	Surplus      int            `json:"plus"`
	Note         string         `json:"note"`
	State        State          `json:"stato"`
	ChannelUsage map[string]int `json:"usage_by_channel,omitempty"`
	UsageTotal   *int           `json:"usage_total,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Patch is a partial single-row update. Nil fields are left untouched.
type Patch struct {
	Counted      *int           `json:"riscontro" validate:"omitempty,gte=0"`
	Surplus      *int           `json:"plus" validate:"omitempty,gte=0"`
	Note         *string        `json:"note"`
	ChannelUsage map[string]int `json:"usage_by_channel" validate:"omitempty,dive,keys,required,max=64,endkeys,gte=0"`
	UsageTotal   *int           `json:"usage_total" validate:"omitempty,gte=0"`
}

func (p Patch) empty() bool {
	return p.Counted == nil && p.Surplus == nil && p.Note == nil && p.ChannelUsage == nil && p.UsageTotal == nil
}

// normalize validates p and folds the channel breakdown into the usage total.
func (p Patch) normalize() (Patch, error) {
	if p.empty() {
		return p, ErrEmptyPatch
	}
	if err := shared.ValidateStruct(p); err != nil {
		return p, err
	}
	if p.Note != nil {
		note, err := NormalizeNote(*p.Note)
		if err != nil {
			return p, err
		}
		p.Note = &note
	}
	if p.ChannelUsage != nil {
		usage := make(map[string]int, len(p.ChannelUsage))
		sum := 0
		for ch, q := range p.ChannelUsage {
			ch = strings.ToLower(strings.TrimSpace(ch))
			if ch == "" {
				return p, shared.NewValidationError("usage_by_channel", "empty channel name")
			}
			usage[ch] += q
			sum += q
		}
		p.ChannelUsage = usage
		p.UsageTotal = &sum
	}
	return p, nil
}

// Apply returns row with p applied and its state re-derived. A bare usage total
// must match the row's channel breakdown when one is stored.
func (p Patch) Apply(row PickRow) (PickRow, error) {
	next := row
	if p.Counted != nil {
		v := *p.Counted
		next.Counted = &v
	}
	if p.Surplus != nil {
		next.Surplus = *p.Surplus
	}
	if p.Note != nil {
		next.Note = *p.Note
	}
	if p.ChannelUsage != nil {
		next.ChannelUsage = p.ChannelUsage
	}
	if p.UsageTotal != nil {
		if p.ChannelUsage == nil && next.ChannelUsage != nil {
			if sum := sumUsage(next.ChannelUsage); sum != *p.UsageTotal {
				return row, shared.NewValidationError("usage_total", fmt.Sprintf("must equal the sum of usage_by_channel (%d)", sum))
			}
		}
		v := *p.UsageTotal
		next.UsageTotal = &v
	}
	if next.Counted != nil && next.UsageTotal != nil && *next.Counted < *next.UsageTotal {
		return row, shared.NewValidationError("riscontro", fmt.Sprintf("must be >= stock usage %d", *next.UsageTotal))
	}
	next.State = DeriveState(next.Qty, next.Counted)
	return next, nil
}

func sumUsage(usage map[string]int) int {
	total := 0
	for _, q := range usage {
		total += q
	}
	return total
}

// BulkPatch applies the same counted/surplus/note values to many rows.
type BulkPatch struct {
	IDs     []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Counted *int    `json:"riscontro" validate:"omitempty,gte=0"`
	Surplus *int    `json:"plus" validate:"omitempty,gte=0"`
	Note    *string `json:"note"`
}

func (b BulkPatch) normalize() (BulkPatch, error) {
	if err := shared.ValidateStruct(b); err != nil {
		return b, err
	}
	if b.Counted == nil && b.Surplus == nil && b.Note == nil {
		return b, ErrEmptyPatch
	}
	if b.Note != nil {
		note, err := NormalizeNote(*b.Note)
		if err != nil {
			return b, err
		}
		b.Note = &note
	}
	return b, nil
}

// BulkSet is one grouped update statement.
type BulkSet struct {
	Counted *int
	State   *State
	Surplus *int
	Note    *string
}

// ListFilter narrows List.
type ListFilter struct {
	Date  time.Time
	State State
}
