package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Direction of a ledger movement.
type Direction string

const (
	// DirectionDebit removes stock from a channel.
	DirectionDebit Direction = "debit"
	// DirectionCredit returns stock to a channel.
	DirectionCredit Direction = "credit"
)

var (
	// ErrNegativeStock is returned when a debit exceeds the channel balance.
	ErrNegativeStock = fmt.Errorf("%w: insufficient stock on channel", shared.ErrBusinessRule)
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = fmt.Errorf("%w: inventory balance", shared.ErrNotFound)
)

// Movement is one debit or credit request against a sales channel.
type Movement struct {
	SKU         string `json:"sku" validate:"required"`
	EAN         string `json:"ean" validate:"required"`
	Channel     string `json:"channel" validate:"required,max=64"`
	Qty         int    `json:"qty" validate:"gt=0"`
	Reason      string `json:"reason" validate:"required,max=255"`
	SourceRowID int64  `json:"source_row_id" validate:"gte=0"`
	// OperationID scopes idempotency: retries of one operation share it.
	OperationID string `json:"operation_id"`
}

func (m Movement) normalized() Movement {
	m.SKU = strings.TrimSpace(m.SKU)
	m.EAN = strings.TrimSpace(m.EAN)
	m.Channel = strings.ToLower(strings.TrimSpace(m.Channel))
	m.Reason = strings.TrimSpace(m.Reason)
	return m
}

// IdempotencyKey identifies a movement for de-duplication.
func (m Movement) IdempotencyKey(dir Direction) string {
	return fmt.Sprintf("%s:%d:%s:%s", dir, m.SourceRowID, m.Channel, m.OperationID)
}

// Balance is the stock of one (sku, ean, channel).
type Balance struct {
	SKU       string    `json:"sku"`
	EAN       string    `json:"ean"`
	Channel   string    `json:"channel"`
	Qty       int       `json:"qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is a journal row in inventory_movements.
type Entry struct {
	ID           int64     `json:"id"`
	Direction    Direction `json:"direction"`
	SKU          string    `json:"sku"`
	EAN          string    `json:"ean"`
	Channel      string    `json:"channel"`
	Qty          int       `json:"qty"`
	BalanceAfter int       `json:"balance_after"`
	Reason       string    `json:"reason"`
	SourceRowID  int64     `json:"source_row_id"`
	OperationID  string    `json:"operation_id"`
	Actor        string    `json:"actor"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result reports the outcome of a debit or credit.
type Result struct {
	Applied bool `json:"applied"`
	Balance int  `json:"balance"`
}
