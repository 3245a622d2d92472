package picking

import (
	"context"
	"fmt"
	"sort"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/inventory"
)

// ChannelDelta is the change of stock usage on one channel.
type ChannelDelta struct {
	Channel string
	Delta   int
}

// ChannelDeltas compares two breakdowns; channels missing from next count as zero.
// Zero deltas are dropped and the result is ordered by channel.
func ChannelDeltas(prev, next map[string]int) []ChannelDelta {
	channels := make(map[string]struct{}, len(prev)+len(next))
	for ch := range prev {
		channels[ch] = struct{}{}
	}
	for ch := range next {
		channels[ch] = struct{}{}
	}
	var out []ChannelDelta
	for ch := range channels {
		if d := next[ch] - prev[ch]; d != 0 {
			out = append(out, ChannelDelta{Channel: ch, Delta: d})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Channel < out[b].Channel })
	return out
}

// LedgerCall is one debit or credit request.
type LedgerCall struct {
	SKU         string
	EAN         string
	Channel     string
	Qty         int
	Reason      string
	SourceRowID int64
	OperationID string
}

// LedgerPort is the external multi-channel inventory ledger.
type LedgerPort interface {
	Debit(ctx context.Context, call LedgerCall) error
	Credit(ctx context.Context, call LedgerCall) error
}

// InventoryAdapter adapts inventory.Service to LedgerPort.
type InventoryAdapter struct {
	service *inventory.Service
}

// NewInventoryAdapter creates a new inventory adapter.
func NewInventoryAdapter(service *inventory.Service) *InventoryAdapter {
	return &InventoryAdapter{service: service}
}

// Debit removes stock from the channel.
func (a *InventoryAdapter) Debit(ctx context.Context, call LedgerCall) error {
	if a.service == nil {
		return fmt.Errorf("inventory service not initialized")
	}
	if _, err := a.service.Debit(ctx, toMovement(call)); err != nil {
		return fmt.Errorf("ledger debit %s: %w", call.Channel, err)
	}
	return nil
}

// Credit returns stock to the channel.
func (a *InventoryAdapter) Credit(ctx context.Context, call LedgerCall) error {
	if a.service == nil {
		return fmt.Errorf("inventory service not initialized")
	}
	if _, err := a.service.Credit(ctx, toMovement(call)); err != nil {
		return fmt.Errorf("ledger credit %s: %w", call.Channel, err)
	}
	return nil
}

func toMovement(call LedgerCall) inventory.Movement {
	return inventory.Movement{
		SKU:         call.SKU,
		EAN:         call.EAN,
		Channel:     call.Channel,
		Qty:         call.Qty,
		Reason:      call.Reason,
		SourceRowID: call.SourceRowID,
		OperationID: call.OperationID,
	}
}
