package picking

import (
	"sort"
	"time"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

type groupKey struct {
	sku string
	ean string
	day time.Time
}

// Aggregate groups order lines by (sku, ean, day) into pending pick rows, summing ordered
// quantity overall and per fulfillment center. Output is sorted by sku, ean, date.
func Aggregate(lines []orders.VendorOrderLine) []PickRow {
	index := make(map[groupKey]int)
	var rows []PickRow
	for _, l := range lines {
		k := groupKey{sku: l.SKU(), ean: l.EAN(), day: shared.Day(l.ExpectedDate)}
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, PickRow{
				SKU:          k.sku,
				EAN:          k.ean,
				Root:         Root(k.sku),
				DeliveryDate: k.day,
				Centers:      map[string]int{},
				State:        StatePending,
			})
		}
		rows[i].Qty += l.QtyOrdered
		rows[i].Centers[l.FulfillmentCenter] += l.QtyOrdered
	}
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].SKU != rows[b].SKU {
			return rows[a].SKU < rows[b].SKU
		}
		if rows[a].EAN != rows[b].EAN {
			return rows[a].EAN < rows[b].EAN
		}
		return rows[a].DeliveryDate.Before(rows[b].DeliveryDate)
	})
	return rows
}
