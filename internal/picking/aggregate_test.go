package picking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
)

func line(po, sku, ean, center string, qty int, day time.Time) orders.VendorOrderLine {
	return orders.VendorOrderLine{PONumber: po, ModelNumber: sku, ExternalID: ean, FulfillmentCenter: center, QtyOrdered: qty, ExpectedDate: day}
}

func TestAggregateSumsAcrossCenters(t *testing.T) {
	day := time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC)
	rows := Aggregate([]orders.VendorOrderLine{
		line("PO1", "sku-1", "111", "MXP5", 3, day),
		line("PO2", "sku-1", "111", "FCO1", 4, day.Add(9*time.Hour)),
		line("PO3", "sku-1", "111", "MXP5", 2, day),
		line("PO3", "SKU-2", "222", "MXP5", 1, day),
	})
	require.Len(t, rows, 2)

	require.Equal(t, "SKU-2", rows[0].SKU)
	first := rows[1]
	require.Equal(t, "sku-1", first.SKU)
	require.Equal(t, "SKU", first.Root)
	require.Equal(t, 9, first.Qty)
	require.Equal(t, map[string]int{"MXP5": 5, "FCO1": 4}, first.Centers)
	require.Equal(t, StatePending, first.State)
	require.Equal(t, day, first.DeliveryDate)
}

func TestAggregateKeepsDatesApart(t *testing.T) {
	d1 := time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	rows := Aggregate([]orders.VendorOrderLine{
		line("PO1", "SKU-1", "111", "MXP5", 3, d2),
		line("PO2", "SKU-1", "111", "MXP5", 4, d1),
	})
	require.Len(t, rows, 2)
	require.Equal(t, d1, rows[0].DeliveryDate)
	require.Equal(t, 4, rows[0].Qty)
	require.Equal(t, 3, rows[1].Qty)
}
