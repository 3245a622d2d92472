package orders

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

var amazonHeader = []string{
	"PO", "Vendor Code", "Fulfillment Center", "ASIN", "External ID", "Model Number", "Title",
	"Availability", "Window Start", "Window End", "Expected Date", "Quantity Ordered",
	"Quantity Confirmed", "Cost",
}

func buildXLSX(t *testing.T, rows ...[]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, addr, &cells))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseReadsLines(t *testing.T) {
	buf := buildXLSX(t,
		amazonHeader,
		[]string{"PO1", "VND", "mxp5", "B0001", "111", "SKU-1-RED", "Shirt", "AC", "2025-08-04", "2025-08-11", "2025-08-11", "5", "", "12,50"},
		[]string{"PO2", "VND", "FCO1", "B0002", "222", "SKU-2", "Pants", "AC", "04/08/2025", "11/08/2025", "11/08/2025", "3", "2", "7.00"},
	)
	res, err := Importer{}.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Empty(t, res.Errors)
	require.Len(t, res.Lines, 2)

	first := res.Lines[0]
	require.Equal(t, "PO1", first.PONumber)
	require.Equal(t, "MXP5", first.FulfillmentCenter)
	require.Equal(t, "SKU-1-RED", first.SKU())
	require.Equal(t, "111", first.EAN())
	require.Equal(t, 5, first.QtyOrdered)
	require.Nil(t, first.QtyConfirmed)
	require.Equal(t, "12.5", first.UnitCost.String())
	require.Equal(t, time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC), first.ExpectedDate)

	second := res.Lines[1]
	require.NotNil(t, second.QtyConfirmed)
	require.Equal(t, 2, *second.QtyConfirmed)
	require.Equal(t, time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC), *second.WindowStart)
}

func TestParseAcceptsItalianHeaders(t *testing.T) {
	header := []string{
		"Ordine", "Codice fornitore", "Spedire a", "Codice ASIN", "ID esterno", "Numero di modello", "Titolo",
		"Disponibilità", "Inizio finestra", "Fine finestra", "Data prevista", "Quantità richiesta",
		"Quantità accettata", "Costo unitario",
	}
	buf := buildXLSX(t, header,
		[]string{"PO9", "VND", "BLQ1", "B9", "999", "SKU-9", "Hat", "AC", "", "", "2025-08-12", "4", "4", "1"},
	)
	res, err := Importer{}.Parse(buf)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	require.Equal(t, "BLQ1", res.Lines[0].FulfillmentCenter)
}

func TestParseMissingColumnIsFatal(t *testing.T) {
	buf := buildXLSX(t, amazonHeader[:len(amazonHeader)-1],
		[]string{"PO1", "VND", "MXP5", "B1", "111", "SKU-1", "Shirt", "AC", "", "", "2025-08-11", "5", ""},
	)
	_, err := Importer{}.Parse(buf)
	require.ErrorIs(t, err, ErrMissingColumns)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "cost")
}

func TestParseCollectsRowErrors(t *testing.T) {
	buf := buildXLSX(t,
		amazonHeader,
		[]string{"PO1", "VND", "MXP5", "B1", "111", "SKU-1", "Shirt", "AC", "", "", "2025-08-11", "five", "", "1"},
		[]string{},
		[]string{"PO1", "VND", "MXP5", "B2", "222", "SKU-2", "Shirt", "AC", "", "", "not a date", "1", "", "1"},
		[]string{"PO1", "VND", "MXP5", "B3", "333", "SKU-3", "Shirt", "AC", "", "", "2025-08-11", "1", "", "1"},
	)
	res, err := Importer{}.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	require.Len(t, res.Lines, 1)
	require.Len(t, res.Errors, 2)
	require.Contains(t, res.Errors[0], "row 2")
	require.Contains(t, res.Errors[1], "expected_date")
}

func TestFoldHeader(t *testing.T) {
	require.Equal(t, "quantitarichiesta", foldHeader(" Quantità  richiesta "))
	require.Equal(t, "externalid", foldHeader("External-ID"))
}
