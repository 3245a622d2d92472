package orders

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

type column string

const (
	colPO            column = "po"
	colExternalID    column = "external_id"
	colModelNumber   column = "model_number"
	colASIN          column = "asin"
	colTitle         column = "title"
	colCost          column = "cost"
	colQtyOrdered    column = "qty_ordered"
	colQtyConfirmed  column = "qty_confirmed"
	colWindowStart   column = "window_start"
	colWindowEnd     column = "window_end"
	colExpectedDate  column = "expected_date"
	colAvailability  column = "availability"
	colVendorCode    column = "vendor_code"
	colFulfillCenter column = "fulfillment_center"
)

// RequiredColumns lists every column a vendor order file must carry.
var RequiredColumns = []column{
	colPO, colExternalID, colModelNumber, colASIN, colTitle, colCost, colQtyOrdered,
	colQtyConfirmed, colWindowStart, colWindowEnd, colExpectedDate, colAvailability,
	colVendorCode, colFulfillCenter,
}

// header aliases, already folded by foldHeader
var columnAliases = map[column][]string{
	colPO:            {"po", "ponumber", "purchaseorder", "ordine", "ordinediacquisto", "numeroordine"},
	colExternalID:    {"externalid", "idesterno", "vendorproductid", "ean"},
	colModelNumber:   {"modelnumber", "numerodimodello", "modello", "sku"},
	colASIN:          {"asin", "codiceasin"},
	colTitle:         {"title", "titolo", "descrizione"},
	colCost:          {"cost", "unitcost", "costo", "costounitario"},
	colQtyOrdered:    {"quantityordered", "quantityrequested", "quantitaordinata", "quantitarichiesta", "qtaordinata"},
	colQtyConfirmed:  {"quantityconfirmed", "acceptedquantity", "quantitaconfermata", "quantitaaccettata", "qtaconfermata"},
	colWindowStart:   {"windowstart", "iniziofinestra", "inizioperiodo"},
	colWindowEnd:     {"windowend", "finefinestra", "fineperiodo"},
	colExpectedDate:  {"expecteddate", "expecteddeliverydate", "dataprevista", "dataconsegna"},
	colAvailability:  {"availability", "availabilitystatus", "disponibilita", "statodisponibilita"},
	colVendorCode:    {"vendorcode", "vendor", "codicefornitore"},
	colFulfillCenter: {"fulfillmentcenter", "shiptolocation", "spedirea", "centrodidistribuzione", "centro"},
}

var aliasIndex = func() map[string]column {
	idx := make(map[string]column)
	for col, aliases := range columnAliases {
		for _, a := range aliases {
			idx[a] = col
		}
	}
	return idx
}()

// headerScanRows bounds how far down the sheet the header row is searched for.
const headerScanRows = 10

func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseResult is the outcome of reading a vendor order file.
type ParseResult struct {
	Lines  []VendorOrderLine
	Total  int
	Errors []string
}

// Importer reads vendor order spreadsheets.
type Importer struct{}

// Parse reads the first sheet. Missing required columns abort the parse; bad rows are
// reported and skipped.
func (Importer) Parse(r io.Reader) (ParseResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ParseResult{}, shared.NewValidationError("file", fmt.Sprintf("not a valid xlsx: %v", err))
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return ParseResult{}, fmt.Errorf("orders: read sheet %q: %w", sheet, err)
	}
	return parseRows(rows)
}

func parseRows(rows [][]string) (ParseResult, error) {
	headerAt, index, missing := locateHeader(rows)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = string(c)
		}
		return ParseResult{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(names, ", "))
	}

	var res ParseResult
	for i := headerAt + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		res.Total++
		line, err := parseLine(row, index)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

func locateHeader(rows [][]string) (int, map[column]int, []column) {
	bestAt, bestIndex := 0, map[column]int{}
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		index := map[column]int{}
		for pos, cell := range rows[i] {
			if col, ok := aliasIndex[foldHeader(cell)]; ok {
				if _, seen := index[col]; !seen {
					index[col] = pos
				}
			}
		}
		if len(index) > len(bestIndex) {
			bestAt, bestIndex = i, index
		}
		if len(index) == len(RequiredColumns) {
			break
		}
	}
	var missing []column
	for _, col := range RequiredColumns {
		if _, ok := bestIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	sort.Slice(missing, func(a, b int) bool { return missing[a] < missing[b] })
	return bestAt, bestIndex, missing
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, index map[column]int, col column) string {
	pos, ok := index[col]
	if !ok || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func parseLine(row []string, index map[column]int) (VendorOrderLine, error) {
	line := VendorOrderLine{
		PONumber:          cell(row, index, colPO),
		ExternalID:        cell(row, index, colExternalID),
		ModelNumber:       cell(row, index, colModelNumber),
		ASIN:              cell(row, index, colASIN),
		Title:             cell(row, index, colTitle),
		Availability:      cell(row, index, colAvailability),
		VendorCode:        cell(row, index, colVendorCode),
		FulfillmentCenter: strings.ToUpper(cell(row, index, colFulfillCenter)),
	}
	switch {
	case line.PONumber == "":
		return line, errors.New("po: required")
	case line.ModelNumber == "":
		return line, errors.New("model_number: required")
	case line.FulfillmentCenter == "":
		return line, errors.New("fulfillment_center: required")
	}

	var err error
	if line.UnitCost, err = parseDecimal(cell(row, index, colCost)); err != nil {
		return line, fmt.Errorf("cost: %w", err)
	}
	qty, err := parseQty(cell(row, index, colQtyOrdered))
	if err != nil {
		return line, fmt.Errorf("qty_ordered: %w", err)
	}
	if qty == nil {
		return line, errors.New("qty_ordered: required")
	}
	line.QtyOrdered = *qty
	if line.QtyConfirmed, err = parseQty(cell(row, index, colQtyConfirmed)); err != nil {
		return line, fmt.Errorf("qty_confirmed: %w", err)
	}

	if line.WindowStart, err = parseDate(cell(row, index, colWindowStart)); err != nil {
		return line, fmt.Errorf("window_start: %w", err)
	}
	if line.WindowEnd, err = parseDate(cell(row, index, colWindowEnd)); err != nil {
		return line, fmt.Errorf("window_end: %w", err)
	}
	expected, err := parseDate(cell(row, index, colExpectedDate))
	if err != nil {
		return line, fmt.Errorf("expected_date: %w", err)
	}
	switch {
	case expected != nil:
		line.ExpectedDate = *expected
	case line.WindowStart != nil:
		line.ExpectedDate = *line.WindowStart
	default:
		return line, errors.New("expected_date: required")
	}
	return line, nil
}

func normalizeNumber(s string) string {
	s = strings.NewReplacer("€", "", "EUR", "", "$", "", " ", "", " ", "").Replace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = normalizeNumber(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	return d, nil
}

func parseQty(s string) (*int, error) {
	s = normalizeNumber(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	if !d.IsInteger() || d.IsNegative() {
		return nil, fmt.Errorf("quantity %q must be a non-negative integer", s)
	}
	v := int(d.IntPart())
	return &v, nil
}

var dateLayouts = []string{
	shared.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := shared.Day(t)
			return &d, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			d := shared.Day(t)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}
