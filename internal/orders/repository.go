package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
)

// RepositoryPort abstracts persistence for vendor order lines and summary orders.
type RepositoryPort interface {
	UpsertLines(ctx context.Context, lines []VendorOrderLine) (int, error)
	UpsertSummary(ctx context.Context, center string, day time.Time, poList []string) (SummaryOrder, error)
	LinesForDate(ctx context.Context, day time.Time, status Status) ([]VendorOrderLine, error)
	LinesForPOs(ctx context.Context, poList []string) ([]VendorOrderLine, error)
	SetConfirmedQty(ctx context.Context, poList []string, qty map[string]int) (int, error)
	FindSummary(ctx context.Context, center string, day time.Time) (SummaryOrder, error)
	GetSummary(ctx context.Context, id int64) (SummaryOrder, error)
	SetSummaryStatus(ctx context.Context, id int64, status Status) error
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const lineColumns = `id, po_number, external_id, model_number, asin, title, unit_cost, qty_ordered,
	qty_confirmed, window_start, window_end, expected_date, availability, vendor_code, fulfillment_center`

// UpsertLines inserts or refreshes lines keyed by (po_number, model_number, fulfillment_center).
// qty_confirmed is only overwritten when the file carries a value.
func (r *Repository) UpsertLines(ctx context.Context, lines []VendorOrderLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	n := len(lines)
	po, ext, model := make([]string, n), make([]string, n), make([]string, n)
	asin, title, cost := make([]string, n), make([]string, n), make([]string, n)
	avail, vendor, center := make([]string, n), make([]string, n), make([]string, n)
	ordered, confirmed := make([]int32, n), make([]*int32, n)
	wStart, wEnd, expected := make([]*time.Time, n), make([]*time.Time, n), make([]time.Time, n)
	for i, l := range lines {
		po[i], ext[i], model[i], asin[i], title[i] = l.PONumber, l.ExternalID, l.ModelNumber, l.ASIN, l.Title
		avail[i], vendor[i], center[i] = l.Availability, l.VendorCode, l.FulfillmentCenter
		cost[i] = l.UnitCost.String()
		ordered[i] = int32(l.QtyOrdered)
		if l.QtyConfirmed != nil {
			v := int32(*l.QtyConfirmed)
			confirmed[i] = &v
		}
		wStart[i], wEnd[i], expected[i] = l.WindowStart, l.WindowEnd, l.ExpectedDate
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO vendor_order_lines (po_number, external_id, model_number, asin, title,
		unit_cost, qty_ordered, qty_confirmed, window_start, window_end, expected_date, availability, vendor_code, fulfillment_center)
	SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::numeric[], $7::int[], $8::int[],
		$9::date[], $10::date[], $11::date[], $12::text[], $13::text[], $14::text[])
	ON CONFLICT (po_number, model_number, fulfillment_center) DO UPDATE SET
		external_id = EXCLUDED.external_id,
		asin = EXCLUDED.asin,
		title = EXCLUDED.title,
		unit_cost = EXCLUDED.unit_cost,
		qty_ordered = EXCLUDED.qty_ordered,
		qty_confirmed = COALESCE(EXCLUDED.qty_confirmed, vendor_order_lines.qty_confirmed),
		window_start = EXCLUDED.window_start,
		window_end = EXCLUDED.window_end,
		expected_date = EXCLUDED.expected_date,
		availability = EXCLUDED.availability,
		vendor_code = EXCLUDED.vendor_code`,
		po, ext, model, asin, title, cost, ordered, confirmed, wStart, wEnd, expected, avail, vendor, center)
	if err != nil {
		return 0, fmt.Errorf("orders: upsert lines: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertSummary merges poList into the (center, day) summary and recounts its articles.
func (r *Repository) UpsertSummary(ctx context.Context, center string, day time.Time, poList []string) (SummaryOrder, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO riepiloghi (fulfillment_center, delivery_date, po_list, article_count)
	VALUES ($1, $2, $3, (SELECT COALESCE(SUM(qty_ordered), 0) FROM vendor_order_lines WHERE fulfillment_center = $1 AND expected_date = $2))
	ON CONFLICT (fulfillment_center, delivery_date) DO UPDATE SET
		po_list = ARRAY(SELECT DISTINCT unnest(riepiloghi.po_list || EXCLUDED.po_list) ORDER BY 1),
		article_count = EXCLUDED.article_count,
		updated_at = NOW()
	RETURNING id, fulfillment_center, delivery_date, po_list, article_count, status`, center, day, poList)
	s, err := scanSummary(row)
	if err != nil {
		return SummaryOrder{}, fmt.Errorf("orders: upsert summary: %w", err)
	}
	return s, nil
}

// LinesForDate returns lines expected on day whose summary order has status.
func (r *Repository) LinesForDate(ctx context.Context, day time.Time, status Status) ([]VendorOrderLine, error) {
	rows, err := r.db.Query(ctx, `SELECT l.id, l.po_number, l.external_id, l.model_number, l.asin, l.title, l.unit_cost, l.qty_ordered,
		l.qty_confirmed, l.window_start, l.window_end, l.expected_date, l.availability, l.vendor_code, l.fulfillment_center
	FROM vendor_order_lines l
	JOIN riepiloghi s ON s.fulfillment_center = l.fulfillment_center AND s.delivery_date = l.expected_date
	WHERE l.expected_date = $1 AND s.status = $2
	ORDER BY l.model_number, l.fulfillment_center`, day, string(status))
	if err != nil {
		return nil, fmt.Errorf("orders: lines for date: %w", err)
	}
	return collectLines(rows)
}

// LinesForPOs returns every line of the given purchase orders.
func (r *Repository) LinesForPOs(ctx context.Context, poList []string) ([]VendorOrderLine, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM vendor_order_lines WHERE po_number = ANY($1) ORDER BY po_number, model_number`, poList)
	if err != nil {
		return nil, fmt.Errorf("orders: lines for po: %w", err)
	}
	return collectLines(rows)
}

// SetConfirmedQty overwrites qty_confirmed on every line of poList. Models absent from qty get 0.
func (r *Repository) SetConfirmedQty(ctx context.Context, poList []string, qty map[string]int) (int, error) {
	models := make([]string, 0, len(qty))
	values := make([]int32, 0, len(qty))
	for m, q := range qty {
		models = append(models, m)
		values = append(values, int32(q))
	}
	tag, err := r.db.Exec(ctx, `UPDATE vendor_order_lines AS v
	SET qty_confirmed = COALESCE(t.qty, 0)
	FROM vendor_order_lines AS l
	LEFT JOIN unnest($2::text[], $3::int[]) AS t(model, qty) ON t.model = l.model_number
	WHERE v.id = l.id AND l.po_number = ANY($1)`, poList, models, values)
	if err != nil {
		return 0, fmt.Errorf("orders: set confirmed qty: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FindSummary looks a summary order up by (center, day).
func (r *Repository) FindSummary(ctx context.Context, center string, day time.Time) (SummaryOrder, error) {
	row := r.db.QueryRow(ctx, `SELECT id, fulfillment_center, delivery_date, po_list, article_count, status
	FROM riepiloghi WHERE fulfillment_center = $1 AND delivery_date = $2`, center, day)
	s, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SummaryOrder{}, ErrSummaryNotFound
	}
	return s, err
}

// GetSummary looks a summary order up by id.
func (r *Repository) GetSummary(ctx context.Context, id int64) (SummaryOrder, error) {
	row := r.db.QueryRow(ctx, `SELECT id, fulfillment_center, delivery_date, po_list, article_count, status
	FROM riepiloghi WHERE id = $1`, id)
	s, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SummaryOrder{}, ErrSummaryNotFound
	}
	return s, err
}

// SetSummaryStatus stores status.
func (r *Repository) SetSummaryStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE riepiloghi SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSummaryNotFound
	}
	return nil
}

func scanSummary(row pgx.Row) (SummaryOrder, error) {
	var s SummaryOrder
	var status string
	if err := row.Scan(&s.ID, &s.Center, &s.DeliveryDate, &s.POList, &s.ArticleCount, &status); err != nil {
		return SummaryOrder{}, err
	}
	s.Status = Status(status)
	return s, nil
}

func collectLines(rows pgx.Rows) ([]VendorOrderLine, error) {
	defer rows.Close()
	var out []VendorOrderLine
	for rows.Next() {
		var l VendorOrderLine
		var qtyConfirmed *int32
		var ordered int32
		if err := rows.Scan(&l.ID, &l.PONumber, &l.ExternalID, &l.ModelNumber, &l.ASIN, &l.Title, &l.UnitCost, &ordered,
			&qtyConfirmed, &l.WindowStart, &l.WindowEnd, &l.ExpectedDate, &l.Availability, &l.VendorCode, &l.FulfillmentCenter); err != nil {
			return nil, fmt.Errorf("orders: scan line: %w", err)
		}
		l.QtyOrdered = int(ordered)
		if qtyConfirmed != nil {
			v := int(*qtyConfirmed)
			l.QtyConfirmed = &v
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
