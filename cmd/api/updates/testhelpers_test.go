package updates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
)

// fakeRow implements pgx.Row.
type fakeRow struct {
	err  error
	scan func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.scan != nil {
		return r.scan(dest...)
	}
	return nil
}

// fakeRows implements pgx.Rows, yielding each scan func once.
type fakeRows struct {
	scans []func(dest ...any) error
	pos   int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { return r.pos < len(r.scans) }
func (r *fakeRows) Scan(dest ...any) error {
	fn := r.scans[r.pos]
	r.pos++
	return fn(dest...)
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type execCall struct {
	sql  string
	args []any
}

// fakeDB is a scriptable app.DB.
type fakeDB struct {
	queryRow func(sql string, args []any) pgx.Row
	query    func(sql string, args []any) (pgx.Rows, error)
	execTag  string
	execs    []execCall
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if f.query != nil {
		return f.query(sql, args)
	}
	return &fakeRows{}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if f.queryRow != nil {
		return f.queryRow(sql, args)
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	tag := f.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

// scanAssetInto fills the destinations ScanRow passes, in column order.
func scanAssetInto(dst []any, a assetspkg.Asset) error {
	items, _ := json.Marshal(a.Items)
	temp := []byte("{}")
	if len(a.TempValues) > 0 {
		temp = []byte(a.TempValues)
	}
	*(dst[0].(*string)) = a.ID
	*(dst[1].(**string)) = a.DepartmentID
	*(dst[2].(*string)) = a.Category
	*(dst[3].(*string)) = a.ItemName
	*(dst[4].(*string)) = a.VendorName
	*(dst[5].(*string)) = a.VendorAddress
	*(dst[6].(*string)) = a.BillNo
	*(dst[7].(**time.Time)) = a.BillDate
	*(dst[8].(*float64)) = a.Quantity
	*(dst[9].(*float64)) = a.PricePerItem
	*(dst[10].(*float64)) = a.TotalAmount
	*(dst[11].(*float64)) = a.CGST
	*(dst[12].(*float64)) = a.SGST
	*(dst[13].(*float64)) = a.GrandTotal
	*(dst[14].(*string)) = a.Remark
	*(dst[15].(*[]byte)) = items
	*(dst[16].(*string)) = a.UpdateRequestStatus
	*(dst[17].(*[]string)) = a.RequestedFields
	*(dst[18].(*[]byte)) = temp
	*(dst[19].(**string)) = a.RequestedBy
	*(dst[20].(**time.Time)) = a.RequestedAt
	*(dst[21].(**string)) = a.ReviewedBy
	*(dst[22].(**time.Time)) = a.ReviewedAt
	*(dst[23].(*string)) = a.AdminRemarks
	*(dst[24].(**string)) = a.CreatedBy
	*(dst[25].(*time.Time)) = a.CreatedAt
	*(dst[26].(*time.Time)) = a.UpdatedAt
	return nil
}
