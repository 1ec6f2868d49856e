package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
)

// Summary returns asset counts and money totals grouped by category,
// plus the pending review backlog.
func Summary(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "categories": []any{}, "pending": 0})
			return
		}
		const q = `select category, count(*), coalesce(sum(total_amount), 0), coalesce(sum(grand_total), 0)
from assets group by category order by category`
		rows, err := a.DB.Query(c.Request.Context(), q)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		type catSummary struct {
			Category    string  `json:"category"`
			Count       int64   `json:"count"`
			TotalAmount float64 `json:"totalAmount"`
			GrandTotal  float64 `json:"grandTotal"`
		}
		cats := []catSummary{}
		for rows.Next() {
			var cs catSummary
			if err := rows.Scan(&cs.Category, &cs.Count, &cs.TotalAmount, &cs.GrandTotal); err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			cats = append(cats, cs)
		}
		rows.Close()
		var pending int64
		if err := a.DB.QueryRow(c.Request.Context(),
			`select count(*) from assets where update_request_status = 'pending'`).Scan(&pending); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "categories": cats, "pending": pending})
	}
}

// Columns of the tabular asset report, shared by the CSV and XLSX forms.
var reportHeader = []string{
	"Bill No", "Bill Date", "Category", "Item Name", "Vendor", "Department",
	"Quantity", "Price Per Item", "Total Amount", "CGST %", "SGST %", "Grand Total", "Status",
}

type reportRow struct {
	asset    assetspkg.Asset
	deptName string
}

func rowValues(r reportRow) []string {
	a := r.asset
	billDate := ""
	if a.BillDate != nil {
		billDate = a.BillDate.Format("2006-01-02")
	}
	return []string{
		a.BillNo, billDate, a.Category, a.ItemName, a.VendorName, r.deptName,
		num(a.Quantity), num(a.PricePerItem), num(a.TotalAmount), num(a.CGST), num(a.SGST), num(a.GrandTotal),
		a.UpdateRequestStatus,
	}
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func queryReport(c *gin.Context, a *app.App) ([]reportRow, bool) {
	where := []string{}
	args := []any{}
	if v := strings.TrimSpace(c.Query("category")); v != "" {
		where = append(where, fmt.Sprintf("a.category = $%d", len(args)+1))
		args = append(args, v)
	}
	if v := strings.TrimSpace(c.Query("department")); v != "" {
		where = append(where, fmt.Sprintf("a.department_id = $%d", len(args)+1))
		args = append(args, v)
	}
	q := "select " + assetspkg.SelectColumns + ", coalesce(d.name, '') from assets a left join departments d on d.id = a.department_id"
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by a.created_at desc"
	rows, err := a.DB.Query(c.Request.Context(), q, args...)
	if err != nil {
		app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
		return nil, false
	}
	defer rows.Close()
	out := []reportRow{}
	for rows.Next() {
		dests := make([]any, 0, 28)
		var r reportRow
		var items, temp []byte
		a1 := &r.asset
		dests = append(dests, &a1.ID, &a1.DepartmentID, &a1.Category, &a1.ItemName, &a1.VendorName, &a1.VendorAddress,
			&a1.BillNo, &a1.BillDate, &a1.Quantity, &a1.PricePerItem, &a1.TotalAmount, &a1.CGST, &a1.SGST, &a1.GrandTotal, &a1.Remark, &items,
			&a1.UpdateRequestStatus, &a1.RequestedFields, &temp, &a1.RequestedBy, &a1.RequestedAt,
			&a1.ReviewedBy, &a1.ReviewedAt, &a1.AdminRemarks, &a1.CreatedBy, &a1.CreatedAt, &a1.UpdatedAt, &r.deptName)
		if err := rows.Scan(dests...); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}

// ExportCSV writes the asset report to the object store and returns a
// download URL.
func ExportCSV(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil || a.M == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "url": ""})
			return
		}
		report, ok := queryReport(c, a)
		if !ok {
			return
		}
		buf := &bytes.Buffer{}
		w := csv.NewWriter(buf)
		_ = w.Write(reportHeader)
		for _, r := range report {
			_ = w.Write(rowValues(r))
		}
		w.Flush()

		objectKey := uuid.New().String() + ".csv"
		oc, cancel := a.ObjCtx(c.Request.Context())
		defer cancel()
		if _, err := a.M.PutObject(oc, a.Cfg.MinIOBucket, objectKey, bytes.NewReader(buf.Bytes()), int64(buf.Len()),
			minio.PutObjectOptions{ContentType: "text/csv"}); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if mc, ok := a.M.(*minio.Client); ok {
			oc, cancel := a.ObjCtx(c.Request.Context())
			defer cancel()
			url, err := mc.PresignedGetObject(oc, a.Cfg.MinIOBucket, objectKey, time.Minute, nil)
			if err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "url": url.String()})
			return
		}
		scheme := "http"
		if a.Cfg.MinIOUseSSL {
			scheme = "https"
		}
		c.JSON(http.StatusOK, gin.H{"success": true,
			"url": fmt.Sprintf("%s://%s/%s/%s", scheme, a.Cfg.MinIOEndpoint, a.Cfg.MinIOBucket, objectKey)})
	}
}

// ExportXLSX streams the asset report as a spreadsheet.
func ExportXLSX(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.Status(http.StatusOK)
			return
		}
		report, ok := queryReport(c, a)
		if !ok {
			return
		}
		f, err := buildWorkbook(report)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer f.Close()
		c.Writer.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Writer.Header().Set("Content-Disposition", `attachment; filename="assets.xlsx"`)
		if err := f.Write(c.Writer); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
		}
	}
}

func buildWorkbook(report []reportRow) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Assets"
	f.SetSheetName("Sheet1", sheet)
	for col, h := range reportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for i, r := range report {
		for col, v := range rowValues(r) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}
