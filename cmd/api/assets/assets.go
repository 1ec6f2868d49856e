package assets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
)

// Scanner is satisfied by pgx.Row and pgx.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// SelectColumns is the column list matching ScanRow.
const SelectColumns = `a.id::text, a.department_id::text, a.category, a.item_name, a.vendor_name, a.vendor_address,
a.bill_no, a.bill_date, a.quantity, a.price_per_item, a.total_amount, a.cgst, a.sgst, a.grand_total, a.remark, a.items,
a.update_request_status, a.requested_fields, a.temp_values, a.requested_by::text, a.requested_at,
a.reviewed_by::text, a.reviewed_at, a.admin_remarks, a.created_by::text, a.created_at, a.updated_at`

// ScanRow scans one asset row selected with SelectColumns.
func ScanRow(row Scanner) (Asset, error) {
	var a Asset
	var items, temp []byte
	err := row.Scan(&a.ID, &a.DepartmentID, &a.Category, &a.ItemName, &a.VendorName, &a.VendorAddress,
		&a.BillNo, &a.BillDate, &a.Quantity, &a.PricePerItem, &a.TotalAmount, &a.CGST, &a.SGST, &a.GrandTotal, &a.Remark, &items,
		&a.UpdateRequestStatus, &a.RequestedFields, &temp, &a.RequestedBy, &a.RequestedAt,
		&a.ReviewedBy, &a.ReviewedAt, &a.AdminRemarks, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Asset{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &a.Items); err != nil {
			return Asset{}, fmt.Errorf("decode items: %w", err)
		}
	}
	if len(temp) > 0 && string(temp) != "{}" {
		a.TempValues = json.RawMessage(temp)
	}
	return a, nil
}

// ParseBillDate accepts the date-only and RFC 3339 forms clients send.
func ParseBillDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type createAssetReq struct {
	DepartmentID  *string `json:"departmentId"`
	Category      string  `json:"category" binding:"omitempty,oneof=capital revenue"`
	ItemName      string  `json:"itemName"`
	VendorName    string  `json:"vendorName"`
	VendorAddress string  `json:"vendorAddress"`
	BillNo        string  `json:"billNo" binding:"required"`
	BillDate      string  `json:"billDate"`
	Quantity      float64 `json:"quantity" binding:"omitempty,min=0"`
	PricePerItem  float64 `json:"pricePerItem" binding:"omitempty,min=0"`
	CGST          float64 `json:"cgst" binding:"omitempty,min=0"`
	SGST          float64 `json:"sgst" binding:"omitempty,min=0"`
	Remark        string  `json:"remark"`
	Items         []Item  `json:"items"`
}

// Create inserts a new asset. Derived totals are always recomputed
// server-side regardless of what the client sent.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createAssetReq
		if err := c.ShouldBindJSON(&in); err != nil {
			errs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					errs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "invalid asset", errs)
			return
		}
		if in.Category == "" {
			in.Category = "capital"
		}
		var billDate *time.Time
		if in.BillDate != "" {
			t, err := ParseBillDate(in.BillDate)
			if err != nil {
				app.AbortError(c, http.StatusBadRequest, "invalid_request", "invalid billDate", nil)
				return
			}
			billDate = &t
		}
		asset := Asset{
			DepartmentID:        in.DepartmentID,
			Category:            in.Category,
			ItemName:            in.ItemName,
			VendorName:          in.VendorName,
			VendorAddress:       in.VendorAddress,
			BillNo:              in.BillNo,
			BillDate:            billDate,
			Quantity:            in.Quantity,
			PricePerItem:        in.PricePerItem,
			CGST:                in.CGST,
			SGST:                in.SGST,
			Remark:              in.Remark,
			Items:               in.Items,
			UpdateRequestStatus: StatusNone,
		}
		for i := range asset.Items {
			asset.Items[i].Recompute()
		}
		RecomputeTotals(&asset)

		if u, ok := c.Get("user"); ok {
			if au, ok := u.(authpkg.AuthUser); ok {
				if au.ID != "" {
					id := au.ID
					asset.CreatedBy = &id
				}
				if asset.DepartmentID == nil && au.DepartmentID != "" {
					dept := au.DepartmentID
					asset.DepartmentID = &dept
				}
			}
		}

		if a.DB == nil {
			c.JSON(http.StatusCreated, gin.H{"success": true, "asset": asset})
			return
		}

		itemsJSON, _ := json.Marshal(asset.Items)
		const q = `insert into assets
(department_id, category, item_name, vendor_name, vendor_address, bill_no, bill_date,
 quantity, price_per_item, total_amount, cgst, sgst, grand_total, remark, items, created_by)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb,$16)
returning id::text, created_at, updated_at`
		if err := a.DB.QueryRow(c.Request.Context(), q,
			asset.DepartmentID, asset.Category, asset.ItemName, asset.VendorName, asset.VendorAddress,
			asset.BillNo, asset.BillDate, asset.Quantity, asset.PricePerItem, asset.TotalAmount,
			asset.CGST, asset.SGST, asset.GrandTotal, asset.Remark, string(itemsJSON), asset.CreatedBy,
		).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "asset": asset})
	}
}

// List returns recent assets with basic filters.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "assets": []Asset{}})
			return
		}
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
		if v := strings.TrimSpace(c.Query("status")); v != "" {
			where = append(where, fmt.Sprintf("a.update_request_status = $%d", len(args)+1))
			args = append(args, v)
		}
		if v := strings.TrimSpace(c.Query("search")); v != "" {
			n := len(args) + 1
			where = append(where, fmt.Sprintf("(a.bill_no ILIKE $%d OR a.item_name ILIKE $%d OR a.vendor_name ILIKE $%d)", n, n, n))
			args = append(args, "%"+v+"%")
		}
		sql := "select " + SelectColumns + " from assets a"
		if len(where) > 0 {
			sql += " where " + strings.Join(where, " and ")
		}
		sql += " order by a.created_at desc limit 100"
		rows, err := a.DB.Query(c.Request.Context(), sql, args...)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []Asset{}
		for rows.Next() {
			asset, err := ScanRow(rows)
			if err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, asset)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "assets": out})
	}
}

// Get returns a single asset by id.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "asset": Asset{}})
			return
		}
		row := a.DB.QueryRow(c.Request.Context(), "select "+SelectColumns+" from assets a where a.id = $1", c.Param("id"))
		asset, err := ScanRow(row)
		if err != nil {
			app.AbortError(c, http.StatusNotFound, "not_found", "asset not found", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "asset": asset})
	}
}

// Delete removes an asset. Admin only; routes enforce the role.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		ct, err := a.DB.Exec(c.Request.Context(), "delete from assets where id = $1", c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if ct.RowsAffected() == 0 {
			app.AbortError(c, http.StatusNotFound, "not_found", "asset not found", nil)
			return
		}
		log.Ctx(c.Request.Context()).Info().Str("asset_id", c.Param("id")).Msg("asset deleted")
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
