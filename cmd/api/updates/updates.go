package updates

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
	"github.com/assetflow/assetflow-go/cmd/api/events"
	"github.com/assetflow/assetflow-go/cmd/api/notifications"
	wspkg "github.com/assetflow/assetflow-go/cmd/api/ws"
)

var (
	submissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "update_request_submissions_total",
		Help: "Update requests submitted",
	})
	decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "update_request_decisions_total",
		Help: "Update request decisions by outcome",
	}, []string{"decision"})
)

func init() { prometheus.MustRegister(submissions, decisions) }

// remarks and free-text fields come from browsers; strip any markup.
var sanitize = bluemonday.StrictPolicy()

type submitReq struct {
	RequestedFields []string                   `json:"requestedFields" binding:"required"`
	TempValues      map[string]json.RawMessage `json:"tempValues" binding:"required"`
}

// Submit files an update request for an asset. The proposed values are
// validated and held on the asset row; nothing is applied until an
// admin approves. One pending request per asset at a time.
func Submit(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in submitReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "requestedFields and tempValues are required", nil)
			return
		}
		p, err := Parse(in.RequestedFields, in.TempValues)
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
			return
		}
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "status": assetspkg.StatusPending, "requestedFields": p.FieldNames()})
			return
		}
		assetID := c.Param("id")
		u := currentUser(c)

		var status, billNo string
		err = a.DB.QueryRow(c.Request.Context(),
			`select update_request_status, bill_no from assets where id = $1`, assetID).Scan(&status, &billNo)
		if errors.Is(err, pgx.ErrNoRows) {
			app.AbortError(c, http.StatusNotFound, "not_found", "asset not found", nil)
			return
		}
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if status == assetspkg.StatusPending {
			app.AbortError(c, http.StatusConflict, "conflict", "an update request is already pending for this asset", nil)
			return
		}

		// Persist only the values backing requested fields.
		kept := map[string]json.RawMessage{}
		for _, f := range p.FieldNames() {
			kept[f] = in.TempValues[f]
		}
		tempJSON, err := json.Marshal(kept)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}

		const q = `update assets set
update_request_status = 'pending', requested_fields = $2, temp_values = $3::jsonb,
requested_by = $4, requested_at = now(), reviewed_by = null, reviewed_at = null, admin_remarks = '', updated_at = now()
where id = $1 and update_request_status <> 'pending'`
		ct, err := a.DB.Exec(c.Request.Context(), q, assetID, p.FieldNames(), string(tempJSON), nilIfEmpty(u.ID))
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if ct.RowsAffected() == 0 {
			app.AbortError(c, http.StatusConflict, "conflict", "an update request is already pending for this asset", nil)
			return
		}

		submissions.Inc()
		events.Emit(c.Request.Context(), a.DB, assetID, "update_requested", u.ID,
			gin.H{"fields": p.FieldNames(), "billNo": billNo})
		wspkg.PublishEvent(c.Request.Context(), a.Q, wspkg.Event{Type: "update_requested",
			AssetID: assetID, Data: gin.H{"billNo": billNo, "fields": p.FieldNames()}})
		log.Ctx(c.Request.Context()).Info().Str("asset_id", assetID).Strs("fields", p.FieldNames()).Msg("update request submitted")
		c.JSON(http.StatusOK, gin.H{"success": true, "status": assetspkg.StatusPending, "requestedFields": p.FieldNames()})
	}
}

type nameRef struct {
	Name string `json:"name"`
}

type userRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// pendingRequest expands the requested_by reference into a user object
// under the same requestedBy key, shadowing the bare id on the asset.
type pendingRequest struct {
	assetspkg.Asset
	Department    *nameRef          `json:"department,omitempty"`
	RequestedBy   *userRef          `json:"requestedBy,omitempty"`
	CurrentValues map[string]string `json:"currentValues"`
	NewValues     map[string]string `json:"newValues"`
}

// ListPending returns every asset with a pending update request, each
// augmented with rendered current and proposed values for review.
func ListPending(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "requests": []pendingRequest{}})
			return
		}
		q := "select " + assetspkg.SelectColumns + `, coalesce(d.name, ''), coalesce(u.display_name, ''), coalesce(u.email, '')
from assets a
left join departments d on d.id = a.department_id
left join users u on u.id = a.requested_by
where a.update_request_status = 'pending'
order by a.requested_at asc`
		rows, err := a.DB.Query(c.Request.Context(), q)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []pendingRequest{}
		for rows.Next() {
			asset, deptName, userName, userEmail, err := scanPendingRow(rows)
			if err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			pr := pendingRequest{Asset: asset, CurrentValues: map[string]string{}, NewValues: map[string]string{}}
			if deptName != "" {
				pr.Department = &nameRef{Name: deptName}
			}
			if asset.RequestedBy != nil || userName != "" || userEmail != "" {
				ref := &userRef{Name: userName, Email: userEmail}
				if asset.RequestedBy != nil {
					ref.ID = *asset.RequestedBy
				}
				pr.RequestedBy = ref
			}
			if p, err := storedProposal(asset); err == nil {
				pr.CurrentValues, pr.NewValues = Diff(&asset, p)
			} else {
				log.Ctx(c.Request.Context()).Warn().Err(err).Str("asset_id", asset.ID).Msg("stored update request unreadable")
			}
			out = append(out, pr)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "requests": out})
	}
}

type decisionReq struct {
	AdminRemarks string `json:"adminRemarks"`
}

// Approve applies a pending update request to its asset. The write is
// guarded on the row still being pending; a lost race is a conflict.
func Approve(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in decisionReq
		_ = c.ShouldBindJSON(&in)
		remarks := sanitize.Sanitize(in.AdminRemarks)
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Update request approved"})
			return
		}
		assetID := c.Param("id")
		u := currentUser(c)

		asset, ok := loadPendingAsset(c, a, assetID)
		if !ok {
			return
		}
		p, err := storedProposal(asset)
		if err != nil {
			app.AbortError(c, http.StatusUnprocessableEntity, "invalid_request", fmt.Sprintf("stored update request unreadable: %v", err), nil)
			return
		}
		requestedBy := asset.RequestedBy
		Apply(&asset, p)

		itemsJSON, _ := json.Marshal(asset.Items)
		const q = `update assets set
category = $2, item_name = $3, vendor_name = $4, vendor_address = $5, bill_no = $6, bill_date = $7,
quantity = $8, price_per_item = $9, total_amount = $10, cgst = $11, sgst = $12, grand_total = $13,
remark = $14, items = $15::jsonb,
update_request_status = 'approved', requested_fields = '{}', temp_values = '{}'::jsonb,
reviewed_by = $16, reviewed_at = now(), admin_remarks = $17, updated_at = now()
where id = $1 and update_request_status = 'pending'`
		ct, err := a.DB.Exec(c.Request.Context(), q, assetID,
			asset.Category, asset.ItemName, asset.VendorName, asset.VendorAddress, asset.BillNo, asset.BillDate,
			asset.Quantity, asset.PricePerItem, asset.TotalAmount, asset.CGST, asset.SGST, asset.GrandTotal,
			asset.Remark, string(itemsJSON), nilIfEmpty(u.ID), remarks)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if ct.RowsAffected() == 0 {
			app.AbortError(c, http.StatusConflict, "conflict", "update request is no longer pending", nil)
			return
		}

		decisions.WithLabelValues("approved").Inc()
		notifyDecision(c, a, requestedBy, u.ID, "update_approved", asset, remarks)
		events.Emit(c.Request.Context(), a.DB, assetID, "update_approved", u.ID,
			gin.H{"fields": p.FieldNames(), "remarks": remarks})
		wspkg.PublishEvent(c.Request.Context(), a.Q, wspkg.Event{Type: "update_approved",
			AssetID: assetID, Data: gin.H{"billNo": asset.BillNo}})
		asset.UpdateRequestStatus = assetspkg.StatusApproved
		asset.RequestedFields = nil
		asset.TempValues = nil
		asset.AdminRemarks = remarks
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Update request approved", "asset": asset})
	}
}

// Reject closes a pending update request without touching the asset's
// stored fields.
func Reject(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in decisionReq
		_ = c.ShouldBindJSON(&in)
		remarks := sanitize.Sanitize(in.AdminRemarks)
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Update request rejected"})
			return
		}
		assetID := c.Param("id")
		u := currentUser(c)

		asset, ok := loadPendingAsset(c, a, assetID)
		if !ok {
			return
		}
		const q = `update assets set
update_request_status = 'rejected', requested_fields = '{}', temp_values = '{}'::jsonb,
reviewed_by = $2, reviewed_at = now(), admin_remarks = $3, updated_at = now()
where id = $1 and update_request_status = 'pending'`
		ct, err := a.DB.Exec(c.Request.Context(), q, assetID, nilIfEmpty(u.ID), remarks)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if ct.RowsAffected() == 0 {
			app.AbortError(c, http.StatusConflict, "conflict", "update request is no longer pending", nil)
			return
		}

		decisions.WithLabelValues("rejected").Inc()
		notifyDecision(c, a, asset.RequestedBy, u.ID, "update_rejected", asset, remarks)
		events.Emit(c.Request.Context(), a.DB, assetID, "update_rejected", u.ID, gin.H{"remarks": remarks})
		wspkg.PublishEvent(c.Request.Context(), a.Q, wspkg.Event{Type: "update_rejected",
			AssetID: assetID, Data: gin.H{"billNo": asset.BillNo}})
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Update request rejected"})
	}
}

// loadPendingAsset fetches the asset and enforces the pending state.
// On failure it aborts the request and returns ok=false.
func loadPendingAsset(c *gin.Context, a *app.App, assetID string) (assetspkg.Asset, bool) {
	row := a.DB.QueryRow(c.Request.Context(), "select "+assetspkg.SelectColumns+" from assets a where a.id = $1", assetID)
	asset, err := assetspkg.ScanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		app.AbortError(c, http.StatusNotFound, "not_found", "asset not found", nil)
		return assetspkg.Asset{}, false
	}
	if err != nil {
		app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
		return assetspkg.Asset{}, false
	}
	if asset.UpdateRequestStatus != assetspkg.StatusPending {
		app.AbortError(c, http.StatusConflict, "conflict", "no pending update request for this asset", nil)
		return assetspkg.Asset{}, false
	}
	return asset, true
}

// storedProposal re-parses the requested fields and temp values held on
// the asset row.
func storedProposal(a assetspkg.Asset) (*Proposal, error) {
	temp := map[string]json.RawMessage{}
	if len(a.TempValues) > 0 {
		if err := json.Unmarshal(a.TempValues, &temp); err != nil {
			return nil, err
		}
	}
	return Parse(a.RequestedFields, temp)
}

func notifyDecision(c *gin.Context, a *app.App, recipient *string, actorID, kind string, asset assetspkg.Asset, remarks string) {
	if recipient == nil || *recipient == "" {
		return
	}
	title := "Update Request Approved"
	message := fmt.Sprintf("Your update request for bill %s has been approved.", asset.BillNo)
	if kind == "update_rejected" {
		title = "Update Request Rejected"
		message = fmt.Sprintf("Your update request for bill %s has been rejected.", asset.BillNo)
	}
	if remarks != "" {
		message += " Remarks: " + remarks
	}
	assetID := asset.ID
	n := notifications.Notification{
		RecipientID: *recipient,
		Type:        kind,
		Title:       title,
		Message:     message,
		AssetID:     &assetID,
		BillNo:      asset.BillNo,
	}
	if actorID != "" {
		n.ActorID = &actorID
	}
	notifications.Enqueue(c.Request.Context(), a.Q, n)
}

func scanPendingRow(rows pgx.Rows) (assetspkg.Asset, string, string, string, error) {
	var a assetspkg.Asset
	var items, temp []byte
	var deptName, userName, userEmail string
	err := rows.Scan(&a.ID, &a.DepartmentID, &a.Category, &a.ItemName, &a.VendorName, &a.VendorAddress,
		&a.BillNo, &a.BillDate, &a.Quantity, &a.PricePerItem, &a.TotalAmount, &a.CGST, &a.SGST, &a.GrandTotal, &a.Remark, &items,
		&a.UpdateRequestStatus, &a.RequestedFields, &temp, &a.RequestedBy, &a.RequestedAt,
		&a.ReviewedBy, &a.ReviewedAt, &a.AdminRemarks, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
		&deptName, &userName, &userEmail)
	if err != nil {
		return assetspkg.Asset{}, "", "", "", err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &a.Items); err != nil {
			return assetspkg.Asset{}, "", "", "", fmt.Errorf("decode items: %w", err)
		}
	}
	if len(temp) > 0 {
		a.TempValues = json.RawMessage(temp)
	}
	return a, deptName, userName, userEmail, nil
}

func currentUser(c *gin.Context) authpkg.AuthUser {
	if v, ok := c.Get("user"); ok {
		if u, ok := v.(authpkg.AuthUser); ok {
			return u
		}
	}
	return authpkg.AuthUser{}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
