package updates

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	apppkg "github.com/assetflow/assetflow-go/cmd/api/app"
	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
	"github.com/assetflow/assetflow-go/cmd/api/notifications"
)

func newTestApp(t *testing.T, db apppkg.DB, q *redis.Client) *apppkg.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true}
	a := apppkg.NewApp(cfg, db, nil, nil, q)
	a.R.POST("/assets/:id/update-request", authpkg.Middleware(a), Submit(a))
	a.R.GET("/update-requests/pending", authpkg.Middleware(a), authpkg.RequireRole("admin"), ListPending(a))
	a.R.POST("/assets/:id/update-request/approve", authpkg.Middleware(a), authpkg.RequireRole("admin"), Approve(a))
	a.R.POST("/assets/:id/update-request/reject", authpkg.Middleware(a), authpkg.RequireRole("admin"), Reject(a))
	return a
}

func doJSON(t *testing.T, a *apppkg.App, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestSubmitRejectsBadProposals(t *testing.T) {
	a := newTestApp(t, nil, nil)
	cases := []struct {
		name string
		body string
	}{
		{"empty fields", `{"requestedFields":[],"tempValues":{}}`},
		{"unknown field", `{"requestedFields":["serialNumber"],"tempValues":{"serialNumber":"x"}}`},
		{"missing value", `{"requestedFields":["vendorName"],"tempValues":{}}`},
		{"bad number", `{"requestedFields":["quantity"],"tempValues":{"quantity":"lots"}}`},
		{"no body", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), "invalid_request") {
				t.Fatalf("body = %s", rr.Body.String())
			}
		})
	}
}

func TestSubmitAcceptsValidProposal(t *testing.T) {
	a := newTestApp(t, nil, nil)
	rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request",
		`{"requestedFields":["vendorName","quantity"],"tempValues":{"vendorName":"New Vendor","quantity":5}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"status":"pending"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestSubmitConflictWhenAlreadyPending(t *testing.T) {
	db := &fakeDB{
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{scan: func(dest ...any) error {
				*(dest[0].(*string)) = assetspkg.StatusPending
				*(dest[1].(*string)) = "INV-100"
				return nil
			}}
		},
	}
	a := newTestApp(t, db, nil)
	rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request",
		`{"requestedFields":["vendorName"],"tempValues":{"vendorName":"X"}}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
	if len(db.execs) != 0 {
		t.Fatal("no write should happen on conflict")
	}
}

func TestSubmitNotFound(t *testing.T) {
	db := &fakeDB{queryRow: func(sql string, args []any) pgx.Row {
		return &fakeRow{err: pgx.ErrNoRows}
	}}
	a := newTestApp(t, db, nil)
	rr := doJSON(t, a, http.MethodPost, "/assets/missing/update-request",
		`{"requestedFields":["vendorName"],"tempValues":{"vendorName":"X"}}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func pendingAsset() assetspkg.Asset {
	a := baseAsset()
	a.ID = "a1"
	a.UpdateRequestStatus = assetspkg.StatusPending
	a.RequestedFields = []string{"vendorName"}
	a.TempValues = raw(`{"vendorName":"New Vendor"}`)
	rb := "officer-1"
	a.RequestedBy = &rb
	return a
}

func TestApproveAppliesProposalAndNotifies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	asset := pendingAsset()
	db := &fakeDB{queryRow: func(sql string, args []any) pgx.Row {
		return &fakeRow{scan: func(dest ...any) error { return scanAssetInto(dest, asset) }}
	}}
	a := newTestApp(t, db, rdb)

	rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request/approve", `{"adminRemarks":"ok"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	// The persisted update must be guarded on pending and carry the new value.
	var update *execCall
	for i := range db.execs {
		if strings.Contains(db.execs[i].sql, "update_request_status = 'approved'") {
			update = &db.execs[i]
		}
	}
	if update == nil {
		t.Fatalf("no approval update executed: %+v", db.execs)
	}
	if !strings.Contains(update.sql, "update_request_status = 'pending'") {
		t.Fatal("approval update is not conditional on pending")
	}
	if got := update.args[3].(string); got != "New Vendor" {
		t.Fatalf("vendor_name arg = %q", got)
	}

	jobs, err := rdb.LRange(t.Context(), "jobs", 0, -1).Result()
	if err != nil || len(jobs) != 1 {
		t.Fatalf("jobs = %v err = %v", jobs, err)
	}
	var job notifications.Job
	if err := json.Unmarshal([]byte(jobs[0]), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Type != "notify" || job.Data.Type != "update_approved" || job.Data.RecipientID != "officer-1" {
		t.Fatalf("job = %+v", job)
	}
	if !strings.Contains(job.Data.Message, "INV-100") || !strings.Contains(job.Data.Message, "ok") {
		t.Fatalf("message = %q", job.Data.Message)
	}
}

func TestApproveConflictWhenNotPending(t *testing.T) {
	asset := pendingAsset()
	asset.UpdateRequestStatus = assetspkg.StatusApproved
	db := &fakeDB{queryRow: func(sql string, args []any) pgx.Row {
		return &fakeRow{scan: func(dest ...any) error { return scanAssetInto(dest, asset) }}
	}}
	a := newTestApp(t, db, nil)
	rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request/approve", `{}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
}

func TestApproveRaceLosesWithConflict(t *testing.T) {
	asset := pendingAsset()
	db := &fakeDB{
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{scan: func(dest ...any) error { return scanAssetInto(dest, asset) }}
		},
		execTag: "UPDATE 0",
	}
	a := newTestApp(t, db, nil)
	rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request/approve", `{}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 when the guard matches no row", rr.Code)
	}
}

func TestRejectLeavesAssetFieldsAlone(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	asset := pendingAsset()
	db := &fakeDB{queryRow: func(sql string, args []any) pgx.Row {
		return &fakeRow{scan: func(dest ...any) error { return scanAssetInto(dest, asset) }}
	}}
	a := newTestApp(t, db, rdb)

	rr := doJSON(t, a, http.MethodPost, "/assets/a1/update-request/reject", `{"adminRemarks":"<b>no</b> receipts"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var update *execCall
	for i := range db.execs {
		if strings.Contains(db.execs[i].sql, "'rejected'") {
			update = &db.execs[i]
		}
	}
	if update == nil {
		t.Fatalf("no rejection update executed")
	}
	if strings.Contains(update.sql, "vendor_name") {
		t.Fatal("rejection must not write asset fields")
	}
	// Markup in remarks is stripped before persisting.
	if got := update.args[2].(string); got != "no receipts" {
		t.Fatalf("admin_remarks arg = %q", got)
	}

	jobs, _ := rdb.LRange(t.Context(), "jobs", 0, -1).Result()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %v", jobs)
	}
	var job notifications.Job
	_ = json.Unmarshal([]byte(jobs[0]), &job)
	if job.Data.Type != "update_rejected" {
		t.Fatalf("job = %+v", job)
	}
}

func TestListPendingRendersDiff(t *testing.T) {
	asset := pendingAsset()
	db := &fakeDB{query: func(sql string, args []any) (pgx.Rows, error) {
		return &fakeRows{scans: []func(dest ...any) error{
			func(dest ...any) error {
				if err := scanAssetInto(dest[:27], asset); err != nil {
					return err
				}
				*(dest[27].(*string)) = "Physics"
				*(dest[28].(*string)) = "First Officer"
				*(dest[29].(*string)) = "officer@example.com"
				return nil
			},
		}}, nil
	}}
	a := newTestApp(t, db, nil)
	rr := doJSON(t, a, http.MethodGet, "/update-requests/pending", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Success  bool `json:"success"`
		Requests []struct {
			BillNo        string                            `json:"billNo"`
			Department    *struct{ Name string }            `json:"department"`
			RequestedBy   *struct{ ID, Name, Email string } `json:"requestedBy"`
			CurrentValues map[string]string                 `json:"currentValues"`
			NewValues     map[string]string                 `json:"newValues"`
		} `json:"requests"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Requests) != 1 {
		t.Fatalf("requests = %+v", out.Requests)
	}
	req := out.Requests[0]
	if req.CurrentValues["vendorName"] != "Acme Traders" || req.NewValues["vendorName"] != "New Vendor" {
		t.Fatalf("diff = %v / %v", req.CurrentValues, req.NewValues)
	}
	if req.Department == nil || req.Department.Name != "Physics" {
		t.Fatalf("department = %+v", req.Department)
	}
	if req.RequestedBy == nil || req.RequestedBy.Email != "officer@example.com" {
		t.Fatalf("requestedBy = %+v", req.RequestedBy)
	}
	if req.RequestedBy.ID != "officer-1" {
		t.Fatalf("requestedBy id = %q", req.RequestedBy.ID)
	}
}
