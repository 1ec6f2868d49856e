package reports

import (
	"testing"
	"time"

	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
)

func TestRowValues(t *testing.T) {
	d := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r := reportRow{
		asset: assetspkg.Asset{
			BillNo:              "INV-7",
			BillDate:            &d,
			Category:            "capital",
			ItemName:            "lab bench",
			VendorName:          "Acme",
			Quantity:            2.5,
			PricePerItem:        1000,
			TotalAmount:         2500,
			CGST:                9,
			SGST:                9,
			GrandTotal:          2950,
			UpdateRequestStatus: "none",
		},
		deptName: "Physics",
	}
	got := rowValues(r)
	want := []string{"INV-7", "2025-03-01", "capital", "lab bench", "Acme", "Physics",
		"2.5", "1000", "2500", "9", "9", "2950", "none"}
	if len(got) != len(want) || len(got) != len(reportHeader) {
		t.Fatalf("row width %d, header width %d", len(got), len(reportHeader))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("col %d (%s) = %q, want %q", i, reportHeader[i], got[i], want[i])
		}
	}
}

func TestRowValuesNilDate(t *testing.T) {
	got := rowValues(reportRow{asset: assetspkg.Asset{BillNo: "X"}})
	if got[1] != "" {
		t.Fatalf("bill date = %q, want empty", got[1])
	}
}

func TestBuildWorkbook(t *testing.T) {
	f, err := buildWorkbook([]reportRow{{asset: assetspkg.Asset{BillNo: "INV-1", Category: "revenue"}}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer f.Close()
	v, err := f.GetCellValue("Assets", "A2")
	if err != nil || v != "INV-1" {
		t.Fatalf("A2 = %q err=%v", v, err)
	}
	h, _ := f.GetCellValue("Assets", "A1")
	if h != "Bill No" {
		t.Fatalf("A1 = %q", h)
	}
}
