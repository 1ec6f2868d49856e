package updates

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDiffRendersItemList(t *testing.T) {
	a := baseAsset()
	p := mustParse(t, []string{"items"}, map[string]json.RawMessage{
		"items": raw(`[{"particulars":"cabinet","quantity":2,"rate":1000.5}]`),
	})
	current, proposed := Diff(&a, p)
	if got := current["items"]; got != "chair (Qty: 4, Rate: ₹250), desk (Qty: 1, Rate: ₹3000)" {
		t.Fatalf("current items = %q", got)
	}
	if got := proposed["items"]; got != "cabinet (Qty: 2, Rate: ₹1000.5)" {
		t.Fatalf("proposed items = %q", got)
	}
}

func TestDiffRendersSingleItemDelete(t *testing.T) {
	a := baseAsset()
	p := mustParse(t, []string{"singleItem"}, map[string]json.RawMessage{
		"singleItem": raw(`{"itemIndex":1,"action":"delete"}`),
	})
	current, proposed := Diff(&a, p)
	if got := proposed["singleItem"]; got != "Delete item at index 1" {
		t.Fatalf("proposed = %q", got)
	}
	if got := current["singleItem"]; got != "desk (Qty: 1, Rate: ₹3000)" {
		t.Fatalf("current = %q", got)
	}
}

func TestDiffRendersSingleItemUpdate(t *testing.T) {
	a := baseAsset()
	p := mustParse(t, []string{"singleItem"}, map[string]json.RawMessage{
		"singleItem": raw(`{"itemIndex":0,"action":"update","updatedItem":{"particulars":"stool","quantity":3,"rate":150}}`),
	})
	current, proposed := Diff(&a, p)
	if got := current["singleItem"]; got != "chair (Qty: 4, Rate: ₹250)" {
		t.Fatalf("current = %q", got)
	}
	if got := proposed["singleItem"]; got != "stool (Qty: 3, Rate: ₹150)" {
		t.Fatalf("proposed = %q", got)
	}
}

func TestDiffOutOfRangeCurrentIsEmpty(t *testing.T) {
	a := baseAsset()
	p := mustParse(t, []string{"singleItem"}, map[string]json.RawMessage{
		"singleItem": raw(`{"itemIndex":7,"action":"delete"}`),
	})
	current, _ := Diff(&a, p)
	if got := current["singleItem"]; got != "" {
		t.Fatalf("current = %q, want empty", got)
	}
}

func TestDiffRendersBillDate(t *testing.T) {
	a := baseAsset()
	d := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	a.BillDate = &d
	p := mustParse(t, []string{"billDate"}, map[string]json.RawMessage{
		"billDate": raw(`"2025-03-01"`),
	})
	current, proposed := Diff(&a, p)
	if got := current["billDate"]; got != "11/5/2024" {
		t.Fatalf("current billDate = %q", got)
	}
	if got := proposed["billDate"]; got != "3/1/2025" {
		t.Fatalf("proposed billDate = %q", got)
	}
}

func TestDiffRendersNumbersAndEmptyCurrent(t *testing.T) {
	a := baseAsset()
	a.BillDate = nil
	a.VendorAddress = ""
	p := mustParse(t, []string{"quantity", "billDate", "vendorAddress"}, map[string]json.RawMessage{
		"quantity":      raw(`2.5`),
		"billDate":      raw(`"2025-01-31"`),
		"vendorAddress": raw(`"12 Main St"`),
	})
	current, proposed := Diff(&a, p)
	if got := proposed["quantity"]; got != "2.5" {
		t.Fatalf("proposed quantity = %q", got)
	}
	if got := current["quantity"]; got != "2" {
		t.Fatalf("current quantity = %q", got)
	}
	if got := current["billDate"]; got != "" {
		t.Fatalf("current billDate = %q, want empty for null", got)
	}
	if got := current["vendorAddress"]; got != "" {
		t.Fatalf("current vendorAddress = %q", got)
	}
	if got := proposed["vendorAddress"]; got != "12 Main St" {
		t.Fatalf("proposed vendorAddress = %q", got)
	}
}
