package assets

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestItemTotals(t *testing.T) {
	cases := []struct {
		name                    string
		qty, rate, cgst, sgst   float64
		wantAmount, wantGrand   float64
	}{
		{"no tax", 3, 100, 0, 0, 300, 300},
		{"gst both sides", 2, 500, 9, 9, 1000, 1180},
		{"fractional qty", 1.5, 200, 2.5, 2.5, 300, 315},
		{"zero qty", 0, 999, 18, 18, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, grand := ItemTotals(tc.qty, tc.rate, tc.cgst, tc.sgst)
			if !almostEqual(amount, tc.wantAmount) || !almostEqual(grand, tc.wantGrand) {
				t.Fatalf("got amount=%v grand=%v want %v %v", amount, grand, tc.wantAmount, tc.wantGrand)
			}
		})
	}
}

func TestRecomputeTotalsItemized(t *testing.T) {
	a := Asset{Items: []Item{
		{Particulars: "chair", Quantity: 4, Rate: 250, CGST: 9, SGST: 9},
		{Particulars: "desk", Quantity: 1, Rate: 3000, CGST: 9, SGST: 9},
	}}
	for i := range a.Items {
		a.Items[i].Recompute()
	}
	RecomputeTotals(&a)
	if !almostEqual(a.TotalAmount, 4000) {
		t.Fatalf("total amount = %v, want 4000", a.TotalAmount)
	}
	if !almostEqual(a.GrandTotal, 4720) {
		t.Fatalf("grand total = %v, want 4720", a.GrandTotal)
	}
}

func TestRecomputeTotalsFlat(t *testing.T) {
	a := Asset{Quantity: 10, PricePerItem: 50, CGST: 6, SGST: 6}
	RecomputeTotals(&a)
	if !almostEqual(a.TotalAmount, 500) || !almostEqual(a.GrandTotal, 560) {
		t.Fatalf("got total=%v grand=%v", a.TotalAmount, a.GrandTotal)
	}
}
