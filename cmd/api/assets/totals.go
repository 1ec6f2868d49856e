package assets

// ItemTotals derives the money fields for a single line:
// amount = quantity*rate, grand total = amount plus CGST and SGST,
// each taken as a percentage of the amount.
func ItemTotals(quantity, rate, cgst, sgst float64) (amount, grandTotal float64) {
	amount = quantity * rate
	grandTotal = amount + amount*cgst/100 + amount*sgst/100
	return amount, grandTotal
}

// Recompute refreshes the derived fields from the item's own inputs.
func (it *Item) Recompute() {
	it.Amount, it.GrandTotal = ItemTotals(it.Quantity, it.Rate, it.CGST, it.SGST)
}

// RecomputeTotals refreshes the asset-level totals. Itemized assets sum
// their lines; non-itemized assets derive from quantity, unit price and
// the asset-level tax rates.
func RecomputeTotals(a *Asset) {
	if len(a.Items) > 0 {
		var amount, grand float64
		for i := range a.Items {
			amount += a.Items[i].Amount
			grand += a.Items[i].GrandTotal
		}
		a.TotalAmount = amount
		a.GrandTotal = grand
		return
	}
	a.TotalAmount, a.GrandTotal = ItemTotals(a.Quantity, a.PricePerItem, a.CGST, a.SGST)
}
