package updates

import (
	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
)

// Apply merges an approved proposal into the asset and recomputes the
// derived totals. Only the proposed fields change; everything else is
// left as stored. An out-of-range item patch is a no-op on the list.
func Apply(a *assetspkg.Asset, p *Proposal) {
	for _, sc := range p.Scalars {
		switch sc.Field {
		case FieldCategory:
			a.Category = *sc.Text
		case FieldItemName:
			a.ItemName = *sc.Text
		case FieldVendorName:
			a.VendorName = *sc.Text
		case FieldVendorAddress:
			a.VendorAddress = *sc.Text
		case FieldBillNo:
			a.BillNo = *sc.Text
		case FieldRemark:
			a.Remark = *sc.Text
		case FieldBillDate:
			d := *sc.Date
			a.BillDate = &d
		case FieldQuantity:
			a.Quantity = *sc.Number
		case FieldPricePerItem:
			a.PricePerItem = *sc.Number
		case FieldCGST:
			a.CGST = *sc.Number
		case FieldSGST:
			a.SGST = *sc.Number
		}
	}
	if p.Items != nil {
		applyItems(a, p.Items)
	}
	assetspkg.RecomputeTotals(a)
}

func applyItems(a *assetspkg.Asset, ch *ItemsChange) {
	if ch.Replace != nil {
		items := make([]assetspkg.Item, len(ch.Replace))
		copy(items, ch.Replace)
		for i := range items {
			items[i].Recompute()
		}
		a.Items = items
		return
	}
	patch := ch.Patch
	if patch == nil || patch.Index < 0 || patch.Index >= len(a.Items) {
		return
	}
	if patch.Delete {
		a.Items = append(a.Items[:patch.Index], a.Items[patch.Index+1:]...)
		return
	}
	it := *patch.Item
	it.Recompute()
	a.Items[patch.Index] = it
}
