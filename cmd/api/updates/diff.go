package updates

import (
	"fmt"
	"strconv"
	"strings"

	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
)

// Diff renders the current and proposed value of every requested field
// as display strings, keyed by the field name as submitted.
func Diff(a *assetspkg.Asset, p *Proposal) (current, proposed map[string]string) {
	current = map[string]string{}
	proposed = map[string]string{}
	for _, sc := range p.Scalars {
		current[sc.Field] = renderCurrentScalar(a, sc.Field)
		proposed[sc.Field] = renderScalar(sc)
	}
	if p.Items == nil {
		return current, proposed
	}
	key := p.Items.FieldName
	if p.Items.Replace != nil {
		current[key] = renderItems(a.Items)
		proposed[key] = renderItems(p.Items.Replace)
		return current, proposed
	}
	patch := p.Items.Patch
	if patch.Index >= 0 && patch.Index < len(a.Items) {
		current[key] = renderItem(a.Items[patch.Index])
	} else {
		current[key] = ""
	}
	if patch.Delete {
		proposed[key] = fmt.Sprintf("Delete item at index %d", patch.Index)
	} else {
		proposed[key] = renderItem(*patch.Item)
	}
	return current, proposed
}

func renderCurrentScalar(a *assetspkg.Asset, field string) string {
	switch field {
	case FieldCategory:
		return a.Category
	case FieldItemName:
		return a.ItemName
	case FieldVendorName:
		return a.VendorName
	case FieldVendorAddress:
		return a.VendorAddress
	case FieldBillNo:
		return a.BillNo
	case FieldRemark:
		return a.Remark
	case FieldBillDate:
		if a.BillDate == nil {
			return ""
		}
		return a.BillDate.Format("1/2/2006")
	case FieldQuantity:
		return formatNumber(a.Quantity)
	case FieldPricePerItem:
		return formatNumber(a.PricePerItem)
	case FieldCGST:
		return formatNumber(a.CGST)
	case FieldSGST:
		return formatNumber(a.SGST)
	}
	return ""
}

func renderScalar(sc ScalarChange) string {
	switch {
	case sc.Text != nil:
		return *sc.Text
	case sc.Number != nil:
		return formatNumber(*sc.Number)
	case sc.Date != nil:
		return sc.Date.Format("1/2/2006")
	}
	return ""
}

func renderItems(items []assetspkg.Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = renderItem(it)
	}
	return strings.Join(parts, ", ")
}

func renderItem(it assetspkg.Item) string {
	return fmt.Sprintf("%s (Qty: %s, Rate: ₹%s)", it.Particulars, formatNumber(it.Quantity), formatNumber(it.Rate))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
