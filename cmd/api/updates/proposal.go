package updates

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
)

// Scalar fields an officer may propose. Anything outside this set is
// rejected at submission time.
const (
	FieldCategory      = "category"
	FieldItemName      = "itemName"
	FieldVendorName    = "vendorName"
	FieldVendorAddress = "vendorAddress"
	FieldBillNo        = "billNo"
	FieldBillDate      = "billDate"
	FieldQuantity      = "quantity"
	FieldPricePerItem  = "pricePerItem"
	FieldCGST          = "cgst"
	FieldSGST          = "sgst"
	FieldRemark        = "remark"
)

// Item-list edit keys. "items" replaces the whole list; "singleItem"
// patches or deletes one line; "deleteItem" is an accepted alias for a
// singleItem delete.
const (
	FieldItems      = "items"
	FieldSingleItem = "singleItem"
	FieldDeleteItem = "deleteItem"
)

var stringFields = map[string]bool{
	FieldCategory:      true,
	FieldItemName:      true,
	FieldVendorName:    true,
	FieldVendorAddress: true,
	FieldBillNo:        true,
	FieldRemark:        true,
}

var numberFields = map[string]bool{
	FieldQuantity:     true,
	FieldPricePerItem: true,
	FieldCGST:         true,
	FieldSGST:         true,
}

// ScalarChange is one proposed scalar value. Exactly one of Text,
// Number or Date is set, according to the field's type.
type ScalarChange struct {
	Field  string
	Text   *string
	Number *float64
	Date   *time.Time
}

// ItemPatch targets a single line of the item list.
type ItemPatch struct {
	Index  int
	Delete bool
	Item   *assetspkg.Item
}

// ItemsChange is either a full replacement of the item list or a
// one-line patch, never both.
type ItemsChange struct {
	FieldName string
	Replace   []assetspkg.Item
	Patch     *ItemPatch
}

// Proposal is the typed form of a submitted update request.
type Proposal struct {
	Scalars []ScalarChange
	Items   *ItemsChange
}

// FieldNames returns the requested field names in submission order.
func (p *Proposal) FieldNames() []string {
	out := make([]string, 0, len(p.Scalars)+1)
	for _, sc := range p.Scalars {
		out = append(out, sc.Field)
	}
	if p.Items != nil {
		out = append(out, p.Items.FieldName)
	}
	return out
}

// singleItemPayload is the wire form of a singleItem/deleteItem value.
// updatedItem is the canonical key; item is accepted for older clients.
type singleItemPayload struct {
	Index       *int            `json:"itemIndex"`
	Action      string          `json:"action"`
	UpdatedItem json.RawMessage `json:"updatedItem"`
	Item        json.RawMessage `json:"item"`
}

func (p singleItemPayload) itemValue() json.RawMessage {
	if len(p.UpdatedItem) > 0 && string(p.UpdatedItem) != "null" {
		return p.UpdatedItem
	}
	return p.Item
}

// Parse validates requestedFields against tempValues and produces a
// typed Proposal. Every requested field must be known and carry a
// value; the three item keys are mutually exclusive.
func Parse(fields []string, temp map[string]json.RawMessage) (*Proposal, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields requested")
	}
	p := &Proposal{}
	seen := map[string]bool{}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if seen[f] {
			return nil, fmt.Errorf("duplicate field %q", f)
		}
		seen[f] = true
		raw, ok := temp[f]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			return nil, fmt.Errorf("missing value for field %q", f)
		}
		switch {
		case stringFields[f]:
			s, err := decodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f, err)
			}
			if f == FieldCategory && s != "capital" && s != "revenue" {
				return nil, fmt.Errorf("field %q: must be capital or revenue", f)
			}
			p.Scalars = append(p.Scalars, ScalarChange{Field: f, Text: &s})
		case numberFields[f]:
			n, err := decodeNumber(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f, err)
			}
			if n < 0 {
				return nil, fmt.Errorf("field %q: must not be negative", f)
			}
			p.Scalars = append(p.Scalars, ScalarChange{Field: f, Number: &n})
		case f == FieldBillDate:
			s, err := decodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f, err)
			}
			t, err := assetspkg.ParseBillDate(s)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid date %q", f, s)
			}
			p.Scalars = append(p.Scalars, ScalarChange{Field: f, Date: &t})
		case f == FieldItems:
			if p.Items != nil {
				return nil, fmt.Errorf("field %q: conflicting item edits", f)
			}
			var list []assetspkg.Item
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("field %q: %w", f, err)
			}
			for i := range list {
				if strings.TrimSpace(list[i].Particulars) == "" {
					return nil, fmt.Errorf("field %q: item %d missing particulars", f, i)
				}
			}
			p.Items = &ItemsChange{FieldName: f, Replace: list}
		case f == FieldSingleItem || f == FieldDeleteItem:
			if p.Items != nil {
				return nil, fmt.Errorf("field %q: conflicting item edits", f)
			}
			patch, err := parseItemPatch(f, raw)
			if err != nil {
				return nil, err
			}
			p.Items = &ItemsChange{FieldName: f, Patch: patch}
		default:
			return nil, fmt.Errorf("unknown field %q", f)
		}
	}
	return p, nil
}

func parseItemPatch(field string, raw json.RawMessage) (*ItemPatch, error) {
	var in singleItemPayload
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	if in.Index == nil {
		return nil, fmt.Errorf("field %q: itemIndex required", field)
	}
	patch := &ItemPatch{Index: *in.Index}
	if field == FieldDeleteItem || in.Action == "delete" {
		patch.Delete = true
		return patch, nil
	}
	if in.Action != "" && in.Action != "update" {
		return nil, fmt.Errorf("field %q: unknown action %q", field, in.Action)
	}
	rawItem := in.itemValue()
	if len(rawItem) == 0 || string(rawItem) == "null" {
		return nil, fmt.Errorf("field %q: updatedItem payload required", field)
	}
	var it assetspkg.Item
	if err := json.Unmarshal(rawItem, &it); err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	if strings.TrimSpace(it.Particulars) == "" {
		return nil, fmt.Errorf("field %q: item missing particulars", field)
	}
	patch.Item = &it
	return patch, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string")
	}
	return s, nil
}

// decodeNumber accepts both JSON numbers and numeric strings, which is
// how the web client has historically sent money fields.
func decodeNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected number")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", s)
	}
	return n, nil
}
