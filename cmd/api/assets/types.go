package assets

import (
	"encoding/json"
	"time"
)

// Update request lifecycle states carried on the asset row.
const (
	StatusNone     = "none"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Item is one line of an itemized bill. Amount and GrandTotal are
// derived and recomputed server-side whenever the item changes.
type Item struct {
	Particulars string  `json:"particulars"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	CGST        float64 `json:"cgst"`
	SGST        float64 `json:"sgst"`
	Amount      float64 `json:"amount"`
	GrandTotal  float64 `json:"grandTotal"`
}

// Asset is a material inward record. Workflow columns track at most one
// pending update request at a time.
type Asset struct {
	ID            string     `json:"id"`
	DepartmentID  *string    `json:"departmentId,omitempty"`
	Category      string     `json:"category"`
	ItemName      string     `json:"itemName"`
	VendorName    string     `json:"vendorName"`
	VendorAddress string     `json:"vendorAddress"`
	BillNo        string     `json:"billNo"`
	BillDate      *time.Time `json:"billDate,omitempty"`
	Quantity      float64    `json:"quantity"`
	PricePerItem  float64    `json:"pricePerItem"`
	TotalAmount   float64    `json:"totalAmount"`
	CGST          float64    `json:"cgst"`
	SGST          float64    `json:"sgst"`
	GrandTotal    float64    `json:"grandTotal"`
	Remark        string     `json:"remark"`
	Items         []Item     `json:"items"`

	UpdateRequestStatus string          `json:"updateRequestStatus"`
	RequestedFields     []string        `json:"requestedFields,omitempty"`
	TempValues          json.RawMessage `json:"tempValues,omitempty"`
	RequestedBy         *string         `json:"requestedBy,omitempty"`
	RequestedAt         *time.Time      `json:"requestedAt,omitempty"`
	ReviewedBy          *string         `json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time      `json:"reviewedAt,omitempty"`
	AdminRemarks        string          `json:"adminRemarks,omitempty"`

	CreatedBy *string   `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
