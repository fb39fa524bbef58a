package types

import "github.com/shopspring/decimal"

// PurchaseOrderPriority maps urgency onto the PO subsystem's priority field.
type PurchaseOrderPriority string

const (
	PriorityNormal PurchaseOrderPriority = "normal"
	PriorityUrgent PurchaseOrderPriority = "urgent"
)

// PurchaseOrderItem is one line of a purchase order draft.
type PurchaseOrderItem struct {
	ProductID       string          `json:"productId"`
	SKU             string          `json:"sku"`
	ProductName     string          `json:"productName"`
	OrderedQuantity int64           `json:"orderedQuantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	Notes           string          `json:"notes,omitempty"`
}

// PurchaseOrderDto is the wire-stable draft handed to the PO subsystem.
// Timestamps are ISO8601 strings in UTC.
type PurchaseOrderDto struct {
	SupplierID            string                `json:"supplierId"`
	Type                  string                `json:"type"` // always "standard"
	Priority              PurchaseOrderPriority `json:"priority"`
	Description           string                `json:"description"`
	Notes                 string                `json:"notes,omitempty"`
	InternalNotes         string                `json:"internalNotes,omitempty"`
	Items                 []PurchaseOrderItem   `json:"items"`
	ExpectedDeliveryDate  string                `json:"expectedDeliveryDate"`
	RequestedDeliveryDate string                `json:"requestedDeliveryDate"`
	PaymentTerms          string                `json:"paymentTerms,omitempty"`
}

// TotalValue sums quantity times unit price across all items.
func (d *PurchaseOrderDto) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, it := range d.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.OrderedQuantity)))
	}
	return total
}

// PurchaseOrder is the weak reference the core holds after creation. The PO
// subsystem owns the full entity.
type PurchaseOrder struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	SupplierID  string          `json:"supplierId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	Approved    bool            `json:"approved"`
}
