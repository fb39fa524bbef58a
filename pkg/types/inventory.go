package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is the live stock record for a (tenant, product, location).
type InventoryItem struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenantId"`
	ProductID        string     `json:"productId"`
	LocationID       string     `json:"locationId"`
	QuantityOnHand   int64      `json:"quantityOnHand"`
	QuantityReserved int64      `json:"quantityReserved"`
	LastMovementAt   *time.Time `json:"lastMovementAt,omitempty"`
}

// QuantityAvailable is on-hand stock minus reservations, never negative.
func (i *InventoryItem) QuantityAvailable() int64 {
	avail := i.QuantityOnHand - i.QuantityReserved
	if avail < 0 {
		return 0
	}
	return avail
}

// TransactionType classifies an inventory movement.
type TransactionType string

const (
	TransactionReceipt    TransactionType = "RECEIPT"
	TransactionIssue      TransactionType = "ISSUE"
	TransactionAdjustment TransactionType = "ADJUSTMENT"
	TransactionTransfer   TransactionType = "TRANSFER"
)

// InventoryTransaction is a single stock movement. Outbound (ISSUE)
// transactions feed demand analysis.
type InventoryTransaction struct {
	Date     time.Time       `json:"date"`
	Type     TransactionType `json:"type"`
	Quantity int64           `json:"quantity"`
}

// Product is a shared, read-only reference entity.
type Product struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	WeightKg    float64         `json:"weightKg,omitempty"`
	VolumeM3    float64         `json:"volumeM3,omitempty"`
	IsActive    bool            `json:"isActive"`
}
