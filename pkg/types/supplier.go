package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupplierStatus is the lifecycle state of a supplier.
type SupplierStatus string

const (
	SupplierStatusActive      SupplierStatus = "ACTIVE"
	SupplierStatusInactive    SupplierStatus = "INACTIVE"
	SupplierStatusBlacklisted SupplierStatus = "BLACKLISTED"
)

// Supplier is a shared, read-only reference entity. The replenishment core
// never mutates suppliers.
type Supplier struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenantId"`
	Name     string         `json:"name"`
	Code     string         `json:"code,omitempty"`
	Status   SupplierStatus `json:"status"`

	Rating             float64 `json:"rating"`             // 0..5
	QualityScore       float64 `json:"qualityScore"`       // 0..100
	OnTimeDeliveryRate float64 `json:"onTimeDeliveryRate"` // 0..100
	LeadTimeDays       int     `json:"leadTimeDays"`

	TotalOrders         int64           `json:"totalOrders"`
	TotalPurchaseAmount decimal.Decimal `json:"totalPurchaseAmount"`
	CreditLimit         decimal.Decimal `json:"creditLimit"` // zero means unlimited
	DiscountPercent     decimal.Decimal `json:"discountPercent"`
	PaymentTerms        string          `json:"paymentTerms,omitempty"`

	ContractStart *time.Time `json:"contractStart,omitempty"`
	ContractEnd   *time.Time `json:"contractEnd,omitempty"`

	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`
	City     string `json:"city,omitempty"`

	LastOrderDate *time.Time `json:"lastOrderDate,omitempty"`
	IsDeleted     bool       `json:"isDeleted"`
}

// CanAcceptOrder reports whether a new order of the given value fits within
// the supplier's credit limit. A zero limit is unlimited.
func (s *Supplier) CanAcceptOrder(orderValue decimal.Decimal) bool {
	if s.CreditLimit.IsZero() {
		return true
	}
	return s.TotalPurchaseAmount.Add(orderValue).LessThanOrEqual(s.CreditLimit)
}

// IsLocal reports whether the supplier ships domestically. A blank country
// is treated as local.
func (s *Supplier) IsLocal() bool {
	return s.Country == "" || s.Country == "Indonesia" || s.Country == "ID"
}
