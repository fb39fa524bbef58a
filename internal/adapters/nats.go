// Package adapters implements the outbound ports over NATS request/reply to
// the surrounding platform services. Each call is one JSON round trip; NATS
// timeouts surface as transient port errors so the executor retries them.
package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// RPC subjects served by the platform.
const (
	subjInventoryGetItem  = "rpc.inventory.get_item"
	subjInventoryTxQuery  = "rpc.inventory.query_transactions"
	subjProductGet        = "rpc.product.get"
	subjSupplierQuery     = "rpc.supplier.query"
	subjSupplierAvgCost   = "rpc.supplier.average_unit_cost"
	subjSupplierPOHistory = "rpc.supplier.po_history"
	subjPOCreate          = "rpc.purchase_order.create"
	subjPOApprove         = "rpc.purchase_order.approve"
	subjPOFindRecent      = "rpc.purchase_order.find_recent"
	subjForecastGenerate  = "rpc.forecast.generate"
	subjAlertCreate       = "rpc.notification.create_alert"
	subjEmailSend         = "rpc.notification.send_email"
)

// Platform bundles every outbound port backed by one NATS connection.
type Platform struct {
	bus *events.NATSBus
}

// NewPlatform wraps the bus.
func NewPlatform(bus *events.NATSBus) *Platform {
	return &Platform{bus: bus}
}

// call wraps the round trip, classifying timeouts as transient.
func (p *Platform) call(ctx context.Context, subject string, req, resp any) error {
	err := p.bus.Request(ctx, subject, req, resp)
	if err == nil {
		return nil
	}
	transient := errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, context.DeadlineExceeded)
	return types.NewPortError(transient, "platform call "+subject, err)
}

type itemRequest struct {
	TenantID   string `json:"tenantId"`
	ProductID  string `json:"productId"`
	LocationID string `json:"locationId"`
}

// GetItem implements ports.InventoryPort.
func (p *Platform) GetItem(ctx context.Context, tenantID, productID, locationID string) (*types.InventoryItem, error) {
	var item types.InventoryItem
	err := p.call(ctx, subjInventoryGetItem,
		itemRequest{TenantID: tenantID, ProductID: productID, LocationID: locationID}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type txQueryRequest struct {
	TenantID string                `json:"tenantId"`
	ItemID   string                `json:"itemId"`
	From     time.Time             `json:"from"`
	To       time.Time             `json:"to"`
	Type     types.TransactionType `json:"type"`
}

// QueryTransactions implements ports.InventoryPort.
func (p *Platform) QueryTransactions(ctx context.Context, tenantID, itemID string, from, to time.Time, txType types.TransactionType) ([]types.InventoryTransaction, error) {
	var txs []types.InventoryTransaction
	err := p.call(ctx, subjInventoryTxQuery,
		txQueryRequest{TenantID: tenantID, ItemID: itemID, From: from, To: to, Type: txType}, &txs)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

type productRequest struct {
	TenantID  string `json:"tenantId"`
	ProductID string `json:"productId"`
}

// GetProduct implements ports.ProductPort.
func (p *Platform) GetProduct(ctx context.Context, tenantID, productID string) (*types.Product, error) {
	var product types.Product
	err := p.call(ctx, subjProductGet, productRequest{TenantID: tenantID, ProductID: productID}, &product)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

type supplierQueryRequest struct {
	TenantID string                `json:"tenantId"`
	Filters  ports.SupplierFilters `json:"filters"`
}

// Query implements ports.SupplierPort.
func (p *Platform) Query(ctx context.Context, tenantID string, filters ports.SupplierFilters) ([]*types.Supplier, error) {
	var suppliers []*types.Supplier
	err := p.call(ctx, subjSupplierQuery, supplierQueryRequest{TenantID: tenantID, Filters: filters}, &suppliers)
	if err != nil {
		return nil, err
	}
	return suppliers, nil
}

type avgCostRequest struct {
	TenantID   string `json:"tenantId"`
	SupplierID string `json:"supplierId"`
	ProductID  string `json:"productId"`
	WindowDays int    `json:"windowDays"`
}

// AverageUnitCost implements ports.SupplierPort.
func (p *Platform) AverageUnitCost(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) (decimal.Decimal, error) {
	var resp struct {
		AverageUnitCost decimal.Decimal `json:"averageUnitCost"`
	}
	err := p.call(ctx, subjSupplierAvgCost, avgCostRequest{
		TenantID:   tenantID,
		SupplierID: supplierID,
		ProductID:  productID,
		WindowDays: int(window.Hours() / 24),
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}
	return resp.AverageUnitCost, nil
}

type poHistoryRequest struct {
	TenantID   string `json:"tenantId"`
	SupplierID string `json:"supplierId"`
	Limit      int    `json:"limit"`
}

// PurchaseOrderHistory implements ports.SupplierPort.
func (p *Platform) PurchaseOrderHistory(ctx context.Context, tenantID, supplierID string, limit int) ([]*types.PurchaseOrder, error) {
	var pos []*types.PurchaseOrder
	err := p.call(ctx, subjSupplierPOHistory,
		poHistoryRequest{TenantID: tenantID, SupplierID: supplierID, Limit: limit}, &pos)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

type poCreateRequest struct {
	TenantID string                  `json:"tenantId"`
	Dto      *types.PurchaseOrderDto `json:"dto"`
	Actor    string                  `json:"actor"`
}

// Create implements ports.PurchaseOrderPort.
func (p *Platform) Create(ctx context.Context, tenantID string, dto *types.PurchaseOrderDto, actor string) (*types.PurchaseOrder, error) {
	var po types.PurchaseOrder
	err := p.call(ctx, subjPOCreate, poCreateRequest{TenantID: tenantID, Dto: dto, Actor: actor}, &po)
	if err != nil {
		return nil, err
	}
	return &po, nil
}

type poApproveRequest struct {
	TenantID        string `json:"tenantId"`
	PurchaseOrderID string `json:"purchaseOrderId"`
	Comments        string `json:"comments,omitempty"`
	Actor           string `json:"actor"`
}

// Approve implements ports.PurchaseOrderPort.
func (p *Platform) Approve(ctx context.Context, tenantID, purchaseOrderID string, req ports.ApprovalRequest, actor string) error {
	return p.call(ctx, subjPOApprove, poApproveRequest{
		TenantID:        tenantID,
		PurchaseOrderID: purchaseOrderID,
		Comments:        req.Comments,
		Actor:           actor,
	}, nil)
}

type poFindRecentRequest struct {
	TenantID   string `json:"tenantId"`
	SupplierID string `json:"supplierId"`
	ProductID  string `json:"productId"`
	WindowSec  int64  `json:"windowSec"`
}

// FindRecent implements ports.PurchaseOrderPort.
func (p *Platform) FindRecent(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) ([]*types.PurchaseOrder, error) {
	var pos []*types.PurchaseOrder
	err := p.call(ctx, subjPOFindRecent, poFindRecentRequest{
		TenantID:   tenantID,
		SupplierID: supplierID,
		ProductID:  productID,
		WindowSec:  int64(window.Seconds()),
	}, &pos)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

type forecastRequest struct {
	TenantID string                `json:"tenantId"`
	Request  ports.ForecastRequest `json:"request"`
}

// GenerateDemandForecast implements ports.ForecastPort.
func (p *Platform) GenerateDemandForecast(ctx context.Context, tenantID string, req ports.ForecastRequest) (*ports.ForecastResult, error) {
	var result ports.ForecastResult
	err := p.call(ctx, subjForecastGenerate, forecastRequest{TenantID: tenantID, Request: req}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type alertRequest struct {
	TenantID string      `json:"tenantId"`
	Alert    ports.Alert `json:"alert"`
}

// CreateAlert implements ports.NotificationPort.
func (p *Platform) CreateAlert(ctx context.Context, tenantID string, alert ports.Alert) error {
	return p.call(ctx, subjAlertCreate, alertRequest{TenantID: tenantID, Alert: alert}, nil)
}

// SendEmail implements ports.NotificationPort.
func (p *Platform) SendEmail(ctx context.Context, msg ports.EmailMessage) error {
	return p.call(ctx, subjEmailSend, msg, nil)
}
