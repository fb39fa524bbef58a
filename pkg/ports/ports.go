// Package ports declares the narrow interfaces the replenishment core
// consumes. Implementations live in the outer application; in-memory
// versions for tests and embedded use live under internal/store and
// pkg/events.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stokcerdas/replenish/pkg/types"
)

// InventoryPort reads live stock and movement history.
type InventoryPort interface {
	GetItem(ctx context.Context, tenantID, productID, locationID string) (*types.InventoryItem, error)
	// QueryTransactions returns movements of the given type between from and
	// to, oldest first.
	QueryTransactions(ctx context.Context, tenantID, itemID string, from, to time.Time, txType types.TransactionType) ([]types.InventoryTransaction, error)
}

// ProductPort reads product reference data.
type ProductPort interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*types.Product, error)
}

// SupplierFilters narrows a supplier query.
type SupplierFilters struct {
	IDs        []string
	Status     types.SupplierStatus
	ExcludeIDs []string
}

// SupplierPort reads supplier reference data and purchase history.
type SupplierPort interface {
	Query(ctx context.Context, tenantID string, filters SupplierFilters) ([]*types.Supplier, error)
	// AverageUnitCost returns the weighted average unit cost the supplier
	// charged for the product over the window, or zero if no history.
	AverageUnitCost(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) (decimal.Decimal, error)
	// PurchaseOrderHistory returns up to limit recent POs for the supplier.
	PurchaseOrderHistory(ctx context.Context, tenantID, supplierID string, limit int) ([]*types.PurchaseOrder, error)
}

// ApprovalRequest carries approval metadata to the PO subsystem.
type ApprovalRequest struct {
	Comments string
}

// PurchaseOrderPort creates and approves purchase orders. The PO subsystem
// owns the entities; the core only holds ids.
type PurchaseOrderPort interface {
	Create(ctx context.Context, tenantID string, dto *types.PurchaseOrderDto, actor string) (*types.PurchaseOrder, error)
	Approve(ctx context.Context, tenantID, purchaseOrderID string, req ApprovalRequest, actor string) error
	// FindRecent returns POs created for the supplier and product within the
	// window, newest first.
	FindRecent(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) ([]*types.PurchaseOrder, error)
}

// ForecastRequest asks the forecasting service for a demand projection.
type ForecastRequest struct {
	ProductID   string
	LocationID  string
	HorizonDays int
	IncludeCI   bool
	Granularity string // "daily" unless overridden
}

// ForecastPoint is one step of a forecast time series.
type ForecastPoint struct {
	Date            time.Time `json:"date"`
	PredictedDemand float64   `json:"predictedDemand"`
	LowerBound      float64   `json:"lowerBound,omitempty"`
	UpperBound      float64   `json:"upperBound,omitempty"`
}

// ForecastResult is the forecasting service response.
type ForecastResult struct {
	Success           bool            `json:"success"`
	TimeSeries        []ForecastPoint `json:"timeSeries"`
	OverallConfidence float64         `json:"overallConfidence"`
}

// TotalDemand sums predicted demand across the series.
func (f *ForecastResult) TotalDemand() float64 {
	var total float64
	for _, p := range f.TimeSeries {
		total += p.PredictedDemand
	}
	return total
}

// ForecastPort calls the ML forecasting service.
type ForecastPort interface {
	GenerateDemandForecast(ctx context.Context, tenantID string, req ForecastRequest) (*ForecastResult, error)
}

// AlertSeverity ranks notifications.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is an operator-visible notification.
type Alert struct {
	Type       string
	Severity   AlertSeverity
	Title      string
	Message    string
	Metadata   map[string]any
	ProductID  string
	LocationID string
}

// EmailMessage is an outbound email.
type EmailMessage struct {
	To      []string
	Subject string
	Text    string
}

// NotificationPort delivers alerts and email.
type NotificationPort interface {
	CreateAlert(ctx context.Context, tenantID string, alert Alert) error
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// EventHandler consumes bus events. An alias so implementations can declare
// the literal func type.
type EventHandler = func(evt types.Event)

// EventBus publishes and subscribes to named events.
type EventBus interface {
	Publish(ctx context.Context, evt types.Event) error
	Subscribe(name string, handler EventHandler) (func(), error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity and execution ids.
type IDGenerator interface {
	NewID() string
	NewExecutionID() string
}

// RuleRepository persists reorder rules. Writers are serialized per
// (tenant, rule) by the implementation.
type RuleRepository interface {
	Get(ctx context.Context, tenantID, ruleID string) (*types.ReorderRule, error)
	FindByProductLocation(ctx context.Context, tenantID, productID, locationID string) (*types.ReorderRule, error)
	ListActive(ctx context.Context, tenantID string) ([]*types.ReorderRule, error)
	ListScheduledDue(ctx context.Context, now time.Time) ([]*types.ReorderRule, error)
	Save(ctx context.Context, rule *types.ReorderRule) error
}

// ExecutionRepository persists the append-only execution audit trail.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *types.ReorderExecution) error
	// Update overwrites a row only while its Success flag is false.
	Update(ctx context.Context, exec *types.ReorderExecution) error
	Get(ctx context.Context, tenantID, executionID string) (*types.ReorderExecution, error)
	ListByRule(ctx context.Context, tenantID, ruleID string, limit int) ([]*types.ReorderExecution, error)
	// LatestUnfinished returns the most recent non-terminal execution for the
	// rule, if any. Used to reconstruct in-flight state after restart.
	LatestUnfinished(ctx context.Context, tenantID, ruleID string) (*types.ReorderExecution, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// ScheduleRepository persists automation schedules.
type ScheduleRepository interface {
	ListDue(ctx context.Context, now time.Time) ([]*types.AutomationSchedule, error)
	ListAll(ctx context.Context) ([]*types.AutomationSchedule, error)
	Save(ctx context.Context, schedule *types.AutomationSchedule) error
}

// RealClock is the production Clock.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
