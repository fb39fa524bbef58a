package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stokcerdas/replenish/internal/calc"
	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/executor"
	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/internal/supplier"
	"github.com/stokcerdas/replenish/internal/trigger"
	"github.com/stokcerdas/replenish/pkg/cache"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ids"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

var testNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeInventory struct {
	onHand int64

	mu      sync.Mutex
	fetched []string
}

func (f *fakeInventory) GetItem(ctx context.Context, tenantID, productID, locationID string) (*types.InventoryItem, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, productID)
	f.mu.Unlock()
	return &types.InventoryItem{
		ID: "item-" + productID, TenantID: tenantID, ProductID: productID,
		LocationID: locationID, QuantityOnHand: f.onHand,
	}, nil
}

// fetchOrder returns the distinct products in first-fetch order.
func (f *fakeInventory) fetchOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var order []string
	seen := map[string]bool{}
	for _, p := range f.fetched {
		if !seen[p] {
			seen[p] = true
			order = append(order, p)
		}
	}
	return order
}

func (f *fakeInventory) QueryTransactions(ctx context.Context, tenantID, itemID string, from, to time.Time, txType types.TransactionType) ([]types.InventoryTransaction, error) {
	var txs []types.InventoryTransaction
	for i := 1; i <= 30; i++ {
		txs = append(txs, types.InventoryTransaction{
			Date:     testNow.AddDate(0, 0, -i),
			Type:     types.TransactionIssue,
			Quantity: 10,
		})
	}
	return txs, nil
}

type fakeProducts struct{}

func (fakeProducts) GetProduct(ctx context.Context, tenantID, productID string) (*types.Product, error) {
	return &types.Product{
		ID:          productID,
		TenantID:    tenantID,
		SKU:         "SKU-" + productID,
		Name:        "Product " + productID,
		UnitCost:    decimal.NewFromInt(10000),
		RetailPrice: decimal.NewFromInt(20000),
		WeightKg:    0.5,
	}, nil
}

type fakeSuppliers struct{}

func (fakeSuppliers) Query(ctx context.Context, tenantID string, filters ports.SupplierFilters) ([]*types.Supplier, error) {
	last := testNow.AddDate(0, 0, -10)
	return []*types.Supplier{{
		ID: "sup-1", TenantID: tenantID, Name: "PT Sumber Makmur",
		Status: types.SupplierStatusActive, Rating: 4.5, QualityScore: 90,
		OnTimeDeliveryRate: 95, LeadTimeDays: 5, TotalOrders: 40,
		Country: "Indonesia", Province: "DKI Jakarta", LastOrderDate: &last,
	}}, nil
}

func (fakeSuppliers) AverageUnitCost(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (fakeSuppliers) PurchaseOrderHistory(ctx context.Context, tenantID, supplierID string, limit int) ([]*types.PurchaseOrder, error) {
	return nil, nil
}

type fakeOrders struct {
	mu  sync.Mutex
	seq int
}

func (f *fakeOrders) Create(ctx context.Context, tenantID string, dto *types.PurchaseOrderDto, actor string) (*types.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &types.PurchaseOrder{
		ID: "po-" + dto.SupplierID, OrderNumber: "PO-001", SupplierID: dto.SupplierID,
		TotalAmount: dto.TotalValue(), Status: "draft",
	}, nil
}

func (f *fakeOrders) Approve(ctx context.Context, tenantID, purchaseOrderID string, req ports.ApprovalRequest, actor string) error {
	return nil
}

func (f *fakeOrders) FindRecent(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) ([]*types.PurchaseOrder, error) {
	return nil, nil
}

type fakeNotify struct{}

func (fakeNotify) CreateAlert(ctx context.Context, tenantID string, alert ports.Alert) error {
	return nil
}
func (fakeNotify) SendEmail(ctx context.Context, msg ports.EmailMessage) error { return nil }

func engineRule(id, productID string) *types.ReorderRule {
	return &types.ReorderRule{
		ID:               id,
		TenantID:         "tenant-1",
		ProductID:        productID,
		LocationID:       "loc-1",
		Name:             "Rule " + id,
		RuleType:         types.RuleTypeFixedQuantity,
		Trigger:          types.TriggerStockLevel,
		Status:           types.RuleStatusActive,
		IsActive:         true,
		ReorderPoint:     50,
		ReorderQuantity:  100,
		LeadTimeDays:     7,
		ServiceLevel:     0.95,
		UnitCost:         decimal.NewFromInt(10000),
		MaxRetryAttempts: 3,
		IsFullyAutomated: true,
	}
}

func newEngine(t *testing.T, bus ports.EventBus, rules ...*types.ReorderRule) (*Engine, *store.MemoryRuleRepository) {
	t.Helper()
	return newEngineWith(t, bus, &fakeInventory{onHand: 40}, config.EngineConfig{
		BatchSize:              3,
		MaxConcurrentPerTenant: 5,
		WorkerPoolSize:         4,
		QueueWarnDepth:         100,
	}, rules...)
}

func newEngineWith(t *testing.T, bus ports.EventBus, inv *fakeInventory, cfg config.EngineConfig, rules ...*types.ReorderRule) (*Engine, *store.MemoryRuleRepository) {
	t.Helper()
	ctx := context.Background()
	clock := fixedClock{testNow}

	repo := store.NewMemoryRuleRepository()
	for _, r := range rules {
		require.NoError(t, repo.Save(ctx, r))
	}

	costs := cache.New(time.Minute)
	t.Cleanup(func() { costs.Stop() })

	sel := supplier.NewSelector(fakeSuppliers{}, costs, clock, supplier.ZoneJakartaMetro)

	x := executor.New(executor.Deps{
		Rules:      repo,
		Executions: store.NewMemoryExecutionRepository(),
		Inventory:  inv,
		Products:   fakeProducts{},
		Orders:     &fakeOrders{},
		Notify:     fakeNotify{},
		Bus:        bus,
		Calculator: calc.NewCalculator(inv, nil, clock),
		Dispatcher: trigger.NewDispatcher(clock, nil),
		Selector:   sel,
		IDs:        ids.New(),
		Clock:      clock,
		Config: config.ExecutorConfig{
			RPCTimeout:          time.Second,
			NotificationTimeout: time.Second,
		},
	})

	e := New(repo, x, bus, clock, cfg)
	t.Cleanup(e.Stop)
	return e, repo
}

func TestProcessTenantExecutesEligibleRules(t *testing.T) {
	bus := events.NewMemoryBus()
	e, _ := newEngine(t, bus,
		engineRule("rule-1", "prod-1"),
		engineRule("rule-2", "prod-2"))

	report, err := e.ProcessTenant(context.Background(), "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Metrics.TotalRulesProcessed)
	assert.Equal(t, 2, report.Metrics.TriggeredRules)
	assert.Equal(t, 2, report.Metrics.SuccessfulExecutions)
	assert.Zero(t, report.Metrics.FailedExecutions)
	assert.True(t, report.Metrics.TotalValueGenerated.IsPositive())
	assert.Equal(t, 1.0, report.Metrics.SystemEfficiency)
}

func TestProcessTenantIsolatesQuarantinedRule(t *testing.T) {
	quarantined := engineRule("rule-bad", "prod-bad")
	quarantined.ConsecutiveErrors = 3

	bus := events.NewMemoryBus()
	e, _ := newEngine(t, bus, quarantined, engineRule("rule-good", "prod-good"))

	report, err := e.ProcessTenant(context.Background(), "tenant-1")
	require.NoError(t, err)

	require.Len(t, report.Skips, 1)
	assert.Equal(t, "rule-bad", report.Skips[0].RuleID)
	assert.Contains(t, report.Skips[0].Reason, "quarantined after 3 consecutive errors")

	// the healthy rule still executes
	assert.Equal(t, 1, report.Metrics.SuccessfulExecutions)
	assert.Equal(t, 1, report.Metrics.SkippedRules)
}

func TestProcessTenantFollowsPlanOrder(t *testing.T) {
	routine := engineRule("rule-a-routine", "prod-routine")
	routine.LastUrgency = 2
	urgent := engineRule("rule-b-urgent", "prod-urgent")
	urgent.LastUrgency = 9

	// serial execution so the fetch order mirrors the dispatch order
	inv := &fakeInventory{onHand: 40}
	bus := events.NewMemoryBus()
	e, _ := newEngineWith(t, bus, inv, config.EngineConfig{
		BatchSize:              1,
		MaxConcurrentPerTenant: 1,
		WorkerPoolSize:         1,
		QueueWarnDepth:         100,
	}, routine, urgent)

	report, err := e.ProcessTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Metrics.SuccessfulExecutions)

	// the urgent rule runs first despite sorting after rule-a-routine by id
	assert.Equal(t, []string{"prod-urgent", "prod-routine"}, inv.fetchOrder())
}

func TestProcessTenantSkipsRecentlyErroredRule(t *testing.T) {
	errored := engineRule("rule-errored", "prod-err")
	errored.ConsecutiveErrors = 1
	lastErr := testNow.Add(-30 * time.Second)
	errored.LastErrorAt = &lastErr

	bus := events.NewMemoryBus()
	e, _ := newEngine(t, bus, errored, engineRule("rule-good", "prod-good"))

	report, err := e.ProcessTenant(context.Background(), "tenant-1")
	require.NoError(t, err)

	require.Len(t, report.Skips, 1)
	assert.Equal(t, "rule-errored", report.Skips[0].RuleID)
	assert.Contains(t, report.Skips[0].Reason, "cooling down")
	assert.Equal(t, 1, report.Metrics.SuccessfulExecutions)
	assert.Equal(t, 1, report.Metrics.SkippedRules)
}

func TestProcessTenantRejectsOverlappingRun(t *testing.T) {
	bus := events.NewMemoryBus()
	e, _ := newEngine(t, bus, engineRule("rule-1", "prod-1"))

	e.lockFlag("tenant-1").Store(true)
	_, err := e.ProcessTenant(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, ErrTenantBusy)

	// a different tenant is unaffected
	report, err := e.ProcessTenant(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Zero(t, report.Metrics.TotalRulesProcessed)

	// releasing the flag lets the tenant run again
	e.lockFlag("tenant-1").Store(false)
	_, err = e.ProcessTenant(context.Background(), "tenant-1")
	assert.NoError(t, err)
}

func TestProcessTenantPublishesMetrics(t *testing.T) {
	bus := events.NewMemoryBus()
	var published []types.Event
	_, err := bus.Subscribe(events.EventEngineMetrics, func(evt types.Event) {
		published = append(published, evt)
	})
	require.NoError(t, err)

	e, _ := newEngine(t, bus, engineRule("rule-1", "prod-1"))
	_, err = e.ProcessTenant(context.Background(), "tenant-1")
	require.NoError(t, err)

	require.Len(t, published, 1)
	assert.Equal(t, "tenant-1", published[0].TenantID)
	assert.Equal(t, 1, published[0].Payload["successfulExecutions"])
}

func TestProcessTenantSkipsPausedRule(t *testing.T) {
	paused := engineRule("rule-1", "prod-1")
	paused.IsPaused = true
	paused.PauseReason = "stocktake in progress"

	bus := events.NewMemoryBus()
	e, _ := newEngine(t, bus, paused)

	report, err := e.ProcessTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, report.Skips, 1)
	assert.Contains(t, report.Skips[0].Reason, "stocktake in progress")
	assert.Zero(t, report.Metrics.SuccessfulExecutions)
}

func TestBuildPlanOrdering(t *testing.T) {
	low := PlannedRule{Rule: engineRule("rule-low", "p1"), Urgency: 2, Confidence: 1.0,
		Estimated: decimal.NewFromInt(100000)}
	high := PlannedRule{Rule: engineRule("rule-high", "p2"), Urgency: 9, Confidence: 1.0,
		Estimated: decimal.NewFromInt(500000)}
	shaky := PlannedRule{Rule: engineRule("rule-shaky", "p3"), Urgency: 5, Confidence: 0.4,
		Estimated: decimal.NewFromInt(200000)}

	plan := BuildPlan("tenant-1", []PlannedRule{low, high, shaky}, decimal.NewFromInt(400000), 10)

	require.Len(t, plan.Rules, 3)
	assert.Equal(t, "rule-high", plan.Rules[0].Rule.ID)
	assert.Equal(t, "800000", plan.TotalEstimatedValue.String())

	// urgency 9 and confidence 0.4 both flag as high risk
	assert.ElementsMatch(t, []string{"rule-high", "rule-shaky"}, plan.HighRiskRules)

	// 800000 over a 400000 budget caps the risk at 1
	assert.Equal(t, 1.0, plan.BudgetExceedanceRisk)
	assert.InDelta(t, 0.1, plan.SystemOverloadRisk, 0.001)
}

func TestBuildPlanUnlimitedBudget(t *testing.T) {
	pr := PlannedRule{Rule: engineRule("rule-1", "p1"), Urgency: 5, Confidence: 1.0,
		Estimated: decimal.NewFromInt(100000)}
	plan := BuildPlan("tenant-1", []PlannedRule{pr}, decimal.NewFromInt(-1), 0)
	assert.Zero(t, plan.BudgetExceedanceRisk)
	assert.Zero(t, plan.SystemOverloadRisk)
}

func TestBuildTenantPlan(t *testing.T) {
	urgent := engineRule("rule-urgent", "prod-1")
	urgent.LastUrgency = 9
	routine := engineRule("rule-routine", "prod-2")
	routine.LastUrgency = 2

	bus := events.NewMemoryBus()
	e, _ := newEngine(t, bus, urgent, routine)

	plan, err := e.BuildTenantPlan(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, plan.Rules, 2)
	assert.Equal(t, "rule-urgent", plan.Rules[0].Rule.ID)
	assert.Contains(t, plan.HighRiskRules, "rule-urgent")
}
