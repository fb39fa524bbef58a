package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stokcerdas/replenish/internal/calc"
	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/internal/supplier"
	"github.com/stokcerdas/replenish/internal/trigger"
	"github.com/stokcerdas/replenish/pkg/cache"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ids"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// Monday 17:00 WIB, outside any execution restriction.
var testNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeInventory struct {
	item *types.InventoryItem
	txs  []types.InventoryTransaction
	err  error
}

func (f *fakeInventory) GetItem(ctx context.Context, tenantID, productID, locationID string) (*types.InventoryItem, error) {
	return f.item, f.err
}

func (f *fakeInventory) QueryTransactions(ctx context.Context, tenantID, itemID string, from, to time.Time, txType types.TransactionType) ([]types.InventoryTransaction, error) {
	return f.txs, nil
}

type fakeProducts struct {
	product *types.Product
}

func (f *fakeProducts) GetProduct(ctx context.Context, tenantID, productID string) (*types.Product, error) {
	return f.product, nil
}

type fakeSuppliers struct {
	suppliers []*types.Supplier
}

func (f *fakeSuppliers) Query(ctx context.Context, tenantID string, filters ports.SupplierFilters) ([]*types.Supplier, error) {
	return f.suppliers, nil
}

func (f *fakeSuppliers) AverageUnitCost(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeSuppliers) PurchaseOrderHistory(ctx context.Context, tenantID, supplierID string, limit int) ([]*types.PurchaseOrder, error) {
	return nil, nil
}

type fakeOrders struct {
	mu        sync.Mutex
	created   []*types.PurchaseOrderDto
	approved  []string
	createErr error
	seq       int
}

func (f *fakeOrders) Create(ctx context.Context, tenantID string, dto *types.PurchaseOrderDto, actor string) (*types.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	f.created = append(f.created, dto)
	return &types.PurchaseOrder{
		ID:          "po-1",
		OrderNumber: "PO-2026-001",
		SupplierID:  dto.SupplierID,
		TotalAmount: dto.TotalValue(),
		Status:      "draft",
	}, nil
}

func (f *fakeOrders) Approve(ctx context.Context, tenantID, purchaseOrderID string, req ports.ApprovalRequest, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, purchaseOrderID)
	return nil
}

func (f *fakeOrders) FindRecent(ctx context.Context, tenantID, supplierID, productID string, window time.Duration) ([]*types.PurchaseOrder, error) {
	return nil, nil
}

func (f *fakeOrders) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeNotify struct {
	mu     sync.Mutex
	alerts []ports.Alert
}

func (f *fakeNotify) CreateAlert(ctx context.Context, tenantID string, alert ports.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotify) SendEmail(ctx context.Context, msg ports.EmailMessage) error { return nil }

type fixture struct {
	exec    *Executor
	rules   *store.MemoryRuleRepository
	execs   *store.MemoryExecutionRepository
	orders  *fakeOrders
	notify  *fakeNotify
	costs   *cache.MemoryCache
	invPort *fakeInventory
}

func steadyIssues(now time.Time, days int, qty int64) []types.InventoryTransaction {
	var txs []types.InventoryTransaction
	for i := 1; i <= days; i++ {
		txs = append(txs, types.InventoryTransaction{
			Date:     now.AddDate(0, 0, -i),
			Type:     types.TransactionIssue,
			Quantity: qty,
		})
	}
	return txs
}

func automationRule() *types.ReorderRule {
	return &types.ReorderRule{
		ID:               "rule-1",
		TenantID:         "tenant-1",
		ProductID:        "prod-1",
		LocationID:       "loc-1",
		Name:             "Beverage restock",
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

func testSupplier() *types.Supplier {
	last := testNow.AddDate(0, 0, -10)
	return &types.Supplier{
		ID:                 "sup-1",
		TenantID:           "tenant-1",
		Name:               "PT Sumber Makmur",
		Status:             types.SupplierStatusActive,
		Rating:             4.5,
		QualityScore:       90,
		OnTimeDeliveryRate: 95,
		LeadTimeDays:       5,
		TotalOrders:        40,
		Country:            "Indonesia",
		Province:           "DKI Jakarta",
		LastOrderDate:      &last,
	}
}

func newFixture(t *testing.T, rule *types.ReorderRule, onHand int64) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := fixedClock{testNow}

	rules := store.NewMemoryRuleRepository()
	require.NoError(t, rules.Save(ctx, rule))
	execs := store.NewMemoryExecutionRepository()

	inv := &fakeInventory{
		item: &types.InventoryItem{ID: "item-1", TenantID: "tenant-1", ProductID: "prod-1",
			LocationID: "loc-1", QuantityOnHand: onHand},
		txs: steadyIssues(testNow, 30, 10),
	}
	prods := &fakeProducts{product: &types.Product{
		ID:          "prod-1",
		TenantID:    "tenant-1",
		SKU:         "SKU-1",
		Name:        "Es Teh Botol",
		UnitCost:    decimal.NewFromInt(10000),
		RetailPrice: decimal.NewFromInt(20000),
		WeightKg:    0.5,
	}}
	orders := &fakeOrders{}
	notify := &fakeNotify{}

	costs := cache.New(time.Minute)
	t.Cleanup(func() { costs.Stop() })

	sel := supplier.NewSelector(&fakeSuppliers{suppliers: []*types.Supplier{testSupplier()}},
		costs, clock, supplier.ZoneJakartaMetro)

	x := New(Deps{
		Rules:      rules,
		Executions: execs,
		Inventory:  inv,
		Products:   prods,
		Orders:     orders,
		Notify:     notify,
		Bus:        events.NewMemoryBus(),
		Calculator: calc.NewCalculator(inv, nil, clock),
		Dispatcher: trigger.NewDispatcher(clock, nil),
		Selector:   sel,
		IDs:        ids.New(),
		Clock:      clock,
		Config: config.ExecutorConfig{
			MinExecutionGap:     5 * time.Minute,
			RPCTimeout:          time.Second,
			NotificationTimeout: time.Second,
		},
	})
	return &fixture{exec: x, rules: rules, execs: execs, orders: orders, notify: notify, costs: costs, invPort: inv}
}

func TestExecuteCreatesAndApprovesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 40)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err)
	require.Nil(t, res.Skip)
	require.True(t, res.Created)
	assert.True(t, res.Approved, "fully automated rule with no threshold auto-approves")

	require.NotNil(t, res.PurchaseOrder)
	assert.Equal(t, "sup-1", res.PurchaseOrder.SupplierID)
	assert.True(t, res.PurchaseOrder.Approved)

	exec := res.Execution
	require.NotNil(t, exec)
	assert.Equal(t, types.ExecutionStatusCompleted, exec.Status)
	assert.True(t, exec.Success)
	assert.Equal(t, int64(100), exec.ActualQuantity)
	assert.True(t, exec.OrderValue.Equal(res.PurchaseOrder.TotalAmount))
	require.NotNil(t, exec.SelectedSupplierID)
	assert.Equal(t, "sup-1", *exec.SelectedSupplierID)
	require.NotNil(t, exec.CalculationDetails)
	assert.Contains(t, exec.CalculationDetails.SupplierScores, "sup-1")

	// rule counters persisted
	saved, err := f.rules.Get(ctx, "tenant-1", "rule-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.TotalOrdersGenerated)
	assert.True(t, saved.TotalValueOrdered.Equal(res.PurchaseOrder.TotalAmount))
	require.NotNil(t, saved.LastExecutedAt)
	assert.Equal(t, res.Evaluation.Urgency, saved.LastUrgency)
}

func TestExecuteZeroStockIsUrgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 0)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err)
	require.True(t, res.Created)

	assert.Equal(t, 10, res.Evaluation.Urgency)
	require.Equal(t, 1, f.orders.createdCount())
	assert.Equal(t, types.PriorityUrgent, f.orders.created[0].Priority)

	// urgency 8+ escalates the operator alert to critical
	var critical bool
	for _, a := range f.notify.alerts {
		if a.Type == "reorder_executed" && a.Severity == ports.SeverityCritical {
			critical = true
		}
	}
	assert.True(t, critical)
}

func TestExecuteBudgetExhaustedSkips(t *testing.T) {
	ctx := context.Background()
	rule := automationRule()
	rule.BudgetLimit = decimal.NewFromInt(1000000)
	rule.CurrentMonthSpend = decimal.NewFromInt(950000)
	rule.SpendPeriod = "2026-06"
	f := newFixture(t, rule, 40)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err, "budget exhaustion is a skip, not an error")
	require.NotNil(t, res.Skip)
	assert.Contains(t, res.Skip.Reason, "Insufficient remaining budget")
	assert.Zero(t, f.orders.createdCount())

	require.NotNil(t, res.Execution)
	assert.Equal(t, types.ExecutionStatusSkipped, res.Execution.Status)

	// the skip does not touch the error streak
	saved, err := f.rules.Get(ctx, "tenant-1", "rule-1")
	require.NoError(t, err)
	assert.Zero(t, saved.ConsecutiveErrors)
}

func TestExecuteNotTriggeredSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 5000)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err)
	require.NotNil(t, res.Skip)
	assert.Zero(t, f.orders.createdCount())
	assert.Equal(t, types.ExecutionStatusSkipped, res.Execution.Status)
}

func TestExecuteForceBypassesTrigger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 5000)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1", Force: true})
	require.NoError(t, err)
	assert.Nil(t, res.Skip)
	assert.True(t, res.Created)
}

func TestExecuteQuarantinedRuleSkipsEvenForced(t *testing.T) {
	ctx := context.Background()
	rule := automationRule()
	rule.ConsecutiveErrors = 3
	f := newFixture(t, rule, 40)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1", Force: true})
	require.NoError(t, err)
	require.NotNil(t, res.Skip)
	assert.Contains(t, res.Skip.Reason, "quarantined")
	assert.Zero(t, f.orders.createdCount())
}

func TestExecuteMinimumGap(t *testing.T) {
	ctx := context.Background()
	rule := automationRule()
	recent := testNow.Add(-time.Minute)
	rule.LastExecutedAt = &recent
	f := newFixture(t, rule, 40)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err)
	require.NotNil(t, res.Skip)
	assert.Contains(t, res.Skip.Reason, "minimum gap")

	// Force bypasses the gap
	res, err = f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1", Force: true})
	require.NoError(t, err)
	assert.Nil(t, res.Skip)
	assert.True(t, res.Created)
}

func TestExecuteDryRunLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 40)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1", DryRun: true})
	require.NoError(t, err)
	assert.Nil(t, res.Skip)
	assert.False(t, res.Created)
	assert.Nil(t, res.PurchaseOrder)

	require.NotNil(t, res.Execution)
	assert.Equal(t, types.ExecutionStatusCompleted, res.Execution.Status)
	assert.Equal(t, int64(100), res.Execution.ActualQuantity)

	assert.Zero(t, f.orders.createdCount())
	_, err = f.execs.Get(ctx, "tenant-1", res.Execution.ID)
	assert.Error(t, err, "dry run never persists an execution record")

	saved, err := f.rules.Get(ctx, "tenant-1", "rule-1")
	require.NoError(t, err)
	assert.Zero(t, saved.TotalOrdersGenerated)
	assert.Nil(t, saved.LastExecutedAt)
}

func TestExecuteInventoryFailureCountsAgainstRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 40)
	f.invPort.err = errors.New("inventory service down")

	_, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.Error(t, err)

	saved, gerr := f.rules.Get(ctx, "tenant-1", "rule-1")
	require.NoError(t, gerr)
	assert.Equal(t, 1, saved.ConsecutiveErrors)
	require.NotNil(t, saved.LastErrorMessage)
}

func TestExecuteQuarantineAlertOnThirdFailure(t *testing.T) {
	ctx := context.Background()
	rule := automationRule()
	rule.ConsecutiveErrors = 2
	f := newFixture(t, rule, 40)
	f.invPort.err = errors.New("inventory service down")

	_, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.Error(t, err)

	saved, gerr := f.rules.Get(ctx, "tenant-1", "rule-1")
	require.NoError(t, gerr)
	assert.True(t, saved.IsQuarantined())

	var alerted bool
	for _, a := range f.notify.alerts {
		if a.Type == "reorder_rule_quarantined" && a.Severity == ports.SeverityCritical {
			alerted = true
		}
	}
	assert.True(t, alerted)
}

func TestExecuteResolvesByProductLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, automationRule(), 40)

	res, err := f.exec.Execute(ctx, Request{
		TenantID: "tenant-1", ProductID: "prod-1", LocationID: "loc-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)

	_, err = f.exec.Execute(ctx, Request{TenantID: "tenant-1"})
	assert.Error(t, err, "needs a rule id or product and location")
}

func TestExecuteApprovalThreshold(t *testing.T) {
	ctx := context.Background()
	rule := automationRule()
	rule.AutoApprovalThreshold = decimal.NewFromInt(1000) // far below the order value
	f := newFixture(t, rule, 40)

	res, err := f.exec.Execute(ctx, Request{TenantID: "tenant-1", RuleID: "rule-1"})
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.False(t, res.Approved, "order value above threshold stays manual")
	assert.Empty(t, f.orders.approved)
}
