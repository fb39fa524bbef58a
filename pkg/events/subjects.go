package events

// Event names published and consumed by the replenishment core. Names double
// as NATS subjects; dots delimit the hierarchy.
const (
	EventStockLevelChanged        = "inventory.stock_level_changed"
	EventProductCreated           = "product.created"
	EventPurchaseOrderApproved    = "purchase_order.approved"
	EventSystemMaintenance        = "system.maintenance"
	EventReorderExecuted          = "automation.reorder.executed"
	EventPurchaseOrderCreated     = "automation.purchase-order.created"
	EventEngineMetrics            = "automation.engine.metrics"
	EventScheduleFailed           = "automation.schedule.failed"
	EventWebhookReceived          = "automation.webhook.received"
	EventSystemAlert              = "automation.system.alert"
)
