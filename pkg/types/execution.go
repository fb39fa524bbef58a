package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the lifecycle state of a single execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// CalculationDetails is the persisted snapshot of the reorder calculation.
// The JSON field names are a stable wire surface consumed by the outer app.
type CalculationDetails struct {
	CurrentStock   int64              `json:"currentStock"`
	ReorderPoint   int64              `json:"reorderPoint"`
	LeadTimeDemand float64            `json:"leadTimeDemand"`
	SafetyStock    int64              `json:"safetyStock"`
	ForecastDemand *float64           `json:"forecastDemand,omitempty"`
	EOQCalculation *int64             `json:"eoqCalculation,omitempty"`
	SeasonalFactor *float64           `json:"seasonalFactor,omitempty"`
	SupplierScores map[string]float64 `json:"supplierScores"`
}

// ReorderExecution is the append-only audit record of one evaluation
// attempt. Rows are immutable once Success is true; a pending row may be
// overwritten by a retry carrying the same execution id.
type ReorderExecution struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	ReorderRuleID string `json:"reorderRuleId"`

	ExecutedAt time.Time       `json:"executedAt"`
	Status     ExecutionStatus `json:"status"`
	Success    bool            `json:"success"`

	TriggeredQuantity   int64           `json:"triggeredQuantity"`
	RecommendedQuantity int64           `json:"recommendedQuantity"`
	ActualQuantity      int64           `json:"actualQuantity"`
	OrderValue          decimal.Decimal `json:"orderValue"`

	SelectedSupplierID *string `json:"selectedSupplierId,omitempty"`
	PurchaseOrderID    *string `json:"purchaseOrderId,omitempty"`

	TriggerReason string  `json:"triggerReason"`
	ErrorMessage  *string `json:"errorMessage,omitempty"`

	CalculationDetails *CalculationDetails `json:"calculationDetails,omitempty"`
	ExecutionTimeMs    int64               `json:"executionTimeMs"`
}

// Fail marks the execution as failed with a message.
func (e *ReorderExecution) Fail(msg string) {
	e.Success = false
	e.Status = ExecutionStatusFailed
	e.ErrorMessage = &msg
}

// Skip marks the execution as a non-error skip.
func (e *ReorderExecution) Skip(reason string) {
	e.Success = false
	e.Status = ExecutionStatusSkipped
	e.ErrorMessage = &reason
}

// Complete marks the execution as successful.
func (e *ReorderExecution) Complete() {
	e.Success = true
	e.Status = ExecutionStatusCompleted
	e.ErrorMessage = nil
}
