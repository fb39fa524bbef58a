package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowTriggerType discriminates the trigger config variants.
type WorkflowTriggerType string

const (
	WorkflowTriggerManual    WorkflowTriggerType = "MANUAL"
	WorkflowTriggerScheduled WorkflowTriggerType = "SCHEDULED"
	WorkflowTriggerEvent     WorkflowTriggerType = "EVENT"
	WorkflowTriggerWebhook   WorkflowTriggerType = "WEBHOOK"
	WorkflowTriggerCondition WorkflowTriggerType = "CONDITION"
	WorkflowTriggerAPI       WorkflowTriggerType = "API"
)

// TriggerConfig is a tagged union over the trigger variants; exactly the
// variant matching Type is populated.
type TriggerConfig struct {
	Type      WorkflowTriggerType     `json:"type"`
	Scheduled *ScheduledTriggerConfig `json:"scheduled,omitempty"`
	Event     *EventTriggerConfig     `json:"event,omitempty"`
	Webhook   *WebhookTriggerConfig   `json:"webhook,omitempty"`
	Condition *ConditionTriggerConfig `json:"condition,omitempty"`
	API       *APITriggerConfig       `json:"api,omitempty"`
}

// ScheduledTriggerConfig fires on a cron timetable.
type ScheduledTriggerConfig struct {
	Cron          string     `json:"cron"`
	Timezone      string     `json:"timezone,omitempty"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	MaxExecutions int        `json:"maxExecutions,omitempty"`
	SkipIfRunning bool       `json:"skipIfRunning,omitempty"`
}

// ConditionOperator compares an event or entity field against a value.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpContains    ConditionOperator = "contains"
	OpIn          ConditionOperator = "in"
	OpBetween     ConditionOperator = "between"
)

// LogicalOp combines multiple conditions.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// FieldCondition is one node of a condition tree. Field is a dot path into
// the payload being evaluated.
type FieldCondition struct {
	Field       string            `json:"field"`
	Operator    ConditionOperator `json:"operator"`
	Value       any               `json:"value"`
	SecondValue any               `json:"secondValue,omitempty"` // for between
}

// EventTriggerConfig fires on bus events matching filters and conditions.
type EventTriggerConfig struct {
	EventType      string           `json:"eventType"`
	Filters        map[string]any   `json:"filters,omitempty"`
	Conditions     []FieldCondition `json:"conditions,omitempty"`
	DebounceMs     int              `json:"debounceMs,omitempty"`
	BatchSize      int              `json:"batchSize,omitempty"`
	BatchTimeoutMs int              `json:"batchTimeoutMs,omitempty"`
}

// WebhookTriggerConfig fires on inbound webhook calls. Secret is the
// HMAC-SHA256 signing key for the raw request body.
type WebhookTriggerConfig struct {
	URL        string `json:"url,omitempty"`
	Secret     string `json:"secret,omitempty"`
	Method     string `json:"method,omitempty"`
	AuthHeader string `json:"authHeader,omitempty"`
}

// ConditionTriggerConfig fires when a polled condition set holds. With
// Persistent the trigger fires on every true evaluation rather than only on
// the false-to-true edge.
type ConditionTriggerConfig struct {
	Conditions         []FieldCondition `json:"conditions"`
	LogicalOp          LogicalOp        `json:"logicalOp"`
	EvaluationInterval time.Duration    `json:"evaluationInterval,omitempty"`
	Persistent         bool             `json:"persistent,omitempty"`
}

// APITriggerConfig fires on polled external API state.
type APITriggerConfig struct {
	Endpoint     string        `json:"endpoint"`
	PollInterval time.Duration `json:"pollInterval,omitempty"`
}

// TriggerEvaluation is the uniform result every trigger variant reduces to.
type TriggerEvaluation struct {
	ShouldTrigger      bool            `json:"shouldTrigger"`
	Reason             string          `json:"reason"`
	Urgency            int             `json:"urgency"` // 0..10
	Confidence         float64         `json:"confidence"`
	EstimatedValue     decimal.Decimal `json:"estimatedValue"`
	Blockers           []string        `json:"blockers,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
	NextEvaluationTime *time.Time      `json:"nextEvaluationTime,omitempty"`
}

// Blocked reports whether any blocker prevents the trigger from firing.
func (e *TriggerEvaluation) Blocked() bool {
	return len(e.Blockers) > 0
}

// Event is a message observed on the event bus.
type Event struct {
	Name       string         `json:"name"`
	TenantID   string         `json:"tenantId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
