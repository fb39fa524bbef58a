package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RuleType determines how the order quantity is computed.
type RuleType string

const (
	RuleTypeFixedQuantity RuleType = "FIXED_QUANTITY"
	RuleTypeEOQ           RuleType = "EOQ"
	RuleTypeMinMax        RuleType = "MIN_MAX"
	RuleTypeDemandBased   RuleType = "DEMAND_BASED"
	RuleTypeSeasonal      RuleType = "SEASONAL"
)

// RuleTrigger determines when a rule is evaluated.
type RuleTrigger string

const (
	TriggerStockLevel     RuleTrigger = "STOCK_LEVEL"
	TriggerDaysOfSupply   RuleTrigger = "DAYS_OF_SUPPLY"
	TriggerScheduled      RuleTrigger = "SCHEDULED"
	TriggerDemandForecast RuleTrigger = "DEMAND_FORECAST"
	TriggerCombined       RuleTrigger = "COMBINED"
)

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	RuleStatusActive    RuleStatus = "ACTIVE"
	RuleStatusInactive  RuleStatus = "INACTIVE"
	RuleStatusSuspended RuleStatus = "SUSPENDED"
	RuleStatusExpired   RuleStatus = "EXPIRED"
)

// SelectionMethod determines how a supplier is chosen for a reorder.
type SelectionMethod string

const (
	SelectionPrimary         SelectionMethod = "PRIMARY"
	SelectionBalanced        SelectionMethod = "BALANCED"
	SelectionCostOptimal     SelectionMethod = "COST_OPTIMAL"
	SelectionQualityOptimal  SelectionMethod = "QUALITY_OPTIMAL"
	SelectionDeliveryOptimal SelectionMethod = "DELIVERY_OPTIMAL"
)

// SelectionWeights are the per-dimension weights for supplier scoring.
// Weights should sum to 1.0.
type SelectionWeights struct {
	Cost        float64 `json:"cost"`
	Quality     float64 `json:"quality"`
	Delivery    float64 `json:"delivery"`
	Reliability float64 `json:"reliability"`
}

// ReorderRule is the per-(tenant, product, location) replenishment policy.
// The (TenantID, ProductID, LocationID) triple is unique per rule.
type ReorderRule struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	ProductID  string `json:"productId"`
	LocationID string `json:"locationId"`
	Name       string `json:"name"`

	RuleType RuleType    `json:"ruleType"`
	Trigger  RuleTrigger `json:"trigger"`
	Status   RuleStatus  `json:"status"`
	IsActive bool        `json:"isActive"`

	// Stock thresholds, in units.
	ReorderPoint     int64 `json:"reorderPoint"`
	ReorderQuantity  int64 `json:"reorderQuantity"`
	MinStockLevel    int64 `json:"minStockLevel"`
	MaxStockLevel    int64 `json:"maxStockLevel"`
	MinOrderQuantity int64 `json:"minOrderQuantity"`
	MaxOrderQuantity int64 `json:"maxOrderQuantity"`

	SafetyStockDays int `json:"safetyStockDays"`
	LeadTimeDays    int `json:"leadTimeDays"`

	// EOQ inputs. HoldingCostRate is a percentage of unit cost per year.
	AnnualDemand    int64           `json:"annualDemand"`
	OrderingCost    decimal.Decimal `json:"orderingCost"`
	HoldingCostRate decimal.Decimal `json:"holdingCostRate"`
	UnitCost        decimal.Decimal `json:"unitCost"`

	// Demand analysis parameters. ServiceLevel is in [0,1].
	DemandLookbackDays int     `json:"demandLookbackDays"`
	DemandMultiplier   float64 `json:"demandMultiplier"`
	ServiceLevel       float64 `json:"serviceLevel"`

	// Forecast parameters.
	UseForecasting              bool    `json:"useForecasting"`
	ForecastHorizonDays         int     `json:"forecastHorizonDays"`
	ForecastConfidenceThreshold float64 `json:"forecastConfidenceThreshold"`

	// Supplier selection.
	SupplierSelectionMethod SelectionMethod   `json:"supplierSelectionMethod"`
	PrimarySupplierID       string            `json:"primarySupplierId,omitempty"`
	AllowedSupplierIDs      []string          `json:"allowedSupplierIds,omitempty"`
	SupplierWeights         *SelectionWeights `json:"supplierWeights,omitempty"`

	// Budget gating. A zero BudgetLimit means unlimited.
	MaxOrderValue     decimal.Decimal `json:"maxOrderValue"`
	BudgetLimit       decimal.Decimal `json:"budgetLimit"`
	CurrentMonthSpend decimal.Decimal `json:"currentMonthSpend"`
	SpendPeriod       string          `json:"spendPeriod,omitempty"` // YYYY-MM of CurrentMonthSpend

	// Approval.
	RequiresApproval      bool            `json:"requiresApproval"`
	AutoApprovalThreshold decimal.Decimal `json:"autoApprovalThreshold"`
	IsFullyAutomated      bool            `json:"isFullyAutomated"`

	// Schedule.
	CronSchedule       string     `json:"cronSchedule,omitempty"`
	Timezone           string     `json:"timezone,omitempty"`
	NextReviewDate     *time.Time `json:"nextReviewDate,omitempty"`
	LastExecutedAt     *time.Time `json:"lastExecutedAt,omitempty"`
	MinIntervalMinutes int        `json:"minIntervalMinutes,omitempty"`

	// Counters.
	TotalOrdersGenerated int64           `json:"totalOrdersGenerated"`
	TotalValueOrdered    decimal.Decimal `json:"totalValueOrdered"`
	ConsecutiveErrors    int             `json:"consecutiveErrors"`
	MaxRetryAttempts     int             `json:"maxRetryAttempts"`
	LastErrorAt          *time.Time      `json:"lastErrorAt,omitempty"`
	LastErrorMessage     *string         `json:"lastErrorMessage,omitempty"`
	LastUrgency          int             `json:"lastUrgency"`

	// Month (1..12) to demand multiplier.
	SeasonalFactors map[int]float64 `json:"seasonalFactors,omitempty"`

	// Pause state.
	IsPaused    bool       `json:"isPaused"`
	PausedUntil *time.Time `json:"pausedUntil,omitempty"`
	PauseReason string     `json:"pauseReason,omitempty"`

	IsDeleted bool      `json:"isDeleted"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// recentErrorWindow is how long after the last error a rule is still
// considered to have recent errors even below the retry cap.
const recentErrorWindow = time.Hour

// IsEligibleForExecution reports whether the rule may run at all.
func (r *ReorderRule) IsEligibleForExecution(now time.Time) bool {
	if !r.IsActive || r.IsDeleted || r.Status != RuleStatusActive {
		return false
	}
	if r.IsPaused {
		if r.PausedUntil == nil || r.PausedUntil.After(now) {
			return false
		}
	}
	return true
}

// IsDue reports whether the rule's review date has arrived.
func (r *ReorderRule) IsDue(now time.Time) bool {
	if r.NextReviewDate == nil {
		return true
	}
	return !r.NextReviewDate.After(now)
}

// IsQuarantined reports whether the rule has hit its consecutive error cap.
func (r *ReorderRule) IsQuarantined() bool {
	return r.MaxRetryAttempts > 0 && r.ConsecutiveErrors >= r.MaxRetryAttempts
}

// HasRecentErrors reports whether the rule is quarantined or errored within
// the last hour.
func (r *ReorderRule) HasRecentErrors(now time.Time) bool {
	if r.IsQuarantined() {
		return true
	}
	return r.LastErrorAt != nil && now.Sub(*r.LastErrorAt) < recentErrorWindow
}

// IsUrgent reports whether the most recent evaluation scored the rule at
// urgency 8 or above.
func (r *ReorderRule) IsUrgent() bool {
	return r.LastUrgency >= 8
}

// RemainingBudget returns the budget left for the current month, resetting
// the spend window if the month has rolled over. A zero BudgetLimit means
// unlimited budget and returns a negative sentinel of -1.
func (r *ReorderRule) RemainingBudget(now time.Time) decimal.Decimal {
	if r.BudgetLimit.IsZero() {
		return decimal.NewFromInt(-1)
	}
	r.rollSpendPeriod(now)
	return r.BudgetLimit.Sub(r.CurrentMonthSpend)
}

// EstimatedOrderValue is the budget-planning estimate for one execution.
func (r *ReorderRule) EstimatedOrderValue() decimal.Decimal {
	return r.UnitCost.Mul(decimal.NewFromInt(r.ReorderQuantity))
}

// SeasonalFactor returns the demand multiplier for a month, defaulting to 1.
func (r *ReorderRule) SeasonalFactor(month time.Month) float64 {
	if f, ok := r.SeasonalFactors[int(month)]; ok && f > 0 {
		return f
	}
	return 1.0
}

// RecordExecution updates rule counters after an execution attempt. On
// success the monthly spend is increased and the error streak cleared; on
// failure the streak grows and the error is remembered.
func (r *ReorderRule) RecordExecution(success bool, value decimal.Decimal, errMsg string, now time.Time) {
	r.rollSpendPeriod(now)
	r.LastExecutedAt = &now
	if success {
		r.TotalOrdersGenerated++
		r.TotalValueOrdered = r.TotalValueOrdered.Add(value)
		r.CurrentMonthSpend = r.CurrentMonthSpend.Add(value)
		r.ConsecutiveErrors = 0
		r.LastErrorAt = nil
		r.LastErrorMessage = nil
	} else {
		r.ConsecutiveErrors++
		r.LastErrorAt = &now
		if errMsg != "" {
			r.LastErrorMessage = &errMsg
		}
	}
	r.UpdatedAt = now
}

// rollSpendPeriod resets CurrentMonthSpend on a month boundary.
func (r *ReorderRule) rollSpendPeriod(now time.Time) {
	period := now.Format("2006-01")
	if r.SpendPeriod != period {
		r.SpendPeriod = period
		r.CurrentMonthSpend = decimal.Zero
	}
}

// Validate checks structural invariants of the rule configuration.
func (r *ReorderRule) Validate() error {
	if r.TenantID == "" || r.ProductID == "" || r.LocationID == "" {
		return NewValidationError("rule requires tenant, product and location")
	}
	if r.ServiceLevel < 0 || r.ServiceLevel > 1 {
		return NewValidationError(fmt.Sprintf("service level %v out of [0,1]", r.ServiceLevel))
	}
	if r.LeadTimeDays < 0 {
		return NewValidationError(fmt.Sprintf("negative lead time %d", r.LeadTimeDays))
	}
	if r.MaxOrderQuantity > 0 && r.MinOrderQuantity > r.MaxOrderQuantity {
		return NewValidationError(fmt.Sprintf("min order quantity %d exceeds max %d", r.MinOrderQuantity, r.MaxOrderQuantity))
	}
	return nil
}

// Location returns the timezone the rule's cron schedule evaluates in,
// falling back to Asia/Jakarta.
func (r *ReorderRule) Location() *time.Location {
	name := r.Timezone
	if name == "" {
		name = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, _ = time.LoadLocation("Asia/Jakarta")
	}
	return loc
}
