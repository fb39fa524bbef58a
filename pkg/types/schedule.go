package types

import "time"

// ScheduleType classifies an automation schedule.
type ScheduleType string

const (
	ScheduleReorderCheck       ScheduleType = "REORDER_CHECK"
	ScheduleInventoryReview    ScheduleType = "INVENTORY_REVIEW"
	ScheduleDemandForecast     ScheduleType = "DEMAND_FORECAST"
	ScheduleSupplierEvaluation ScheduleType = "SUPPLIER_EVALUATION"
	ScheduleSystemMaintenance  ScheduleType = "SYSTEM_MAINTENANCE"
)

// ScheduleStatus is the lifecycle state of an automation schedule.
type ScheduleStatus string

const (
	ScheduleStatusActive ScheduleStatus = "ACTIVE"
	ScheduleStatusPaused ScheduleStatus = "PAUSED"
	ScheduleStatusError  ScheduleStatus = "ERROR"
)

// AutomationSchedule is a persisted cron timetable driving periodic jobs.
// Schedules survive restarts; NextExecutionAt is recomputed forward-only and
// missed occurrences during downtime collapse to a single fire.
type AutomationSchedule struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenantId"`
	Name     string         `json:"name"`
	Type     ScheduleType   `json:"type"`
	Status   ScheduleStatus `json:"status"`

	CronExpression string `json:"cronExpression"`
	Timezone       string `json:"timezone,omitempty"` // IANA name, default Asia/Jakarta

	NextExecutionAt *time.Time `json:"nextExecutionAt,omitempty"`
	LastExecutionAt *time.Time `json:"lastExecutionAt,omitempty"`

	ConsecutiveFailures    int            `json:"consecutiveFailures"`
	NotificationRecipients []string       `json:"notificationRecipients,omitempty"`
	JobParameters          map[string]any `json:"jobParameters,omitempty"`
	IsActive               bool           `json:"isActive"`
}

// ShouldExecute reports whether the schedule is due at the given instant.
func (s *AutomationSchedule) ShouldExecute(now time.Time) bool {
	if !s.IsActive || s.Status != ScheduleStatusActive {
		return false
	}
	return s.NextExecutionAt != nil && !s.NextExecutionAt.After(now)
}

// CanExecute reports whether the schedule is in a runnable state. CanExecute
// implies ShouldExecute may become true; the converse holds within a tick.
func (s *AutomationSchedule) CanExecute() bool {
	return s.IsActive && s.Status == ScheduleStatusActive
}

// Location returns the schedule's timezone, falling back to Asia/Jakarta.
func (s *AutomationSchedule) Location() *time.Location {
	name := s.Timezone
	if name == "" {
		name = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, _ = time.LoadLocation("Asia/Jakarta")
	}
	return loc
}
