package trigger

import (
	"fmt"
	"time"
)

// Restrictions gate when automated orders may be placed. The maintenance
// window blocks everything; weekends block non-urgent orders only.
type Restrictions struct {
	MaintenanceStartHour int
	MaintenanceEndHour   int
	BlockWeekends        bool
}

// DefaultRestrictions is the standard operating window: a nightly 02:00-04:00
// maintenance freeze and weekend suppression of routine orders.
func DefaultRestrictions() *Restrictions {
	return &Restrictions{
		MaintenanceStartHour: 2,
		MaintenanceEndHour:   4,
		BlockWeekends:        true,
	}
}

// urgentFloor is the urgency at which weekend suppression no longer applies.
const urgentFloor = 8

// Blockers returns the restriction reasons preventing execution at the given
// local time, or nil when execution may proceed.
func (r *Restrictions) Blockers(now time.Time, loc *time.Location, urgency int) []string {
	if r == nil {
		return nil
	}
	local := now.In(loc)
	var blockers []string

	if r.inMaintenanceWindow(local) {
		blockers = append(blockers, fmt.Sprintf(
			"maintenance window %02d:00-%02d:00 %s", r.MaintenanceStartHour, r.MaintenanceEndHour, loc))
	}
	if r.BlockWeekends && isWeekend(local) && urgency < urgentFloor {
		blockers = append(blockers, "weekend: non-urgent orders deferred to next business day")
	}
	return blockers
}

func (r *Restrictions) inMaintenanceWindow(local time.Time) bool {
	h := local.Hour()
	if r.MaintenanceStartHour == r.MaintenanceEndHour {
		return false
	}
	if r.MaintenanceStartHour < r.MaintenanceEndHour {
		return h >= r.MaintenanceStartHour && h < r.MaintenanceEndHour
	}
	// window wraps midnight
	return h >= r.MaintenanceStartHour || h < r.MaintenanceEndHour
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
