package sched

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// Maintenance bundles the housekeeping jobs a SYSTEM_MAINTENANCE schedule
// can run. The "job" parameter picks one; absent, every job runs.
type Maintenance struct {
	executions    ports.ExecutionRepository
	audit         *store.AuditLog
	bus           ports.EventBus
	clock         ports.Clock
	retentionDays int
	logger        *logrus.Entry
}

// NewMaintenance wires the maintenance jobs.
func NewMaintenance(executions ports.ExecutionRepository, audit *store.AuditLog, bus ports.EventBus, clock ports.Clock, retentionDays int) *Maintenance {
	return &Maintenance{
		executions:    executions,
		audit:         audit,
		bus:           bus,
		clock:         clock,
		retentionDays: retentionDays,
		logger:        logrus.WithField("component", "maintenance"),
	}
}

// Run executes the job named in params["job"], or the full set when absent.
func (m *Maintenance) Run(ctx context.Context, params map[string]any) error {
	job, _ := params["job"].(string)
	if err := m.run(ctx, job); err != nil {
		return err
	}
	_ = m.bus.Publish(ctx, types.Event{
		Name:       events.EventSystemMaintenance,
		Payload:    map[string]any{"job": job, "completed": true},
		OccurredAt: m.clock.Now(),
	})
	return nil
}

func (m *Maintenance) run(ctx context.Context, job string) error {
	switch job {
	case "cleanup_executions":
		return m.cleanupExecutions(ctx)
	case "archive_logs":
		return m.archiveLogs()
	case "update_metrics":
		return m.publishHealth(ctx)
	case "health_check":
		return m.publishHealth(ctx)
	case "":
		if err := m.cleanupExecutions(ctx); err != nil {
			return err
		}
		if err := m.archiveLogs(); err != nil {
			return err
		}
		return m.publishHealth(ctx)
	default:
		return types.NewValidationError(fmt.Sprintf("unknown maintenance job %q", job))
	}
}

// cleanupExecutions prunes execution rows past the retention window.
func (m *Maintenance) cleanupExecutions(ctx context.Context) error {
	if m.retentionDays <= 0 {
		return nil
	}
	cutoff := m.clock.Now().AddDate(0, 0, -m.retentionDays)
	removed, err := m.executions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup executions: %w", err)
	}
	if removed > 0 {
		m.logger.Infof("removed %d executions older than %s", removed, cutoff.Format("2006-01-02"))
	}
	return nil
}

// archiveLogs prunes audit files past the retention window.
func (m *Maintenance) archiveLogs() error {
	if m.audit == nil {
		return nil
	}
	_, err := m.audit.Cleanup(m.retentionDays, m.clock.Now())
	return err
}

// publishHealth emits a liveness heartbeat on the metrics subject.
func (m *Maintenance) publishHealth(ctx context.Context) error {
	return m.bus.Publish(ctx, types.Event{
		Name: events.EventEngineMetrics,
		Payload: map[string]any{
			"heartbeat":     true,
			"retentionDays": m.retentionDays,
		},
		OccurredAt: m.clock.Now(),
	})
}
