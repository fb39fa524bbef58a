// Package sched drives the periodic machinery: the scheduled-rule tick, the
// condition poll tick, persisted automation schedules and maintenance jobs.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/engine"
	"github.com/stokcerdas/replenish/internal/executor"
	"github.com/stokcerdas/replenish/internal/trigger"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

// Scheduler owns the tick loops and the persisted automation schedules.
type Scheduler struct {
	rules     ports.RuleRepository
	schedules ports.ScheduleRepository
	exec      *executor.Executor
	engine    *engine.Engine
	poller    *trigger.ConditionPoller
	bus       ports.EventBus
	notify    ports.NotificationPort
	clock     ports.Clock
	cfg       config.SchedulerConfig
	logger    *logrus.Entry

	maintenance *Maintenance

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	// schedule tick re-entrancy guard
	tickBusy sync.Mutex
}

// Deps bundles the scheduler's collaborators.
type Deps struct {
	Rules       ports.RuleRepository
	Schedules   ports.ScheduleRepository
	Executor    *executor.Executor
	Engine      *engine.Engine
	Poller      *trigger.ConditionPoller
	Bus         ports.EventBus
	Notify      ports.NotificationPort
	Clock       ports.Clock
	Config      config.SchedulerConfig
	Maintenance *Maintenance
}

// New wires a stopped scheduler.
func New(d Deps) *Scheduler {
	return &Scheduler{
		rules:       d.Rules,
		schedules:   d.Schedules,
		exec:        d.Executor,
		engine:      d.Engine,
		poller:      d.Poller,
		bus:         d.Bus,
		notify:      d.Notify,
		clock:       d.Clock,
		cfg:         d.Config,
		maintenance: d.Maintenance,
		logger:      logrus.WithField("component", "scheduler"),
	}
}

// Start launches the tick loops. Calling Start twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return types.NewValidationError("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.cfg.ScheduleTick, s.scheduleTick)
	s.wg.Add(1)
	go s.loop(ctx, s.cfg.ConditionTick, s.conditionTick)

	s.logger.WithFields(logrus.Fields{
		"scheduleTick":  s.cfg.ScheduleTick,
		"conditionTick": s.cfg.ConditionTick,
	}).Info("scheduler started")
	return nil
}

// Stop halts the tick loops and waits for in-flight ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	defer s.wg.Done()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// scheduleTick runs due scheduled rules and due automation schedules at most
// once per occurrence. A tick still running when the next fires is skipped
// rather than stacked.
func (s *Scheduler) scheduleTick(ctx context.Context) {
	if !s.tickBusy.TryLock() {
		s.logger.Warn("schedule tick still running; skipping")
		return
	}
	defer s.tickBusy.Unlock()

	now := s.clock.Now()
	s.runDueRules(ctx, now)
	s.runDueSchedules(ctx, now)
}

// conditionTick polls registered condition triggers.
func (s *Scheduler) conditionTick(ctx context.Context) {
	if s.poller != nil {
		s.poller.Poll(ctx)
	}
}

// runDueRules executes every scheduled rule whose cron occurrence has
// arrived.
func (s *Scheduler) runDueRules(ctx context.Context, now time.Time) {
	due, err := s.rules.ListScheduledDue(ctx, now)
	if err != nil {
		s.logger.Errorf("failed to list due rules: %v", err)
		return
	}
	for _, rule := range due {
		if ctx.Err() != nil {
			return
		}
		_, err := s.exec.Execute(ctx, executor.Request{
			TenantID:      rule.TenantID,
			RuleID:        rule.ID,
			TriggerReason: "scheduled evaluation",
		})
		if err != nil {
			s.logger.WithField("rule", rule.ID).Errorf("scheduled execution failed: %v", err)
		}
	}
}

// runDueSchedules fires due automation schedules and advances their next
// occurrence forward-only: occurrences missed during downtime collapse into
// the single fire that just happened.
func (s *Scheduler) runDueSchedules(ctx context.Context, now time.Time) {
	due, err := s.schedules.ListDue(ctx, now)
	if err != nil {
		s.logger.Errorf("failed to list due schedules: %v", err)
		return
	}
	for _, sched := range due {
		if ctx.Err() != nil {
			return
		}
		s.runSchedule(ctx, sched, now)
	}
}

func (s *Scheduler) runSchedule(ctx context.Context, sched *types.AutomationSchedule, now time.Time) {
	log := s.logger.WithFields(logrus.Fields{
		"schedule": sched.ID,
		"type":     sched.Type,
	})

	err := s.dispatch(ctx, sched)

	last := now
	sched.LastExecutionAt = &last
	if err != nil {
		sched.ConsecutiveFailures++
		log.Errorf("schedule failed (%d consecutive): %v", sched.ConsecutiveFailures, err)
		s.publishScheduleFailed(ctx, sched, err)
		if s.cfg.MaxScheduleErrors > 0 && sched.ConsecutiveFailures >= s.cfg.MaxScheduleErrors {
			sched.Status = types.ScheduleStatusError
			log.Errorf("schedule disabled after %d consecutive failures", sched.ConsecutiveFailures)
			s.alertScheduleDisabled(ctx, sched, err)
		}
	} else {
		sched.ConsecutiveFailures = 0
	}

	if next, nerr := NextOccurrence(sched.CronExpression, sched.Location(), now); nerr != nil {
		log.Errorf("invalid cron %q: %v", sched.CronExpression, nerr)
		sched.Status = types.ScheduleStatusError
	} else {
		sched.NextExecutionAt = &next
	}

	if serr := s.schedules.Save(ctx, sched); serr != nil {
		log.Errorf("failed to save schedule: %v", serr)
	}
}

// dispatch routes a schedule to its job implementation.
func (s *Scheduler) dispatch(ctx context.Context, sched *types.AutomationSchedule) error {
	switch sched.Type {
	case types.ScheduleReorderCheck, types.ScheduleInventoryReview:
		_, err := s.engine.ProcessTenant(ctx, sched.TenantID)
		if err == engine.ErrTenantBusy {
			s.logger.WithField("tenant", sched.TenantID).Warn("tenant busy; schedule occurrence skipped")
			return nil
		}
		return err
	case types.ScheduleSystemMaintenance:
		if s.maintenance == nil {
			return types.NewValidationError("maintenance jobs not configured")
		}
		return s.maintenance.Run(ctx, sched.JobParameters)
	case types.ScheduleDemandForecast, types.ScheduleSupplierEvaluation:
		// evaluated lazily during rule execution; the schedule only warms state
		_, err := s.engine.BuildTenantPlan(ctx, sched.TenantID)
		return err
	default:
		return types.NewValidationError(fmt.Sprintf("unknown schedule type %q", sched.Type))
	}
}

// NextOccurrence computes the next cron fire strictly after now in the given
// timezone.
func NextOccurrence(expr string, loc *time.Location, now time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return sched.Next(now.In(loc)), nil
}

func (s *Scheduler) publishScheduleFailed(ctx context.Context, sched *types.AutomationSchedule, cause error) {
	_ = s.bus.Publish(ctx, types.Event{
		Name:     events.EventScheduleFailed,
		TenantID: sched.TenantID,
		Payload: map[string]any{
			"scheduleId":          sched.ID,
			"type":                string(sched.Type),
			"consecutiveFailures": sched.ConsecutiveFailures,
			"error":               cause.Error(),
		},
		OccurredAt: s.clock.Now(),
	})
}

func (s *Scheduler) alertScheduleDisabled(ctx context.Context, sched *types.AutomationSchedule, cause error) {
	_ = s.notify.CreateAlert(ctx, sched.TenantID, ports.Alert{
		Type:     "schedule_disabled",
		Severity: ports.SeverityCritical,
		Title:    "Automation schedule disabled",
		Message: fmt.Sprintf("Schedule %s moved to ERROR after %d consecutive failures: %v",
			sched.Name, sched.ConsecutiveFailures, cause),
		Metadata: map[string]any{"scheduleId": sched.ID},
	})
	if len(sched.NotificationRecipients) > 0 {
		_ = s.notify.SendEmail(ctx, ports.EmailMessage{
			To:      sched.NotificationRecipients,
			Subject: fmt.Sprintf("Automation schedule %s disabled", sched.Name),
			Text: fmt.Sprintf("The schedule was disabled after %d consecutive failures. Last error: %v",
				sched.ConsecutiveFailures, cause),
		})
	}
}
