// replenishd is the replenishment engine daemon. It reaches the platform
// services over NATS, runs the rule and condition tick loops, and reacts to
// stock-level events until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/adapters"
	"github.com/stokcerdas/replenish/internal/calc"
	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/engine"
	"github.com/stokcerdas/replenish/internal/executor"
	"github.com/stokcerdas/replenish/internal/sched"
	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/internal/supplier"
	"github.com/stokcerdas/replenish/internal/trigger"
	"github.com/stokcerdas/replenish/pkg/cache"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ids"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/secrets"
	"github.com/stokcerdas/replenish/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "replenishd")

	if err := run(cfg, log); err != nil {
		log.Fatalf("daemon failed: %v", err)
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	clock := ports.RealClock{}
	idGen := ids.New()

	bus, err := events.NewNATSBus(events.NATSConfig{
		URL:      cfg.NATS.URL,
		ClientID: cfg.NATS.ClientID,
	})
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer bus.Close()

	platform := adapters.NewPlatform(bus)

	// Webhook secrets: Vault when reachable, static otherwise.
	var secretStore secrets.Store
	vaultStore, err := secrets.NewVaultStore(secrets.VaultConfig{
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
	})
	if err != nil {
		log.Warnf("Vault unavailable (%v); using static secret store", err)
		secretStore = secrets.NewStaticStore()
	} else {
		secretStore = vaultStore
	}

	ruleRepo := store.NewMemoryRuleRepository()
	execRepo := store.NewMemoryExecutionRepository()
	schedRepo := store.NewMemoryScheduleRepository()
	webhooks := store.NewWebhookTable()

	audit, err := store.NewAuditLog(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	defer audit.Close()

	costCache := cache.New(time.Minute)
	defer costCache.Stop()
	replayCache := cache.New(time.Minute)
	defer replayCache.Stop()

	calculator := calc.NewCalculator(platform, platform, clock)
	dispatcher := trigger.NewDispatcher(clock, trigger.DefaultRestrictions())
	selector := supplier.NewSelector(platform, costCache, clock,
		supplier.ParseZone(cfg.DestinationZone))

	exec := executor.New(executor.Deps{
		Rules:      ruleRepo,
		Executions: execRepo,
		Inventory:  platform,
		Products:   platform,
		Orders:     platform,
		Notify:     platform,
		Bus:        bus,
		Calculator: calculator,
		Dispatcher: dispatcher,
		Selector:   selector,
		Audit:      audit,
		IDs:        idGen,
		Clock:      clock,
		Config:     cfg.Executor,
	})

	eng := engine.New(ruleRepo, exec, bus, clock, cfg.Engine)
	defer eng.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processTenant := func(source, tenantID string) {
		if tenantID == "" {
			return
		}
		if _, err := eng.ProcessTenant(ctx, tenantID); err != nil && err != engine.ErrTenantBusy {
			log.Errorf("%s-driven processing for tenant %s failed: %v", source, tenantID, err)
		}
	}

	poller := trigger.NewConditionPoller(func(workflowID, tenantID string, payload map[string]any) {
		processTenant("condition", tenantID)
	})

	eventTriggers := trigger.NewEventTriggerManager(bus, func(workflowID, tenantID string, evts []types.Event) {
		processTenant("event", tenantID)
	})
	defer eventTriggers.Stop()

	webhookMgr := trigger.NewWebhookManager(webhooks, secretStore, replayCache, clock,
		func(workflowID, tenantID string, payload map[string]any) {
			processTenant("webhook", tenantID)
		})
	// The API layer validates nothing; it forwards raw deliveries on the bus
	// and signature checking happens here.
	unbindWebhooks, err := webhookMgr.BindBus(bus)
	if err != nil {
		return fmt.Errorf("subscribe webhook deliveries: %w", err)
	}
	defer unbindWebhooks()

	// Stock movements drive near-real-time evaluation of the affected tenant.
	unsubscribe, err := bus.Subscribe(events.EventStockLevelChanged, func(evt types.Event) {
		processTenant("stock-event", evt.TenantID)
	})
	if err != nil {
		return fmt.Errorf("subscribe stock events: %w", err)
	}
	defer unsubscribe()

	maintenance := sched.NewMaintenance(execRepo, audit, bus, clock, cfg.Scheduler.RetentionDays)
	scheduler := sched.New(sched.Deps{
		Rules:       ruleRepo,
		Schedules:   schedRepo,
		Executor:    exec,
		Engine:      eng,
		Poller:      poller,
		Bus:         bus,
		Notify:      platform,
		Clock:       clock,
		Config:      cfg.Scheduler,
		Maintenance: maintenance,
	})
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	log.WithFields(logrus.Fields{
		"nats":     cfg.NATS.URL,
		"timezone": cfg.Timezone,
	}).Info("replenishd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s, shutting down", s)
	cancel()
	return nil
}
