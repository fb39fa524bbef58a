// replenishctl runs one-shot replenishment operations from the command line:
// evaluate or execute a rule against the live platform, or print the
// prioritized plan for a rule set.
//
// Exit codes: 0 success, 2 validation failure, 3 intentional skip, 4 budget
// exhausted, 5 platform port failure, 10 unexpected error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/internal/adapters"
	"github.com/stokcerdas/replenish/internal/calc"
	"github.com/stokcerdas/replenish/internal/config"
	"github.com/stokcerdas/replenish/internal/engine"
	"github.com/stokcerdas/replenish/internal/executor"
	"github.com/stokcerdas/replenish/internal/store"
	"github.com/stokcerdas/replenish/internal/supplier"
	"github.com/stokcerdas/replenish/internal/trigger"
	"github.com/stokcerdas/replenish/pkg/cache"
	"github.com/stokcerdas/replenish/pkg/events"
	"github.com/stokcerdas/replenish/pkg/ids"
	"github.com/stokcerdas/replenish/pkg/ports"
	"github.com/stokcerdas/replenish/pkg/types"
)

const (
	exitOK         = 0
	exitValidation = 2
	exitSkipped    = 3
	exitBudget     = 4
	exitPort       = 5
	exitUnexpected = 10
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", "", "path to config file")
	rulesPath := flag.String("rules", "", "path to a JSON file with one rule or an array of rules")
	force := flag.Bool("force", false, "execute even when not triggered")
	dryRun := flag.Bool("dry-run", false, "run the pipeline without creating orders")
	actor := flag.String("actor", "replenishctl", "actor recorded on created orders")
	quiet := flag.Bool("quiet", false, "suppress log output")
	flag.Parse()

	if *quiet {
		logrus.SetLevel(logrus.ErrorLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	command := flag.Arg(0)
	if command == "" || *rulesPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replenishctl [flags] execute|plan -rules <file>")
		flag.PrintDefaults()
		return exitValidation
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitValidation
	}

	rules, err := loadRules(*rulesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load rules: %v\n", err)
		return exitValidation
	}
	if len(rules) == 0 {
		fmt.Fprintln(os.Stderr, "no rules in input")
		return exitValidation
	}

	env, cleanup, err := buildEnv(cfg, rules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		return exitPort
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "execute":
		return runExecute(ctx, env, rules, *force, *dryRun, *actor)
	case "plan":
		return runPlan(ctx, env, rules[0].TenantID)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		return exitValidation
	}
}

type env struct {
	executor *executor.Executor
	engine   *engine.Engine
}

// buildEnv wires a one-shot pipeline: in-memory rule store seeded from the
// input file, platform ports over NATS.
func buildEnv(cfg *config.Config, rules []*types.ReorderRule) (*env, func(), error) {
	bus, err := events.NewNATSBus(events.NATSConfig{
		URL:      cfg.NATS.URL,
		ClientID: cfg.NATS.ClientID + "-ctl",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("event bus: %w", err)
	}
	platform := adapters.NewPlatform(bus)

	clock := ports.RealClock{}
	ruleRepo := store.NewMemoryRuleRepository()
	for _, rule := range rules {
		if err := ruleRepo.Save(context.Background(), rule); err != nil {
			bus.Close()
			return nil, nil, fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
	}

	costCache := cache.New(time.Minute)
	exec := executor.New(executor.Deps{
		Rules:      ruleRepo,
		Executions: store.NewMemoryExecutionRepository(),
		Inventory:  platform,
		Products:   platform,
		Orders:     platform,
		Notify:     platform,
		Bus:        bus,
		Calculator: calc.NewCalculator(platform, platform, clock),
		Dispatcher: trigger.NewDispatcher(clock, nil),
		Selector: supplier.NewSelector(platform, costCache, clock,
			supplier.ParseZone(cfg.DestinationZone)),
		IDs:    ids.New(),
		Clock:  clock,
		Config: cfg.Executor,
	})
	eng := engine.New(ruleRepo, exec, bus, clock, cfg.Engine)

	cleanup := func() {
		eng.Stop()
		costCache.Stop()
		bus.Close()
	}
	return &env{executor: exec, engine: eng}, cleanup, nil
}

func runExecute(ctx context.Context, e *env, rules []*types.ReorderRule, force, dryRun bool, actor string) int {
	worst := exitOK
	for _, rule := range rules {
		res, err := e.executor.Execute(ctx, executor.Request{
			TenantID:      rule.TenantID,
			RuleID:        rule.ID,
			Force:         force,
			DryRun:        dryRun,
			Actor:         actor,
			TriggerReason: "manual execution",
		})
		code := outcome(rule, res, err)
		if code > worst {
			worst = code
		}
	}
	return worst
}

// outcome prints one rule's result and maps it to an exit code.
func outcome(rule *types.ReorderRule, res *executor.Result, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "rule %s: %v\n", rule.ID, err)
		switch types.KindOf(err) {
		case types.ErrKindValidation:
			return exitValidation
		case types.ErrKindBudget:
			return exitBudget
		case types.ErrKindPortTransient, types.ErrKindPortPermanent:
			return exitPort
		default:
			return exitUnexpected
		}
	}
	if res.Skip != nil {
		fmt.Printf("rule %s skipped: %s\n", rule.ID, res.Skip.Reason)
		if strings.Contains(res.Skip.Reason, "budget") {
			return exitBudget
		}
		return exitSkipped
	}
	printJSON(map[string]any{
		"ruleId":        rule.ID,
		"created":       res.Created,
		"approved":      res.Approved,
		"purchaseOrder": res.PurchaseOrder,
		"execution":     res.Execution,
	})
	return exitOK
}

func runPlan(ctx context.Context, e *env, tenantID string) int {
	plan, err := e.engine.BuildTenantPlan(ctx, tenantID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plan failed: %v\n", err)
		if types.KindOf(err) == types.ErrKindPortTransient || types.KindOf(err) == types.ErrKindPortPermanent {
			return exitPort
		}
		return exitUnexpected
	}
	printJSON(plan)
	return exitOK
}

// loadRules accepts a single rule object or an array.
func loadRules(path string) ([]*types.ReorderRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []*types.ReorderRule
	if err := json.Unmarshal(data, &list); err == nil {
		return fillDefaults(list), nil
	}
	var one types.ReorderRule
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fillDefaults([]*types.ReorderRule{&one}), nil
}

func fillDefaults(rules []*types.ReorderRule) []*types.ReorderRule {
	gen := ids.New()
	for _, rule := range rules {
		if rule.ID == "" {
			rule.ID = gen.NewID()
		}
		if rule.Status == "" {
			rule.Status = types.RuleStatusActive
			rule.IsActive = true
		}
	}
	return rules
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
