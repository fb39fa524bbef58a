// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig tunes per-tenant rule processing.
type EngineConfig struct {
	BatchSize              int           `mapstructure:"batch_size"`
	MaxConcurrentPerTenant int           `mapstructure:"max_concurrent_per_tenant"`
	BatchDelay             time.Duration `mapstructure:"batch_delay"`
	QueueWarnDepth         int           `mapstructure:"queue_warn_depth"`
	WorkerPoolSize         int           `mapstructure:"worker_pool_size"`
}

// SchedulerConfig tunes the process-wide scheduler.
type SchedulerConfig struct {
	ScheduleTick      time.Duration `mapstructure:"schedule_tick"`
	ConditionTick     time.Duration `mapstructure:"condition_tick"`
	RetentionDays     int           `mapstructure:"retention_days"`
	MaxScheduleErrors int           `mapstructure:"max_schedule_errors"`
}

// ExecutorConfig tunes purchase execution.
type ExecutorConfig struct {
	BulkBatchSize       int           `mapstructure:"bulk_batch_size"`
	DelayBetweenOrders  time.Duration `mapstructure:"delay_between_orders"`
	MinExecutionGap     time.Duration `mapstructure:"min_execution_gap"`
	RPCTimeout          time.Duration `mapstructure:"rpc_timeout"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
}

// NATSConfig holds event bus settings.
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	ClientID string `mapstructure:"client_id"`
}

// VaultConfig holds secret store settings.
type VaultConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// Config is the full daemon configuration.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Vault     VaultConfig     `mapstructure:"vault"`

	Timezone        string `mapstructure:"timezone"`
	DestinationZone string `mapstructure:"destination_zone"`
	DataDir         string `mapstructure:"data_dir"`
	LogLevel        string `mapstructure:"log_level"`
}

// Load reads configuration from the given file (optional) and REPLENISH_*
// environment variables, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("engine.batch_size", 3)
	v.SetDefault("engine.max_concurrent_per_tenant", 5)
	v.SetDefault("engine.batch_delay", 2*time.Second)
	v.SetDefault("engine.queue_warn_depth", 100)
	v.SetDefault("engine.worker_pool_size", 8)

	v.SetDefault("scheduler.schedule_tick", time.Minute)
	v.SetDefault("scheduler.condition_tick", 30*time.Second)
	v.SetDefault("scheduler.retention_days", 90)
	v.SetDefault("scheduler.max_schedule_errors", 5)

	v.SetDefault("executor.bulk_batch_size", 10)
	v.SetDefault("executor.delay_between_orders", time.Second)
	v.SetDefault("executor.min_execution_gap", 5*time.Minute)
	v.SetDefault("executor.rpc_timeout", 20*time.Second)
	v.SetDefault("executor.notification_timeout", 10*time.Second)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.client_id", "replenishd")

	v.SetDefault("timezone", "Asia/Jakarta")
	v.SetDefault("destination_zone", "jakarta_metro")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("REPLENISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
