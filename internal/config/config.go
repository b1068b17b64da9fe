// Package config loads leasekeeper configuration from flags, environment
// variables and a YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"leasekeeper/internal/lease"
	"leasekeeper/internal/workload"
)

// EnvPrefix is prepended to every environment variable, e.g.
// LEASEKEEPER_STORE_REDIS_ADDR.
const EnvPrefix = "LEASEKEEPER"

// DefaultConfigName is the file searched in the working directory when no
// --config is given.
const DefaultConfigName = "leasekeeper"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration values for leasekeeper.
type Config struct {
	TTLSeconds             int     `mapstructure:"ttl_seconds"`
	TickIntervalSeconds    int     `mapstructure:"tick_interval_seconds"`
	CooldownSeconds        int     `mapstructure:"cooldown_seconds"`
	ShutdownTimeoutSeconds int     `mapstructure:"shutdown_timeout_seconds"`
	RetryCount             int     `mapstructure:"retry_count"`
	RetryDelaySeconds      int     `mapstructure:"retry_delay_seconds"`
	LockPrefix             string  `mapstructure:"lock_prefix"`
	LogLevel               string  `mapstructure:"log_level"`
	AdminAddr              string  `mapstructure:"admin_addr"`
	AdminReadyRate         float64 `mapstructure:"admin_ready_rate"`
	OTELEndpoint           string  `mapstructure:"otel_endpoint"`

	Store     StoreConfig      `mapstructure:"store"`
	Runtime   RuntimeConfig    `mapstructure:"runtime"`
	Workloads []WorkloadConfig `mapstructure:"workloads"`
	Job       JobConfig        `mapstructure:"job"`
}

// StoreConfig selects and configures the lease store.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"` // redis | postgres | memory
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr               string `mapstructure:"addr"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	DialTimeoutSeconds int    `mapstructure:"dial_timeout_seconds"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RuntimeConfig selects and configures the workload executor.
type RuntimeConfig struct {
	Backend            string           `mapstructure:"backend"` // docker | kubernetes | systemd
	StopTimeoutSeconds int              `mapstructure:"stop_timeout_seconds"`
	Kubernetes         KubernetesConfig `mapstructure:"kubernetes"`
}

type KubernetesConfig struct {
	Namespace  string `mapstructure:"namespace"`
	Kubeconfig string `mapstructure:"kubeconfig"`
}

// WorkloadConfig is one supervised workload.
type WorkloadConfig struct {
	ID          string `mapstructure:"id"`
	ProcessName string `mapstructure:"process_name"`
}

// JobConfig configures the run-once job lock.
type JobConfig struct {
	LockKey        string       `mapstructure:"lock_key"`
	TTLSeconds     int          `mapstructure:"ttl_seconds"`
	CallsPerSecond float64      `mapstructure:"calls_per_second"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
	Calls          []CallConfig `mapstructure:"calls"`
}

type CallConfig struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Method string `mapstructure:"method"`
}

// SetDefaults registers every default on v. Keys without a default are not
// picked up from the environment by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ttl_seconds", 120)
	v.SetDefault("tick_interval_seconds", 0)
	v.SetDefault("cooldown_seconds", 10)
	v.SetDefault("shutdown_timeout_seconds", 30)
	v.SetDefault("retry_count", 3)
	v.SetDefault("retry_delay_seconds", 5)
	v.SetDefault("lock_prefix", "ec2_container_lock")
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_addr", ":6162")
	v.SetDefault("admin_ready_rate", 5)
	v.SetDefault("otel_endpoint", "")

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.dial_timeout_seconds", 5)
	v.SetDefault("store.postgres.url", "")

	v.SetDefault("runtime.backend", "docker")
	v.SetDefault("runtime.stop_timeout_seconds", 10)
	v.SetDefault("runtime.kubernetes.namespace", "default")
	v.SetDefault("runtime.kubernetes.kubeconfig", "")

	v.SetDefault("job.lock_key", "job_lock")
	v.SetDefault("job.ttl_seconds", 300)
	v.SetDefault("job.calls_per_second", 0)
	v.SetDefault("job.timeout_seconds", 10)
}

// Load reads configuration into a Config. An empty path searches for
// leasekeeper.yaml in the working directory and tolerates its absence; an
// explicit path must exist. Environment variables override the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// LEASEKEEPER_WORKLOADS="cronjobs=cronjobs,pyapi=pyapi"
	if raw, ok := v.Get("workloads").(string); ok {
		workloads, err := ParseWorkloads(raw)
		if err != nil {
			return nil, err
		}
		v.Set("workloads", workloads)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseWorkloads parses "id=process_name" pairs separated by commas. A bare
// id uses itself as the process name.
func ParseWorkloads(s string) ([]map[string]any, error) {
	var out []map[string]any
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, process, found := strings.Cut(pair, "=")
		if !found {
			process = id
		}
		id, process = strings.TrimSpace(id), strings.TrimSpace(process)
		if id == "" || process == "" {
			return nil, fmt.Errorf("%w: malformed workload %q", ErrInvalid, pair)
		}
		out = append(out, map[string]any{"id": id, "process_name": process})
	}
	return out, nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("%w: ttl_seconds must be positive, got %d", ErrInvalid, c.TTLSeconds)
	}
	if c.TickIntervalSeconds < 0 || (c.TickIntervalSeconds > 0 && c.TickIntervalSeconds >= c.TTLSeconds) {
		return fmt.Errorf("%w: tick_interval_seconds must be below ttl_seconds (%d), got %d", ErrInvalid, c.TTLSeconds, c.TickIntervalSeconds)
	}
	if c.RetryCount < 1 {
		return fmt.Errorf("%w: retry_count must be at least 1, got %d", ErrInvalid, c.RetryCount)
	}
	if c.RetryDelaySeconds < 0 || c.CooldownSeconds < 0 || c.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if err := lease.ValidateString(c.LockPrefix); err != nil {
		return fmt.Errorf("%w: lock_prefix: %v", ErrInvalid, err)
	}

	switch c.Store.Backend {
	case "redis", "memory":
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("%w: store.postgres.url is required for the postgres backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}

	switch c.Runtime.Backend {
	case "docker", "kubernetes", "systemd":
	default:
		return fmt.Errorf("%w: unknown runtime backend %q", ErrInvalid, c.Runtime.Backend)
	}

	seen := make(map[string]bool, len(c.Workloads))
	for _, w := range c.Workloads {
		if err := lease.ValidateString(w.ID); err != nil {
			return fmt.Errorf("%w: workload id: %v", ErrInvalid, err)
		}
		if strings.TrimSpace(w.ProcessName) == "" {
			return fmt.Errorf("%w: workload %s has no process_name", ErrInvalid, w.ID)
		}
		if seen[w.ID] {
			return fmt.Errorf("%w: duplicate workload id %s", ErrInvalid, w.ID)
		}
		seen[w.ID] = true
	}
	return nil
}

// RequireWorkloads fails when no workload is configured.
func (c *Config) RequireWorkloads() error {
	if len(c.Workloads) == 0 {
		return fmt.Errorf("%w: at least one workload is required", ErrInvalid)
	}
	return nil
}

// RequireJob validates the job lock settings.
func (c *Config) RequireJob() error {
	if err := lease.ValidateString(c.Job.LockKey); err != nil {
		return fmt.Errorf("%w: job.lock_key: %v", ErrInvalid, err)
	}
	if c.Job.TTLSeconds <= 0 {
		return fmt.Errorf("%w: job.ttl_seconds must be positive", ErrInvalid)
	}
	for _, call := range c.Job.Calls {
		if call.Name == "" || call.URL == "" {
			return fmt.Errorf("%w: job calls need a name and a url", ErrInvalid)
		}
	}
	return nil
}

// Specs builds the workload specs in configuration order.
func (c *Config) Specs() []workload.Spec {
	specs := make([]workload.Spec, 0, len(c.Workloads))
	for _, w := range c.Workloads {
		specs = append(specs, workload.NewSpec(c.LockPrefix, w.ID, w.ProcessName))
	}
	return specs
}

func (c *Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// TickInterval returns the configured interval, or zero to let the
// supervisor use TTL/2.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
