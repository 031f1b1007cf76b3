// Package config loads the Runtime's process configuration from
// environment variables, following the teacher's Default()+Load()+
// applyEnvOverrides() shape (internal/config/config_load.go) but trimmed to
// spec.md §6's env-var table: this service is configured entirely by
// environment, with no on-disk config.json — the teacher's managed-agent
// persona/sandbox/heartbeat/memory knobs belong to a different product
// surface this Runtime doesn't expose (see DESIGN.md).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the Runtime process configuration, one value per spec.md §6's
// "Environment configuration" paragraph.
type Config struct {
	RuntimePort  int    // RUNTIME_PORT, default 8082
	GRPCAddr     string // GRPC_ADDR
	GatewayAddr  string // GATEWAY_ADDR
	RuntimeSecret string // RUNTIME_SECRET — required for /channel-run and /runtime/plugins/sync

	ChannelSendTimeout time.Duration // CHANNEL_SEND_TIMEOUT_MS, default 15s

	RunEventBufferSize       int           // RUN_EVENT_BUFFER_SIZE, default 1200, clamp 100..5000
	RunRetention             time.Duration // RUN_RETENTION_MS, default 30m, min 60s
	RunStoreCleanupInterval  time.Duration // RUN_STORE_CLEANUP_INTERVAL_MS, default 30s, min 10s
	RunIdempotencyTTL        time.Duration // RUN_IDEMPOTENCY_TTL_MS, default 10m, min 10s

	LLMBaseURL string // LLM_BASE_URL
	LLMAPIKey  string // LLM_API_KEY

	// PersistenceDSN is the Postgres connection string for the bundled
	// reference persistence server and its migrate command — a concern
	// outside spec.md §6's table (PersistenceRPC itself is an external
	// collaborator) but needed by the in-repo reference implementation of
	// that collaborator.
	PersistenceDSN string // PERSISTENCE_DSN

	Guard GuardEnvConfig

	Telemetry TelemetryConfig
}

// GuardEnvConfig carries the Plugin Execution Guard's env-configurable
// knobs, named in spec.md §6 as "plugin-guard knobs" and detailed in §4.4.
type GuardEnvConfig struct {
	MaxConcurrencyPerPlugin int64         // PLUGIN_GUARD_MAX_CONCURRENCY, default 4
	QueueTimeout            time.Duration // PLUGIN_GUARD_QUEUE_TIMEOUT_MS, default 5s
	ExecutionTimeout        time.Duration // PLUGIN_GUARD_EXECUTION_TIMEOUT_MS, default 30s
	FailureThreshold        int           // PLUGIN_GUARD_FAILURE_THRESHOLD, default 5
	FailureCooldown         time.Duration // PLUGIN_GUARD_FAILURE_COOLDOWN_MS, default 60s
}

// TelemetryConfig configures OTLP trace export, carried over from the
// teacher's TelemetryConfig (internal/config/config.go) since tracing
// remains an ambient concern regardless of the spec's feature Non-goals.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
}

const (
	defaultRuntimePort = 8082

	defaultChannelSendTimeout = 15 * time.Second

	defaultRunEventBufferSize      = 1200
	minRunEventBufferSize          = 100
	maxRunEventBufferSize          = 5000
	defaultRunRetention            = 30 * time.Minute
	minRunRetention                = 60 * time.Second
	defaultRunStoreCleanupInterval = 30 * time.Second
	minRunStoreCleanupInterval     = 10 * time.Second
	defaultRunIdempotencyTTL       = 10 * time.Minute
	minRunIdempotencyTTL           = 10 * time.Second

	defaultGuardMaxConcurrency = 4
	defaultGuardQueueTimeout   = 5 * time.Second
	defaultGuardExecTimeout    = 30 * time.Second
	defaultGuardFailureThresh  = 5
	defaultGuardCooldown       = 60 * time.Second
)

// Default returns a Config with spec.md §6's documented defaults applied.
func Default() *Config {
	return &Config{
		RuntimePort:             defaultRuntimePort,
		ChannelSendTimeout:      defaultChannelSendTimeout,
		RunEventBufferSize:      defaultRunEventBufferSize,
		RunRetention:            defaultRunRetention,
		RunStoreCleanupInterval: defaultRunStoreCleanupInterval,
		RunIdempotencyTTL:       defaultRunIdempotencyTTL,
		Guard: GuardEnvConfig{
			MaxConcurrencyPerPlugin: defaultGuardMaxConcurrency,
			QueueTimeout:            defaultGuardQueueTimeout,
			ExecutionTimeout:        defaultGuardExecTimeout,
			FailureThreshold:        defaultGuardFailureThresh,
			FailureCooldown:         defaultGuardCooldown,
		},
		Telemetry: TelemetryConfig{Protocol: "grpc", ServiceName: "openclaw-runtime"},
	}
}

// Load builds a Config from Default() overlaid with environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}
	envMillis := func(key string, dst *time.Duration, min time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer milliseconds %q: %w", key, v, err)
		}
		d := time.Duration(ms) * time.Millisecond
		if d < min {
			d = min
		}
		*dst = d
		return nil
	}

	if err := envInt("RUNTIME_PORT", &c.RuntimePort); err != nil {
		return err
	}
	envStr("GRPC_ADDR", &c.GRPCAddr)
	envStr("GATEWAY_ADDR", &c.GatewayAddr)
	envStr("RUNTIME_SECRET", &c.RuntimeSecret)

	if err := envMillis("CHANNEL_SEND_TIMEOUT_MS", &c.ChannelSendTimeout, 0); err != nil {
		return err
	}

	if v := os.Getenv("RUN_EVENT_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RUN_EVENT_BUFFER_SIZE: invalid integer %q: %w", v, err)
		}
		c.RunEventBufferSize = clamp(n, minRunEventBufferSize, maxRunEventBufferSize)
	}
	if err := envMillis("RUN_RETENTION_MS", &c.RunRetention, minRunRetention); err != nil {
		return err
	}
	if err := envMillis("RUN_STORE_CLEANUP_INTERVAL_MS", &c.RunStoreCleanupInterval, minRunStoreCleanupInterval); err != nil {
		return err
	}
	if err := envMillis("RUN_IDEMPOTENCY_TTL_MS", &c.RunIdempotencyTTL, minRunIdempotencyTTL); err != nil {
		return err
	}

	envStr("LLM_BASE_URL", &c.LLMBaseURL)
	envStr("LLM_API_KEY", &c.LLMAPIKey)
	envStr("PERSISTENCE_DSN", &c.PersistenceDSN)

	if err := envInt64("PLUGIN_GUARD_MAX_CONCURRENCY", &c.Guard.MaxConcurrencyPerPlugin); err != nil {
		return err
	}
	if err := envMillis("PLUGIN_GUARD_QUEUE_TIMEOUT_MS", &c.Guard.QueueTimeout, 0); err != nil {
		return err
	}
	if err := envMillis("PLUGIN_GUARD_EXECUTION_TIMEOUT_MS", &c.Guard.ExecutionTimeout, 0); err != nil {
		return err
	}
	if err := envInt("PLUGIN_GUARD_FAILURE_THRESHOLD", &c.Guard.FailureThreshold); err != nil {
		return err
	}
	if err := envMillis("PLUGIN_GUARD_FAILURE_COOLDOWN_MS", &c.Guard.FailureCooldown, 0); err != nil {
		return err
	}

	envBool("TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envStr("TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envBool("TELEMETRY_INSECURE", &c.Telemetry.Insecure)
	envStr("TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)

	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
