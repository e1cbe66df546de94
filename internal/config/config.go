package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/observability"
	"github.com/lexiqai/wake-gate/internal/resilience"
)

// Cue outputs
const (
	CueOutputStream  = "stream"  // cues are sent to the websocket client
	CueOutputDevice  = "device"  // cues play on the local sound card
	CueOutputDiscard = "discard" // cues are timed but not played
)

// Config holds all configuration for the wake gate service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""` // Empty disables the gRPC health server

	// Gate configuration
	GateConfigFile          string `envconfig:"GATE_CONFIG_FILE" default:"gate.yaml"`
	GateTickIntervalMs      int    `envconfig:"GATE_TICK_INTERVAL_MS" default:"1000"`      // Watchdog scan interval
	GateMaxAccumulatorRunes int    `envconfig:"GATE_MAX_ACCUMULATOR_RUNES" default:"2048"` // 0 = unbounded
	GateParticipantTTL      int    `envconfig:"GATE_PARTICIPANT_TTL_SECONDS" default:"0"`  // 0 = keep idle participants

	// Cue playback configuration
	CueOutput   string `envconfig:"CUE_OUTPUT" default:"stream"` // stream, device, discard
	CueEncoding string `envconfig:"CUE_ENCODING" default:"pcmu"` // pcmu, pcm16

	// Resilience configuration
	PlaybackRetryMaxAttempts    int `envconfig:"PLAYBACK_RETRY_MAX_ATTEMPTS" default:"3"`     // Attempts to open the output
	PlaybackRetryInitialBackoff int `envconfig:"PLAYBACK_RETRY_INITIAL_BACKOFF" default:"50"` // Milliseconds
	CircuitBreakerMaxFailures   int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`    // Failures before opening circuit
	CircuitBreakerResetTimeout  int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"`  // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	switch c.CueOutput {
	case CueOutputStream, CueOutputDevice, CueOutputDiscard:
	default:
		return fmt.Errorf("CUE_OUTPUT must be one of stream, device, discard, got %q", c.CueOutput)
	}

	if _, err := audio.ParseEncoding(c.CueEncoding); err != nil {
		return fmt.Errorf("CUE_ENCODING: %w", err)
	}

	if c.GateTickIntervalMs <= 0 {
		return fmt.Errorf("GATE_TICK_INTERVAL_MS must be positive, got %d", c.GateTickIntervalMs)
	}
	if c.GateMaxAccumulatorRunes < 0 {
		return fmt.Errorf("GATE_MAX_ACCUMULATOR_RUNES must not be negative, got %d", c.GateMaxAccumulatorRunes)
	}
	if c.GateParticipantTTL < 0 {
		return fmt.Errorf("GATE_PARTICIPANT_TTL_SECONDS must not be negative, got %d", c.GateParticipantTTL)
	}

	return nil
}

// TickInterval returns the watchdog interval
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.GateTickIntervalMs) * time.Millisecond
}

// ParticipantTTL returns how long idle participants are kept
func (c *Config) ParticipantTTL() time.Duration {
	return time.Duration(c.GateParticipantTTL) * time.Second
}

// Encoding returns the validated cue encoding
func (c *Config) Encoding() audio.Encoding {
	return audio.Encoding(c.CueEncoding)
}

// PlaybackRetryConfig returns the retry policy for opening the cue output
func (c *Config) PlaybackRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.PlaybackRetryMaxAttempts
	cfg.InitialBackoff = time.Duration(c.PlaybackRetryInitialBackoff) * time.Millisecond
	cfg.MaxBackoff = time.Second
	return cfg
}

// NewCircuitBreaker creates a breaker with the configured thresholds
// and reports its state to the circuit breaker gauge
func (c *Config) NewCircuitBreaker(name string) *resilience.CircuitBreaker {
	observability.UpdateCircuitBreakerState(name, int(resilience.StateClosed))
	return resilience.NewCircuitBreaker(name, c.CircuitBreakerMaxFailures, time.Duration(c.CircuitBreakerResetTimeout)*time.Second,
		resilience.WithStateListener(func(name string, _, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
		}))
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
