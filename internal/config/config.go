package config

import "time"

// ServiceConfig is the root configuration for an ibgate instance.
type ServiceConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Pool    PoolConfig    `yaml:"pool"`
	Retry   RetryConfig   `yaml:"retry"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the HTTP facade settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GatewayConfig holds the connection settings for the external trading gateway.
type GatewayConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ClientIDBase int    `yaml:"client_id_base"` // First client id to try

	// ClientIDSpread is the number of additional candidate ids:
	// base+1 .. base+spread. A pointer so an explicit 0 (single-id
	// configuration) is distinguishable from the field being absent.
	ClientIDSpread *int `yaml:"client_id_spread"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Spread returns the configured client id spread, defaulting when the
// field was never set.
func (g GatewayConfig) Spread() int {
	if g.ClientIDSpread == nil {
		return DefaultClientIDSpread
	}
	return *g.ClientIDSpread
}

// PoolConfig holds session pool settings.
type PoolConfig struct {
	Capacity          int           `yaml:"capacity"`
	LeaseTimeout      time.Duration `yaml:"lease_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"` // Heartbeat age before a session counts as stale
}

// RetryConfig holds reconnect backoff settings.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
