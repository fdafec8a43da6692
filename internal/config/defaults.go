package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerHost        = "0.0.0.0"
	DefaultServerPort        = 8000
	DefaultReadTimeout       = 30 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultGatewayHost       = "localhost"
	DefaultGatewayPort       = 4002
	DefaultClientIDBase      = 1
	DefaultClientIDSpread    = 4
	DefaultConnectTimeout    = 30 * time.Second
	DefaultPoolCapacity      = 5
	DefaultLeaseTimeout      = 30 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStaleAfter        = 20 * time.Second
	DefaultMaxAttempts       = 5
	DefaultInitialDelay      = 1 * time.Second
	DefaultMaxDelay          = 60 * time.Second
	DefaultMultiplier        = 2.0
	DefaultLogLevel          = "info"
	DefaultMetricsPath       = "/metrics"
)

func (c *ServiceConfig) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Gateway defaults
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Gateway.ClientIDBase == 0 {
		c.Gateway.ClientIDBase = DefaultClientIDBase
	}
	if c.Gateway.ClientIDSpread == nil {
		spread := DefaultClientIDSpread
		c.Gateway.ClientIDSpread = &spread
	}
	if c.Gateway.ConnectTimeout == 0 {
		c.Gateway.ConnectTimeout = DefaultConnectTimeout
	}

	// Pool defaults
	if c.Pool.Capacity == 0 {
		c.Pool.Capacity = DefaultPoolCapacity
	}
	if c.Pool.LeaseTimeout == 0 {
		c.Pool.LeaseTimeout = DefaultLeaseTimeout
	}
	if c.Pool.HeartbeatInterval == 0 {
		c.Pool.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Pool.StaleAfter == 0 {
		c.Pool.StaleAfter = DefaultStaleAfter
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = DefaultInitialDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultMultiplier
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
