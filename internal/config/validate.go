package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Gateway.Host == "" {
		return errors.New("gateway.host is required")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Gateway.ClientIDBase < 1 {
		return errors.New("gateway.client_id_base must be >= 1")
	}
	if c.Gateway.ClientIDSpread != nil && *c.Gateway.ClientIDSpread < 0 {
		return errors.New("gateway.client_id_spread must be >= 0")
	}
	if c.Gateway.ConnectTimeout <= 0 {
		return errors.New("gateway.connect_timeout must be positive")
	}

	if c.Pool.Capacity < 1 {
		return errors.New("pool.capacity must be >= 1")
	}
	if c.Pool.HeartbeatInterval <= 0 {
		return errors.New("pool.heartbeat_interval must be positive")
	}
	if c.Pool.StaleAfter <= 0 {
		return errors.New("pool.stale_after must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %g", c.Retry.Multiplier)
	}
	if c.Retry.InitialDelay <= 0 {
		return errors.New("retry.initial_delay must be positive")
	}
	if c.Retry.MaxDelay <= 0 {
		return errors.New("retry.max_delay must be positive")
	}
	if c.Retry.InitialDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.initial_delay (%s) cannot exceed max_delay (%s)",
			c.Retry.InitialDelay, c.Retry.MaxDelay)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}
