package pool

import (
	"fmt"
	"time"
)

// Config bounds a pool
type Config struct {
	MinSize int `yaml:"min-size"`
	MaxSize int `yaml:"max-size"`

	// IdleTimeout is how long a returned resource may stay idle before the sweep destroys it
	IdleTimeout time.Duration `yaml:"idle-timeout"`
	// CleanupInterval is the period of the idle sweep, one second at least
	CleanupInterval time.Duration `yaml:"cleanup-interval"`
	// CheckoutTimeout bounds the wait for a resource of an exhausted pool. Zero takes
	// the default, a negative timeout waits until the checkout context is done.
	CheckoutTimeout time.Duration `yaml:"checkout-timeout"`
}

// DefaultConfig returns the bounds used for unset fields
func DefaultConfig() Config {
	return Config{
		MinSize:         1,
		MaxSize:         8,
		IdleTimeout:     60 * time.Second,
		CleanupInterval: 20 * time.Second,
		CheckoutTimeout: 30 * time.Second,
	}
}

// WithDefaults fills the unset fields of c with the defaults
func (c Config) WithDefaults() Config {
	var d = DefaultConfig()
	if c.MaxSize == 0 {
		c.MaxSize = d.MaxSize
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.CheckoutTimeout == 0 {
		c.CheckoutTimeout = d.CheckoutTimeout
	}

	return c
}

// Validate checks that the bounds are consistent
func (c Config) Validate() error {
	switch {
	case c.MaxSize <= 0:
		return fmt.Errorf("pool: max size must be positive, got %d", c.MaxSize)
	case c.MinSize < 0:
		return fmt.Errorf("pool: min size must not be negative, got %d", c.MinSize)
	case c.MinSize > c.MaxSize:
		return fmt.Errorf("pool: min size %d exceeds max size %d", c.MinSize, c.MaxSize)
	case c.IdleTimeout < 0:
		return fmt.Errorf("pool: idle timeout must not be negative, got %v", c.IdleTimeout)
	case c.CleanupInterval < time.Second:
		return fmt.Errorf("pool: cleanup interval must be one second at least, got %v", c.CleanupInterval)
	}

	return nil
}
