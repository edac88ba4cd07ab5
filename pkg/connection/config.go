package connection

import (
	"fmt"
	"log/slog"
	"time"
)

// Default timing.
const (
	// DefaultLinger is how long a session stays open after the last write.
	DefaultLinger = 15 * time.Second

	// DefaultFastPathTimeout bounds the fast-path write attempt.
	DefaultFastPathTimeout = 5 * time.Second

	// DefaultDirectTimeout bounds the direct connect+write attempt.
	DefaultDirectTimeout = 10 * time.Second

	// DefaultDisconnectTimeout bounds a teardown.
	DefaultDisconnectTimeout = 10 * time.Second
)

// Config configures a Manager.
type Config struct {
	// NameHint is passed to the transport when opening a session.
	NameHint string

	// Linger is the idle time before a session is disconnected.
	Linger time.Duration

	FastPathTimeout   time.Duration
	DirectTimeout     time.Duration
	DisconnectTimeout time.Duration

	// UseServiceCache lets the transport reuse a cached characteristic table.
	UseServiceCache bool

	// FastPath is the optional host write capability. Nil disables it.
	FastPath FastPathWriter

	// Scheduler runs the idle timer. Nil uses the wall clock.
	Scheduler Scheduler

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Linger:            DefaultLinger,
		FastPathTimeout:   DefaultFastPathTimeout,
		DirectTimeout:     DefaultDirectTimeout,
		DisconnectTimeout: DefaultDisconnectTimeout,
		UseServiceCache:   true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Linger <= 0 {
		return fmt.Errorf("%w: linger must be positive", ErrInvalidConfig)
	}
	if c.FastPathTimeout <= 0 || c.DirectTimeout <= 0 {
		return fmt.Errorf("%w: write timeouts must be positive", ErrInvalidConfig)
	}
	if c.DisconnectTimeout <= 0 {
		return fmt.Errorf("%w: disconnect timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
