package availability

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultUnavailableAfter is the sighting age after which a device
	// without a session is reported unavailable.
	DefaultUnavailableAfter = 45 * time.Second

	// DefaultStartupTimeout bounds WaitReady when no timeout is given.
	DefaultStartupTimeout = 30 * time.Second
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid availability config")

// Config configures a Tracker.
type Config struct {
	// UnavailableAfter is the staleness threshold for sightings.
	UnavailableAfter time.Duration

	// StartupTimeout is the default ready wait.
	StartupTimeout time.Duration

	// Clock drives staleness evaluation, the watchdog and ready waits.
	// Nil uses the real clock.
	Clock clockwork.Clock

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		UnavailableAfter: DefaultUnavailableAfter,
		StartupTimeout:   DefaultStartupTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.UnavailableAfter <= 0 {
		return fmt.Errorf("%w: unavailable threshold must be positive", ErrInvalidConfig)
	}
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("%w: startup timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// ValidateLinger checks that the threshold exceeds a session linger, so a
// device disconnected for idleness is not reported unavailable right after
// teardown.
func (c Config) ValidateLinger(linger time.Duration) error {
	if c.UnavailableAfter <= linger {
		return fmt.Errorf("%w: unavailable threshold %s must exceed idle linger %s",
			ErrInvalidConfig, c.UnavailableAfter, linger)
	}
	return nil
}
