package connection

import (
	"context"
	"errors"
	"fmt"
)

// Connection errors.
var (
	// ErrDeviceUnreachable is the only error crossing the manager boundary
	// for expected failures. Match it with errors.Is.
	ErrDeviceUnreachable = errors.New("device unreachable")

	// ErrAddressUnresolvable means no registry entry currently reaches the address.
	ErrAddressUnresolvable = errors.New("address not resolvable")

	// ErrTransportFailure marks a connect, discovery or write failure.
	// Transport implementations wrap their expected errors with it.
	ErrTransportFailure = errors.New("transport failure")

	// ErrNotFound is returned by transports when the target vanished
	// between resolution and connect. It counts as a transport failure.
	ErrNotFound = errors.New("device not found")

	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("connection manager closed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid connection config")
)

// UnreachableError describes why a device could not be reached.
type UnreachableError struct {
	Address string
	Op      string
	Cause   error // ErrAddressUnresolvable or ErrTransportFailure
	Err     error
}

func (e *UnreachableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Address, ErrDeviceUnreachable, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Address, ErrDeviceUnreachable, e.Err)
}

// Is matches ErrDeviceUnreachable and the cause sentinel.
func (e *UnreachableError) Is(target error) bool {
	return target == ErrDeviceUnreachable || (e.Cause != nil && target == e.Cause)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// IsUnreachable reports whether err is a DeviceUnreachable failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrDeviceUnreachable)
}

func unreachable(address, op string, cause, err error) error {
	return &UnreachableError{Address: address, Op: op, Cause: cause, Err: err}
}

// isTransportError reports whether err is an expected connection-layer
// failure. Everything else is treated as unexpected.
func isTransportError(err error) bool {
	switch {
	case errors.Is(err, ErrTransportFailure),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
