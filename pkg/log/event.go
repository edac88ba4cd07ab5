package log

import (
	"time"
)

// Event is one entry of the device event log.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the transport session (UUID), if one was involved.
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Address is the hardware address of the device.
	Address string `cbor:"3,keyasint"`

	// Direction indicates data flow relative to this process.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"6,keyasint"`

	// Entity is the switch unique id for entity-layer events.
	Entity string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Sighting    *SightingEvent    `cbor:"10,keyasint,omitempty"`
	Write       *WriteEvent       `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates data flow.
type Direction uint8

const (
	// DirectionIn is data received from the radio (sightings).
	DirectionIn Direction = 0
	// DirectionOut is data sent to the device (writes).
	DirectionOut Direction = 1
	// DirectionNone is an internal event.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the radio/transport adapter.
	LayerTransport Layer = 0
	// LayerSession is the connection session manager.
	LayerSession Layer = 1
	// LayerAvailability is the availability tracker.
	LayerAvailability Layer = 2
	// LayerEntity is the switch facade.
	LayerEntity Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	case LayerAvailability:
		return "AVAILABILITY"
	case LayerEntity:
		return "ENTITY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategorySighting is a broadcast sighting.
	CategorySighting Category = 0
	// CategoryWrite is a characteristic write attempt.
	CategoryWrite Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategorySighting:
		return "SIGHTING"
	case CategoryWrite:
		return "WRITE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as printed by String.
func ParseCategory(s string) (Category, bool) {
	for c := CategorySighting; c <= CategoryError; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// ParseLayer parses a layer name as printed by String.
func ParseLayer(s string) (Layer, bool) {
	for l := LayerTransport; l <= LayerEntity; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// SightingEvent captures a received advertisement.
type SightingEvent struct {
	// Source is the adapter or proxy that relayed the advertisement.
	Source string `cbor:"1,keyasint"`

	// RSSI in dBm.
	RSSI int16 `cbor:"2,keyasint"`

	// Connectable is set when the source can open connections.
	Connectable bool `cbor:"3,keyasint,omitempty"`

	// Recovered is set when the sighting cleared a forced-unavailable state.
	Recovered bool `cbor:"4,keyasint,omitempty"`
}

// WritePath names the strategy that served a write.
type WritePath uint8

const (
	// WritePathDirect writes through a session owned by the manager.
	WritePathDirect WritePath = 0
	// WritePathFast writes through the host fast path.
	WritePathFast WritePath = 1
)

// String returns the path name.
func (p WritePath) String() string {
	switch p {
	case WritePathDirect:
		return "direct"
	case WritePathFast:
		return "fast"
	default:
		return "unknown"
	}
}

// Outcome is the result class of a write.
type Outcome uint8

const (
	OutcomeOK          Outcome = 0
	OutcomeUnreachable Outcome = 1
	OutcomeFailed      Outcome = 2

	// OutcomeAbandoned means the caller's context ended before the write
	// completed. The device is not blamed.
	OutcomeAbandoned Outcome = 3
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// WriteEvent captures one characteristic write call.
type WriteEvent struct {
	// UUID of the characteristic.
	UUID string `cbor:"1,keyasint"`

	// Data written.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Path that completed (or last failed) the write.
	Path WritePath `cbor:"3,keyasint"`

	// WithResponse is set for acknowledged writes.
	WithResponse bool `cbor:"4,keyasint,omitempty"`

	// Outcome of the call.
	Outcome Outcome `cbor:"5,keyasint"`

	// Duration of the whole call including lock wait. Stored as nanoseconds.
	Duration time.Duration `cbor:"6,keyasint"`
}

// StateChangeEvent captures session, availability and entity state changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntitySession is the transport session.
	StateEntitySession StateEntity = 0
	// StateEntityAvailability is the derived availability.
	StateEntityAvailability StateEntity = 1
	// StateEntitySwitch is a switch on/off state.
	StateEntitySwitch StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityAvailability:
		return "AVAILABILITY"
	case StateEntitySwitch:
		return "SWITCH"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
