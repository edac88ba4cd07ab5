package availability

import "time"

// State is the availability state derived at read time. It is never
// stored; see Tracker.StateAt.
type State uint8

const (
	// StateSightingStale means no session and no sighting within the
	// threshold (or none ever). Unavailable.
	StateSightingStale State = iota

	// StateSightingFresh means no session but a recent sighting. Available.
	StateSightingFresh

	// StateConnected means a session is live. Always available.
	StateConnected

	// StateDistrusted means a write failed since the last evidence of
	// reachability. Unavailable until a sighting or a live session.
	StateDistrusted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateSightingStale:
		return "SIGHTING_STALE"
	case StateSightingFresh:
		return "SIGHTING_FRESH"
	case StateConnected:
		return "CONNECTED"
	case StateDistrusted:
		return "DISTRUSTED"
	default:
		return "UNKNOWN"
	}
}

// Available reports whether the state counts as available.
func (s State) Available() bool {
	return s == StateConnected || s == StateSightingFresh
}

// Reasons carried by updates.
const (
	ReasonSighting     = "sighting"
	ReasonRecovered    = "recovered"
	ReasonWriteFailed  = "write_failed"
	ReasonSessionLive  = "session_live"
	ReasonSessionEnded = "session_ended"
	ReasonStale        = "stale"
)

// Update is delivered to subscribers when availability changes, after every
// write failure and on recovery.
type Update struct {
	Address   string
	Available bool
	State     State
	Reason    string
	// Recovered is set on the forced update emitted when a sighting clears
	// the distrusted state.
	Recovered bool
	At        time.Time
}
