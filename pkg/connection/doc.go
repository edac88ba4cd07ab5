// Package connection manages the on-demand transport session of one BLE
// peripheral.
//
// A Manager owns at most one session per device. Writes are serialized by
// a Guard held for the full resolve, connect and write sequence:
//
//  1. Resolve the device address to a reachable Target (it may have moved
//     to another proxy since the last call).
//  2. If a FastPathWriter was injected, try it under a 5s budget.
//  3. Otherwise, or when the fast path fails, reuse or open a session and
//     write directly under a 10s budget.
//  4. Rearm the idle timer (15s by default), whatever the outcome.
//
// # Failure classification
//
// Resolution failures, transport failures and timeouts are returned as
// *UnreachableError, which matches ErrDeviceUnreachable. Any other error is
// returned unchanged so callers can tell an absent device from a bug. Both
// kinds drop the current session. Disconnect errors are logged, never
// returned.
//
// # Idle teardown
//
// The session handle is only ever replaced through a setter that cancels
// the pending idle timer first, and stale timer callbacks are ignored, so
// a session never gets two scheduled disconnects.
package connection
