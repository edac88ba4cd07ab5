// Package availability derives whether a device is reachable from two
// independent channels: passive broadcast sightings and the state of the
// active transport session.
//
// The derived state is one of:
//
//	CONNECTED       session live                        available
//	SIGHTING_FRESH  sighting younger than the threshold available
//	SIGHTING_STALE  no sighting, or an old one          unavailable
//	DISTRUSTED      a write failed since last evidence  unavailable
//
// A failed write reports unavailability at once. Recovery needs new
// evidence: a sighting or a live session. A recovering sighting also
// triggers a one-shot refresh broadcast so dependent entities re-render.
package availability
