// Package device wires the parts that serve one configured peripheral.
//
// For each device a Device owns a connection.Manager (the single session and
// its write guard), an availability.Tracker (fed by sightings and session
// state), a sighting.Listener and one switches.Switch per configured
// characteristic. The manager's state changes drive the tracker, the tracker
// drives switch re-renders, and every change is published on the event bus.
//
// A Hub holds all devices of the daemon and routes the shared sighting feed
// to them by address.
package device
