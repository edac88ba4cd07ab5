// Package bluez implements the connection transport and the sighting feed
// on top of the BlueZ D-Bus API.
//
// Sessions map onto org.bluez.Device1 objects: Open calls Connect and waits
// for the Connected property, DiscoverServices waits for ServicesResolved and
// indexes the org.bluez.GattCharacteristic1 objects below the device by UUID.
// Writes go through GattCharacteristic1.WriteValue.
//
// The Scanner runs discovery on one adapter and turns InterfacesAdded and
// RSSI PropertiesChanged signals into sightings whose source is the adapter
// name.
package bluez
