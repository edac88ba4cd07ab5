// Package discovery finds Bluetooth proxies on the local network.
//
// Proxies announce themselves over mDNS/DNS-SD as _esphomelib._tcp. The TXT
// record carries the proxy's friendly name, its MAC address and the
// bluetooth_proxy_feature_flags bitmap; entries without the feature flags
// are plain nodes and are ignored.
//
// Sightings relayed by a proxy name the proxy by MAC address. A Directory
// keeps the proxies seen so far keyed by that address, so logs and status
// output can show "Living Room Proxy" instead of "A4:CF:12:34:56:78".
package discovery
