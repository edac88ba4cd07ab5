package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Service type and domain browsed for Bluetooth proxies.
const (
	ServiceType = "_esphomelib._tcp"
	Domain      = "local."
)

// TXT record keys.
const (
	TXTKeyFriendlyName = "friendly_name"
	TXTKeyMAC          = "mac"
	TXTKeyFeatureFlags = "bluetooth_proxy_feature_flags"
	TXTKeyVersion      = "version"
	TXTKeyPlatform     = "platform"
)

// Bluetooth proxy feature flags.
const (
	FeaturePassiveScan   uint32 = 1 << 0
	FeatureActiveConnect uint32 = 1 << 1
	FeatureRemoteCache   uint32 = 1 << 2
	FeaturePairing       uint32 = 1 << 3
	FeatureCacheClearing uint32 = 1 << 4
	FeatureRawAdverts    uint32 = 1 << 5
)

var (
	// ErrNotProxy is returned for a node that does not announce Bluetooth
	// proxy features.
	ErrNotProxy = errors.New("not a bluetooth proxy")

	// ErrMissingRequired is returned when a required TXT key is absent.
	ErrMissingRequired = errors.New("missing required TXT record")
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// StringsToTXTRecords converts "key=value" strings to a map. A key without
// "=" maps to the empty string.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}

// Proxy is a discovered Bluetooth proxy.
type Proxy struct {
	Instance     string   `json:"instance"`
	Host         string   `json:"host"`
	Port         uint16   `json:"port"`
	Addresses    []string `json:"addresses"`
	FriendlyName string   `json:"friendlyName,omitempty"`
	MAC          string   `json:"mac"`
	FeatureFlags uint32   `json:"featureFlags"`
	Version      string   `json:"version,omitempty"`
	Platform     string   `json:"platform,omitempty"`
}

// DisplayName returns the friendly name, falling back to the instance name.
func (p *Proxy) DisplayName() string {
	if p.FriendlyName != "" {
		return p.FriendlyName
	}
	return p.Instance
}

// CanConnect reports whether the proxy relays active connections.
func (p *Proxy) CanConnect() bool {
	return p.FeatureFlags&FeatureActiveConnect != 0
}

// ProxyInfo is the proxy-specific content of a TXT record.
type ProxyInfo struct {
	FriendlyName string
	MAC          string
	FeatureFlags uint32
	Version      string
	Platform     string
}

// DecodeProxyTXT parses the TXT record of a proxy announcement. The MAC is
// returned in canonical colon-separated upper-case form.
func DecodeProxyTXT(txt TXTRecordMap) (*ProxyInfo, error) {
	flagStr, ok := txt[TXTKeyFeatureFlags]
	if !ok {
		return nil, ErrNotProxy
	}
	flags, err := strconv.ParseUint(flagStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", TXTKeyFeatureFlags, flagStr, err)
	}
	if flags == 0 {
		return nil, ErrNotProxy
	}

	macStr, ok := txt[TXTKeyMAC]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMAC)
	}
	mac, err := NormalizeMAC(macStr)
	if err != nil {
		return nil, err
	}

	return &ProxyInfo{
		FriendlyName: txt[TXTKeyFriendlyName],
		MAC:          mac,
		FeatureFlags: uint32(flags),
		Version:      txt[TXTKeyVersion],
		Platform:     txt[TXTKeyPlatform],
	}, nil
}

// NormalizeMAC accepts "a4cf12345678", "a4:cf:12:34:56:78" or
// "A4-CF-12-34-56-78" and returns "A4:CF:12:34:56:78".
func NormalizeMAC(s string) (string, error) {
	hex := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s)))
	if len(hex) != 12 {
		return "", fmt.Errorf("invalid mac %q", s)
	}
	if _, err := strconv.ParseUint(hex, 16, 64); err != nil {
		return "", fmt.Errorf("invalid mac %q", s)
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String(), nil
}

// ServiceEntry is a resolved DNS-SD entry independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToProxy converts the entry to a Proxy.
func (e ServiceEntry) ToProxy() (*Proxy, error) {
	info, err := DecodeProxyTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &Proxy{
		Instance:     e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		FriendlyName: info.FriendlyName,
		MAC:          info.MAC,
		FeatureFlags: info.FeatureFlags,
		Version:      info.Version,
		Platform:     info.Platform,
	}, nil
}
