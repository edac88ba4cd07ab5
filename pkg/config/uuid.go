package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// bluetoothBase is the Bluetooth base UUID that 16- and 32-bit assigned
// numbers expand onto.
const bluetoothBase = "-0000-1000-8000-00805f9b34fb"

// ExpandUUID returns the canonical lower-case 128-bit form of s. 16-bit
// ("ff01", "0xff01") and 32-bit short forms are expanded on the Bluetooth
// base UUID.
func ExpandUUID(s string) (string, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	switch len(s) {
	case 4, 8:
		if _, err := hex.DecodeString(s); err != nil {
			return "", fmt.Errorf("invalid short uuid %q", s)
		}
		if len(s) == 4 {
			s = "0000" + s
		}
		s += bluetoothBase
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return u.String(), nil
}
