package vesc

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Firmware is the version reported in FW_VERSION answers.
type Firmware struct {
	Major uint8
	Minor uint8
}

// DefaultFirmware is reported unless WithFirmware overrides it.
var DefaultFirmware = Firmware{Major: 6, Minor: 2}

// ParseFirmware reads a version such as "6.2" or "6.2.0". Patch and
// prerelease parts are not representable on the wire and are ignored.
func ParseFirmware(s string) (Firmware, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Firmware{}, fmt.Errorf("vesc: firmware version %q: %w", s, err)
	}
	if v.Major() > 255 || v.Minor() > 255 {
		return Firmware{}, fmt.Errorf("vesc: firmware version %q does not fit in two bytes", s)
	}
	return Firmware{Major: uint8(v.Major()), Minor: uint8(v.Minor())}, nil
}

// String formats the version the way VESC Tool shows it, e.g. "6.02".
func (f Firmware) String() string {
	return fmt.Sprintf("%d.%02d", f.Major, f.Minor)
}
