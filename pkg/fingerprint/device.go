package fingerprint

import (
	"encoding/json"
	"strings"
)

// DeviceInfo is a client-declared description of the device presenting a session.
// It is never persisted verbatim; only its derived fingerprint is stored.
type DeviceInfo struct {
	DeviceID       string `json:"device_id,omitempty"`
	DeviceType     string `json:"device_type,omitempty"`
	DeviceName     string `json:"device_name,omitempty"`
	OS             string `json:"os,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
}

// IsZero reports whether no device attribute was declared.
func (d DeviceInfo) IsZero() bool {
	return d == DeviceInfo{}
}

// String returns the JSON form used in audit entries.
func (d DeviceInfo) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// signature returns the canonical form of the stable device attributes.
// Device name and versions are excluded: users rename devices and browsers
// update themselves, neither of which indicates a different device.
func (d DeviceInfo) signature() string {
	return strings.Join([]string{
		canonical(d.DeviceID),
		canonical(d.DeviceType),
		canonical(d.OS),
		canonical(d.Browser),
	}, "|")
}

func canonical(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
