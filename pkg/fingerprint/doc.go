// Package fingerprint derives and compares device fingerprints for session
// hijacking detection.
//
// A fingerprint has two halves joined by a dot: a device signature computed
// from a canonicalised subset of the client-declared DeviceInfo, and a network
// signature computed from a coarsened client IP address (the /24 network for
// IPv4, the /48 network for IPv6). Coarsening tolerates minor address churn
// inside the same network while still exposing a move to another network.
//
// # Usage
//
//	fp := fingerprint.Derive(device, "203.0.113.17")
//	// ... later, on validation
//	switch fingerprint.Compare(stored, fingerprint.Derive(device, ip)) {
//	case fingerprint.Match:
//	case fingerprint.Partial: // same device, different network bucket
//	case fingerprint.Mismatch: // different device
//	}
//
// Both functions are pure and safe for concurrent use.
package fingerprint
