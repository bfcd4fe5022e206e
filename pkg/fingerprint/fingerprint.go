package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/netip"
	"strings"
)

// Verdict is the outcome of comparing a stored fingerprint with a candidate.
type Verdict string

const (
	// Match means both device and network signatures are identical.
	Match Verdict = "match"
	// Partial means the device signature matches but the network bucket differs.
	Partial Verdict = "partial"
	// Mismatch means the device signature differs or a fingerprint is malformed.
	Mismatch Verdict = "mismatch"
)

const (
	separator    = "."
	ipv4Bits     = 24
	ipv6Bits     = 48
	unknownIP    = "unknown"
	deviceLength = 32
	netLength    = 16
)

// Derive computes the fingerprint for the given device and client IP.
// The result is a 32-character device signature and a 16-character network
// signature, both lowercase hex, joined by a dot.
func Derive(device DeviceInfo, ip string) string {
	deviceSum := sha256.Sum256([]byte(device.signature()))
	netSum := sha256.Sum256([]byte(CoarsenIP(ip)))

	return hex.EncodeToString(deviceSum[:deviceLength/2]) +
		separator +
		hex.EncodeToString(netSum[:netLength/2])
}

// Compare classifies candidate against stored.
func Compare(stored, candidate string) Verdict {
	storedDevice, storedNet, ok := split(stored)
	if !ok {
		return Mismatch
	}
	candDevice, candNet, ok := split(candidate)
	if !ok {
		return Mismatch
	}

	if subtle.ConstantTimeCompare([]byte(storedDevice), []byte(candDevice)) != 1 {
		return Mismatch
	}
	if subtle.ConstantTimeCompare([]byte(storedNet), []byte(candNet)) != 1 {
		return Partial
	}
	return Match
}

// CoarsenIP maps an address to its network bucket: the /24 for IPv4 and the
// /48 for IPv6. Addresses with a port are accepted. Unparseable input maps to
// a shared "unknown" bucket.
func CoarsenIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return unknownIP
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		ap, perr := netip.ParseAddrPort(ip)
		if perr != nil {
			return unknownIP
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap().WithZone("")

	bits := ipv6Bits
	if addr.Is4() {
		bits = ipv4Bits
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return unknownIP
	}
	return prefix.String()
}

func split(fp string) (device, network string, ok bool) {
	device, network, ok = strings.Cut(fp, separator)
	if !ok || len(device) != deviceLength || len(network) != netLength {
		return "", "", false
	}
	return device, network, true
}
