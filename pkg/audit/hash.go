package audit

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"io"
	"maps"
	"slices"
	"time"
)

// HashEvent returns the content hash of a session event. The Hash field itself
// is not part of the input.
func HashEvent(e SessionEvent) string {
	return digest(e.Metadata, "event", e.ID, e.TenantID, e.UserID, e.SessionID, string(e.Type),
		formatTime(e.Timestamp))
}

// HashEntry returns the content hash of an audit entry.
func HashEntry(e Entry) string {
	return digest(e.Details, "entry", e.ID, e.TenantID, e.UserID, e.SessionID, string(e.Type),
		e.IPAddress, e.DeviceInfo, formatTime(e.Timestamp))
}

// VerifyEvent reports whether the event still matches its recorded hash.
func VerifyEvent(e SessionEvent) bool {
	return equal(e.Hash, HashEvent(e))
}

// VerifyEntry reports whether the entry still matches its recorded hash.
func VerifyEntry(e Entry) bool {
	return equal(e.Hash, HashEntry(e))
}

// digest hashes parts followed by m in key order. Every string is framed by
// its 8-byte length and the map by its size, so no two inputs share a stream.
func digest(m map[string]string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		writePart(h, p)
	}
	writeLen(h, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		writePart(h, k)
		writePart(h, m[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePart(w io.Writer, p string) {
	writeLen(w, len(p))
	_, _ = io.WriteString(w, p)
}

func writeLen(w io.Writer, n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	_, _ = w.Write(b[:])
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func equal(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// normalizeTime drops precision below a millisecond so records survive a
// round-trip through backends with coarser timestamps (BSON dates).
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
