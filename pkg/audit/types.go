package audit

import (
	"fmt"
	"time"
)

// EventType names a session lifecycle fact.
type EventType string

const (
	EventCreated         EventType = "created"
	EventValidated       EventType = "validated"
	EventRefreshed       EventType = "refreshed"
	EventRevoked         EventType = "revoked"
	EventExpired         EventType = "expired"
	EventAnomalyDetected EventType = "anomaly_detected"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventValidated, EventRefreshed, EventRevoked, EventExpired, EventAnomalyDetected:
		return true
	}
	return false
}

// SessionEvent is an append-only fact about a session.
type SessionEvent struct {
	ID        string            `json:"id" bson:"_id"`
	SessionID string            `json:"session_id" bson:"session_id"`
	UserID    string            `json:"user_id" bson:"user_id"`
	TenantID  string            `json:"tenant_id" bson:"tenant_id"`
	Type      EventType         `json:"event_type" bson:"event_type"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Hash      string            `json:"hash" bson:"hash"`
}

// Validate checks the fields every event must carry.
func (e *SessionEvent) Validate() error {
	return validate(e.TenantID, e.SessionID, e.Type)
}

// Entry is the detailed audit record for security-relevant session actions.
type Entry struct {
	ID         string            `json:"id" bson:"_id"`
	SessionID  string            `json:"session_id" bson:"session_id"`
	UserID     string            `json:"user_id" bson:"user_id"`
	TenantID   string            `json:"tenant_id" bson:"tenant_id"`
	Type       EventType         `json:"event_type" bson:"event_type"`
	IPAddress  string            `json:"ip_address,omitempty" bson:"ip_address,omitempty"`
	DeviceInfo string            `json:"device_info,omitempty" bson:"device_info,omitempty"`
	Details    map[string]string `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp" bson:"timestamp"`
	Hash       string            `json:"hash" bson:"hash"`
}

// Validate checks the fields every entry must carry.
func (e *Entry) Validate() error {
	return validate(e.TenantID, e.SessionID, e.Type)
}

func validate(tenantID, sessionID string, t EventType) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("%w: tenant id is required", ErrInvalidEvent)
	case sessionID == "":
		return fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	case !t.Valid():
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, t)
	}
	return nil
}

// Criteria selects records of a single tenant. Results are ordered oldest first.
type Criteria struct {
	TenantID  string
	SessionID string
	UserID    string
	Types     []EventType
	Since     time.Time // inclusive, zero means unbounded
	Until     time.Time // exclusive, zero means unbounded
	Limit     int       // zero means no limit
}

func (c Criteria) validate() error {
	if c.TenantID == "" {
		return ErrTenantRequired
	}
	return nil
}

func (c Criteria) matches(tenantID, sessionID, userID string, t EventType, ts time.Time) bool {
	if tenantID != c.TenantID {
		return false
	}
	if c.SessionID != "" && sessionID != c.SessionID {
		return false
	}
	if c.UserID != "" && userID != c.UserID {
		return false
	}
	if !c.Since.IsZero() && ts.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && !ts.Before(c.Until) {
		return false
	}
	if len(c.Types) == 0 {
		return true
	}
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}
