package session

// Observer receives lifecycle signals for metrics and error reporting. Calls
// are made inline, so implementations must be fast and must not block.
type Observer interface {
	SessionCreated(tenantID string)
	SessionEvicted(tenantID string)
	SessionRevoked(tenantID, reason string)
	AnomalyDetected(tenantID, action string)
	// AuditFailed reports an audit write that was abandoned.
	AuditFailed(tenantID, eventType string, err error)
}

// NopObserver ignores every signal.
type NopObserver struct{}

func (NopObserver) SessionCreated(string) {}
func (NopObserver) SessionEvicted(string) {}
func (NopObserver) SessionRevoked(string, string) {}
func (NopObserver) AnomalyDetected(string, string) {}
func (NopObserver) AuditFailed(string, string, error) {}

// Revocation reasons recorded in events and passed to Observer.
const (
	ReasonExplicit    = "explicit"
	ReasonCapExceeded = "cap_exceeded"
	ReasonAnomaly     = "anomaly"
	ReasonLogoutAll   = "logout_all"
	ReasonAccessTTL   = "access_expired"
	ReasonRefreshTTL  = "refresh_expired"
)
