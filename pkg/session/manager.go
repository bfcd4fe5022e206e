package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionkit/pkg/anomaly"
	"github.com/dmitrymomot/sessionkit/pkg/audit"
	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
	"github.com/dmitrymomot/sessionkit/pkg/tenant"
	"github.com/dmitrymomot/sessionkit/pkg/token"
)

// Auditor is the audit trail written by the Manager. *audit.Logger
// implements it.
type Auditor interface {
	RecordEvent(ctx context.Context, event audit.SessionEvent) error
	RecordAudit(ctx context.Context, entry audit.Entry) error
	History(ctx context.Context, tenantID, sessionID string, since time.Time) ([]audit.SessionEvent, error)
}

// Manager runs the session lifecycle: create, validate, refresh, revoke and
// listing. It is safe for concurrent use.
type Manager struct {
	store    Store
	auditor  Auditor
	policy   Policy
	detector *anomaly.Detector
	minter   token.Minter
	tenants  tenant.Provider
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Manager. It panics on a nil store or auditor and on an
// invalid policy.
func New(store Store, auditor Auditor, opts ...Option) *Manager {
	if store == nil {
		panic("session: store cannot be nil")
	}
	if auditor == nil {
		panic("session: auditor cannot be nil")
	}

	m := &Manager{
		store:    store,
		auditor:  auditor,
		policy:   DefaultPolicy(),
		minter:   token.NewOpaque(32),
		tenants:  tenant.ContextProvider,
		observer: NopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.policy.Validate(); err != nil {
		panic(err.Error())
	}
	if m.detector == nil {
		m.detector = anomaly.New(
			anomaly.WithChallengeThreshold(m.policy.ChallengeThreshold),
			anomaly.WithChallengeWindow(m.policy.ChallengeWindow),
		)
	}
	m.logger = m.logger.With(logger.Component("session"))

	return m
}

// Policy returns the policy in effect.
func (m *Manager) Policy() Policy {
	return m.policy
}

// CreateParams describes a new login of an already authenticated user.
type CreateParams struct {
	TenantID string // empty falls back to the tenant provider
	UserID   string
	Role     string
	Device   fingerprint.DeviceInfo
	IP       string
	Metadata map[string]string
}

// ValidateParams describes a request presenting an access token.
type ValidateParams struct {
	TenantID    string // empty falls back to the tenant provider
	AccessToken string
	Device      fingerprint.DeviceInfo
	IP          string
}

// Create opens a session. When the user already holds the maximum number of
// sessions, the oldest ones are evicted; eviction is not an error and only
// shows up as revoked events.
func (m *Manager) Create(ctx context.Context, p CreateParams) (Record, error) {
	tenantID, err := m.tenant(ctx, p.TenantID)
	if err != nil {
		return Record{}, err
	}
	if p.UserID == "" {
		return Record{}, fmt.Errorf("%w: user id is required", ErrInvalidParams)
	}

	now := m.now()
	id := m.newID()
	accessExp := now.Add(m.policy.AccessTTL)
	refreshExp := now.Add(m.policy.RefreshTTL)

	access, err := m.mint(ctx, token.Request{Kind: token.Access, SessionID: id, UserID: p.UserID, TenantID: tenantID, ExpiresAt: accessExp})
	if err != nil {
		return Record{}, err
	}
	refresh, err := m.mint(ctx, token.Request{Kind: token.Refresh, SessionID: id, UserID: p.UserID, TenantID: tenantID, ExpiresAt: refreshExp})
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:                id,
		AccessToken:       access,
		RefreshToken:      refresh,
		UserID:            p.UserID,
		TenantID:          tenantID,
		Role:              p.Role,
		CreatedAt:         now,
		AccessExpiresAt:   accessExp,
		RefreshExpiresAt:  refreshExp,
		DeviceFingerprint: fingerprint.Derive(p.Device, p.IP),
		LastIP:            p.IP,
		Metadata:          maps.Clone(p.Metadata),
	}

	evicted, err := m.store.PutCapped(ctx, rec, m.policy.storeTTL(), m.policy.MaxSessionsPerUser)
	if err != nil {
		return Record{}, err
	}

	for _, oldID := range evicted {
		// PutCapped already dropped the record; Remove is a no-op then
		if _, err := m.store.Remove(ctx, oldID); err != nil {
			m.logger.WarnContext(ctx, "failed to remove evicted session",
				logger.TenantID(tenantID), logger.SessionID(oldID), logger.Error(err))
		}
		old := Record{ID: oldID, TenantID: tenantID, UserID: p.UserID}
		details := map[string]string{"reason": ReasonCapExceeded, "evicted_by": id}
		m.recordEvent(ctx, old, audit.EventRevoked, details)
		m.recordAudit(ctx, old, audit.EventRevoked, p.IP, "", details)
		m.observer.SessionEvicted(tenantID)
		m.observer.SessionRevoked(tenantID, ReasonCapExceeded)
		m.logger.InfoContext(ctx, "session evicted",
			logger.TenantID(tenantID), logger.UserID(p.UserID), logger.SessionID(oldID), logger.Reason(ReasonCapExceeded))
	}

	m.recordEvent(ctx, rec, audit.EventCreated, map[string]string{"role": p.Role})
	m.recordAudit(ctx, rec, audit.EventCreated, p.IP, deviceString(p.Device), map[string]string{
		"role":        p.Role,
		"fingerprint": rec.DeviceFingerprint,
	})
	m.observer.SessionCreated(tenantID)
	m.logger.InfoContext(ctx, "session created",
		logger.TenantID(tenantID), logger.UserID(p.UserID), logger.SessionID(id), slog.Int("evicted", len(evicted)))

	return rec.clone(), nil
}

// Validate checks an access token and the presenting device. A valid call
// increments the request counter.
func (m *Manager) Validate(ctx context.Context, p ValidateParams) (Record, error) {
	tenantID, err := m.tenant(ctx, p.TenantID)
	if err != nil {
		return Record{}, err
	}
	rec, err := m.lookup(ctx, tenantID, token.Access, p.AccessToken)
	if err != nil {
		return Record{}, err
	}

	now := m.now()
	if rec.AccessExpired(now) {
		m.reportAccessExpired(ctx, rec, p.AccessToken)
		return Record{}, ErrSessionExpired
	}

	var verdict fingerprint.Verdict
	if m.policy.FingerprintEnabled {
		verdict = fingerprint.Compare(rec.DeviceFingerprint, fingerprint.Derive(p.Device, p.IP))
	}
	decision := m.decide(ctx, rec, verdict, now)

	if decision.Action.Anomalous() {
		m.reportAnomaly(ctx, rec, p, verdict, decision)
	}

	if !decision.Action.Proceeds() {
		if decision.Action != anomaly.Revoke {
			return Record{}, ErrChallengeRequired
		}
		if _, err := m.revoke(ctx, rec, ReasonAnomaly, p.IP); err != nil {
			return Record{}, errors.Join(ErrSessionRevoked, err)
		}
		return Record{}, ErrSessionRevoked
	}

	updated, err := m.store.Update(ctx, rec.ID, func(r *Record) error {
		if !tokenEqual(r.AccessToken, p.AccessToken) {
			return ErrNotFound
		}
		r.RequestCount++
		if p.IP != "" {
			r.LastIP = p.IP
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	m.recordEvent(ctx, updated, audit.EventValidated, map[string]string{
		"request_count": strconv.FormatInt(updated.RequestCount, 10),
	})

	return updated, nil
}

// Refresh issues a new access token for a session whose refresh token is
// still valid. The session id is kept. With RotateRefreshToken the refresh
// token is replaced too and the presented one stops working.
func (m *Manager) Refresh(ctx context.Context, tenantID, refreshToken string) (Record, error) {
	tenantID, err := m.tenant(ctx, tenantID)
	if err != nil {
		return Record{}, err
	}
	rec, err := m.lookup(ctx, tenantID, token.Refresh, refreshToken)
	if err != nil {
		return Record{}, err
	}

	now := m.now()
	if rec.RefreshExpired(now) {
		if _, err := m.store.Remove(ctx, rec.ID); err != nil {
			m.logger.WarnContext(ctx, "failed to remove expired session",
				logger.TenantID(tenantID), logger.SessionID(rec.ID), logger.Error(err))
		}
		m.recordEvent(ctx, rec, audit.EventExpired, map[string]string{"reason": ReasonRefreshTTL})
		return Record{}, ErrRefreshExpired
	}

	// the refresh deadline is absolute; access never outlives it
	accessExp := now.Add(m.policy.AccessTTL)
	if accessExp.After(rec.RefreshExpiresAt) {
		accessExp = rec.RefreshExpiresAt
	}

	access, err := m.mint(ctx, token.Request{Kind: token.Access, SessionID: rec.ID, UserID: rec.UserID, TenantID: tenantID, ExpiresAt: accessExp})
	if err != nil {
		return Record{}, err
	}
	var refresh string
	if m.policy.RotateRefreshToken {
		refresh, err = m.mint(ctx, token.Request{Kind: token.Refresh, SessionID: rec.ID, UserID: rec.UserID, TenantID: tenantID, ExpiresAt: rec.RefreshExpiresAt})
		if err != nil {
			return Record{}, err
		}
	}

	updated, err := m.store.Update(ctx, rec.ID, func(r *Record) error {
		if !tokenEqual(r.RefreshToken, refreshToken) {
			// rotated by a concurrent refresh
			return ErrNotFound
		}
		r.AccessToken = access
		r.AccessExpiresAt = accessExp
		r.ExpiryReported = false
		if refresh != "" {
			r.RefreshToken = refresh
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	details := map[string]string{"rotated": strconv.FormatBool(refresh != "")}
	m.recordEvent(ctx, updated, audit.EventRefreshed, details)
	m.recordAudit(ctx, updated, audit.EventRefreshed, updated.LastIP, "", details)

	return updated, nil
}

// Revoke ends a session. Revoking an unknown, expired or foreign session is a
// no-op.
func (m *Manager) Revoke(ctx context.Context, tenantID, sessionID string) error {
	tenantID, err := m.tenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidParams)
	}

	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.TenantID != tenantID {
		return nil
	}

	_, err = m.revoke(ctx, rec, ReasonExplicit, "")
	return err
}

// RevokeAll ends every session of a user and returns how many were revoked.
func (m *Manager) RevokeAll(ctx context.Context, tenantID, userID string) (int, error) {
	records, err := m.ListActive(ctx, tenantID, userID)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, rec := range records {
		removed, err := m.revoke(ctx, rec, ReasonLogoutAll, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// ListActive returns the user's live sessions, oldest first. Sessions whose
// refresh token has expired are left out.
func (m *Manager) ListActive(ctx context.Context, tenantID, userID string) ([]Record, error) {
	tenantID, err := m.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidParams)
	}

	ids, err := m.store.ListActive(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := m.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if rec.TenantID != tenantID || rec.UserID != userID || rec.RefreshExpired(now) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (m *Manager) tenant(ctx context.Context, explicit string) (string, error) {
	id, err := tenant.Resolve(ctx, m.tenants, explicit)
	if err != nil {
		return "", errors.Join(ErrInvalidParams, err)
	}
	return id, nil
}

// lookup resolves a token within a tenant. Records of other tenants are
// reported as ErrNotFound.
func (m *Manager) lookup(ctx context.Context, tenantID string, kind token.Kind, tok string) (Record, error) {
	if tok == "" {
		return Record{}, ErrNotFound
	}
	rec, err := m.store.GetByToken(ctx, kind, tok)
	if err != nil {
		return Record{}, err
	}
	if rec.TenantID != tenantID {
		return Record{}, ErrNotFound
	}

	stored := rec.AccessToken
	if kind == token.Refresh {
		stored = rec.RefreshToken
	}
	if !tokenEqual(stored, tok) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Manager) mint(ctx context.Context, req token.Request) (string, error) {
	tok, err := m.minter.Mint(ctx, req)
	if err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	if tok == "" {
		return "", fmt.Errorf("%w: empty %s token", ErrTokenGeneration, req.Kind)
	}
	return tok, nil
}

func (m *Manager) decide(ctx context.Context, rec Record, verdict fingerprint.Verdict, now time.Time) anomaly.Decision {
	in := anomaly.Input{
		Verdict:            verdict,
		FingerprintEnabled: m.policy.FingerprintEnabled,
		DetectionEnabled:   m.policy.AnomalyDetectionEnabled,
		Now:                now,
	}
	if in.FingerprintEnabled && in.DetectionEnabled && m.detector.NeedsHistory(verdict) {
		history, err := m.auditor.History(ctx, rec.TenantID, rec.ID, now.Add(-m.detector.Window()))
		if err != nil {
			m.logger.WarnContext(ctx, "session history unavailable for anomaly decision",
				logger.TenantID(rec.TenantID), logger.SessionID(rec.ID), logger.Error(err))
		}
		in.History = history
	}
	return m.detector.Decide(in)
}

func (m *Manager) reportAnomaly(ctx context.Context, rec Record, p ValidateParams, verdict fingerprint.Verdict, d anomaly.Decision) {
	details := map[string]string{
		"verdict":   string(verdict),
		"action":    string(d.Action),
		"reason":    d.Reason,
		"ip_bucket": fingerprint.CoarsenIP(p.IP),
	}
	m.recordEvent(ctx, rec, audit.EventAnomalyDetected, details)
	m.recordAudit(ctx, rec, audit.EventAnomalyDetected, p.IP, deviceString(p.Device), details)
	m.observer.AnomalyDetected(rec.TenantID, string(d.Action))
	m.logger.WarnContext(ctx, "session anomaly detected",
		logger.TenantID(rec.TenantID),
		logger.UserID(rec.UserID),
		logger.SessionID(rec.ID),
		logger.Verdict(string(verdict)),
		slog.String("action", string(d.Action)),
		logger.Reason(d.Reason))
}

// reportAccessExpired records the expired event once per access token.
// Later calls with the same token find ExpiryReported set and stay silent.
func (m *Manager) reportAccessExpired(ctx context.Context, rec Record, accessToken string) {
	if rec.ExpiryReported {
		return
	}
	_, err := m.store.Update(ctx, rec.ID, func(r *Record) error {
		if r.ExpiryReported || !tokenEqual(r.AccessToken, accessToken) {
			return errExpiryReported
		}
		r.ExpiryReported = true
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errExpiryReported), errors.Is(err, ErrNotFound):
		return
	default:
		m.logger.WarnContext(ctx, "failed to mark session expiry",
			logger.TenantID(rec.TenantID), logger.SessionID(rec.ID), logger.Error(err))
		return
	}
	m.recordEvent(ctx, rec, audit.EventExpired, map[string]string{"reason": ReasonAccessTTL})
}

// revoke removes rec and records the revocation once, for the caller that
// actually removed it.
func (m *Manager) revoke(ctx context.Context, rec Record, reason, ip string) (bool, error) {
	removed, err := m.store.Remove(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	details := map[string]string{"reason": reason}
	m.recordEvent(ctx, rec, audit.EventRevoked, details)
	m.recordAudit(ctx, rec, audit.EventRevoked, ip, "", details)
	m.observer.SessionRevoked(rec.TenantID, reason)
	m.logger.InfoContext(ctx, "session revoked",
		logger.TenantID(rec.TenantID), logger.UserID(rec.UserID), logger.SessionID(rec.ID), logger.Reason(reason))

	return true, nil
}

// recordEvent and recordAudit are best effort: a failed write is logged and
// reported to the observer, never returned.
func (m *Manager) recordEvent(ctx context.Context, rec Record, typ audit.EventType, metadata map[string]string) {
	ctx, cancel := m.auditContext(ctx)
	defer cancel()

	err := m.auditor.RecordEvent(ctx, audit.SessionEvent{
		SessionID: rec.ID,
		UserID:    rec.UserID,
		TenantID:  rec.TenantID,
		Type:      typ,
		Timestamp: m.now(),
		Metadata:  metadata,
	})
	if err != nil {
		m.auditFailed(ctx, rec, typ, err)
	}
}

func (m *Manager) recordAudit(ctx context.Context, rec Record, typ audit.EventType, ip, device string, details map[string]string) {
	ctx, cancel := m.auditContext(ctx)
	defer cancel()

	err := m.auditor.RecordAudit(ctx, audit.Entry{
		SessionID:  rec.ID,
		UserID:     rec.UserID,
		TenantID:   rec.TenantID,
		Type:       typ,
		IPAddress:  ip,
		DeviceInfo: device,
		Details:    details,
		Timestamp:  m.now(),
	})
	if err != nil {
		m.auditFailed(ctx, rec, typ, err)
	}
}

// auditContext detaches audit writes from the caller's cancellation and bounds
// them by the policy timeout.
func (m *Manager) auditContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.policy.AuditTimeout)
}

func (m *Manager) auditFailed(ctx context.Context, rec Record, typ audit.EventType, err error) {
	m.observer.AuditFailed(rec.TenantID, string(typ), err)
	m.logger.ErrorContext(ctx, "audit write failed",
		logger.TenantID(rec.TenantID),
		logger.SessionID(rec.ID),
		logger.EventType(string(typ)),
		logger.Error(err))
}

// deviceString leaves the audit device column empty when nothing was declared.
func deviceString(d fingerprint.DeviceInfo) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func tokenEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
