package anomaly

import (
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/audit"
	"github.com/dmitrymomot/sessionkit/pkg/fingerprint"
)

// Action is the outcome of an anomaly decision.
type Action string

const (
	Allow       Action = "allow"
	AllowAndLog Action = "allow_and_log"
	Challenge   Action = "challenge"
	Revoke      Action = "revoke"
)

// Proceeds reports whether the request may continue on the session.
func (a Action) Proceeds() bool {
	return a == Allow || a == AllowAndLog
}

// Anomalous reports whether an anomaly_detected event should be recorded.
func (a Action) Anomalous() bool {
	return a == AllowAndLog || a == Challenge || a == Revoke
}

// Reasons attached to decisions.
const (
	ReasonNone          = ""
	ReasonDeviceChanged = "fingerprint_mismatch"
	ReasonNetworkDrift  = "network_drift"
	ReasonRepeatedDrift = "repeated_network_drift"
	ReasonUnknown       = "unknown_verdict"
)

// Decision is an action plus the reason it was taken.
type Decision struct {
	Action Action
	Reason string
}

// Input is everything Decide looks at.
type Input struct {
	Verdict            fingerprint.Verdict
	FingerprintEnabled bool
	DetectionEnabled   bool
	History            []audit.SessionEvent // recent events of the session, any order
	Now                time.Time
}

const defaultChallengeWindow = time.Hour

// Detector holds the challenge tuning. The zero value never challenges.
type Detector struct {
	challengeThreshold int
	challengeWindow    time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithChallengeThreshold makes network drift escalate to Challenge once the
// session already has n anomaly events inside the challenge window. Zero
// disables challenges.
func WithChallengeThreshold(n int) Option {
	return func(d *Detector) {
		if n >= 0 {
			d.challengeThreshold = n
		}
	}
}

// WithChallengeWindow sets how far back anomaly events are counted.
func WithChallengeWindow(w time.Duration) Option {
	return func(d *Detector) {
		if w > 0 {
			d.challengeWindow = w
		}
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{challengeWindow: defaultChallengeWindow}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide classifies a verification outcome.
func (d *Detector) Decide(in Input) Decision {
	if !in.DetectionEnabled || !in.FingerprintEnabled {
		return Decision{Action: Allow}
	}

	switch in.Verdict {
	case fingerprint.Match:
		return Decision{Action: Allow}
	case fingerprint.Partial:
		if d.challengeThreshold > 0 && d.recentAnomalies(in) >= d.challengeThreshold {
			return Decision{Action: Challenge, Reason: ReasonRepeatedDrift}
		}
		return Decision{Action: AllowAndLog, Reason: ReasonNetworkDrift}
	case fingerprint.Mismatch:
		return Decision{Action: Revoke, Reason: ReasonDeviceChanged}
	default:
		// a verdict we cannot interpret is treated as a forged fingerprint
		return Decision{Action: Revoke, Reason: ReasonUnknown}
	}
}

// NeedsHistory reports whether Decide looks at Input.History for verdict v.
// Callers can skip the history lookup when it does not.
func (d *Detector) NeedsHistory(v fingerprint.Verdict) bool {
	return d.challengeThreshold > 0 && v == fingerprint.Partial
}

// Window is how far back Decide counts anomaly events.
func (d *Detector) Window() time.Duration {
	if d.challengeWindow <= 0 {
		return defaultChallengeWindow
	}
	return d.challengeWindow
}

func (d *Detector) recentAnomalies(in Input) int {
	since := in.Now.Add(-d.Window())

	n := 0
	for _, e := range in.History {
		if e.Type == audit.EventAnomalyDetected && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n
}
