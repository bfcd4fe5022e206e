// Package anomaly decides what happens to a session after its fingerprint has
// been checked.
//
// Detector.Decide is a pure function of its Input: the fingerprint verdict,
// the two feature switches and the session's recent event history. It never
// performs I/O, so callers fetch the history themselves (audit.Logger.History)
// and act on the returned Decision:
//
//	d := anomaly.New(anomaly.WithChallengeThreshold(3))
//	dec := d.Decide(anomaly.Input{
//		Verdict:            fingerprint.Compare(stored, presented),
//		FingerprintEnabled: true,
//		DetectionEnabled:   true,
//		History:            history,
//		Now:                time.Now(),
//	})
//	switch dec.Action {
//	case anomaly.Revoke:
//		// force logout
//	case anomaly.Challenge:
//		// ask the user to re-authenticate, keep the session
//	}
package anomaly
