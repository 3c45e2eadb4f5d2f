package license

import "time"

// Evaluation is the result of checking a device against the license store
// snapshot. Username, Level and Expiry are present for every status except
// unauthorised, where no record exists to report.
type Evaluation struct {
	Status   Status `json:"status"`
	Username string `json:"username,omitempty"`
	Level    Level  `json:"level,omitempty"`
	Expiry   string `json:"expiry,omitempty"`
}

// Grantable reports whether the evaluation permits session mutations.
// Only a valid license may start or end sessions; inactive and expired
// licenses are reported for display but never grant.
func (e Evaluation) Grantable() bool {
	return e.Status == StatusValid
}

// Evaluate computes the license status for a store snapshot at the given
// instant. lic is nil when no record exists for the device. The precedence
// is fixed and total: missing, then administratively inactive, then expired,
// then valid.
//
// Evaluate is pure; it never touches the store and never mutates lic.
func Evaluate(lic *License, now time.Time) Evaluation {
	if lic == nil {
		return Evaluation{Status: StatusUnauthorised}
	}

	ev := Evaluation{
		Username: lic.Username,
		Level:    lic.Level,
		Expiry:   lic.ExpiryString(),
	}

	switch {
	case lic.Status != AdminActive:
		ev.Status = StatusInactive
	case lic.expiredAt(now):
		ev.Status = StatusExpired
	default:
		ev.Status = StatusValid
	}
	return ev
}
