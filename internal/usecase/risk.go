package usecase

import (
	"strings"

	"github.com/arklim/social-platform-guard/internal/core/domain"
)

const (
	// DefaultRecentCountryWindow bounds how many recent countries form the
	// location baseline.
	DefaultRecentCountryWindow = 5
	// DefaultSimilarityFloor is the fingerprint similarity below which a
	// recognized device id is no longer trusted as the same device.
	DefaultSimilarityFloor = 0.3
)

// RiskClassifier turns a login attempt plus the account's history into a risk
// verdict. It only reads; escalation decisions belong to the admission state
// machine.
type RiskClassifier struct {
	similarityFloor float64
}

// NewRiskClassifier constructs a classifier. A non-positive similarityFloor
// falls back to the default.
func NewRiskClassifier(similarityFloor float64) *RiskClassifier {
	if similarityFloor <= 0 || similarityFloor >= 1 {
		similarityFloor = DefaultSimilarityFloor
	}
	return &RiskClassifier{similarityFloor: similarityFloor}
}

// Classify evaluates the attempt against the account baseline.
//
// A first-ever login has no baseline to violate and is always RiskNone. An
// unrecognized device is RiskNewDevice even when the location is also new:
// the device anomaly is the stronger signal and takes precedence. A location
// anomaly is only reported for a recognized device.
func (c *RiskClassifier) Classify(attempt domain.LoginAttempt, history domain.LoginHistory) domain.RiskVerdict {
	if len(history.PriorDevices) == 0 {
		return domain.RiskNone
	}

	if !history.KnowsDevice(attempt.DeviceID) {
		return domain.RiskNewDevice
	}

	// Recognized id, but the fingerprint no longer resembles what the device
	// looked like before. Fingerprints are corroborating evidence only, so
	// this escalates to a challenge rather than a block.
	if history.KnownFingerprint != nil {
		if attempt.Fingerprint.Similarity(*history.KnownFingerprint) < c.similarityFloor {
			return domain.RiskNewDevice
		}
	}

	country := strings.TrimSpace(attempt.Country)
	if country != "" && len(history.RecentCountries) > 0 && !history.KnowsCountry(country) {
		return domain.RiskSuspiciousLocation
	}

	return domain.RiskNone
}
