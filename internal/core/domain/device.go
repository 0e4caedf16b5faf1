package domain

import (
	"strings"

	"github.com/google/uuid"
)

// DeviceIdentity pairs the opaque client-held device identifier with the
// browser signals observed alongside it.
type DeviceIdentity struct {
	DeviceID    string
	Fingerprint Fingerprint
}

// Fingerprint is the composite of client signals used as corroborating
// identity evidence. It is never authoritative on its own.
type Fingerprint struct {
	UserAgent      string
	Platform       string
	ScreenGeometry string
	TimezoneOffset int
	Language       string
}

// IssueOrConfirmDevice returns the supplied identifier when it is well formed,
// otherwise mints a fresh opaque one. It never fails; malformed input is
// treated as absent.
func IssueOrConfirmDevice(existingID string, fp Fingerprint) DeviceIdentity {
	id := strings.TrimSpace(existingID)
	if !validDeviceID(id) {
		id = uuid.NewString()
	}
	return DeviceIdentity{DeviceID: id, Fingerprint: fp}
}

// Device identifiers are caller-persisted opaque tokens. Anything printable in
// a sane length range is accepted unchanged.
func validDeviceID(id string) bool {
	if len(id) < 8 || len(id) > 128 {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

// Similarity weights. Exact platform and timezone matches carry more weight
// than user-agent overlap, which drifts with every browser update.
const (
	weightPlatform  = 0.35
	weightTimezone  = 0.25
	weightLanguage  = 0.15
	weightScreen    = 0.10
	weightUserAgent = 0.15
)

// Similarity scores how closely two fingerprints match, in [0,1].
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	score := 0.0
	if f.Platform != "" && strings.EqualFold(f.Platform, other.Platform) {
		score += weightPlatform
	}
	if f.TimezoneOffset == other.TimezoneOffset {
		score += weightTimezone
	}
	if f.Language != "" && strings.EqualFold(f.Language, other.Language) {
		score += weightLanguage
	}
	if f.ScreenGeometry != "" && f.ScreenGeometry == other.ScreenGeometry {
		score += weightScreen
	}
	score += weightUserAgent * userAgentOverlap(f.UserAgent, other.UserAgent)
	return score
}

// userAgentOverlap compares user agents token-wise so that a version bump in
// one product token does not zero the whole signal.
func userAgentOverlap(a, b string) float64 {
	aTokens := strings.Fields(strings.ToLower(a))
	bTokens := strings.Fields(strings.ToLower(b))
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(aTokens))
	for _, tok := range aTokens {
		seen[tok] = struct{}{}
	}

	matched := 0
	for _, tok := range bTokens {
		if _, ok := seen[tok]; ok {
			matched++
		}
	}

	longest := len(aTokens)
	if len(bTokens) > longest {
		longest = len(bTokens)
	}
	return float64(matched) / float64(longest)
}
