package domain

// RiskVerdict classifies a login attempt against the account's history.
type RiskVerdict string

const (
	// RiskNone means nothing anomalous was observed.
	RiskNone RiskVerdict = "NONE"
	// RiskNewDevice means the device identifier has never admitted a session
	// for this account.
	RiskNewDevice RiskVerdict = "NEW_DEVICE"
	// RiskSuspiciousLocation means a recognized device arrived from a country
	// absent from the account's recent history.
	RiskSuspiciousLocation RiskVerdict = "SUSPICIOUS_LOCATION"
)

// LoginHistory is the per-account baseline the risk classifier evaluates
// attempts against.
type LoginHistory struct {
	// PriorDevices holds every device id that has admitted a session.
	PriorDevices map[string]struct{}
	// RecentCountries is ordered most recent first.
	RecentCountries []string
	// KnownFingerprint is the last fingerprint recorded for the attempting
	// device, when that device is recognized.
	KnownFingerprint *Fingerprint
}

// KnowsDevice reports whether the device has logged in before.
func (h LoginHistory) KnowsDevice(deviceID string) bool {
	_, ok := h.PriorDevices[deviceID]
	return ok
}

// KnowsCountry reports whether the country appears in the recent window.
func (h LoginHistory) KnowsCountry(country string) bool {
	for _, c := range h.RecentCountries {
		if c == country {
			return true
		}
	}
	return false
}
