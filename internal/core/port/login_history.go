package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-guard/internal/core/domain"
)

// LoginRecord is one durable row of per-account device/country history.
type LoginRecord struct {
	UserID      string
	DeviceID    string
	IPAddress   *string
	Country     *string
	Fingerprint domain.Fingerprint
	OccurredAt  time.Time
}

// LoginHistoryRepository persists the admission history the risk classifier
// consults. History must survive process restarts.
type LoginHistoryRepository interface {
	// Record appends a history row for a committed admission.
	Record(ctx context.Context, record LoginRecord) error
	// History assembles the classifier baseline for the user: prior device
	// ids, the most recent countryWindow countries, and the last fingerprint
	// seen for deviceID when that device is recognized.
	History(ctx context.Context, userID, deviceID string, countryWindow int) (domain.LoginHistory, error)
}
