package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
)

// LoginHistoryRepository implements port.LoginHistoryRepository for PostgreSQL.
// History rows are append-only; retention is a housekeeping concern outside
// the repository.
type LoginHistoryRepository struct {
	db      pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLoginHistoryRepository constructs a LoginHistoryRepository.
func NewLoginHistoryRepository(db pgExecutor) *LoginHistoryRepository {
	return &LoginHistoryRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Record appends a history row for a committed admission.
func (r *LoginHistoryRepository) Record(ctx context.Context, record port.LoginRecord) error {
	sql, args, err := r.builder.
		Insert("guard.login_history").
		Columns(
			"id",
			"user_id",
			"device_id",
			"ip_address",
			"country",
			"fp_user_agent",
			"fp_platform",
			"fp_screen",
			"fp_tz_offset",
			"fp_language",
			"occurred_at",
		).
		Values(
			uuid.NewString(),
			record.UserID,
			record.DeviceID,
			record.IPAddress,
			record.Country,
			record.Fingerprint.UserAgent,
			record.Fingerprint.Platform,
			record.Fingerprint.ScreenGeometry,
			record.Fingerprint.TimezoneOffset,
			record.Fingerprint.Language,
			record.OccurredAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login history sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}
	return nil
}

// History assembles the risk classifier baseline for the user.
func (r *LoginHistoryRepository) History(ctx context.Context, userID, deviceID string, countryWindow int) (domain.LoginHistory, error) {
	history := domain.LoginHistory{PriorDevices: make(map[string]struct{})}

	devices, err := r.priorDevices(ctx, userID)
	if err != nil {
		return domain.LoginHistory{}, err
	}
	history.PriorDevices = devices

	if countryWindow > 0 {
		countries, err := r.recentCountries(ctx, userID, countryWindow)
		if err != nil {
			return domain.LoginHistory{}, err
		}
		history.RecentCountries = countries
	}

	if _, known := devices[deviceID]; known {
		fp, err := r.lastFingerprint(ctx, userID, deviceID)
		if err != nil {
			return domain.LoginHistory{}, err
		}
		history.KnownFingerprint = fp
	}

	return history, nil
}

func (r *LoginHistoryRepository) priorDevices(ctx context.Context, userID string) (map[string]struct{}, error) {
	sql, args, err := r.builder.
		Select("DISTINCT device_id").
		From("guard.login_history").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prior devices sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query prior devices: %w", err)
	}
	defer rows.Close()

	devices := make(map[string]struct{})
	for rows.Next() {
		var deviceID string
		if err := rows.Scan(&deviceID); err != nil {
			return nil, fmt.Errorf("scan prior device: %w", err)
		}
		devices[deviceID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prior devices: %w", err)
	}
	return devices, nil
}

func (r *LoginHistoryRepository) recentCountries(ctx context.Context, userID string, window int) ([]string, error) {
	sql, args, err := r.builder.
		Select("country").
		From("guard.login_history").
		Where(squirrel.Eq{"user_id": userID}).
		Where("country IS NOT NULL").
		OrderBy("occurred_at DESC").
		Limit(uint64(window)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent countries sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent countries: %w", err)
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var country string
		if err := rows.Scan(&country); err != nil {
			return nil, fmt.Errorf("scan recent country: %w", err)
		}
		countries = append(countries, country)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent countries: %w", err)
	}
	return countries, nil
}

func (r *LoginHistoryRepository) lastFingerprint(ctx context.Context, userID, deviceID string) (*domain.Fingerprint, error) {
	sql, args, err := r.builder.
		Select("fp_user_agent", "fp_platform", "fp_screen", "fp_tz_offset", "fp_language").
		From("guard.login_history").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID}).
		OrderBy("occurred_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build last fingerprint sql: %w", err)
	}

	var fp domain.Fingerprint
	if err := r.db.QueryRow(ctx, sql, args...).Scan(
		&fp.UserAgent,
		&fp.Platform,
		&fp.ScreenGeometry,
		&fp.TimezoneOffset,
		&fp.Language,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan last fingerprint: %w", err)
	}
	return &fp, nil
}

var _ port.LoginHistoryRepository = (*LoginHistoryRepository)(nil)
