package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/repository"
)

var sessionColumns = []string{
	"id",
	"user_id",
	"device_id",
	"ip_address",
	"country",
	"user_agent",
	"login_time",
	"last_active",
	"active",
	"terminated_at",
	"terminate_reason",
}

// SessionRegistry implements port.SessionRegistry backed by PostgreSQL.
// Admission and bulk termination serialize per user via a transaction-scoped
// advisory lock, so the cap check and the insert form one atomic unit.
type SessionRegistry struct {
	db        pgBeginner
	builder   squirrel.StatementBuilderType
	maxActive int
	now       func() time.Time
}

// NewSessionRegistry constructs a registry enforcing the supplied
// active-session cap per user.
func NewSessionRegistry(db pgBeginner, maxActive int) *SessionRegistry {
	if maxActive <= 0 {
		maxActive = 1
	}
	return &SessionRegistry{
		db:        db,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		maxActive: maxActive,
		now:       time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *SessionRegistry) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// CountActive returns the number of active sessions for the user.
func (r *SessionRegistry) CountActive(ctx context.Context, userID string) (int, error) {
	return countActive(ctx, r.db, r.builder, userID)
}

func countActive(ctx context.Context, exec pgExecutor, builder squirrel.StatementBuilderType, userID string) (int, error) {
	sql, args, err := builder.
		Select("COUNT(*)").
		From("guard.sessions").
		Where(squirrel.Eq{"user_id": userID, "active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count active sessions sql: %w", err)
	}

	var count int
	if err := exec.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// FindActiveByDevice returns the active session held by the device, if any.
func (r *SessionRegistry) FindActiveByDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	sql, args, err := r.builder.
		Select(sessionColumns...).
		From("guard.sessions").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID, "active": true}).
		OrderBy("login_time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session by device sql: %w", err)
	}

	session, err := scanSession(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session by device: %w", err)
	}
	return session, nil
}

// Admit re-checks the cap and inserts the session inside one transaction. The
// advisory lock stripes mutual exclusion by user id, so concurrent admissions
// for the same account cannot both observe a free slot.
func (r *SessionRegistry) Admit(ctx context.Context, session domain.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin admit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", session.UserID); err != nil {
		return fmt.Errorf("acquire user admission lock: %w", err)
	}

	count, err := countActive(ctx, tx, r.builder, session.UserID)
	if err != nil {
		return err
	}
	if count >= r.maxActive {
		return repository.ErrCapacityExceeded
	}

	sql, args, err := r.builder.
		Insert("guard.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.DeviceID,
			session.IPAddress,
			session.Country,
			session.UserAgent,
			session.LoginTime,
			session.LastActive,
			session.Active,
			session.TerminatedAt,
			session.TerminateReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit admit tx: %w", err)
	}
	return nil
}

// TerminateOthers deactivates every other active session for the user.
// Idempotent: zero matches is still success.
func (r *SessionRegistry) TerminateOthers(ctx context.Context, userID, keepSessionID, reason string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin terminate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", userID); err != nil {
		return 0, fmt.Errorf("acquire user admission lock: %w", err)
	}

	update := r.builder.
		Update("guard.sessions").
		Set("active", false).
		Set("terminated_at", r.now().UTC()).
		Set("terminate_reason", reason).
		Where(squirrel.Eq{"user_id": userID, "active": true})
	if keepSessionID != "" {
		update = update.Where(squirrel.NotEq{"id": keepSessionID})
	}

	sql, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build terminate others sql: %w", err)
	}

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("terminate other sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit terminate tx: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Terminate deactivates a single session. Terminating an already inactive
// session is a no-op; an unknown id is ErrNotFound.
func (r *SessionRegistry) Terminate(ctx context.Context, sessionID, reason string) error {
	sql, args, err := r.builder.
		Update("guard.sessions").
		Set("active", false).
		Set("terminated_at", r.now().UTC()).
		Set("terminate_reason", reason).
		Where(squirrel.Eq{"id": sessionID, "active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build terminate session sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existsSQL, existsArgs, err := r.builder.
		Select("1").
		From("guard.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build session exists sql: %w", err)
	}

	var one int
	if err := r.db.QueryRow(ctx, existsSQL, existsArgs...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("check session exists: %w", err)
	}
	return nil
}

// Touch updates last-active metadata for the session.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string, ip *string) error {
	sql, args, err := r.builder.
		Update("guard.sessions").
		Set("last_active", r.now().UTC()).
		Set("ip_address", squirrel.Expr("COALESCE(?, ip_address)", ip)).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns sessions matching the filter, most recently active first.
func (r *SessionRegistry) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	query := r.builder.
		Select(sessionColumns...).
		From("guard.sessions").
		OrderBy("last_active DESC")

	if filter.UserID != "" {
		query = query.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.DeviceID != "" {
		query = query.Where(squirrel.Eq{"device_id": filter.DeviceID})
	}
	if filter.ActiveOnly {
		query = query.Where(squirrel.Eq{"active": true})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.IPAddress,
		&session.Country,
		&session.UserAgent,
		&session.LoginTime,
		&session.LastActive,
		&session.Active,
		&session.TerminatedAt,
		&session.TerminateReason,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

var _ port.SessionRegistry = (*SessionRegistry)(nil)
