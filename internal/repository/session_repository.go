package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/calendar"
	"voicelog/internal/clock"
	"voicelog/internal/models"

	"go.uber.org/zap"
)

const sessionColumns = `id, user_id, type, status, start_date, planned_end_date, created_at, updated_at, ended_at`

// SessionRepository persists sessions and their leave dates. The partial
// unique index on (user_id) WHERE status = 'active' backs the one-active-
// session rule even across processes.
type SessionRepository struct {
	db     *sql.DB
	clock  clock.Clock
	logger *zap.Logger
}

func NewSessionRepository(db *sql.DB, clk clock.Clock, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{db: db, clock: clk, logger: logger}
}

// Create inserts a new session. A second active session for the same user
// fails with a ConflictError.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, type, status, start_date, planned_end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.UserID,
		session.Type,
		session.Status,
		calendar.FormatDate(session.StartDate),
		calendar.FormatDate(session.PlannedEndDate),
		unixNano(session.CreatedAt),
		unixNano(session.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return &apperr.ConflictError{Message: fmt.Sprintf("user %s already has an active session", session.UserID)}
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	for _, d := range session.LeaveDates {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO session_leave_dates (session_id, leave_date) VALUES (?, ?)
		`, session.ID, calendar.FormatDate(d)); err != nil {
			return fmt.Errorf("failed to store leave date: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID returns a session with its leave dates.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := r.loadLeaveDates(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// FindActive returns the user's active session, or a NotFoundError.
func (r *SessionRepository) FindActive(ctx context.Context, userID string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND status = ?
	`, userID, models.SessionActive)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.NotFoundError{Resource: "active session for user", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	if err := r.loadLeaveDates(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListByUser returns the user's sessions, newest start first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?
		ORDER BY start_date DESC, created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	for _, s := range sessions {
		if err := r.loadLeaveDates(ctx, s); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// UpdateStatus moves a session from one status to another. It fails with an
// InvalidStateError when the stored status is no longer from.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, from, to models.SessionStatus) error {
	now := r.clock.Now()
	var endedAt sql.NullInt64
	if to != models.SessionActive {
		endedAt = sql.NullInt64{Int64: unixNano(now), Valid: true}
	}

	res, err := execWithRetry(ctx, r.db, `
		UPDATE sessions SET status = ?, ended_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, endedAt, unixNano(now), id, from)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missOrState(ctx, id, "set status "+string(to))
	}
	return nil
}

// UpdatePlannedEnd changes the planned end date of an active session.
func (r *SessionRepository) UpdatePlannedEnd(ctx context.Context, id string, end time.Time) error {
	res, err := execWithRetry(ctx, r.db, `
		UPDATE sessions SET planned_end_date = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, calendar.FormatDate(end), unixNano(r.clock.Now()), id, models.SessionActive)
	if err != nil {
		return fmt.Errorf("failed to reschedule session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missOrState(ctx, id, "reschedule")
	}
	return nil
}

// AddLeaveDate declares a leave date on a session. Adding it twice is a no-op.
func (r *SessionRepository) AddLeaveDate(ctx context.Context, id string, date time.Time) error {
	if _, err := execWithRetry(ctx, r.db, `
		INSERT OR IGNORE INTO session_leave_dates (session_id, leave_date) VALUES (?, ?)
	`, id, calendar.FormatDate(date)); err != nil {
		return fmt.Errorf("failed to add leave date: %w", err)
	}
	return r.touch(ctx, id)
}

// RemoveLeaveDate removes a declared leave date. Removing a missing date is a no-op.
func (r *SessionRepository) RemoveLeaveDate(ctx context.Context, id string, date time.Time) error {
	if _, err := execWithRetry(ctx, r.db, `
		DELETE FROM session_leave_dates WHERE session_id = ? AND leave_date = ?
	`, id, calendar.FormatDate(date)); err != nil {
		return fmt.Errorf("failed to remove leave date: %w", err)
	}
	return r.touch(ctx, id)
}

func (r *SessionRepository) touch(ctx context.Context, id string) error {
	if _, err := execWithRetry(ctx, r.db, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		unixNano(r.clock.Now()), id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) missOrState(ctx context.Context, id, action string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return &apperr.InvalidStateError{Resource: "session", ID: id, State: string(current.Status), Action: action}
}

func (r *SessionRepository) loadLeaveDates(ctx context.Context, session *models.Session) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT leave_date FROM session_leave_dates WHERE session_id = ? ORDER BY leave_date
	`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to query leave dates: %w", err)
	}
	defer rows.Close()

	session.LeaveDates = session.LeaveDates[:0]
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan leave date: %w", err)
		}
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return err
		}
		session.LeaveDates = append(session.LeaveDates, d)
	}
	return rows.Err()
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session   models.Session
		start     string
		end       string
		createdAt int64
		updatedAt int64
		endedAt   sql.NullInt64
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Type,
		&session.Status,
		&start,
		&end,
		&createdAt,
		&updatedAt,
		&endedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if session.StartDate, err = calendar.ParseDate(start); err != nil {
		return nil, err
	}
	if session.PlannedEndDate, err = calendar.ParseDate(end); err != nil {
		return nil, err
	}
	session.CreatedAt = fromUnixNano(createdAt)
	session.UpdatedAt = fromUnixNano(updatedAt)
	session.EndedAt = timePtr(endedAt)
	session.LeaveDates = []time.Time{}
	return &session, nil
}
