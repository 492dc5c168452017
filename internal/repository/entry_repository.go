package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/clock"
	"voicelog/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const entryColumns = `id, user_id, raw_text, duration_minutes, created_at, sync_state, remote_id,
	attempts, next_attempt_at, last_error, rejected, syncing_since, updated_at`

// EntryRepository is the durable, offline-first log of captured entries. It
// is the only writer of entry rows; sync state changes go through the Mark*
// transitions, which are serialized per entry id.
type EntryRepository struct {
	db              *sql.DB
	clock           clock.Clock
	defaultDuration int
	logger          *zap.Logger
	locks           *keyedMutex
}

func NewEntryRepository(db *sql.DB, clk clock.Clock, defaultDuration int, logger *zap.Logger) *EntryRepository {
	if defaultDuration <= 0 {
		defaultDuration = models.DefaultDurationMinutes
	}
	return &EntryRepository{
		db:              db,
		clock:           clk,
		defaultDuration: defaultDuration,
		logger:          logger,
		locks:           newKeyedMutex(),
	}
}

// Append stores a new pending entry and returns it. It never touches the network.
// rawText is stored exactly as given; only blank text is refused.
func (r *EntryRepository) Append(ctx context.Context, rawText, userID string, durationMinutes int) (*models.Entry, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, apperr.Validation("rawText", "must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("userId", "must not be empty")
	}
	if durationMinutes < 0 {
		return nil, apperr.Validation("durationMinutes", "must not be negative")
	}
	if durationMinutes == 0 {
		durationMinutes = r.defaultDuration
	}

	now := fromUnixNano(unixNano(r.clock.Now()))
	entry := &models.Entry{
		ID:              uuid.NewString(),
		UserID:          userID,
		RawText:         rawText,
		DurationMinutes: durationMinutes,
		CreatedAt:       now,
		SyncState:       models.SyncPending,
		UpdatedAt:       now,
	}

	_, err := execWithRetry(ctx, r.db, `
		INSERT INTO entries (id, user_id, raw_text, duration_minutes, created_at, sync_state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.RawText, entry.DurationMinutes, unixNano(now), entry.SyncState, unixNano(now))
	if err != nil {
		return nil, fmt.Errorf("failed to append entry: %w", err)
	}

	r.logger.Debug("Entry appended",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", userID),
		zap.Int("duration_minutes", durationMinutes),
	)
	return entry, nil
}

// Get returns one entry by id.
func (r *EntryRepository) Get(ctx context.Context, id string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.NotFoundError{Resource: "entry", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// Query yields the user's entries captured inside the closed range, oldest
// first. Each iteration runs a fresh query, so the sequence can be replayed.
func (r *EntryRepository) Query(ctx context.Context, rng models.TimeRange, userID string) iter.Seq2[*models.Entry, error] {
	return func(yield func(*models.Entry, error) bool) {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM entries
			WHERE user_id = ? AND created_at BETWEEN ? AND ?
			ORDER BY created_at ASC, rowid ASC
		`, userID, unixNano(rng.Start), unixNano(rng.End))
		if err != nil {
			yield(nil, fmt.Errorf("failed to query entries: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan entry: %w", err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("error iterating entries: %w", err))
		}
	}
}

// ListSyncable returns entries the sync engine may submit at now: every
// pending entry plus failed, non-rejected entries whose backoff has elapsed.
func (r *EntryRepository) ListSyncable(ctx context.Context, now time.Time, limit int) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE sync_state = ?
		   OR (sync_state = ? AND rejected = 0 AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?
	`, models.SyncPending, models.SyncFailed, unixNano(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query syncable entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// NextAttemptAt returns the earliest scheduled retry among failed entries, or
// nil when none is waiting.
func (r *EntryRepository) NextAttemptAt(ctx context.Context) (*time.Time, error) {
	var next sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(next_attempt_at) FROM entries
		WHERE sync_state = ? AND rejected = 0 AND next_attempt_at IS NOT NULL
	`, models.SyncFailed).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to query next attempt: %w", err)
	}
	return timePtr(next), nil
}

// MarkSyncing claims an entry for submission. Only pending and retryable
// failed entries can be claimed, so at most one submission is in flight.
func (r *EntryRepository) MarkSyncing(ctx context.Context, id string) (*models.Entry, error) {
	return r.transition(ctx, id, "mark syncing", func(e *models.Entry, now time.Time) (string, []any, error) {
		if e.SyncState != models.SyncPending && e.SyncState != models.SyncFailed {
			return "", nil, invalidEntryState(e, "mark syncing")
		}
		if e.Rejected {
			return "", nil, invalidEntryState(e, "mark syncing rejected")
		}
		return `UPDATE entries
			SET sync_state = ?, syncing_since = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND sync_state = ?`,
			[]any{models.SyncSyncing, unixNano(now), unixNano(now), e.ID, e.SyncState}, nil
	})
}

// MarkSynced records the remote acknowledgement. A remote ack is
// authoritative, so it is accepted from any unsynced state; repeating it with
// the same remote id is a no-op.
func (r *EntryRepository) MarkSynced(ctx context.Context, id, remoteID string) (*models.Entry, error) {
	if strings.TrimSpace(remoteID) == "" {
		return nil, apperr.Validation("remoteId", "must not be empty")
	}
	return r.transition(ctx, id, "mark synced", func(e *models.Entry, now time.Time) (string, []any, error) {
		if e.SyncState == models.SyncSynced {
			if e.RemoteID != nil && *e.RemoteID == remoteID {
				return "", nil, nil
			}
			return "", nil, invalidEntryState(e, "mark synced with a different remote id")
		}
		return `UPDATE entries
			SET sync_state = ?, remote_id = ?, syncing_since = NULL, next_attempt_at = NULL,
				last_error = NULL, rejected = 0, updated_at = ?
			WHERE id = ? AND sync_state = ?`,
			[]any{models.SyncSynced, remoteID, unixNano(now), e.ID, e.SyncState}, nil
	})
}

// MarkFailed records a failed submission. Non-retryable failures flag the
// entry as rejected, which keeps it out of automatic retries.
func (r *EntryRepository) MarkFailed(ctx context.Context, id string, failure models.SyncFailure) (*models.Entry, error) {
	return r.transition(ctx, id, "mark failed", func(e *models.Entry, now time.Time) (string, []any, error) {
		if e.SyncState != models.SyncSyncing {
			return "", nil, invalidEntryState(e, "mark failed")
		}
		var next *time.Time
		if failure.Retryable {
			next = &failure.NextAttemptAt
		}
		return `UPDATE entries
			SET sync_state = ?, syncing_since = NULL, next_attempt_at = ?, last_error = ?,
				rejected = ?, updated_at = ?
			WHERE id = ? AND sync_state = ?`,
			[]any{models.SyncFailed, nullUnixNano(next), failure.Err, !failure.Retryable, unixNano(now), e.ID, e.SyncState}, nil
	})
}

// Retry returns a failed entry, rejected or not, to pending.
func (r *EntryRepository) Retry(ctx context.Context, id string) (*models.Entry, error) {
	return r.transition(ctx, id, "retry", func(e *models.Entry, now time.Time) (string, []any, error) {
		switch e.SyncState {
		case models.SyncPending:
			return "", nil, nil
		case models.SyncFailed:
			return `UPDATE entries
				SET sync_state = ?, rejected = 0, next_attempt_at = NULL, updated_at = ?
				WHERE id = ? AND sync_state = ?`,
				[]any{models.SyncPending, unixNano(now), e.ID, e.SyncState}, nil
		default:
			return "", nil, invalidEntryState(e, "retry")
		}
	})
}

// Delete removes an entry. Entries being submitted cannot be deleted.
func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	entry, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.SyncState == models.SyncSyncing {
		return invalidEntryState(entry, "delete")
	}

	res, err := execWithRetry(ctx, r.db, `DELETE FROM entries WHERE id = ? AND sync_state = ?`, id, entry.SyncState)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invalidEntryState(entry, "delete")
	}

	r.logger.Info("Entry deleted", zap.String("entry_id", id))
	return nil
}

// ReclaimStale returns entries stuck in syncing since before cutoff to pending.
func (r *EntryRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := execWithRetry(ctx, r.db, `
		UPDATE entries
		SET sync_state = ?, syncing_since = NULL, updated_at = ?
		WHERE sync_state = ? AND (syncing_since IS NULL OR syncing_since < ?)
	`, models.SyncPending, unixNano(r.clock.Now()), models.SyncSyncing, unixNano(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale entries: %w", err)
	}
	return res.RowsAffected()
}

// ResetSyncing returns every syncing entry to pending. Called at startup,
// when no submission can still be in flight.
func (r *EntryRepository) ResetSyncing(ctx context.Context) (int64, error) {
	res, err := execWithRetry(ctx, r.db, `
		UPDATE entries SET sync_state = ?, syncing_since = NULL, updated_at = ?
		WHERE sync_state = ?
	`, models.SyncPending, unixNano(r.clock.Now()), models.SyncSyncing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset syncing entries: %w", err)
	}
	return res.RowsAffected()
}

// Summary counts the user's entries per sync state. An empty userID counts
// every user.
func (r *EntryRepository) Summary(ctx context.Context, userID string) (models.SyncSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sync_state, rejected, COUNT(*)
		FROM entries
		WHERE ? = '' OR user_id = ?
		GROUP BY sync_state, rejected
	`, userID, userID)
	if err != nil {
		return models.SyncSummary{}, fmt.Errorf("failed to summarize entries: %w", err)
	}
	defer rows.Close()

	var summary models.SyncSummary
	for rows.Next() {
		var (
			state    models.SyncState
			rejected bool
			count    int
		)
		if err := rows.Scan(&state, &rejected, &count); err != nil {
			return models.SyncSummary{}, fmt.Errorf("failed to scan summary: %w", err)
		}
		switch state {
		case models.SyncPending:
			summary.Pending += count
		case models.SyncSyncing:
			summary.Syncing += count
		case models.SyncSynced:
			summary.Synced += count
		case models.SyncFailed:
			summary.Failed += count
			if rejected {
				summary.Rejected += count
			}
		}
	}
	if err := rows.Err(); err != nil {
		return models.SyncSummary{}, fmt.Errorf("error iterating rows: %w", err)
	}
	return summary, nil
}

type transitionFunc func(e *models.Entry, now time.Time) (query string, args []any, err error)

// transition reads the entry, lets fn validate the move and build a
// conditional UPDATE, and applies it. The UPDATE is guarded by the observed
// state, so a concurrent writer in another process makes it fail loudly
// instead of silently overwriting.
func (r *EntryRepository) transition(ctx context.Context, id, action string, fn transitionFunc) (*models.Entry, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	entry, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	query, args, err := fn(entry, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if query == "" {
		return entry, nil
	}

	res, err := execWithRetry(ctx, r.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s entry: %w", action, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, invalidEntryState(entry, action)
	}

	updated, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Entry sync state changed",
		zap.String("entry_id", id),
		zap.String("from", string(entry.SyncState)),
		zap.String("to", string(updated.SyncState)),
	)
	return updated, nil
}

func invalidEntryState(e *models.Entry, action string) error {
	return &apperr.InvalidStateError{Resource: "entry", ID: e.ID, State: string(e.SyncState), Action: action}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		entry         models.Entry
		createdAt     int64
		updatedAt     int64
		remoteID      sql.NullString
		nextAttemptAt sql.NullInt64
		lastError     sql.NullString
		syncingSince  sql.NullInt64
	)
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.RawText,
		&entry.DurationMinutes,
		&createdAt,
		&entry.SyncState,
		&remoteID,
		&entry.Attempts,
		&nextAttemptAt,
		&lastError,
		&entry.Rejected,
		&syncingSince,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = fromUnixNano(createdAt)
	entry.UpdatedAt = fromUnixNano(updatedAt)
	entry.RemoteID = stringPtr(remoteID)
	entry.NextAttemptAt = timePtr(nextAttemptAt)
	entry.LastError = stringPtr(lastError)
	entry.SyncingSince = timePtr(syncingSince)
	return &entry, nil
}
