// Package syncer drains captured entries to the backend.
//
// The engine is a single background loop. It wakes on a connectivity change
// to online, on an append while online, when the earliest scheduled retry
// falls due, and on a periodic safety sweep. Each sweep first reclaims
// entries stuck in syncing, then submits every eligible entry with bounded
// concurrency. Failures never surface to callers; they only change the
// entry's sync state and schedule the next attempt.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/clock"
	"voicelog/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the slice of the entry store the engine needs.
type Store interface {
	ListSyncable(ctx context.Context, now time.Time, limit int) ([]*models.Entry, error)
	NextAttemptAt(ctx context.Context) (*time.Time, error)
	MarkSyncing(ctx context.Context, id string) (*models.Entry, error)
	MarkSynced(ctx context.Context, id, remoteID string) (*models.Entry, error)
	MarkFailed(ctx context.Context, id string, failure models.SyncFailure) (*models.Entry, error)
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Connectivity is the online signal.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

type Config struct {
	SweepInterval time.Duration
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	StuckTimeout  time.Duration
	SubmitTimeout time.Duration
	Concurrency   int
	BatchSize     int
	DeviceID      string
}

func DefaultConfig() Config {
	return Config{
		SweepInterval: 30 * time.Second,
		BaseBackoff:   2 * time.Second,
		MaxBackoff:    5 * time.Minute,
		StuckTimeout:  2 * time.Minute,
		SubmitTimeout: 15 * time.Second,
		Concurrency:   4,
		BatchSize:     100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = max(d.MaxBackoff, c.BaseBackoff)
	}
	if c.StuckTimeout <= 0 {
		c.StuckTimeout = d.StuckTimeout
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Skipped   bool
	Reclaimed int64
	Attempted int
	Synced    int
	Failed    int
	Rejected  int
}

type Engine struct {
	store     Store
	submitter Submitter
	conn      Connectivity
	clock     clock.Clock
	cfg       Config
	metrics   *Metrics
	logger    *zap.Logger

	trigger chan struct{}
	sweepMu sync.Mutex

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewEngine(store Store, submitter Submitter, conn Connectivity, clk clock.Clock, cfg Config, metrics *Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		submitter: submitter,
		conn:      conn,
		clock:     clk,
		cfg:       cfg.withDefaults(),
		metrics:   metrics,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		inflight:  make(map[string]struct{}),
	}
}

// Trigger requests a sweep as soon as the loop is idle. Requests coalesce.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// NotifyAppended tells the engine a new entry was captured.
func (e *Engine) NotifyAppended() {
	if e.conn.IsOnline() {
		e.Trigger()
	}
}

// Run sweeps until ctx is done. Submissions in flight at shutdown still
// record their outcome.
func (e *Engine) Run(ctx context.Context) error {
	unsubscribe := e.conn.Subscribe(func(online bool) {
		if online {
			e.Trigger()
		}
	})
	defer unsubscribe()

	e.logger.Info("Sync engine started",
		zap.Duration("sweep_interval", e.cfg.SweepInterval),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	e.Trigger()
	for {
		timer := time.NewTimer(e.nextWait(ctx))
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("Sync engine stopped")
			return nil
		case <-timer.C:
		case <-e.trigger:
			timer.Stop()
		}

		if _, err := e.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Sync sweep failed", zap.Error(err))
		}
	}
}

// minRetryWait bounds how soon a due retry can wake the loop again, so an
// entry that stays due without being claimed cannot spin it.
const minRetryWait = 250 * time.Millisecond

// nextWait is the idle time until the periodic sweep or the earliest
// scheduled retry, whichever comes first. Scheduled retries are ignored while
// offline; the online transition triggers a sweep on its own.
func (e *Engine) nextWait(ctx context.Context) time.Duration {
	wait := e.cfg.SweepInterval
	if !e.conn.IsOnline() {
		return wait
	}
	next, err := e.store.NextAttemptAt(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("Failed to read next retry time", zap.Error(err))
		}
		return wait
	}
	if next != nil {
		if d := next.Sub(e.clock.Now()); d < wait {
			wait = min(max(d, minRetryWait), wait)
		}
	}
	return wait
}

// Sweep runs one pass over eligible entries. It is a no-op while offline.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if !e.conn.IsOnline() {
		result.Skipped = true
		return result, nil
	}

	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	start := time.Now()
	defer func() { e.metrics.ObserveSweep(time.Since(start)) }()

	now := e.clock.Now()
	reclaimed, err := e.store.ReclaimStale(ctx, now.Add(-e.cfg.StuckTimeout))
	if err != nil {
		return result, err
	}
	result.Reclaimed = reclaimed
	if reclaimed > 0 {
		e.metrics.AddReclaimed(reclaimed)
		e.logger.Warn("Reclaimed stuck entries", zap.Int64("count", reclaimed))
	}

	entries, err := e.store.ListSyncable(ctx, now, e.cfg.BatchSize)
	if err != nil {
		return result, err
	}
	if len(entries) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.cfg.Concurrency)

	for _, entry := range entries {
		if ctx.Err() != nil || !e.conn.IsOnline() {
			break
		}
		if !e.claim(entry.ID) {
			continue
		}
		g.Go(func() error {
			defer e.release(entry.ID)
			outcome := e.syncOne(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeSynced:
				result.Attempted++
				result.Synced++
			case OutcomeFailed:
				result.Attempted++
				result.Failed++
			case OutcomeRejected:
				result.Attempted++
				result.Rejected++
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Debug("Sync sweep finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
		zap.Int("rejected", result.Rejected),
	)
	return result, ctx.Err()
}

// syncOne claims, submits and records one entry. It returns the outcome
// label, or "" when the entry was not submitted.
func (e *Engine) syncOne(ctx context.Context, entry *models.Entry) string {
	logger := e.logger.With(zap.String("entry_id", entry.ID))

	claimed, err := e.store.MarkSyncing(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidState) || errors.Is(err, apperr.ErrNotFound) {
			logger.Debug("Entry no longer syncable", zap.Error(err))
		} else {
			logger.Warn("Failed to claim entry", zap.Error(err))
		}
		return ""
	}

	req := models.SubmitEntryRequest{
		ClientID:        claimed.ID,
		UserID:          claimed.UserID,
		DeviceID:        e.cfg.DeviceID,
		RawText:         claimed.RawText,
		DurationMinutes: claimed.DurationMinutes,
		CreatedAt:       claimed.CreatedAt.UnixMilli(),
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	resp, submitErr := e.submitter.SubmitEntry(submitCtx, req)
	cancel()

	// The outcome is recorded even when ctx was cancelled mid-submission.
	persistCtx := context.WithoutCancel(ctx)

	if submitErr == nil {
		if _, err := e.store.MarkSynced(persistCtx, claimed.ID, resp.RemoteID); err != nil {
			logger.Error("Failed to record sync acknowledgement", zap.Error(err))
			return ""
		}
		e.metrics.ObserveSubmission(OutcomeSynced)
		logger.Info("Entry synced",
			zap.String("remote_id", resp.RemoteID),
			zap.Int("attempts", claimed.Attempts),
		)
		return OutcomeSynced
	}

	failure := models.SyncFailure{
		Err:       submitErr.Error(),
		Retryable: apperr.IsRetryable(submitErr),
	}
	outcome := OutcomeRejected
	if failure.Retryable {
		outcome = OutcomeFailed
		failure.NextAttemptAt = e.clock.Now().Add(Backoff(claimed.Attempts, e.cfg.BaseBackoff, e.cfg.MaxBackoff))
	}

	if _, err := e.store.MarkFailed(persistCtx, claimed.ID, failure); err != nil {
		logger.Error("Failed to record sync failure", zap.Error(err))
		return ""
	}
	e.metrics.ObserveSubmission(outcome)

	if failure.Retryable {
		logger.Warn("Entry sync failed, will retry",
			zap.Error(submitErr),
			zap.Int("attempts", claimed.Attempts),
			zap.Time("next_attempt_at", failure.NextAttemptAt),
		)
	} else {
		logger.Error("Entry rejected by backend", zap.Error(submitErr))
	}
	return outcome
}

func (e *Engine) claim(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	e.metrics.SetInFlight(len(e.inflight))
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
	e.metrics.SetInFlight(len(e.inflight))
}
