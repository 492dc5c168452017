package syncer

//go:generate mockgen -source=submitter.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"voicelog/internal/apperr"
	"voicelog/internal/client"
	"voicelog/internal/clock"
	"voicelog/internal/models"
	"voicelog/internal/repository"
	"voicelog/internal/syncer/mocks"
	"voicelog/internal/testsupport"
)

type fakeConn struct {
	online atomic.Bool

	mu   sync.Mutex
	subs map[int]func(bool)
	next int
}

func newFakeConn(online bool) *fakeConn {
	c := &fakeConn{subs: make(map[int]func(bool))}
	c.online.Store(online)
	return c
}

func (c *fakeConn) IsOnline() bool { return c.online.Load() }

func (c *fakeConn) Subscribe(fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *fakeConn) Set(online bool) {
	c.online.Store(online)
	c.mu.Lock()
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func transient(msg string) error {
	return &apperr.TransientSyncError{Cause: fmt.Errorf("%s", msg)}
}

func ack(remoteID string) *models.SubmitEntryResponse {
	return &models.SubmitEntryResponse{RemoteID: remoteID}
}

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	submitter *mocks.MockSubmitter
	conn      *fakeConn
	clock     *clock.Fake
	store     *repository.EntryRepository
	registry  *prometheus.Registry
	metrics   *Metrics
	engine    *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.submitter = mocks.NewMockSubmitter(s.ctrl)
	s.conn = newFakeConn(true)
	s.clock = clock.NewFake(time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC))
	db := testsupport.MustOpenDB(s.T())
	s.store = repository.NewEntryRepository(db.DB, s.clock, 15, zap.NewNop())
	s.registry = prometheus.NewRegistry()
	s.metrics = NewMetrics(s.registry)
	s.engine = s.newEngine(Config{
		BaseBackoff:  10 * time.Second,
		MaxBackoff:   time.Minute,
		StuckTimeout: 5 * time.Minute,
		Concurrency:  2,
		DeviceID:     "device-1",
	})
}

func (s *EngineSuite) newEngine(cfg Config) *Engine {
	return NewEngine(s.store, s.submitter, s.conn, s.clock, cfg, s.metrics, zap.NewNop())
}

func (s *EngineSuite) submissions(outcome string) float64 {
	families, err := s.registry.Gather()
	s.Require().NoError(err)
	for _, f := range families {
		if f.GetName() != "voicelog_sync_submissions_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (s *EngineSuite) append(text string) *models.Entry {
	e, err := s.store.Append(s.ctx, text, "user-1", 0)
	s.Require().NoError(err)
	return e
}

func (s *EngineSuite) get(id string) *models.Entry {
	e, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	return e
}

func (s *EngineSuite) TestOfflineAppendsStayPendingWithoutSubmission() {
	s.conn.Set(false)
	e := s.append("captured on the train")

	result, err := s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.True(result.Skipped)

	var seen []*models.Entry
	rng := models.TimeRange{Start: e.CreatedAt, End: e.CreatedAt}
	for got, err := range s.store.Query(s.ctx, rng, "user-1") {
		s.Require().NoError(err)
		seen = append(seen, got)
	}
	s.Require().Len(seen, 1)
	s.Equal(models.SyncPending, seen[0].SyncState)
}

func (s *EngineSuite) TestRetryTwiceThenSuccess() {
	e := s.append("fixed flaky deploy")

	gomock.InOrder(
		s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).Return(nil, transient("timeout")),
		s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).Return(nil, transient("503")),
		s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.SubmitEntryRequest) (*models.SubmitEntryResponse, error) {
				s.Equal(e.ID, req.ClientID)
				s.Equal("device-1", req.DeviceID)
				s.Equal("fixed flaky deploy", req.RawText)
				return ack("remote-1"), nil
			}),
	)

	result, err := s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Failed)
	failed := s.get(e.ID)
	s.Equal(models.SyncFailed, failed.SyncState)
	s.Require().NotNil(failed.NextAttemptAt)
	s.True(s.clock.Now().Add(10 * time.Second).Equal(*failed.NextAttemptAt))

	// Not due yet: no submission.
	result, err = s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(result.Attempted)

	s.clock.Advance(10 * time.Second)
	result, err = s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Failed)
	failed = s.get(e.ID)
	s.True(s.clock.Now().Add(20 * time.Second).Equal(*failed.NextAttemptAt))

	s.clock.Advance(20 * time.Second)
	result, err = s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Synced)

	synced := s.get(e.ID)
	s.Equal(models.SyncSynced, synced.SyncState)
	s.Require().NotNil(synced.RemoteID)
	s.Equal("remote-1", *synced.RemoteID)
	s.Equal(3, synced.Attempts)
	s.Equal("fixed flaky deploy", synced.RawText)

	summary, err := s.store.Summary(s.ctx, "")
	s.Require().NoError(err)
	s.Equal(models.SyncSummary{Synced: 1}, summary)

	s.Equal(2.0, s.submissions(OutcomeFailed))
	s.Equal(1.0, s.submissions(OutcomeSynced))
}

func (s *EngineSuite) TestRejectionStopsAutomaticRetry() {
	e := s.append("unparseable")

	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).
		Return(nil, &client.RejectedError{Message: "unknown user", StatusCode: 422}).Times(1)

	result, err := s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.Rejected)

	rejected := s.get(e.ID)
	s.Equal(models.SyncFailed, rejected.SyncState)
	s.True(rejected.Rejected)
	s.Equal("unparseable", rejected.RawText)

	s.clock.Advance(time.Hour)
	result, err = s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(result.Attempted)
}

func (s *EngineSuite) TestConvergence() {
	const n = 12
	for i := 0; i < n; i++ {
		s.append(fmt.Sprintf("entry %d", i))
		s.clock.Advance(time.Second)
	}

	var (
		mu       sync.Mutex
		attempts = map[string]int{}
	)
	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitEntryRequest) (*models.SubmitEntryResponse, error) {
			mu.Lock()
			attempts[req.ClientID]++
			a := attempts[req.ClientID]
			mu.Unlock()
			// Every entry fails its first two attempts.
			if a <= 2 {
				return nil, transient("flaky")
			}
			return ack("r-" + req.ClientID), nil
		}).AnyTimes()

	for sweep := 0; sweep < 5; sweep++ {
		_, err := s.engine.Sweep(s.ctx)
		s.Require().NoError(err)
		s.clock.Advance(time.Minute)
	}

	summary, err := s.store.Summary(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(n, summary.Synced)
	s.Zero(summary.Unsynced())
	for id, a := range attempts {
		s.Equal(3, a, "entry %s", id)
	}
}

func (s *EngineSuite) TestWatchdogReclaimsStuckEntry() {
	e := s.append("stuck after crash")
	_, err := s.store.MarkSyncing(s.ctx, e.ID)
	s.Require().NoError(err)

	// Still fresh: not reclaimed, not submitted.
	result, err := s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(result.Reclaimed)
	s.Zero(result.Attempted)

	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).Return(ack("remote-9"), nil)

	s.clock.Advance(6 * time.Minute)
	result, err = s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, result.Reclaimed)
	s.Equal(1, result.Synced)
	s.Equal(models.SyncSynced, s.get(e.ID).SyncState)
}

func (s *EngineSuite) TestConcurrencyIsCapped() {
	for i := 0; i < 6; i++ {
		s.append(fmt.Sprintf("parallel %d", i))
	}

	var current, peak atomic.Int32
	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitEntryRequest) (*models.SubmitEntryResponse, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return ack("r-" + req.ClientID), nil
		}).Times(6)

	result, err := s.engine.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(6, result.Synced)
	s.LessOrEqual(peak.Load(), int32(2))
}

func (s *EngineSuite) TestCancelledSubmissionIsRecordedAsFailed() {
	e := s.append("in flight at shutdown")
	ctx, cancel := context.WithCancel(s.ctx)

	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.SubmitEntryRequest) (*models.SubmitEntryResponse, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := s.engine.Sweep(ctx)
	s.ErrorIs(err, context.Canceled)

	got := s.get(e.ID)
	s.Equal(models.SyncFailed, got.SyncState)
	s.False(got.Rejected)
}

func (s *EngineSuite) TestRunSweepsWhenConnectivityReturns() {
	s.conn.Set(false)
	e := s.append("queued offline")

	engine := s.newEngine(Config{SweepInterval: time.Hour, Concurrency: 1})
	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).Return(ack("remote-online"), nil)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	s.Never(func() bool { return s.get(e.ID).SyncState != models.SyncPending }, 100*time.Millisecond, 10*time.Millisecond)

	s.conn.Set(true)
	s.Eventually(func() bool { return s.get(e.ID).SyncState == models.SyncSynced }, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *EngineSuite) TestRunSweepsOnAppendWhileOnline() {
	engine := s.newEngine(Config{SweepInterval: time.Hour, Concurrency: 1})
	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).Return(ack("remote-live"), nil)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	// Let the startup sweep drain the empty store first.
	time.Sleep(50 * time.Millisecond)
	e := s.append("captured live")
	engine.NotifyAppended()

	s.Eventually(func() bool { return s.get(e.ID).SyncState == models.SyncSynced }, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

// countingStore counts retry-time lookups and can fail the listing step.
type countingStore struct {
	*repository.EntryRepository
	nextCalls atomic.Int64
	listErr   error
}

func (c *countingStore) NextAttemptAt(ctx context.Context) (*time.Time, error) {
	c.nextCalls.Add(1)
	return c.EntryRepository.NextAttemptAt(ctx)
}

func (c *countingStore) ListSyncable(ctx context.Context, now time.Time, limit int) ([]*models.Entry, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.EntryRepository.ListSyncable(ctx, now, limit)
}

// dueRetry leaves an entry failed with a retry time already in the past.
func (s *EngineSuite) dueRetry(text string) *models.Entry {
	e := s.append(text)
	_, err := s.store.MarkSyncing(s.ctx, e.ID)
	s.Require().NoError(err)
	_, err = s.store.MarkFailed(s.ctx, e.ID, models.SyncFailure{
		Err:           "timeout",
		Retryable:     true,
		NextAttemptAt: s.clock.Now().Add(2 * time.Second),
	})
	s.Require().NoError(err)
	s.clock.Advance(10 * time.Second)
	return e
}

func (s *EngineSuite) runFor(engine *Engine, d time.Duration) {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	time.Sleep(d)
	cancel()
	s.NoError(<-done)
}

func (s *EngineSuite) TestRunPeriodicSweep() {
	engine := s.newEngine(Config{SweepInterval: 50 * time.Millisecond, Concurrency: 1})
	s.submitter.EXPECT().SubmitEntry(gomock.Any(), gomock.Any()).Return(ack("remote-tick"), nil)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	// No NotifyAppended: only the periodic sweep can pick this up.
	e := s.append("picked up by the ticker")

	s.Eventually(func() bool { return s.get(e.ID).SyncState == models.SyncSynced }, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *EngineSuite) TestRunStaysIdleOfflineWithDueRetry() {
	e := s.dueRetry("due while offline")
	s.conn.Set(false)

	store := &countingStore{EntryRepository: s.store}
	engine := NewEngine(store, s.submitter, s.conn, s.clock,
		Config{SweepInterval: time.Hour, Concurrency: 1}, s.metrics, zap.NewNop())

	s.runFor(engine, 300*time.Millisecond)

	s.LessOrEqual(store.nextCalls.Load(), int64(2))
	s.Equal(models.SyncFailed, s.get(e.ID).SyncState)
}

func (s *EngineSuite) TestRunBacksOffWhenDueEntryCannotBeListed() {
	s.dueRetry("due but unlistable")

	store := &countingStore{EntryRepository: s.store, listErr: fmt.Errorf("disk I/O error")}
	engine := NewEngine(store, s.submitter, s.conn, s.clock,
		Config{SweepInterval: time.Hour, Concurrency: 1}, s.metrics, zap.NewNop())

	s.runFor(engine, 300*time.Millisecond)

	s.LessOrEqual(store.nextCalls.Load(), int64(4))
}

func TestBackoff(t *testing.T) {
	base, maxDelay := 2*time.Second, 30*time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, base, maxDelay), "attempt %d", tt.attempt)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BaseBackoff: time.Minute}.withDefaults()
	require.Equal(t, 5*time.Minute, cfg.MaxBackoff)
	require.Equal(t, 4, cfg.Concurrency)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission(OutcomeSynced)
	m.ObserveSweep(time.Second)
	m.SetInFlight(3)
	m.AddReclaimed(1)
}
