package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"voicelog/internal/calendar"
	"voicelog/internal/clock"
	"voicelog/internal/repository"
	"voicelog/internal/testsupport"
)

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) NotifyAppended() { c.n.Add(1) }

type staticOnline bool

func (s staticOnline) IsOnline() bool { return bool(s) }

type fixture struct {
	ctx      context.Context
	clock    *clock.Fake
	cal      *calendar.Calendar
	entries  *repository.EntryRepository
	notifier *countingNotifier
	entrySvc *EntryService
	sessions *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.MustOpenDB(t)
	clk := clock.NewFake(time.Date(2026, 1, 7, 14, 30, 0, 0, time.UTC))
	cal := calendar.New(calendar.WithClock(clk), calendar.WithLocation(time.UTC))
	logger := zap.NewNop()

	f := &fixture{
		ctx:      context.Background(),
		clock:    clk,
		cal:      cal,
		entries:  repository.NewEntryRepository(db.DB, clk, 15, logger),
		notifier: &countingNotifier{},
	}
	f.entrySvc = NewEntryService(f.entries, f.notifier, staticOnline(false), cal, logger)
	f.sessions = NewSessionService(repository.NewSessionRepository(db.DB, clk, logger), f.entries, cal, clk, logger)
	return f
}
