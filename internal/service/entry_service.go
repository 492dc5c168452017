package service

import (
	"context"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/calendar"
	"voicelog/internal/models"
	"voicelog/internal/repository"

	"go.uber.org/zap"
)

// AppendNotifier is told about every captured entry, normally the sync engine.
type AppendNotifier interface {
	NotifyAppended()
}

// OnlineChecker reports the debounced connectivity state.
type OnlineChecker interface {
	IsOnline() bool
}

const maxListDays = 366

type EntryService struct {
	repo     *repository.EntryRepository
	notifier AppendNotifier
	online   OnlineChecker
	cal      *calendar.Calendar
	logger   *zap.Logger
}

func NewEntryService(repo *repository.EntryRepository, notifier AppendNotifier, online OnlineChecker, cal *calendar.Calendar, logger *zap.Logger) *EntryService {
	return &EntryService{
		repo:     repo,
		notifier: notifier,
		online:   online,
		cal:      cal,
		logger:   logger,
	}
}

// CaptureEntry stores an entry locally and nudges the sync engine. It never
// waits for the network.
func (s *EntryService) CaptureEntry(ctx context.Context, rawText, userID string, durationMinutes int) (*models.Entry, error) {
	entry, err := s.repo.Append(ctx, rawText, userID, durationMinutes)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyAppended()
	}
	s.logger.Info("Entry captured",
		zap.String("entry_id", entry.ID),
		zap.Int("duration_minutes", entry.DurationMinutes),
	)
	return entry, nil
}

func (s *EntryService) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	return s.repo.Get(ctx, id)
}

// ListEntries returns the user's entries captured on the dates from..to,
// inclusive, in the calendar's location.
func (s *EntryService) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]*models.Entry, error) {
	if userID == "" {
		return nil, apperr.Validation("userId", "must not be empty")
	}
	if to.Before(from) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	if calendar.DaysInclusive(from, to) > maxListDays {
		return nil, apperr.Validation("to", "range must not exceed one year")
	}

	start, _ := s.cal.DayBounds(from)
	_, end := s.cal.DayBounds(to)

	entries := []*models.Entry{}
	for entry, err := range s.repo.Query(ctx, models.TimeRange{Start: start, End: end}, userID) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *EntryService) DeleteEntry(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// RetryEntry puts a failed entry, including a rejected one, back in the queue.
func (s *EntryService) RetryEntry(ctx context.Context, id string) (*models.Entry, error) {
	entry, err := s.repo.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyAppended()
	}
	return entry, nil
}

// SyncStatus backs the sync-status indicator.
func (s *EntryService) SyncStatus(ctx context.Context, userID string) (models.SyncSummary, error) {
	summary, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return models.SyncSummary{}, err
	}
	if s.online != nil {
		summary.Online = s.online.IsOnline()
	}
	return summary, nil
}
