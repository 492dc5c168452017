package service

import (
	"context"
	"sync"

	"voicelog/internal/clock"
	"voicelog/internal/models"
	"voicelog/internal/recorder"

	"go.uber.org/zap"
)

// CaptureService connects the push-to-talk recorder to the entry store. The
// external transcriber feeds Partial; Stop commits the final transcript as
// one entry.
type CaptureService struct {
	entries  *EntryService
	recorder *recorder.Recorder
	userID   string
	duration int
	logger   *zap.Logger

	stopMu  sync.Mutex
	created *models.Entry
}

func NewCaptureService(entries *EntryService, userID string, durationMinutes int, clk clock.Clock, logger *zap.Logger) *CaptureService {
	s := &CaptureService{
		entries:  entries,
		userID:   userID,
		duration: durationMinutes,
		logger:   logger,
	}
	s.recorder = recorder.New(s.commit, clk, logger.Named("recorder"))
	return s
}

func (s *CaptureService) commit(ctx context.Context, t recorder.Transcript) error {
	entry, err := s.entries.CaptureEntry(ctx, t.Text, s.userID, s.duration)
	if err != nil {
		s.logger.Error("Failed to store transcript", zap.Error(err), zap.Uint64("cycle", t.Cycle))
		return err
	}
	s.created = entry
	return nil
}

func (s *CaptureService) Start() error {
	return s.recorder.Start()
}

func (s *CaptureService) Partial(text string) {
	s.recorder.OnPartialTranscript(text)
}

// Stop ends the recording and returns the entry it produced, or nil when the
// transcript was empty or nothing was recording.
func (s *CaptureService) Stop(ctx context.Context) (*models.Entry, error) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.created = nil
	if _, err := s.recorder.Stop(ctx); err != nil {
		return nil, err
	}
	entry := s.created
	s.created = nil
	return entry, nil
}

func (s *CaptureService) Reset() {
	s.recorder.Reset()
}

func (s *CaptureService) State() recorder.State {
	return s.recorder.State()
}

// Transcript returns the text accumulated in the current recording.
func (s *CaptureService) Transcript() string {
	return s.recorder.Partial()
}
