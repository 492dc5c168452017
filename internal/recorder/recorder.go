package recorder

import (
	"context"
	"strings"
	"sync"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/clock"

	"go.uber.org/zap"
)

// State represents the recorder lifecycle state
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// Transcript is the finalized text of one start/stop cycle
type Transcript struct {
	Text      string
	Cycle     uint64
	StartedAt time.Time
	StoppedAt time.Time
}

// FinalizeFunc receives the transcript of a completed cycle. Its error is
// returned from Stop so capture failures surface to the caller.
type FinalizeFunc func(ctx context.Context, t Transcript) error

// Recorder owns the push-to-talk lifecycle and the in-flight transcript
type Recorder struct {
	clock      clock.Clock
	onFinalize FinalizeFunc
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	accumulator string
	cycle       uint64
	startedAt   time.Time
}

// New creates a recorder in the idle state
func New(onFinalize FinalizeFunc, clk clock.Clock, logger *zap.Logger) *Recorder {
	return &Recorder{
		clock:      clk,
		onFinalize: onFinalize,
		logger:     logger,
		state:      StateIdle,
	}
}

// Start begins a capture cycle
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return &apperr.AlreadyRecordingError{}
	}

	r.state = StateRecording
	r.accumulator = ""
	r.cycle++
	r.startedAt = r.clock.Now()

	r.logger.Debug("Recording started", zap.Uint64("cycle", r.cycle))
	return nil
}

// OnPartialTranscript replaces the accumulator with the latest partial result.
// Late callbacks arriving after Stop are dropped.
func (r *Recorder) OnPartialTranscript(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		r.logger.Debug("Ignoring partial transcript while idle",
			zap.Int("length", len(text)),
		)
		return
	}
	r.accumulator = text
}

// Stop ends the current cycle. When the trimmed transcript is non-empty it is
// handed to the finalize callback exactly once and returned; otherwise Stop
// returns nil. Stopping an idle recorder is a no-op.
func (r *Recorder) Stop(ctx context.Context) (*Transcript, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, nil
	}

	text := strings.TrimSpace(r.accumulator)
	t := Transcript{
		Text:      text,
		Cycle:     r.cycle,
		StartedAt: r.startedAt,
		StoppedAt: r.clock.Now(),
	}
	r.state = StateIdle
	r.accumulator = ""
	r.mu.Unlock()

	if text == "" {
		r.logger.Debug("Recording stopped with empty transcript", zap.Uint64("cycle", t.Cycle))
		return nil, nil
	}

	r.logger.Info("Recording finalized",
		zap.Uint64("cycle", t.Cycle),
		zap.Int("length", len(text)),
		zap.Duration("duration", t.StoppedAt.Sub(t.StartedAt)),
	)

	if r.onFinalize != nil {
		if err := r.onFinalize(ctx, t); err != nil {
			return &t, err
		}
	}
	return &t, nil
}

// Reset discards the accumulator without finalizing
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		r.logger.Debug("Recording cancelled", zap.Uint64("cycle", r.cycle))
	}
	r.state = StateIdle
	r.accumulator = ""
}

// State returns the current lifecycle state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Partial returns the text accumulated so far
func (r *Recorder) Partial() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accumulator
}
