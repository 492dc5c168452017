package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voicelog/internal/apperr"
	"voicelog/internal/recorder"
)

func newCapture(f *fixture) *CaptureService {
	return NewCaptureService(f.entrySvc, "user-1", 0, f.clock, zap.NewNop())
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	summary, err := f.entries.Summary(f.ctx, "user-1")
	require.NoError(t, err)
	return summary.Pending
}

func TestCaptureStartStopWithoutTranscriptAppendsNothing(t *testing.T) {
	f := newFixture(t)
	c := newCapture(f)

	require.NoError(t, c.Start())
	entry, err := c.Stop(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Zero(t, f.count(t))
}

func TestCaptureAppendsExactlyOneEntry(t *testing.T) {
	f := newFixture(t)
	c := newCapture(f)

	require.NoError(t, c.Start())
	require.ErrorIs(t, c.Start(), apperr.ErrAlreadyRecording)
	c.Partial("shipped")
	c.Partial("shipped the release notes")
	assert.Equal(t, "shipped the release notes", c.Transcript())

	entry, err := c.Stop(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "shipped the release notes", entry.RawText)
	assert.Equal(t, 15, entry.DurationMinutes)

	again, err := c.Stop(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, recorder.StateIdle, c.State())
}

func TestCaptureResetDiscards(t *testing.T) {
	f := newFixture(t)
	c := newCapture(f)

	require.NoError(t, c.Start())
	c.Partial("never mind")
	c.Reset()

	entry, err := c.Stop(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Zero(t, f.count(t))
}

func TestCaptureWhitespaceTranscript(t *testing.T) {
	f := newFixture(t)
	c := newCapture(f)

	require.NoError(t, c.Start())
	c.Partial(" \n ")
	entry, err := c.Stop(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Zero(t, f.count(t))
}
