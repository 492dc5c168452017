package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voicelog/internal/calendar"
	"voicelog/internal/clock"
	"voicelog/internal/models"
	"voicelog/internal/repository"
	"voicelog/internal/service"
	"voicelog/internal/testsupport"
)

const testUser = "user-1"

type online bool

func (o online) IsOnline() bool { return bool(o) }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := testsupport.MustOpenDB(t)
	clk := clock.NewFake(time.Date(2026, 1, 7, 14, 30, 0, 0, time.UTC))
	cal := calendar.New(calendar.WithClock(clk), calendar.WithLocation(time.UTC))
	logger := zap.NewNop()

	entryRepo := repository.NewEntryRepository(db.DB, clk, models.DefaultDurationMinutes, logger)
	entries := service.NewEntryService(entryRepo, nil, online(true), cal, logger)
	capture := service.NewCaptureService(entries, testUser, models.DefaultDurationMinutes, clk, logger)
	sessions := service.NewSessionService(repository.NewSessionRepository(db.DB, clk, logger), entryRepo, cal, clk, logger)

	r := chi.NewRouter()
	NewEntryHandler(entries, cal, testUser, logger).Register(r)
	NewCaptureHandler(capture, logger).Register(r)
	NewSessionHandler(sessions, testUser, logger).Register(r)
	NewStatusHandler(entries, testUser, "device-1", logger).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestEntryLifecycle(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/entries", map[string]any{"rawText": "  fixed login bug  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Entry](t, rec)
	assert.Equal(t, "  fixed login bug  ", created.RawText)
	assert.Equal(t, models.DefaultDurationMinutes, created.DurationMinutes)
	assert.Equal(t, models.SyncPending, created.SyncState)

	rec = do(t, h, http.MethodGet, "/api/v1/entries?from=2026-01-07&to=2026-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]models.Entry](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/entries?from=2026-01-06&to=2026-01-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/entries/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/entries/"+created.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/entries/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/entries/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Error)
}

func TestEntryErrors(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"blank text", http.MethodPost, "/api/v1/entries", map[string]any{"rawText": "   "}, http.StatusBadRequest, "validation_error"},
		{"negative duration", http.MethodPost, "/api/v1/entries", map[string]any{"rawText": "x", "durationMinutes": -5}, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/api/v1/entries", map[string]any{"text": "x"}, http.StatusBadRequest, "validation_error"},
		{"bad date", http.MethodGet, "/api/v1/entries?from=07-01-2026", nil, http.StatusBadRequest, "validation_error"},
		{"inverted range", http.MethodGet, "/api/v1/entries?from=2026-01-07&to=2026-01-01", nil, http.StatusBadRequest, "validation_error"},
		{"unknown entry", http.MethodDelete, "/api/v1/entries/nope", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, rec).Error)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestCaptureFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/capture/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "recording", string(decode[captureState](t, rec).State))

	rec = do(t, h, http.MethodPost, "/api/v1/capture/start", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_recording", decode[errorResponse](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/api/v1/capture/partial", map[string]any{"text": "reviewed"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/capture/partial", map[string]any{"text": "reviewed the PR"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/capture", nil)
	assert.Equal(t, "reviewed the PR", decode[captureState](t, rec).Transcript)

	rec = do(t, h, http.MethodPost, "/api/v1/capture/stop", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	entry := decode[models.Entry](t, rec)
	assert.Equal(t, "reviewed the PR", entry.RawText)

	rec = do(t, h, http.MethodPost, "/api/v1/capture/stop", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	do(t, h, http.MethodPost, "/api/v1/capture/start", nil)
	rec = do(t, h, http.MethodPost, "/api/v1/capture/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", string(decode[captureState](t, rec).State))

	rec = do(t, h, http.MethodGet, "/api/v1/entries", nil)
	assert.Len(t, decode[[]models.Entry](t, rec), 1)
}

func TestSessionFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/sessions", map[string]any{
		"type":             "sprint",
		"start_date":       "2026-01-05",
		"planned_end_date": "2026-01-16",
		"leave_dates":      []string{"2026-01-09"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[sessionView](t, rec)
	assert.Equal(t, "Sprint", session.Label)
	assert.Equal(t, []string{"2026-01-09"}, session.LeaveDates)
	require.NotNil(t, session.Progress)
	assert.Equal(t, 12, session.Progress.DaysTotal)
	assert.Equal(t, 3, session.Progress.DaysElapsed)
	assert.Equal(t, 9, session.Progress.DaysRemaining)
	assert.Equal(t, models.ProgressOnTrack, session.Progress.Status)

	rec = do(t, h, http.MethodPost, "/api/v1/sessions", map[string]any{
		"type": "cycle", "start_date": "2026-01-07", "planned_end_date": "2026-01-08",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[errorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.ID, decode[sessionView](t, rec).ID)

	base := "/api/v1/sessions/" + session.ID

	rec = do(t, h, http.MethodGet, base+"/progress?today=2026-01-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[models.SessionProgress](t, rec)
	assert.Equal(t, 1, progress.DaysRemaining)
	assert.Equal(t, models.ProgressNearEnd, progress.Status)
	assert.Equal(t, "1 day remaining", progress.StatusText)

	rec = do(t, h, http.MethodPost, base+"/reschedule", map[string]any{"planned_end_date": "2026-01-20"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-01-20", decode[sessionView](t, rec).PlannedEndDate)

	rec = do(t, h, http.MethodPost, base+"/reschedule", map[string]any{"planned_end_date": "2026-01-01"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/leave", map[string]any{"date": "2026-01-12"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2026-01-09", "2026-01-12"}, decode[sessionView](t, rec).LeaveDates)

	rec = do(t, h, http.MethodDelete, base+"/leave/2026-01-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2026-01-12"}, decode[sessionView](t, rec).LeaveDates)

	do(t, h, http.MethodPost, "/api/v1/entries", map[string]any{"rawText": "planning", "durationMinutes": 30})
	rec = do(t, h, http.MethodGet, base+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		EntryCount   int `json:"entry_count"`
		TotalMinutes int `json:"total_minutes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.EntryCount)
	assert.Equal(t, 30, summary.TotalMinutes)

	rec = do(t, h, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionCompleted, decode[sessionView](t, rec).Status)

	rec = do(t, h, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[errorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/current", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]sessionView](t, rec), 1)
}

func TestSessionValidation(t *testing.T) {
	h := newTestRouter(t)

	for name, body := range map[string]map[string]any{
		"missing end":  {"type": "sprint", "start_date": "2026-01-05"},
		"unknown type": {"type": "marathon", "start_date": "2026-01-05", "planned_end_date": "2026-01-09"},
		"bad leave":    {"type": "sprint", "start_date": "2026-01-05", "planned_end_date": "2026-01-09", "leave_dates": []string{"soon"}},
		"end first":    {"type": "sprint", "start_date": "2026-01-09", "planned_end_date": "2026-01-05"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/sessions", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestStatus(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/v1/entries", map[string]any{"rawText": "one"})
	do(t, h, http.MethodPost, "/api/v1/entries", map[string]any{"rawText": "two"})

	rec := do(t, h, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusResponse](t, rec)
	assert.True(t, status.Online)
	assert.Equal(t, 2, status.Pending)
	assert.Equal(t, 2, status.Unsynced)
	assert.Equal(t, "device-1", status.DeviceID)
	require.NotNil(t, status.System)
	assert.NotEmpty(t, status.System.OS)
}
