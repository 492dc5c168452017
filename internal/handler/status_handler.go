package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voicelog/internal/models"
	"voicelog/internal/platform"
	"voicelog/internal/service"
)

type StatusHandler struct {
	entries  *service.EntryService
	userID   string
	deviceID string
	logger   *zap.Logger
}

func NewStatusHandler(entries *service.EntryService, userID, deviceID string, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		entries:  entries,
		userID:   userID,
		deviceID: deviceID,
		logger:   logger,
	}
}

type statusResponse struct {
	models.SyncSummary
	Unsynced int                  `json:"unsynced"`
	DeviceID string               `json:"deviceId"`
	System   *platform.SystemInfo `json:"system"`
}

func (h *StatusHandler) Register(r chi.Router) {
	r.Get("/api/v1/status", h.Status)
}

// Status backs the sync-status indicator.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	summary, err := h.entries.SyncStatus(r.Context(), h.userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		SyncSummary: summary,
		Unsynced:    summary.Unsynced(),
		DeviceID:    h.deviceID,
		System:      platform.GetSystemInfo(),
	})
}
