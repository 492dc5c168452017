package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voicelog/internal/recorder"
	"voicelog/internal/service"
)

// CaptureHandler exposes the push-to-talk lifecycle to the UI shell and to
// the transcription process feeding partial results.
type CaptureHandler struct {
	capture *service.CaptureService
	logger  *zap.Logger
}

func NewCaptureHandler(capture *service.CaptureService, logger *zap.Logger) *CaptureHandler {
	return &CaptureHandler{capture: capture, logger: logger}
}

type partialRequest struct {
	Text string `json:"text"`
}

type captureState struct {
	State      recorder.State `json:"state"`
	Transcript string         `json:"transcript"`
}

func (h *CaptureHandler) Register(r chi.Router) {
	r.Route("/api/v1/capture", func(r chi.Router) {
		r.Get("/", h.State)
		r.Post("/start", h.Start)
		r.Post("/partial", h.Partial)
		r.Post("/stop", h.Stop)
		r.Post("/reset", h.Reset)
	})
}

func (h *CaptureHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

func (h *CaptureHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.capture.Start(); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state())
}

func (h *CaptureHandler) Partial(w http.ResponseWriter, r *http.Request) {
	var req partialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.capture.Partial(req.Text)
	w.WriteHeader(http.StatusAccepted)
}

// Stop answers 201 with the stored entry, or 204 when nothing was captured.
func (h *CaptureHandler) Stop(w http.ResponseWriter, r *http.Request) {
	entry, err := h.capture.Stop(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *CaptureHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.capture.Reset()
	writeJSON(w, http.StatusOK, h.state())
}

func (h *CaptureHandler) state() captureState {
	return captureState{State: h.capture.State(), Transcript: h.capture.Transcript()}
}
