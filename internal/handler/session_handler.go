package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voicelog/internal/apperr"
	"voicelog/internal/calendar"
	"voicelog/internal/models"
	"voicelog/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
	userID   string
	logger   *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, userID string, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		userID:   userID,
		logger:   logger,
	}
}

type startSessionRequest struct {
	Type           models.SessionType `json:"type"`
	StartDate      string             `json:"start_date"`
	PlannedEndDate string             `json:"planned_end_date"`
	LeaveDates     []string           `json:"leave_dates"`
}

type rescheduleRequest struct {
	PlannedEndDate string `json:"planned_end_date"`
}

type leaveRequest struct {
	Date string `json:"date"`
}

// sessionView renders calendar dates as YYYY-MM-DD and carries the progress
// snapshot for today.
type sessionView struct {
	ID             string                  `json:"id"`
	UserID         string                  `json:"userId"`
	Type           models.SessionType      `json:"type"`
	Label          string                  `json:"label"`
	Status         models.SessionStatus    `json:"status"`
	StartDate      string                  `json:"start_date"`
	PlannedEndDate string                  `json:"planned_end_date"`
	LeaveDates     []string                `json:"leave_dates"`
	Progress       *models.SessionProgress `json:"progress,omitempty"`
}

func (h *SessionHandler) Register(r chi.Router) {
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", h.StartSession)
		r.Get("/", h.ListSessions)
		r.Get("/current", h.CurrentSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Get("/progress", h.GetProgress)
			r.Get("/summary", h.GetSummary)
			r.Post("/reschedule", h.Reschedule)
			r.Post("/complete", h.Complete)
			r.Post("/cancel", h.Cancel)
			r.Post("/leave", h.AddLeave)
			r.Delete("/leave/{date}", h.RemoveLeave)
		})
	})
}

func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var body startSessionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req := service.StartSessionRequest{UserID: h.userID, Type: body.Type}
	var err error
	if req.StartDate, err = parseDate("start_date", body.StartDate, h.sessions.Today()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body.PlannedEndDate == "" {
		writeError(w, h.logger, apperr.Validation("planned_end_date", "is required"))
		return
	}
	if req.PlannedEndDate, err = parseDate("planned_end_date", body.PlannedEndDate, req.StartDate); err != nil {
		writeError(w, h.logger, err)
		return
	}
	for _, raw := range body.LeaveDates {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			writeError(w, h.logger, apperr.Validation("leave_dates", "expected YYYY-MM-DD, got "+strconv.Quote(raw)))
			return
		}
		req.LeaveDates = append(req.LeaveDates, d)
	}

	session, err := h.sessions.StartSession(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusCreated, session)
}

func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.logger, apperr.Validation("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	sessions, err := h.sessions.ListSessions(r.Context(), h.userID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, h.view(s, nil))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *SessionHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CurrentSession(r.Context(), h.userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

// GetProgress accepts ?today=YYYY-MM-DD to evaluate progress on another day.
func (h *SessionHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	today, err := parseDate("today", r.URL.Query().Get("today"), h.sessions.Today())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	progress, err := h.sessions.GetProgress(r.Context(), chi.URLParam(r, "id"), today)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *SessionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	today, err := parseDate("today", r.URL.Query().Get("today"), h.sessions.Today())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	summary, err := h.sessions.Summary(r.Context(), chi.URLParam(r, "id"), today)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view := h.view(summary.Session, &summary.Progress)
	writeJSON(w, http.StatusOK, struct {
		Session      sessionView `json:"session"`
		EntryCount   int         `json:"entry_count"`
		TotalMinutes int         `json:"total_minutes"`
	}{view, summary.EntryCount, summary.TotalMinutes})
}

func (h *SessionHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var body rescheduleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body.PlannedEndDate == "" {
		writeError(w, h.logger, apperr.Validation("planned_end_date", "is required"))
		return
	}
	end, err := calendar.ParseDate(body.PlannedEndDate)
	if err != nil {
		writeError(w, h.logger, apperr.Validation("planned_end_date", "expected YYYY-MM-DD"))
		return
	}

	session, err := h.sessions.RescheduleEnd(r.Context(), chi.URLParam(r, "id"), end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

func (h *SessionHandler) AddLeave(w http.ResponseWriter, r *http.Request) {
	var body leaveRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	date, err := calendar.ParseDate(body.Date)
	if err != nil {
		writeError(w, h.logger, apperr.Validation("date", "expected YYYY-MM-DD"))
		return
	}

	session, err := h.sessions.AddLeaveDate(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

func (h *SessionHandler) RemoveLeave(w http.ResponseWriter, r *http.Request) {
	date, err := calendar.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.logger, apperr.Validation("date", "expected YYYY-MM-DD"))
		return
	}

	session, err := h.sessions.RemoveLeaveDate(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, session)
}

func (h *SessionHandler) writeSession(w http.ResponseWriter, r *http.Request, status int, session *models.Session) {
	progress, err := h.sessions.GetProgress(r.Context(), session.ID, h.sessions.Today())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, status, h.view(session, progress))
}

func (h *SessionHandler) view(s *models.Session, progress *models.SessionProgress) sessionView {
	leave := make([]string, 0, len(s.LeaveDates))
	for _, d := range s.LeaveDates {
		leave = append(leave, calendar.FormatDate(d))
	}
	return sessionView{
		ID:             s.ID,
		UserID:         s.UserID,
		Type:           s.Type,
		Label:          s.Type.Label(),
		Status:         s.Status,
		StartDate:      calendar.FormatDate(s.StartDate),
		PlannedEndDate: calendar.FormatDate(s.PlannedEndDate),
		LeaveDates:     leave,
		Progress:       progress,
	}
}
