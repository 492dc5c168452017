package service

import (
	"context"
	"errors"
	"iter"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/calendar"
	"voicelog/internal/clock"
	"voicelog/internal/models"
	"voicelog/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EntryReader is the read-only view of the entry store sessions use to
// summarize captured work.
type EntryReader interface {
	Query(ctx context.Context, rng models.TimeRange, userID string) iter.Seq2[*models.Entry, error]
}

type SessionService struct {
	repo    *repository.SessionRepository
	entries EntryReader
	cal     *calendar.Calendar
	clock   clock.Clock
	logger  *zap.Logger
}

func NewSessionService(repo *repository.SessionRepository, entries EntryReader, cal *calendar.Calendar, clk clock.Clock, logger *zap.Logger) *SessionService {
	return &SessionService{
		repo:    repo,
		entries: entries,
		cal:     cal,
		clock:   clk,
		logger:  logger,
	}
}

// StartSessionRequest describes a new session. Dates are calendar dates.
type StartSessionRequest struct {
	UserID         string
	Type           models.SessionType
	StartDate      time.Time
	PlannedEndDate time.Time
	LeaveDates     []time.Time
}

// StartSession creates the user's active session. It fails with a
// ConflictError while another session is active.
func (s *SessionService) StartSession(ctx context.Context, req StartSessionRequest) (*models.Session, error) {
	if req.UserID == "" {
		return nil, apperr.Validation("userId", "must not be empty")
	}
	if !req.Type.Valid() {
		return nil, apperr.Validation("type", "unknown session type "+string(req.Type))
	}
	if req.StartDate.IsZero() || req.PlannedEndDate.IsZero() {
		return nil, apperr.Validation("start_date", "start and planned end dates are required")
	}
	start := calendar.DateOf(req.StartDate)
	end := calendar.DateOf(req.PlannedEndDate)
	if end.Before(start) {
		return nil, apperr.Validation("planned_end_date", "must not be before start_date")
	}

	if active, err := s.repo.FindActive(ctx, req.UserID); err == nil {
		return nil, &apperr.ConflictError{Message: "session " + active.ID + " is already active"}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	leave := make([]time.Time, 0, len(req.LeaveDates))
	for _, d := range req.LeaveDates {
		leave = append(leave, calendar.DateOf(d))
	}

	now := s.clock.Now().UTC()
	session := &models.Session{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Type:           req.Type,
		Status:         models.SessionActive,
		StartDate:      start,
		PlannedEndDate: end,
		LeaveDates:     leave,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("Session started",
		zap.String("session_id", session.ID),
		zap.String("type", string(session.Type)),
		zap.String("start_date", calendar.FormatDate(start)),
		zap.String("planned_end_date", calendar.FormatDate(end)),
	)
	return s.repo.GetByID(ctx, session.ID)
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return s.repo.GetByID(ctx, id)
}

// CurrentSession returns the user's active session.
func (s *SessionService) CurrentSession(ctx context.Context, userID string) (*models.Session, error) {
	return s.repo.FindActive(ctx, userID)
}

func (s *SessionService) ListSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// RescheduleEnd moves the planned end date of an active session.
func (s *SessionService) RescheduleEnd(ctx context.Context, id string, newEnd time.Time) (*models.Session, error) {
	session, err := s.requireActive(ctx, id, "reschedule")
	if err != nil {
		return nil, err
	}
	newEnd = calendar.DateOf(newEnd)
	if newEnd.Before(session.StartDate) {
		return nil, apperr.Validation("planned_end_date", "must not be before start_date")
	}
	if err := s.repo.UpdatePlannedEnd(ctx, id, newEnd); err != nil {
		return nil, err
	}
	s.logger.Info("Session rescheduled",
		zap.String("session_id", id),
		zap.String("planned_end_date", calendar.FormatDate(newEnd)),
	)
	return s.repo.GetByID(ctx, id)
}

// Complete ends an active session. Completing it again is a no-op.
func (s *SessionService) Complete(ctx context.Context, id string) (*models.Session, error) {
	return s.finish(ctx, id, models.SessionCompleted)
}

// Cancel abandons an active session. Cancelling it again is a no-op.
func (s *SessionService) Cancel(ctx context.Context, id string) (*models.Session, error) {
	return s.finish(ctx, id, models.SessionCancelled)
}

func (s *SessionService) finish(ctx context.Context, id string, target models.SessionStatus) (*models.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == target {
		return session, nil
	}
	if session.Status != models.SessionActive {
		return nil, &apperr.InvalidStateError{Resource: "session", ID: id, State: string(session.Status), Action: "set status " + string(target)}
	}
	if err := s.repo.UpdateStatus(ctx, id, models.SessionActive, target); err != nil {
		return nil, err
	}
	s.logger.Info("Session ended", zap.String("session_id", id), zap.String("status", string(target)))
	return s.repo.GetByID(ctx, id)
}

// AddLeaveDate declares a leave day on an active session.
func (s *SessionService) AddLeaveDate(ctx context.Context, id string, date time.Time) (*models.Session, error) {
	if _, err := s.requireActive(ctx, id, "add leave to"); err != nil {
		return nil, err
	}
	if err := s.repo.AddLeaveDate(ctx, id, calendar.DateOf(date)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// RemoveLeaveDate withdraws a leave day from an active session.
func (s *SessionService) RemoveLeaveDate(ctx context.Context, id string, date time.Time) (*models.Session, error) {
	if _, err := s.requireActive(ctx, id, "remove leave from"); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveLeaveDate(ctx, id, calendar.DateOf(date)); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// GetProgress computes the session's progress as of today.
func (s *SessionService) GetProgress(ctx context.Context, id string, today time.Time) (*models.SessionProgress, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	progress := ComputeProgress(session, today, s.cal)
	return &progress, nil
}

// Today is the current date in the configured calendar location.
func (s *SessionService) Today() time.Time {
	return s.cal.Today()
}

// Summary pairs the session's progress with the entries captured between its
// start date and its planned end date.
func (s *SessionService) Summary(ctx context.Context, id string, today time.Time) (*models.SessionSummary, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from, _ := s.cal.DayBounds(session.StartDate)
	_, to := s.cal.DayBounds(session.PlannedEndDate)

	summary := &models.SessionSummary{
		Session:  session,
		Progress: ComputeProgress(session, today, s.cal),
	}
	for entry, err := range s.entries.Query(ctx, models.TimeRange{Start: from, End: to}, session.UserID) {
		if err != nil {
			return nil, err
		}
		summary.EntryCount++
		summary.TotalMinutes += entry.DurationMinutes
	}
	return summary, nil
}

func (s *SessionService) requireActive(ctx context.Context, id, action string) (*models.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, &apperr.InvalidStateError{Resource: "session", ID: id, State: string(session.Status), Action: action}
	}
	return session, nil
}
