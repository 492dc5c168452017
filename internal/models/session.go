package models

import "time"

// SessionType enumerates the kinds of tracked work periods.
type SessionType string

const (
	SessionSprint  SessionType = "sprint"
	SessionCycle   SessionType = "cycle"
	SessionProject SessionType = "project"
	SessionCustom  SessionType = "custom"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionSprint, SessionCycle, SessionProject, SessionCustom:
		return true
	}
	return false
}

// Label is the display name of the session type.
func (t SessionType) Label() string {
	switch t {
	case SessionSprint:
		return "Sprint"
	case SessionCycle:
		return "Cycle"
	case SessionProject:
		return "Project"
	case SessionCustom:
		return "Custom Session"
	default:
		return string(t)
	}
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is one declared period of work. Dates are calendar dates stored as
// UTC midnights.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	Type           SessionType   `json:"type"`
	Status         SessionStatus `json:"status"`
	StartDate      time.Time     `json:"start_date"`
	PlannedEndDate time.Time     `json:"planned_end_date"`
	LeaveDates     []time.Time   `json:"leave_dates"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
}

// ProgressStatus classifies a session for display coloring.
type ProgressStatus string

const (
	ProgressOverdue ProgressStatus = "overdue"
	ProgressNearEnd ProgressStatus = "near_end"
	ProgressOnTrack ProgressStatus = "on_track"
)

// SessionProgress is derived from a session and "today"; it is never stored.
type SessionProgress struct {
	ProgressPercentage float64        `json:"progress_percentage"`
	DaysElapsed        int            `json:"days_elapsed"`
	DaysTotal          int            `json:"days_total"`
	DaysRemaining      int            `json:"days_remaining"`
	WorkingDays        int            `json:"working_days"`
	LeaveDays          int            `json:"leave_days"`
	Status             ProgressStatus `json:"status"`
	StatusText         string         `json:"status_text"`
}

// SessionSummary pairs a session with its progress and the entries captured
// inside its date range.
type SessionSummary struct {
	Session      *Session        `json:"session"`
	Progress     SessionProgress `json:"progress"`
	EntryCount   int             `json:"entry_count"`
	TotalMinutes int             `json:"total_minutes"`
}
