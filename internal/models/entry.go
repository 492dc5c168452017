package models

import "time"

// DefaultDurationMinutes is the effort assumed for an entry captured without one.
const DefaultDurationMinutes = 15

// SyncState describes an entry's relationship to its remote copy.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSyncing SyncState = "syncing"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// Entry is one captured unit of work.
type Entry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	RawText         string    `json:"rawText"`
	DurationMinutes int       `json:"durationMinutes"`
	CreatedAt       time.Time `json:"createdAt"`
	SyncState       SyncState `json:"syncState"`
	RemoteID        *string   `json:"remoteId,omitempty"`

	// Sync bookkeeping, owned by the sync engine through the store transitions.
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     *string    `json:"lastError,omitempty"`
	Rejected      bool       `json:"rejected"`
	SyncingSince  *time.Time `json:"-"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// SyncFailure carries the outcome of a failed submission into MarkFailed.
type SyncFailure struct {
	Err           string
	Retryable     bool
	NextAttemptAt time.Time
}

// TimeRange is a closed interval [Start, End] over capture timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the closed range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// SyncSummary backs the sync-status indicator.
type SyncSummary struct {
	Online   bool `json:"online"`
	Pending  int  `json:"pending"`
	Syncing  int  `json:"syncing"`
	Synced   int  `json:"synced"`
	Failed   int  `json:"failed"`
	Rejected int  `json:"rejected"`
}

// Unsynced returns how many entries still wait for a remote copy.
func (s SyncSummary) Unsynced() int {
	return s.Pending + s.Syncing + s.Failed
}
