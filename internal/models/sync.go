package models

// SubmitEntryRequest is the body sent to the backend for one entry. ClientID
// lets the backend deduplicate retried submissions.
type SubmitEntryRequest struct {
	ClientID        string `json:"clientId"`
	UserID          string `json:"userId"`
	DeviceID        string `json:"deviceId,omitempty"`
	RawText         string `json:"rawText"`
	DurationMinutes int    `json:"durationMinutes"`
	CreatedAt       int64  `json:"createdAt"` // Unix timestamp in milliseconds
}

// SubmitEntryResponse is the backend acknowledgement.
type SubmitEntryResponse struct {
	RemoteID string `json:"remoteId"`
}
