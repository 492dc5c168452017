package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voicelog/internal/calendar"
	"voicelog/internal/service"
)

type EntryHandler struct {
	entries *service.EntryService
	cal     *calendar.Calendar
	userID  string
	logger  *zap.Logger
}

func NewEntryHandler(entries *service.EntryService, cal *calendar.Calendar, userID string, logger *zap.Logger) *EntryHandler {
	return &EntryHandler{
		entries: entries,
		cal:     cal,
		userID:  userID,
		logger:  logger,
	}
}

type createEntryRequest struct {
	RawText         string `json:"rawText"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (h *EntryHandler) Register(r chi.Router) {
	r.Route("/api/v1/entries", func(r chi.Router) {
		r.Post("/", h.CreateEntry)
		r.Get("/", h.ListEntries)
		r.Get("/{id}", h.GetEntry)
		r.Delete("/{id}", h.DeleteEntry)
		r.Post("/{id}/retry", h.RetryEntry)
	})
}

func (h *EntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	entry, err := h.entries.CaptureEntry(r.Context(), req.RawText, h.userID, req.DurationMinutes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries serves ?from=YYYY-MM-DD&to=YYYY-MM-DD, both defaulting to today.
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	today := h.cal.Today()
	from, err := parseDate("from", r.URL.Query().Get("from"), today)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	to, err := parseDate("to", r.URL.Query().Get("to"), from)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.entries.ListEntries(r.Context(), h.userID, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EntryHandler) RetryEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.RetryEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
