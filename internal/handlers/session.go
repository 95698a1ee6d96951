package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studytrack-backend/internal/middleware"
	"studytrack-backend/internal/models"
	"studytrack-backend/internal/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.sessions.Start(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.End(r.Context(), middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetActive(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.Get(r.Context(), middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// List returns the caller's ended sessions, newest first. An optional
// ?date=YYYY-MM-DD keeps only sessions started on that day.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	var date *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "date must be YYYY-MM-DD", r))
			return
		}
		date = &parsed
	}

	sessions, err := h.sessions.History(r.Context(), middleware.GetUserID(r.Context()), date)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *SessionHandler) UpdateObjects(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateObjectsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.sessions.UpdateAllowedObjects(r.Context(), middleware.GetUserID(r.Context()), sessionID, req.AllowedObjects)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Config(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	config, err := h.sessions.Config(r.Context(), middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, config)
}

func (h *SessionHandler) Live(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.sessions.Live(r.Context(), middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *SessionHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	items, err := h.sessions.Timeline(r.Context(), middleware.GetUserID(r.Context()), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"timeline": items})
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return uuid.Nil, false
	}
	return id, true
}
