package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"studytrack-backend/internal/middleware"
	"studytrack-backend/internal/models"
	"studytrack-backend/internal/services"
)

const maxImageUploadBytes = 10 << 20

// EdgeHandler receives the detector's event stream and frame captures. The
// device authenticates with the owner's token, so these routes sit behind
// the same JWT middleware as the rest of the API.
type EdgeHandler struct {
	sessions    *services.SessionService
	storagePath string
}

func NewEdgeHandler(sessions *services.SessionService, storagePath string) *EdgeHandler {
	return &EdgeHandler{sessions: sessions, storagePath: storagePath}
}

func (h *EdgeHandler) Events(w http.ResponseWriter, r *http.Request) {
	var req models.AppendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	event, err := h.sessions.AppendEvent(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// Images accepts a multipart capture upload: an `image` file plus `session`
// and optional `event` form fields. The file lands under the storage root in
// YYYY/MM/DD subdirectories; only the relative path is persisted.
func (h *EdgeHandler) Images(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart request", r))
		return
	}

	sessionID, err := uuid.Parse(r.FormValue("session"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session must be a valid session id", r))
		return
	}

	var eventID *uuid.UUID
	if raw := r.FormValue("event"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "event must be a valid event id", r))
			return
		}
		eventID = &parsed
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "image file is required", r))
		return
	}
	defer file.Close()

	relPath, err := h.saveUpload(file, header.Filename)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store image", r))
		return
	}

	img := &models.StudyImage{
		SessionID: sessionID,
		EventID:   eventID,
		FilePath:  relPath,
	}

	if err := h.sessions.AttachImage(r.Context(), middleware.GetUserID(r.Context()), img); err != nil {
		os.Remove(filepath.Join(h.storagePath, relPath))
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, img)
}

func (h *EdgeHandler) saveUpload(file io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".jpg"
	}

	datePath := time.Now().UTC().Format("2006/01/02")
	if err := os.MkdirAll(filepath.Join(h.storagePath, datePath), 0o755); err != nil {
		return "", err
	}

	relPath := filepath.Join(datePath, uuid.NewString()+ext)
	dst, err := os.Create(filepath.Join(h.storagePath, relPath))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, maxImageUploadBytes)); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return relPath, nil
}
