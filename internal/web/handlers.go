package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mapfolio/placesync/internal/core"
	"github.com/mapfolio/placesync/internal/logging"
)

// handleCheckConnection runs the three-stage catalog probe.
func (s *Server) handleCheckConnection(w http.ResponseWriter, r *http.Request) {
	ready, health := s.service.CheckConnection(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":  ready,
		"health": health,
	})
}

// handleCreateImport parses and validates an uploaded file and probes the
// catalog in parallel. Accepts a multipart form with a "file" field or a
// raw CSV body.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize)

	fileName, text, err := readImportBody(r, s.cfg.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	result, err := s.service.Reconcile(r.Context(), fileName, text)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// readImportBody extracts the file name and CSV text from the request.
func readImportBody(r *http.Request, maxSize int64) (string, string, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return "", "", fmt.Errorf("file too large or invalid form: %w", err)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", errors.New("no file provided")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", "", fmt.Errorf("read file: %w", err)
		}
		return header.Filename, string(data), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", "", fmt.Errorf("file too large or unreadable body: %w", err)
	}
	return "upload.csv", string(data), nil
}

// handleGetImport returns a registered import with its validation results.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	imp, err := s.service.GetImport(importID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, imp)
}

// handleStartSync begins an asynchronous sync run for an import.
// Responds 409 when the catalog fails the connectivity gate and 429 when
// another run already holds the slot.
func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	syncID, err := s.service.StartSync(r.Context(), importID)
	if err != nil {
		var unavailable *core.CatalogUnavailableError
		switch {
		case errors.As(err, &unavailable):
			s.respondError(w, r, err, http.StatusConflict)
		case errors.Is(err, core.ErrTooManyRuns):
			w.Header().Set("Retry-After", "5")
			s.respondError(w, r, err, http.StatusTooManyRequests)
		default:
			s.respondError(w, r, err, http.StatusNotFound)
		}
		return
	}

	logging.WithFields(r.Context(), "import_id", importID).Info("sync run started", "sync_id", syncID)

	writeJSON(w, http.StatusAccepted, map[string]string{"sync_id": syncID})
}

// handleSyncProgress streams run progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "syncID")

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(syncID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventID := lastEventID

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - run complete or cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events the client already received before reconnecting
			if currentPercent < eventID {
				continue
			}
			eventID = currentPercent

			data, err := json.Marshal(progress)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "id: %d\n", eventID)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleSyncStatus returns the current progress without blocking.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "syncID")

	progress, err := s.service.GetSyncProgress(syncID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// handleSyncResult returns the outcome ledger of a run.
// Blocks until the run completes if still in progress.
func (s *Server) handleSyncResult(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "syncID")

	result, err := s.service.GetSyncResult(syncID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCancelSync cancels an in-progress run.
func (s *Server) handleCancelSync(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "syncID")

	if err := s.service.CancelSync(syncID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleListRuns returns recent run history.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleServiceStatus reports the run limiter state.
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runner": s.service.RunnerStatus(),
	})
}
