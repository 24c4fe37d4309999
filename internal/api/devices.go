package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/handset-agent/internal/device"
)

// handleListDevices returns every device this agent process has seen,
// optionally filtered by ?status=idle|offline|provisioning_unseen.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	records := s.registry.List()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]device.Record, 0, len(records))
		for _, rec := range records {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleGetDevice returns a single device record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := device.Identity(chi.URLParam(r, "id"))

	h, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// handleDeviceHistory returns the lifecycle journal for a device. The
// journal outlives the registry, so devices not seen by this process
// still have history.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "lifecycle journal not configured")
		return
	}

	id := device.Identity(chi.URLParam(r, "id"))

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading lifecycle history", "serial", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []device.JournalEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"serial": id,
		"events": entries,
		"count":  len(entries),
	})
}
