package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	fitsync "github.com/hyperengineering/fitsync/internal/sync"
)

// SignalResponse is returned by POST /api/v1/lifecycle/{event}.
type SignalResponse struct {
	Accepted bool            `json:"accepted"`
	Report   *fitsync.Report `json:"report,omitempty"`
}

// Sync handles POST /api/v1/sync. It runs (or joins) a cycle for the
// signed-in user and returns its report.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rep, err := h.syncer.SyncCurrent(r.Context())
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			WriteProblem(w, r, http.StatusServiceUnavailable, "Sync still running")
			return
		}
		MapStoreError(w, r, err)
		return
	}

	slog.Info("sync requested",
		"component", "api",
		"action", "sync",
		"cycle_id", rep.CycleID,
		"failed", rep.Failed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, rep)
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.syncer.Status())
}

// Lifecycle handles POST /api/v1/lifecycle/{event}. Focus, foreground and
// interval events are throttled; a dropped event answers 202.
func (h *Handler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")
	reason, ok := fitsync.ParseReason(event)
	if !ok {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown lifecycle event %q", event))
		return
	}

	rep, accepted, err := h.syncer.Signal(r.Context(), reason)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if !accepted {
		writeJSON(w, http.StatusAccepted, SignalResponse{})
		return
	}
	writeJSON(w, http.StatusOK, SignalResponse{Accepted: true, Report: rep})
}
