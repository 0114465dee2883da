package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/fitsync/internal/identity"
	"github.com/hyperengineering/fitsync/internal/query"
	"github.com/hyperengineering/fitsync/internal/store"
	fitsync "github.com/hyperengineering/fitsync/internal/sync"
	"github.com/hyperengineering/fitsync/internal/types"
)

// Syncer runs sync cycles on request. Implemented by sync.Orchestrator.
type Syncer interface {
	SyncCurrent(ctx context.Context) (*fitsync.Report, error)
	Signal(ctx context.Context, reason fitsync.Reason) (*fitsync.Report, bool, error)
	Status() fitsync.Status
}

// Handler implements the API handlers
type Handler struct {
	store   *store.SQLiteStore
	query   *query.Service
	syncer  Syncer
	ident   identity.Provider
	token   string
	version string
}

// NewHandler creates a Handler serving the local database.
func NewHandler(st *store.SQLiteStore, q *query.Service, s Syncer, ident identity.Provider, token, version string) *Handler {
	return &Handler{
		store:   st,
		query:   q,
		syncer:  s,
		ident:   ident,
		token:   token,
		version: version,
	}
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	Pending     int        `json:"pending"`
	SignedIn    bool       `json:"signed_in"`
	SyncRunning bool       `json:"sync_running"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.store.PendingCounts(ctx)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	resp := HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		SyncRunning: h.syncer.Status().Running,
	}
	for _, n := range counts {
		resp.Pending += n
	}

	if id, err := h.ident.Current(ctx); err == nil {
		resp.SignedIn = true
		if resp.LastSyncAt, err = h.store.LastSyncAt(ctx, id.UserID); err != nil {
			MapStoreError(w, r, err)
			return
		}
	} else if !errors.Is(err, identity.ErrNotAuthenticated) {
		slog.Error("identity lookup failed", "component", "api", "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListWorkouts handles GET /api/v1/workouts
func (h *Handler) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.query.WorkoutPage(r.Context(), MustUserIDFromContext(r.Context()), req)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreateWorkout handles POST /api/v1/workouts. The workout always belongs to
// the signed-in user whatever the body says.
func (h *Handler) CreateWorkout(w http.ResponseWriter, r *http.Request) {
	var wk types.Workout
	if !decodeBody(w, r, &wk) {
		return
	}
	wk.UserID = MustUserIDFromContext(r.Context())
	wk.SyncMeta = types.SyncMeta{ID: wk.ID}

	if _, err := h.store.Workouts.Create(r.Context(), &wk); err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &wk)
}

// UpdateWorkout handles PATCH /api/v1/workouts/{id}
func (h *Handler) UpdateWorkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !h.ownsWorkout(w, r, id) {
		return
	}

	var patch types.WorkoutPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if err := h.store.Workouts.Update(ctx, id, patch); err != nil {
		MapStoreError(w, r, err)
		return
	}

	wk, err := h.store.Workouts.Get(ctx, id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wk)
}

// DeleteWorkout handles DELETE /api/v1/workouts/{id}. Exercises go with it.
func (h *Handler) DeleteWorkout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ownsWorkout(w, r, id) {
		return
	}
	res, err := h.store.Workouts.Delete(r.Context(), id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ownsWorkout(w http.ResponseWriter, r *http.Request, id string) bool {
	wk, err := h.store.Workouts.Get(r.Context(), id)
	if err != nil {
		MapStoreError(w, r, err)
		return false
	}
	if wk.UserID != MustUserIDFromContext(r.Context()) {
		WriteProblem(w, r, http.StatusForbidden, "Workout belongs to another user")
		return false
	}
	return true
}

// Calendar handles GET /api/v1/calendar?month=YYYY-MM. The current month is
// the default.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	month := time.Now().UTC()
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := time.Parse("2006-01", m)
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("month must be YYYY-MM, got %q", m))
			return
		}
		month = parsed
	}

	days, err := h.query.Calendar(r.Context(), MustUserIDFromContext(r.Context()), month)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month": month.Format("2006-01"),
		"days":  days,
	})
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.Stats(r.Context(), MustUserIDFromContext(r.Context()))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Feed handles GET /api/v1/feed?group_id=&user_id=&cursor=&limit=
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	page, err := h.query.FeedPage(r.Context(), store.FeedFilter{
		GroupID: q.Get("group_id"),
		UserID:  q.Get("user_id"),
	}, req)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

// AddReaction handles POST /api/v1/feed/{id}/reactions
func (h *Handler) AddReaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := chi.URLParam(r, "id")

	var req reactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.store.FeedPosts.Get(ctx, postID); err != nil {
		MapStoreError(w, r, err)
		return
	}

	reaction, err := h.store.AddReaction(ctx, postID, MustUserIDFromContext(ctx), req.Reaction)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reaction)
}

// RemoveReaction handles DELETE /api/v1/feed/{id}/reactions/{reaction}
func (h *Handler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.store.RemoveReaction(ctx, chi.URLParam(r, "id"), MustUserIDFromContext(ctx), chi.URLParam(r, "reaction"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteGroup handles DELETE /api/v1/groups/{id}. Only the owner may delete;
// members and invites are tombstoned with the group.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	g, err := h.store.Groups.Get(ctx, id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if g.OwnerID != MustUserIDFromContext(ctx) {
		WriteProblem(w, r, http.StatusForbidden, "Only the group owner can delete it")
		return
	}

	res, err := h.store.Groups.Delete(ctx, id)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pageRequest(r *http.Request) (store.PageRequest, error) {
	q := r.URL.Query()
	req := store.PageRequest{Cursor: q.Get("cursor")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, fmt.Errorf("limit must be a positive integer, got %q", v)
		}
		req.Size = n
	}
	return req, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "component", "api", "error", err)
	}
}
