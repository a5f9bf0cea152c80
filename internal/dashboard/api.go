package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mschirtzinger/planner/internal/allocate"
	"github.com/mschirtzinger/planner/internal/conflict"
	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/reconcile"
	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// DayLayout is the format of the day query parameter.
const DayLayout = "2006-01-02"

// Services are the components behind the API routes.
type Services struct {
	Focus      *focus.Calculator
	Allocator  *allocate.Allocator
	Reconciler reconcile.Reconciler

	// Now returns the current time (default time.Now)
	Now func() time.Time
}

// API exposes the query and command surface over HTTP.
type API struct {
	svc    Services
	logger *slog.Logger
}

// NewAPI creates the API.
func NewAPI(svc Services, logger *slog.Logger) *API {
	if svc.Now == nil {
		svc.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{svc: svc, logger: logger.With("component", "api")}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/{id}/gaps", a.handleGaps)
	mux.HandleFunc("GET /api/users/{id}/focus-slots", a.handleFocusSlots)
	mux.HandleFunc("POST /api/users/{id}/reconcile", a.handleReconcile)
	mux.HandleFunc("POST /api/users/{id}/auto-schedule", a.handleAutoSchedule)
	mux.HandleFunc("PUT /api/tasks/{id}", a.handleUpdateTask)
	mux.HandleFunc("POST /api/tasks/{id}/allocate", a.handleAllocate)
	mux.HandleFunc("POST /api/events/{id}/reshuffle", a.handleReshuffle)
}

// SlotsResponse is returned by the gaps and focus-slots queries.
type SlotsResponse struct {
	UserID string        `json:"user_id"`
	Day    string        `json:"day"`
	Slots  []schema.Slot `json:"slots"`
}

// SlotRequest is the optional body of the allocate command. Both bounds or
// neither must be given.
type SlotRequest struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// CursorRequest is the optional body of the auto-schedule command.
type CursorRequest struct {
	Cursor *time.Time `json:"cursor,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
	Conflicts *conflict.Report `json:"conflicts,omitempty"`
}

func (a *API) handleGaps(w http.ResponseWriter, r *http.Request) {
	a.serveSlots(w, r, a.svc.Focus.FreeGaps)
}

func (a *API) handleFocusSlots(w http.ResponseWriter, r *http.Request) {
	a.serveSlots(w, r, a.svc.Focus.OptimizedFocusSlots)
}

func (a *API) serveSlots(w http.ResponseWriter, r *http.Request,
	query func(ctx context.Context, userID string, day time.Time) ([]schema.Slot, error)) {
	userID := r.PathValue("id")
	day, err := a.day(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	slots, err := query(r.Context(), userID, day)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []schema.Slot{}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{UserID: userID, Day: day.Format(DayLayout), Slots: slots})
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Reconciler.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAutoSchedule(w http.ResponseWriter, r *http.Request) {
	var req CursorRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	placements, err := a.svc.Allocator.AutoSchedule(r.Context(), r.PathValue("id"), req.Cursor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if placements == nil {
		placements = []*allocate.Placement{}
	}
	writeJSON(w, http.StatusOK, placements)
}

func (a *API) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req SlotRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	p, err := a.svc.Allocator.Allocate(r.Context(), r.PathValue("id"), req.Start, req.End)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var upd allocate.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	t, err := a.svc.Allocator.UpdateTask(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleReshuffle(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Allocator.Reshuffle(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// day reads the day query parameter in the calculator's timezone,
// defaulting to today.
func (a *API) day(r *http.Request) (time.Time, error) {
	loc := a.svc.Focus.Location()
	raw := r.URL.Query().Get("day")
	if raw == "" {
		return a.svc.Now().In(loc), nil
	}
	day, err := time.ParseInLocation(DayLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: want YYYY-MM-DD", raw)
	}
	return day, nil
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	if _, ok := reconcile.AsConflict(err); ok {
		return http.StatusConflict
	}
	switch {
	case focus.IsOverloaded(err):
		return http.StatusUnprocessableEntity
	case reconcile.IsAccountNotLinked(err):
		return http.StatusPreconditionFailed
	case remote.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case remote.IsRejected(err):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, allocate.ErrSlotTaken),
		errors.Is(err, allocate.ErrTaskDone),
		errors.Is(err, allocate.ErrTaskPlaced),
		errors.Is(err, allocate.ErrTaskLate):
		return http.StatusConflict
	case errors.Is(err, allocate.ErrInvalidSlot),
		errors.Is(err, allocate.ErrInvalidTask):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if report, ok := reconcile.AsConflict(err); ok {
		resp.Conflicts = report
	}
	if remote.IsUnavailable(err) || remote.IsRejected(err) {
		resp.Code = remote.Code(err)
		resp.Retryable = remote.IsRetryable(err)
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		a.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

// decodeOptional decodes a JSON body into v; an empty body leaves v zero.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid request body: %w", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
