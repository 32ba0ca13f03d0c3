package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tartampluch/go-ketchup/internal/app"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"github.com/tartampluch/go-ketchup/internal/store"
)

// Service is the part of app.Service the API exposes.
type Service interface {
	Contacts(ctx context.Context) ([]engine.Contact, error)
	Contact(ctx context.Context, id string) (engine.Contact, error)
	UpdateContact(ctx context.Context, id string, p app.ContactPatch) (engine.Contact, error)
	Queue(ctx context.Context, query string) ([]engine.Ranked, error)
	StartSession(ctx context.Context, query string) (app.SessionView, error)
	Defer(ctx context.Context) (app.SessionView, error)
	Pick(ctx context.Context) (app.SessionView, error)
	Resolve(ctx context.Context, action string) (app.SessionView, error)
	CancelPick(ctx context.Context) (app.SessionView, error)
	Snapshot() app.SessionView
}

// API serves the JSON endpoints and the calendar feed.
type API struct {
	svc      Service
	calendar *CalendarServer
	router   chi.Router
	started  time.Time
}

// NewAPI returns the handler tree for svc and calendar.
func NewAPI(svc Service, calendar *CalendarServer) *API {
	a := &API{svc: svc, calendar: calendar, started: time.Now()}
	a.routes()
	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	// HEAD falls through to the GET handlers, everything else unrouted is a 405.
	r.Use(middleware.GetHead)

	r.Get(config.RouteCalendar, a.calendar.ServeHTTP)

	r.Route(config.RouteAPI, func(r chi.Router) {
		r.Get(config.RouteHealth, a.handleHealth)
		r.Get(config.RouteContacts, a.handleContacts)
		r.Get(config.RouteContact, a.handleContact)
		r.Patch(config.RouteContact, a.handleUpdateContact)
		r.Get(config.RouteQueue, a.handleQueue)

		r.Get(config.RouteSession, a.handleSnapshot)
		r.Post(config.RouteSessionStart, a.handleStart)
		r.Post(config.RouteSessionDefer, a.transition(a.svc.Defer))
		r.Post(config.RouteSessionPick, a.transition(a.svc.Pick))
		r.Post(config.RouteSessionCancel, a.transition(a.svc.CancelPick))
		r.Post(config.RouteSessionResolve, a.handleResolve)
	})

	a.router = r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  config.HTTPStatusOK,
		"version": config.Version,
		"uptime":  time.Since(a.started).Seconds(),
	})
}

func (a *API) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.svc.Contacts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (a *API) handleContact(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.Contact(r.Context(), chi.URLParam(r, config.ParamID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var patch app.ContactPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(config.ErrInvalidJSON))
		return
	}

	c, err := a.svc.UpdateContact(r.Context(), chi.URLParam(r, config.ParamID), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	ranked, err := a.svc.Queue(r.Context(), r.URL.Query().Get(config.ParamQuery))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Snapshot())
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	// An empty body starts an unfiltered session.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(config.ErrInvalidJSON))
			return
		}
	}

	view, err := a.svc.StartSession(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(config.ErrInvalidJSON))
		return
	}

	view, err := a.svc.Resolve(r.Context(), req.Action)
	if err != nil {
		writeSessionError(w, view, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) transition(op func(context.Context) (app.SessionView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := op(r.Context())
		if err != nil {
			writeSessionError(w, view, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// writeSessionError reports a rejected session operation along with the
// unchanged session so that clients can resync.
func writeSessionError(w http.ResponseWriter, view app.SessionView, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"error":   err.Error(),
		"session": view,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, app.ErrUnknownAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(config.HTTPMsgInternalErr,
			config.LogKeyComponent, config.CompAPI,
			config.LogKeyError, err,
		)
		writeJSON(w, status, errorBody(config.HTTPMsgInternalErr))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompAPI,
			config.LogKeyError, err,
		)
	}
}
