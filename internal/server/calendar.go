package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
)

// feedSnapshot is one published rendering of the reminder calendar.
// It is immutable once stored, so readers never need a lock.
type feedSnapshot struct {
	ics      []byte
	etag     string
	rendered time.Time
	events   int
}

// CalendarServer serves the latest reminder feed to calendar clients.
//
// The refresh worker publishes through Update while clients poll through
// ServeHTTP. Method routing (GET and HEAD only) is the router's job, see
// API.routes.
type CalendarServer struct {
	clock   engine.Clock
	current atomic.Pointer[feedSnapshot]
}

// NewCalendarServer returns an empty CalendarServer that stamps feeds with
// clock. A nil clock means wall time. It answers 503 until the first Update.
func NewCalendarServer(clock engine.Clock) *CalendarServer {
	if clock == nil {
		clock = engine.RealClock{}
	}
	return &CalendarServer{clock: clock}
}

// Update publishes a freshly rendered feed holding events reminders.
// The ETag is derived from the content, so an unchanged feed keeps
// validating against client caches even though Last-Modified moves.
func (s *CalendarServer) Update(ics []byte, events int) {
	sum := sha256.Sum256(ics)
	snap := &feedSnapshot{
		ics:      ics,
		etag:     fmt.Sprintf(config.FormatETag, hex.EncodeToString(sum[:])),
		rendered: s.clock.Now().UTC(),
		events:   events,
	}
	s.current.Store(snap)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyEvents, snap.events,
		config.LogKeySizeBytes, len(snap.ics),
		config.LogKeyETag, snap.etag,
	)
}

// ServeHTTP writes the current feed. Conditional requests
// (If-None-Match, If-Modified-Since) and HEAD are answered by
// http.ServeContent from the snapshot's ETag and render time.
func (s *CalendarServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Lock-free read; a concurrent Update only swaps the pointer.
	snap := s.current.Load()
	if snap == nil {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgInitializing, http.StatusServiceUnavailable)
		return
	}

	// ServeContent keeps headers already set and sends the ETag with a 304.
	h := w.Header()
	h.Set(config.HeaderContentType, config.MimeTextCalendar)
	h.Set(config.HeaderXContentType, config.MimeNoSniff)
	h.Set(config.HeaderCacheControl, config.CacheControlPrivate)
	h.Set(config.HeaderETag, snap.etag)

	http.ServeContent(w, r, config.RouteCalendar, snap.rendered, bytes.NewReader(snap.ics))
}
