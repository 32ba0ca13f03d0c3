package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/importer"
)

// Publisher receives each freshly rendered calendar with its event count.
type Publisher interface {
	Update(data []byte, events int)
}

// Worker refreshes the address book and republishes the calendar feed on a
// fixed interval, and on demand through Trigger.
type Worker struct {
	Service   *Service
	Publisher Publisher
	// Source is re-imported on each refresh when it names a path or a URL.
	Source   importer.Source
	Interval time.Duration

	trigger chan struct{}
}

// NewWorker returns a Worker. A non-positive interval falls back to the default.
func NewWorker(svc *Service, pub Publisher, src importer.Source, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = config.DefaultRefreshMin * time.Minute
	}
	return &Worker{
		Service:   svc,
		Publisher: pub,
		Source:    src,
		Interval:  interval,
		trigger:   make(chan struct{}, config.ChannelBufferSize),
	}
}

// Trigger asks for a refresh as soon as possible. Calls made while one is
// already pending are coalesced.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes once, then on every tick until ctx is cancelled.
// Refresh failures are logged and do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	log := slog.With(config.LogKeyComponent, config.CompWorker)

	w.refresh(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	log.Info(config.MsgWorkerStart, config.LogKeyInterval, w.Interval)

	for {
		select {
		case <-ctx.Done():
			log.Info(config.MsgWorkerStop)
			return nil

		case <-w.trigger:
			log.Debug(config.MsgRefreshReq)
			w.refresh(ctx)

		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *Worker) refresh(ctx context.Context) {
	log := slog.With(config.LogKeyComponent, config.CompWorker)

	if w.Source.Path != "" || w.Source.URL != "" {
		if _, err := w.Service.Import(ctx, w.Source); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Keep serving the last known contacts.
			log.Error(config.MsgRefreshFailed, config.LogKeyError, err)
		}
	}

	data, events, err := w.Service.RenderFeed(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error(config.MsgRefreshFailed, config.LogKeyError, err)
		}
		return
	}
	w.Publisher.Update(data, events)
}
