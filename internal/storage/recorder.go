package storage

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/event"
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultFlushSize     = 50
)

func WithRecorderLogger(logger *slog.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithFlushInterval(d time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// Recorder writes scanner activity published on the bus to a session.
type Recorder struct {
	store     Store
	sessionID int64
	logger    *slog.Logger

	flushInterval time.Duration
	pending       []Activity
}

func NewRecorder(store Store, sessionID int64, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		store:         store,
		sessionID:     sessionID,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		flushInterval: DefaultFlushInterval,
	}
	for _, option := range options {
		option(&r)
	}
	return &r
}

// Run records activity read from events until ctx is done or events is closed,
// then flushes what is left. Subscribe to event.KindActivity to feed it.
func (r *Recorder) Run(ctx context.Context, events <-chan event.Event) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.flush(flushCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush(ctx)
		case e, ok := <-events:
			if !ok {
				return
			}
			a, ok := e.(event.Activity)
			if !ok {
				continue
			}
			r.pending = append(r.pending, Activity{
				Time:      a.Time,
				Frequency: a.Frequency,
				Mode:      a.Mode,
				Strength:  a.Strength,
				Detected:  a.Detected,
				Label:     a.Label,
			})
			if len(r.pending) >= DefaultFlushSize {
				r.flush(ctx)
			}
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	if len(r.pending) == 0 {
		return
	}
	if err := r.store.StoreActivity(ctx, r.sessionID, r.pending...); err != nil {
		// keep the records for the next attempt
		r.logger.Error("failed to store activity", slog.Int("records", len(r.pending)), slog.Any("error", err))
		if len(r.pending) > 10*DefaultFlushSize {
			r.pending = r.pending[len(r.pending)-DefaultFlushSize:]
		}
		return
	}
	r.logger.Debug("stored activity", slog.Int("records", len(r.pending)))
	r.pending = r.pending[:0]
}
