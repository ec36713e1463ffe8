package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

const DefaultBatchSize = 500

// ReaderOption configures an ActivityReader.
type ReaderOption func(*ActivityReader)

// WithTimeRange limits records to timestamps within [start, end].
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(r *ActivityReader) {
		r.startTime = start.UTC()
		r.endTime = end.UTC()
	}
}

// WithFreqRange limits records to frequencies within [minFreq, maxFreq].
func WithFreqRange(minFreq, maxFreq float64) ReaderOption {
	return func(r *ActivityReader) {
		r.minFreq = minFreq
		r.maxFreq = maxFreq
	}
}

// WithBatchSize sets how many rows are fetched per query.
func WithBatchSize(n int) ReaderOption {
	return func(r *ActivityReader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// ActivityReader iterates over stored activity in pages, so no query stays open
// between calls to Next. A reader must only be used from a single goroutine.
type ActivityReader struct {
	db        *sql.DB
	sessionID int64
	session   *Session

	startTime time.Time
	endTime   time.Time
	minFreq   float64
	maxFreq   float64
	batchSize int

	batch   []Activity
	pos     int
	lastID  int64
	done    bool
	current Activity
	err     error
}

func newActivityReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*ActivityReader, error) {
	r := &ActivityReader{
		db:        db,
		sessionID: sessionID,
		endTime:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
		maxFreq:   math.MaxFloat64,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.startTime.After(r.endTime) {
		return nil, fmt.Errorf("start time %s is after end time %s", r.startTime, r.endTime)
	}
	if r.minFreq > r.maxFreq {
		return nil, fmt.Errorf("min frequency %f is greater than max frequency %f", r.minFreq, r.maxFreq)
	}

	session, err := loadSession(ctx, db, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	r.session = session

	return r, nil
}

// Session returns the session being read.
func (r *ActivityReader) Session() *Session {
	return r.session
}

// Next advances to the next record. It returns false at the end of data or on
// error; check Error to tell them apart.
func (r *ActivityReader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}
	if r.pos >= len(r.batch) {
		if r.done {
			return false
		}
		if r.err = r.fetch(ctx); r.err != nil || len(r.batch) == 0 {
			return false
		}
	}

	r.current = r.batch[r.pos]
	r.pos++
	return true
}

func (r *ActivityReader) Current() Activity {
	return r.current
}

func (r *ActivityReader) Error() error {
	return r.err
}

// Close releases the page buffer. The reader cannot be used afterwards.
func (r *ActivityReader) Close() error {
	r.batch = nil
	r.done = true
	return nil
}

func (r *ActivityReader) fetch(ctx context.Context) (err error) {
	rows, err := r.db.QueryContext(ctx, selectActivitySQL,
		r.sessionID, r.lastID, r.startTime, r.endTime, r.minFreq, r.maxFreq, r.batchSize)
	if err != nil {
		return fmt.Errorf("querying activity: %w", err)
	}
	defer closeWithError(rows, &err)

	r.batch = r.batch[:0]
	r.pos = 0

	for rows.Next() {
		var data activityData
		if err = rows.Scan(&data.ID, &data.SessionID, &data.Timestamp, &data.Frequency,
			&data.Mode, &data.Strength, &data.Detected, &data.Label); err != nil {
			return fmt.Errorf("scanning activity: %w", err)
		}

		a, err := data.toActivity()
		if err != nil {
			return fmt.Errorf("activity %d: %w", data.ID, err)
		}
		r.batch = append(r.batch, a)
		r.lastID = data.ID
	}
	if err = rows.Err(); err != nil {
		return err
	}

	r.done = len(r.batch) < r.batchSize
	return nil
}
