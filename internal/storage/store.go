// Package storage keeps scanning sessions and the activity they found in SQLite.
package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/demod"
)

// Session is one run of the scanner against one device.
type Session struct {
	ID         int64      `json:"id"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	DeviceType string     `json:"deviceType"`
	DeviceID   string     `json:"deviceID"`
	Config     *string    `json:"config,omitempty"`
}

// Activity is a stored detect or lose record.
type Activity struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"sessionID"`
	Time      time.Time  `json:"time"`
	Frequency float64    `json:"frequency"`
	Mode      demod.Mode `json:"mode"`
	Strength  float64    `json:"strength"`
	Detected  bool       `json:"detected"`
	Label     string     `json:"label,omitempty"`
}

// FrequencySummary aggregates detections of one frequency within a session.
type FrequencySummary struct {
	Frequency  float64   `json:"frequency"`
	Hits       int       `json:"hits"`
	MaxLevel   float64   `json:"maxLevel"`
	LastActive time.Time `json:"lastActive"`
}

// Store manages scanner sessions and activity records.
// All operations that write to the database are atomic.
type Store interface {
	// CreateSession starts a new session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - deviceType: Driver name (e.g., "rtl", "hackrf")
	//   - deviceID: Device serial or index
	//   - config: Optional configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, deviceType, deviceID string, config any) (sessionID int64, err error)

	// EndSession records the end time of a session.
	EndSession(ctx context.Context, sessionID int64, end time.Time) error

	// Session returns the session with the given ID.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns every session ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreActivity saves records for a session in a single transaction.
	StoreActivity(ctx context.Context, sessionID int64, records ...Activity) error

	// ReadActivity returns an iterator over the activity of a session.
	// The reader must be closed after use.
	ReadActivity(ctx context.Context, sessionID int64, opts ...ReaderOption) (*ActivityReader, error)

	// Summary returns the most active frequencies of a session, busiest first.
	Summary(ctx context.Context, sessionID int64, limit int) ([]FrequencySummary, error)

	// Close releases all database connections. It is safe to call Close multiple times.
	Close() error
}
