package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/radio-scanner/internal/demod"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// toConfigData stores strings and bytes as is and anything else as JSON.
func toConfigData(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	default:
		p, err := json.Marshal(c)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toActivityData(sessionID int64, a Activity) *activityData {
	return &activityData{
		SessionID: sessionID,
		Timestamp: a.Time.UTC(),
		Frequency: a.Frequency,
		Mode:      a.Mode.String(),
		Strength:  a.Strength,
		Detected:  a.Detected,
		Label:     sql.NullString{String: a.Label, Valid: a.Label != ""},
	}
}

func (d *activityData) toActivity() (Activity, error) {
	mode, err := demod.ParseMode(d.Mode)
	if err != nil {
		return Activity{}, err
	}
	return Activity{
		ID:        d.ID,
		SessionID: d.SessionID,
		Time:      d.Timestamp,
		Frequency: d.Frequency,
		Mode:      mode,
		Strength:  d.Strength,
		Detected:  d.Detected,
		Label:     d.Label.String,
	}, nil
}

func (d *sessionData) toSession() *Session {
	s := Session{
		ID:         d.ID,
		StartTime:  d.StartTime,
		DeviceType: d.DeviceType,
		DeviceID:   d.DeviceID,
	}
	if d.EndTime.Valid {
		s.EndTime = &d.EndTime.Time
	}
	if d.Config.Valid {
		s.Config = &d.Config.String
	}
	return &s
}

// sqliteTime scans datetimes returned without a declared column type, such as
// the result of MAX(timestamp), which the driver hands back as text.
type sqliteTime struct {
	Time time.Time
}

func (t *sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported datetime value %T", src)
	}
}

func (t *sqliteTime) parse(s string) error {
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("unrecognised datetime %q", s)
}
