package storage

import (
	"database/sql"
	"time"
)

type sessionData struct {
	ID         int64
	StartTime  time.Time
	EndTime    sql.NullTime
	DeviceType string
	DeviceID   string
	Config     sql.NullString
}

type activityData struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	Frequency float64
	Mode      string
	Strength  float64
	Detected  bool
	Label     sql.NullString
}
