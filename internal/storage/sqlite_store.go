package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// activity rows per INSERT, well under SQLite's bound parameter limit
const insertBatchSize = 100

var _ Store = (*SqliteStore)(nil)

// SqliteStore keeps one write connection, which owns the schema, and one read-only
// connection for queries.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store backed by the database file at dbPath. Connections
// are opened lazily.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, deviceType, deviceID string, config any) (sessionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	result, err := db.ExecContext(ctx, insertSessionSQL, time.Now().UTC(), deviceType, deviceID, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) EndSession(ctx context.Context, sessionID int64, end time.Time) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, endSessionSQL, end.UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, sql.ErrNoRows)
	}
	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}
	return loadSession(ctx, db, id)
}

func loadSession(ctx context.Context, db *sql.DB, id int64) (*Session, error) {
	var data sessionData
	err := db.QueryRowContext(ctx, selectSessionSQL, id).
		Scan(&data.ID, &data.StartTime, &data.EndTime, &data.DeviceType, &data.DeviceID, &data.Config)
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return data.toSession(), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.EndTime, &data.DeviceType, &data.DeviceID, &data.Config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, data.toSession())
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreActivity(ctx context.Context, sessionID int64, records ...Activity) (err error) {
	if len(records) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for start := 0; start < len(records); start += insertBatchSize {
		batch := records[start:min(start+insertBatchSize, len(records))]

		values := make([]any, 0, len(batch)*7)
		var sb strings.Builder
		sb.WriteString(insertActivitySQL)

		for i, r := range batch {
			data := toActivityData(sessionID, r)
			values = append(values,
				data.SessionID,
				data.Timestamp,
				data.Frequency,
				data.Mode,
				data.Strength,
				data.Detected,
				data.Label,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting activity: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReadActivity returns a reader over the activity of a session in insertion order.
// It accepts WithTimeRange, WithFreqRange and WithBatchSize.
func (s *SqliteStore) ReadActivity(ctx context.Context, sessionID int64, opts ...ReaderOption) (*ActivityReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newActivityReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Summary(ctx context.Context, sessionID int64, limit int) (summary []FrequencySummary, err error) {
	if limit <= 0 {
		limit = 20
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSummarySQL, sessionID, limit)
	if err != nil {
		err = fmt.Errorf("querying summary: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var fs FrequencySummary
		var last sqliteTime
		if err = rows.Scan(&fs.Frequency, &fs.Hits, &fs.MaxLevel, &last); err != nil {
			err = fmt.Errorf("scanning summary: %w", err)
			return
		}
		fs.LastActive = last.Time
		summary = append(summary, fs)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
