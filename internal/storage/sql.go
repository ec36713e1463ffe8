package storage

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_type,
                      device_id,
                      config)
VALUES (?, ?, ?, ?)`

	endSessionSQL = `
UPDATE sessions
SET end_time = ?
WHERE id = ?`

	selectSessionSQL = `
SELECT id,
       start_time,
       end_time,
       device_type,
       device_id,
       config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       end_time,
       device_type,
       device_id,
       config
FROM sessions
ORDER BY start_time, id`

	insertActivitySQL = `
INSERT INTO activity (session_id,
                      timestamp,
                      frequency,
                      mode,
                      strength,
                      detected,
                      label)
VALUES `

	// keyset pagination, the last seen id is the first parameter after the session
	selectActivitySQL = `
SELECT id,
       session_id,
       timestamp,
       frequency,
       mode,
       strength,
       detected,
       label
FROM activity
WHERE session_id = ?
  AND id > ?
  AND timestamp BETWEEN ? AND ?
  AND frequency BETWEEN ? AND ?
ORDER BY id
LIMIT ?`

	selectSummarySQL = `
SELECT frequency,
       COUNT(*),
       MAX(strength),
       MAX(timestamp)
FROM activity
WHERE session_id = ?
  AND detected = 1
GROUP BY frequency
ORDER BY COUNT(*) DESC, frequency
LIMIT ?`
)
