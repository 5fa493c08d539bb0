package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid       TEXT NOT NULL UNIQUE,
    start_time DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    device     TEXT NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS results (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions(id),
    sweep      INTEGER NOT NULL,
    segment    INTEGER NOT NULL,
    timestamp  DATETIME NOT NULL,
    start_hz   REAL NOT NULL,
    end_hz     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS samples (
    result_id  INTEGER NOT NULL REFERENCES results(id),
    frequency  REAL NOT NULL,
    power      REAL NOT NULL
);
`

// Indexes are created on Close, after the bulk inserts, so they do not
// slow the write path during a capture session.
const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_results_session ON results(session_id);
CREATE INDEX IF NOT EXISTS idx_results_timestamp ON results(timestamp);
CREATE INDEX IF NOT EXISTS idx_samples_result ON samples(result_id);
CREATE INDEX IF NOT EXISTS idx_samples_frequency ON samples(frequency);
`

const (
	insertSessionSQL = `
INSERT INTO sessions (uuid,
                      start_time,
                      device,
                      config)
VALUES (?, CURRENT_TIMESTAMP, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    uuid,
    start_time,
    device,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    uuid,
    start_time,
    device,
    config
FROM sessions
ORDER BY id`

	insertResultSQL = `
INSERT INTO results (session_id,
                     sweep,
                     segment,
                     timestamp,
                     start_hz,
                     end_hz)
VALUES (?, ?, ?, ?, ?, ?)`

	insertSamplesSQL = `
INSERT INTO samples (result_id,
                     frequency,
                     power)
VALUES `

	// Filter clauses are appended by the reader before ORDER BY.
	selectResultsSQL = `
SELECT
    r.id,
    r.sweep,
    r.segment,
    r.timestamp,
    r.start_hz,
    r.end_hz,
    s.frequency,
    s.power
FROM results r
JOIN samples s ON s.result_id = r.id
WHERE
    r.session_id = ?`

	selectResultsOrderSQL = `
ORDER BY r.id, s.frequency`
)
