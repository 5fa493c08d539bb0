package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sdrkit/sweep"
)

// ReaderOption configures a ResultsReader with filtering criteria.
type ReaderOption func(*ResultsReader)

// WithMinFreq excludes samples below hz.
func WithMinFreq(hz float64) ReaderOption {
	return func(rr *ResultsReader) {
		rr.minFreq = &hz
	}
}

// WithMaxFreq excludes samples above hz.
func WithMaxFreq(hz float64) ReaderOption {
	return func(rr *ResultsReader) {
		rr.maxFreq = &hz
	}
}

// WithFreqRange sets both frequency filters at once.
func WithFreqRange(minHz, maxHz float64) ReaderOption {
	return func(rr *ResultsReader) {
		rr.minFreq = &minHz
		rr.maxFreq = &maxHz
	}
}

// WithStartTime excludes results captured before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(rr *ResultsReader) {
		rr.startTime = &t
	}
}

// WithEndTime excludes results captured after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(rr *ResultsReader) {
		rr.endTime = &t
	}
}

// WithTimeRange sets both time filters at once.
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(rr *ResultsReader) {
		rr.startTime = &start
		rr.endTime = &end
	}
}

// ResultsReader iterates over the stored results of one session in
// insertion order, reassembling each result's samples from the joined
// rows. Frequency filters can carve samples out of a result; a result
// whose samples are all filtered away is skipped entirely.
type ResultsReader struct {
	rows *sql.Rows

	startTime *time.Time
	endTime   *time.Time
	minFreq   *float64
	maxFreq   *float64

	current *sweep.Result
	next    resultRow // first row of the next result
	hasNext bool
	err     error
}

// resultRow is one joined row: result columns plus a single sample.
type resultRow struct {
	id        int64
	sweep     uint64
	segment   int
	timestamp time.Time
	startHz   float64
	endHz     float64
	frequency float64
	power     float64
}

// Results returns a reader over the results of sessionID, oldest first.
// The caller must Close the reader when done.
func (s *Store) Results(ctx context.Context, sessionID int64, opts ...ReaderOption) (*ResultsReader, error) {
	if sessionID <= 0 {
		return nil, fmt.Errorf("session ID required")
	}

	rr := &ResultsReader{}
	for _, opt := range opts {
		opt(rr)
	}

	if rr.startTime != nil && rr.endTime != nil && rr.startTime.After(*rr.endTime) {
		return nil, fmt.Errorf("start time %s is after end time %s", rr.startTime, rr.endTime)
	}
	if rr.minFreq != nil && rr.maxFreq != nil && *rr.minFreq > *rr.maxFreq {
		return nil, fmt.Errorf("min frequency %f is greater than max frequency %f", *rr.minFreq, *rr.maxFreq)
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(selectResultsSQL)
	args := []any{sessionID}

	if rr.startTime != nil {
		sb.WriteString(" AND r.timestamp >= ?")
		args = append(args, rr.startTime.UTC())
	}
	if rr.endTime != nil {
		sb.WriteString(" AND r.timestamp <= ?")
		args = append(args, rr.endTime.UTC())
	}
	if rr.minFreq != nil {
		sb.WriteString(" AND s.frequency >= ?")
		args = append(args, *rr.minFreq)
	}
	if rr.maxFreq != nil {
		sb.WriteString(" AND s.frequency <= ?")
		args = append(args, *rr.maxFreq)
	}
	sb.WriteString(selectResultsOrderSQL)

	if rr.rows, err = db.QueryContext(ctx, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	return rr, nil
}

func (rr *ResultsReader) scanRow(row *resultRow) error {
	if err := rr.rows.Scan(&row.id, &row.sweep, &row.segment, &row.timestamp,
		&row.startHz, &row.endHz, &row.frequency, &row.power); err != nil {
		return fmt.Errorf("scanning result row: %w", err)
	}
	return nil
}

func resultFromRow(row *resultRow) *sweep.Result {
	return &sweep.Result{
		Sweep:     row.sweep,
		Segment:   row.segment,
		Timestamp: row.timestamp,
		StartHz:   row.startHz,
		EndHz:     row.endHz,
		Samples:   []sweep.Sample{{FrequencyHz: row.frequency, PowerDB: row.power}},
	}
}

// Next advances to the next result, returning false when the iteration is
// complete or an error occurred. Check Error after a false return.
func (rr *ResultsReader) Next(ctx context.Context) bool {
	if rr.err != nil || rr.rows == nil {
		return false
	}

	var cur *sweep.Result
	var curID int64
	if rr.hasNext {
		cur, curID = resultFromRow(&rr.next), rr.next.id
		rr.hasNext = false
	}

	for {
		select {
		case <-ctx.Done():
			rr.err = ctx.Err()
			return false
		default:
		}

		if !rr.rows.Next() {
			if err := rr.rows.Err(); err != nil {
				rr.err = fmt.Errorf("iterating results: %w", err)
				return false
			}
			rr.current = cur
			return cur != nil
		}

		var row resultRow
		if rr.err = rr.scanRow(&row); rr.err != nil {
			return false
		}

		switch {
		case cur == nil:
			cur, curID = resultFromRow(&row), row.id

		case row.id == curID:
			cur.Samples = append(cur.Samples, sweep.Sample{FrequencyHz: row.frequency, PowerDB: row.power})

		default:
			// First row of the following result; stash it for the next call.
			rr.next, rr.hasNext = row, true
			rr.current = cur
			return true
		}
	}
}

// Current returns the result at the iterator position. It is only valid
// after Next has returned true.
func (rr *ResultsReader) Current() *sweep.Result {
	return rr.current
}

// Error returns the first error encountered during iteration.
func (rr *ResultsReader) Error() error {
	return rr.err
}

// Close releases the reader's resources. After Close the reader must not
// be used.
func (rr *ResultsReader) Close() error {
	if rr.rows != nil {
		err := rr.rows.Close()
		rr.current = nil
		rr.hasNext = false
		rr.rows = nil
		return err
	}
	return nil
}
