package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/violatingcp/pixeltrack-standalone/internal/processor"
	"github.com/violatingcp/pixeltrack-standalone/internal/vertexing"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the event processor.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Backend      string
	Streams      int
	InnerThreads int
	Params       vertexing.Params
	Seed         uint64
	Version      string

	// Totals, filled by FinishRun.
	Events   int
	Tracks   int
	Vertices int
	Wall     time.Duration
	Error    string
}

// EventRecord is the stored summary of one clustered event.
type EventRecord struct {
	RunID        string
	EventID      int
	Stream       int
	Tracks       int
	Vertices     int
	NoiseTracks  int
	TrueVertices int
	Duration     time.Duration
}

// VertexRecord is one stored vertex of an event.
type VertexRecord struct {
	RunID    string
	EventID  int
	VertexID int
	Z        float64
	EZ2      float64
	Chi2     float64
	NDof     int
	Tracks   int
}

// CreateRun inserts r with a fresh id and start time, both written back to r.
func (db *DB) CreateRun(r *Run) error {
	r.ID = uuid.New().String()
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	p := r.Params
	_, err := db.Exec(`INSERT INTO runs (
			run_id, started_unix_nanos, backend, streams, inner_threads,
			min_neighbors, eps, errmax, chi2max, bin_width, order_by_z, seed, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.Backend, r.Streams, r.InnerThreads,
		p.MinNeighbors, float64(p.Eps), float64(p.ErrMax), float64(p.Chi2Max), float64(p.BinWidth),
		p.OrderByZ, int64(r.Seed), r.Version,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the totals of a run. runErr may be nil.
func (db *DB) FinishRun(runID string, s processor.Summary, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := db.Exec(`UPDATE runs SET
			finished_unix_nanos = ?, events = ?, tracks = ?, vertices = ?, wall_seconds = ?, error = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), s.Events, s.Tracks, s.Vertices, s.Wall.Seconds(), errText, runID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordEvent stores the summary and vertices of one event in a single
// transaction.
func (db *DB) RecordEvent(runID string, r *processor.EventResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	noise := 0
	for i := range r.Result.Assignment {
		if r.Result.IsNoise(i) {
			noise++
		}
	}
	_, err = tx.Exec(`INSERT INTO run_events (
			run_id, event_id, stream, tracks, vertices, noise_tracks, true_vertices, duration_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Event.ID, r.Stream, len(r.Event.Tracks), r.Result.Count, noise,
		len(r.Event.TrueZ), r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert event %d: %w", r.Event.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO event_vertices (
			run_id, event_id, vertex_id, z, ez2, chi2, ndof, tracks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vertex insert: %w", err)
	}
	defer stmt.Close()
	for _, v := range r.Vertices {
		if _, err := stmt.Exec(runID, r.Event.ID, v.ID, v.Z, v.EZ2, v.Chi2, v.NDof, len(v.Tracks)); err != nil {
			return fmt.Errorf("insert vertex %d of event %d: %w", v.ID, r.Event.ID, err)
		}
	}
	return tx.Commit()
}

// Recorder returns a sink that stores every event under runID.
func (db *DB) Recorder(runID string) processor.Sink {
	return processor.SinkFunc(func(r *processor.EventResult) error {
		return db.RecordEvent(runID, r)
	})
}

// Run returns the run with the given id.
func (db *DB) Run(runID string) (*Run, error) {
	row := db.QueryRow(runColumns+` WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return r, err
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(runColumns+` ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunEvents returns the events of a run ordered by event id.
func (db *DB) RunEvents(runID string) ([]EventRecord, error) {
	rows, err := db.Query(`SELECT run_id, event_id, stream, tracks, vertices, noise_tracks, true_vertices, duration_nanos
		FROM run_events WHERE run_id = ? ORDER BY event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			e     EventRecord
			nanos int64
		)
		if err := rows.Scan(&e.RunID, &e.EventID, &e.Stream, &e.Tracks, &e.Vertices,
			&e.NoiseTracks, &e.TrueVertices, &nanos); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Duration = time.Duration(nanos)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventVertices returns the vertices of one event ordered by vertex id.
func (db *DB) EventVertices(runID string, eventID int) ([]VertexRecord, error) {
	rows, err := db.Query(`SELECT run_id, event_id, vertex_id, z, ez2, chi2, ndof, tracks
		FROM event_vertices WHERE run_id = ? AND event_id = ? ORDER BY vertex_id`, runID, eventID)
	if err != nil {
		return nil, fmt.Errorf("query vertices of event %d: %w", eventID, err)
	}
	defer rows.Close()

	var out []VertexRecord
	for rows.Next() {
		var v VertexRecord
		if err := rows.Scan(&v.RunID, &v.EventID, &v.VertexID, &v.Z, &v.EZ2, &v.Chi2, &v.NDof, &v.Tracks); err != nil {
			return nil, fmt.Errorf("scan vertex: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const runColumns = `SELECT run_id, started_unix_nanos, finished_unix_nanos, backend, streams, inner_threads,
		min_neighbors, eps, errmax, chi2max, bin_width, order_by_z, seed, version,
		events, tracks, vertices, wall_seconds, error
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r                           Run
		started                     int64
		finished                    sql.NullInt64
		eps, errmax, chi2max, width float64
		seed                        int64
		wall                        float64
		errText                     sql.NullString
	)
	if err := s.Scan(&r.ID, &started, &finished, &r.Backend, &r.Streams, &r.InnerThreads,
		&r.Params.MinNeighbors, &eps, &errmax, &chi2max, &width, &r.Params.OrderByZ, &seed, &r.Version,
		&r.Events, &r.Tracks, &r.Vertices, &wall, &errText); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		r.FinishedAt = &t
	}
	r.Params.Eps = float32(eps)
	r.Params.ErrMax = float32(errmax)
	r.Params.Chi2Max = float32(chi2max)
	r.Params.BinWidth = float32(width)
	r.Seed = uint64(seed)
	r.Wall = time.Duration(wall * float64(time.Second))
	r.Error = errText.String
	return &r, nil
}
