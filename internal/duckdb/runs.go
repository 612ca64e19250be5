package duckdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/fhir-consensus/internal/variant"
)

// FileFingerprint holds stat-based identity for an input file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile fingerprints an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}, nil
}

// Run is one consensus run for one sample.
type Run struct {
	ID            string
	SampleID      string
	ReferenceID   string
	Bundle        FileFingerprint
	ReferencePath string
	OutputPath    string
	Variants      int
	Applied       int
	Dropped       int
	Overlaps      int
	CreatedAt     time.Time
}

// NewRun returns a Run for sampleID with a fresh identifier.
func NewRun(sampleID string) Run {
	return Run{
		ID:        uuid.New().String(),
		SampleID:  sampleID,
		CreatedAt: time.Now().UTC(),
	}
}

// RecordRun writes run and the calls it applied. If the calls cannot be
// written, the run row is removed again so the log never holds a run
// without its calls.
func (s *Store) RecordRun(run Run, calls variant.PositionMap) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.Exec(`INSERT INTO consensus_runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SampleID, run.ReferenceID,
		run.Bundle.Path, run.Bundle.Size, run.Bundle.ModTime,
		run.ReferencePath, run.OutputPath,
		int64(run.Variants), int64(run.Applied), int64(run.Dropped), int64(run.Overlaps),
		run.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(calls) == 0 {
		return nil
	}

	if err := s.appendCalls(run, calls); err != nil {
		return errors.Join(err, s.deleteRun(run.ID))
	}
	return nil
}

func (s *Store) appendCalls(run Run, calls variant.PositionMap) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "variant_calls")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}

	for pos, a := range calls {
		if err := appender.AppendRow(run.ID, run.SampleID, pos, a.Ref, a.Alt); err != nil {
			appender.Close()
			return fmt.Errorf("append variant call: %w", err)
		}
	}

	if err := appender.Close(); err != nil {
		return fmt.Errorf("flush variant calls: %w", err)
	}
	return nil
}

// deleteRun removes a run row and any calls already written for it.
func (s *Store) deleteRun(runID string) error {
	_, callsErr := s.db.Exec("DELETE FROM variant_calls WHERE run_id = ?", runID)
	if _, err := s.db.Exec("DELETE FROM consensus_runs WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("remove incomplete run %s: %w", runID, err)
	}
	if callsErr != nil {
		return fmt.Errorf("remove calls of incomplete run %s: %w", runID, callsErr)
	}
	return nil
}

// ErrRunNotFound is returned by Run for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

const selectRuns = `SELECT
	run_id, sample_id, reference_id,
	bundle_path, bundle_size, bundle_modtime,
	reference_path, output_path,
	variants, applied, dropped, overlaps, created_at
	FROM consensus_runs`

// Runs returns the recorded runs for sampleID, newest first.
// An empty sampleID returns runs for all samples.
func (s *Store) Runs(sampleID string) ([]Run, error) {
	if sampleID == "" {
		return s.queryRuns(selectRuns + ` ORDER BY created_at DESC`)
	}
	return s.queryRuns(selectRuns+` WHERE sample_id=? ORDER BY created_at DESC`, sampleID)
}

// Run returns the run with the given ID.
func (s *Store) Run(runID string) (Run, error) {
	runs, err := s.queryRuns(selectRuns+` WHERE run_id=?`, runID)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return runs[0], nil
}

func (s *Store) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.SampleID, &r.ReferenceID,
			&r.Bundle.Path, &r.Bundle.Size, &r.Bundle.ModTime,
			&r.ReferencePath, &r.OutputPath,
			&r.Variants, &r.Applied, &r.Dropped, &r.Overlaps, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Calls returns the variant calls recorded for a run, by ascending position.
func (s *Store) Calls(runID string) ([]variant.Call, error) {
	rows, err := s.db.Query(`SELECT pos, ref, alt FROM variant_calls
		WHERE run_id=? ORDER BY pos`, runID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []variant.Call
	for rows.Next() {
		var c variant.Call
		if err := rows.Scan(&c.Pos, &c.Ref, &c.Alt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// ClearRuns removes all recorded runs and calls.
func (s *Store) ClearRuns() error {
	if _, err := s.db.Exec("DELETE FROM variant_calls"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM consensus_runs")
	return err
}
