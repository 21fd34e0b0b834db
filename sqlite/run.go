package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ listgrab.RunService = (*RunService)(nil)

// RunService implements listgrab.RunService using SQLite.
type RunService struct {
	db *DB
}

// NewRunService creates a new RunService.
func NewRunService(db *DB) *RunService {
	return &RunService{db: db}
}

const runColumns = "id, url, template_id, status, item_count, errors, started_at, finished_at"

// CreateRun creates a new run. A run without a status starts as running.
func (s *RunService) CreateRun(ctx context.Context, run *listgrab.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	run.ID = uuid.New().String()
	if run.Status == "" {
		run.Status = listgrab.StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.URL, nullString(run.TemplateID), string(run.Status), run.ItemCount, errs,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))

	return err
}

// FindRunByID retrieves a run by ID.
func (s *RunService) FindRunByID(ctx context.Context, id string) (*listgrab.Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, listgrab.Errorf(listgrab.ENOTFOUND, "run not found")
	}
	return run, err
}

// FindRuns retrieves runs matching the filter, newest first.
func (s *RunService) FindRuns(ctx context.Context, filter listgrab.RunFilter) ([]*listgrab.Run, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + runColumns + " FROM runs WHERE 1=1")

	if filter.URL != nil {
		query.WriteString(" AND url = ?")
		args = append(args, *filter.URL)
	}
	if filter.TemplateID != nil {
		query.WriteString(" AND template_id = ?")
		args = append(args, *filter.TemplateID)
	}

	query.WriteString(" ORDER BY started_at DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*listgrab.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// FinishRun records the final scroller state and item count of a run.
func (s *RunService) FinishRun(ctx context.Context, id string, state listgrab.ScrollerState, itemCount int) (*listgrab.Run, error) {
	run, err := s.FindRunByID(ctx, id)
	if err != nil {
		return nil, err
	}

	run.Status = state.Status
	run.Errors = append([]string(nil), state.Errors...)
	run.ItemCount = itemCount
	run.FinishedAt = time.Now().UTC()

	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, item_count = ?, errors = ?, finished_at = ?
		WHERE id = ?
	`, string(run.Status), run.ItemCount, errs, formatTime(run.FinishedAt), id)
	if err != nil {
		return nil, err
	}

	return run, nil
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode errors: %w", err)
	}
	return string(b), nil
}

func scanRun(row scanner) (*listgrab.Run, error) {
	var run listgrab.Run
	var templateID sql.NullString
	var status, errs, startedAt, finishedAt string

	if err := row.Scan(&run.ID, &run.URL, &templateID, &status, &run.ItemCount, &errs,
		&startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.TemplateID = templateID.String
	run.Status = listgrab.ScrollerStatus(status)
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode errors: %w", err)
	}

	var err error
	if run.StartedAt, err = parseRFC3339(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseOptionalTime(finishedAt, "finished_at"); err != nil {
		return nil, err
	}
	return &run, nil
}
