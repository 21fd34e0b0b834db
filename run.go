package listgrab

import (
	"context"
	"time"
)

// Run records one harvest of a page.
type Run struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	TemplateID string         `json:"templateId"`
	Status     ScrollerStatus `json:"status"`
	ItemCount  int            `json:"itemCount"`
	Errors     []string       `json:"errors"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Validate returns an error if the run contains invalid fields.
func (r *Run) Validate() error {
	if r.URL == "" {
		return Errorf(EINVALID, "run URL required")
	}
	return nil
}

// RunService represents a service for managing harvest runs.
type RunService interface {
	// CreateRun creates a new run.
	CreateRun(ctx context.Context, run *Run) error

	// FindRunByID retrieves a run by ID.
	// Returns ENOTFOUND if run does not exist.
	FindRunByID(ctx context.Context, id string) (*Run, error)

	// FindRuns retrieves runs matching the filter, newest first.
	FindRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// FinishRun records the final status of a run.
	// Returns ENOTFOUND if run does not exist.
	FinishRun(ctx context.Context, id string, state ScrollerState, itemCount int) (*Run, error)
}

// RunFilter represents a filter for FindRuns.
type RunFilter struct {
	URL        *string `json:"url"`
	TemplateID *string `json:"templateId"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ItemService represents a service for storing harvested items.
type ItemService interface {
	// CreateItems stores items for a run. Items whose key already exists
	// for the run are skipped.
	CreateItems(ctx context.Context, runID string, items []*Item) error

	// FindItems retrieves items matching the filter in discovery order.
	FindItems(ctx context.Context, filter ItemFilter) ([]*Item, error)
}

// RunItemSink returns an ItemSink that stores every batch for runID.
func RunItemSink(ctx context.Context, svc ItemService, runID string) ItemSink {
	return ItemSinkFunc(func(items []*Item) error {
		return svc.CreateItems(ctx, runID, items)
	})
}

// ItemFilter represents a filter for FindItems.
type ItemFilter struct {
	RunID *string `json:"runId"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
