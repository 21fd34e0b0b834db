package mock

import (
	"context"

	"github.com/fwojciec/listgrab"
)

var _ listgrab.RunService = (*RunService)(nil)

// RunService is a mock implementation of listgrab.RunService.
type RunService struct {
	CreateRunFn   func(ctx context.Context, run *listgrab.Run) error
	FindRunByIDFn func(ctx context.Context, id string) (*listgrab.Run, error)
	FindRunsFn    func(ctx context.Context, filter listgrab.RunFilter) ([]*listgrab.Run, error)
	FinishRunFn   func(ctx context.Context, id string, state listgrab.ScrollerState, itemCount int) (*listgrab.Run, error)
}

func (s *RunService) CreateRun(ctx context.Context, run *listgrab.Run) error {
	return s.CreateRunFn(ctx, run)
}

func (s *RunService) FindRunByID(ctx context.Context, id string) (*listgrab.Run, error) {
	return s.FindRunByIDFn(ctx, id)
}

func (s *RunService) FindRuns(ctx context.Context, filter listgrab.RunFilter) ([]*listgrab.Run, error) {
	return s.FindRunsFn(ctx, filter)
}

func (s *RunService) FinishRun(ctx context.Context, id string, state listgrab.ScrollerState, itemCount int) (*listgrab.Run, error) {
	return s.FinishRunFn(ctx, id, state, itemCount)
}

var _ listgrab.ItemService = (*ItemService)(nil)

// ItemService is a mock implementation of listgrab.ItemService.
type ItemService struct {
	CreateItemsFn func(ctx context.Context, runID string, items []*listgrab.Item) error
	FindItemsFn   func(ctx context.Context, filter listgrab.ItemFilter) ([]*listgrab.Item, error)
}

func (s *ItemService) CreateItems(ctx context.Context, runID string, items []*listgrab.Item) error {
	return s.CreateItemsFn(ctx, runID, items)
}

func (s *ItemService) FindItems(ctx context.Context, filter listgrab.ItemFilter) ([]*listgrab.Item, error) {
	return s.FindItemsFn(ctx, filter)
}
