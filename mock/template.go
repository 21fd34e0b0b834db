package mock

import (
	"context"

	"github.com/fwojciec/listgrab"
)

var _ listgrab.TemplateService = (*TemplateService)(nil)

// TemplateService is a mock implementation of listgrab.TemplateService.
type TemplateService struct {
	CreateTemplateFn   func(ctx context.Context, tmpl *listgrab.Template) error
	FindTemplateByIDFn func(ctx context.Context, id string) (*listgrab.Template, error)
	FindTemplatesFn    func(ctx context.Context, filter listgrab.TemplateFilter) ([]*listgrab.Template, error)
	DeleteTemplateFn   func(ctx context.Context, id string) error
}

func (s *TemplateService) CreateTemplate(ctx context.Context, tmpl *listgrab.Template) error {
	return s.CreateTemplateFn(ctx, tmpl)
}

func (s *TemplateService) FindTemplateByID(ctx context.Context, id string) (*listgrab.Template, error) {
	return s.FindTemplateByIDFn(ctx, id)
}

func (s *TemplateService) FindTemplates(ctx context.Context, filter listgrab.TemplateFilter) ([]*listgrab.Template, error) {
	return s.FindTemplatesFn(ctx, filter)
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	return s.DeleteTemplateFn(ctx, id)
}
