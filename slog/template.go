package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/listgrab"
)

// Ensure LoggingTemplateService implements listgrab.TemplateService.
var _ listgrab.TemplateService = (*LoggingTemplateService)(nil)

// LoggingTemplateService wraps a TemplateService and logs every write.
type LoggingTemplateService struct {
	next   listgrab.TemplateService
	logger *slog.Logger
}

// NewLoggingTemplateService creates a new LoggingTemplateService.
func NewLoggingTemplateService(next listgrab.TemplateService, logger *slog.Logger) *LoggingTemplateService {
	return &LoggingTemplateService{next: next, logger: logger}
}

func (s *LoggingTemplateService) CreateTemplate(ctx context.Context, tmpl *listgrab.Template) (err error) {
	defer func(begin time.Time) {
		s.logger.Info("create template",
			"host", tmpl.Host,
			"name", tmpl.Name,
			"id", tmpl.ID,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.CreateTemplate(ctx, tmpl)
}

func (s *LoggingTemplateService) FindTemplateByID(ctx context.Context, id string) (*listgrab.Template, error) {
	return s.next.FindTemplateByID(ctx, id)
}

func (s *LoggingTemplateService) FindTemplates(ctx context.Context, filter listgrab.TemplateFilter) ([]*listgrab.Template, error) {
	return s.next.FindTemplates(ctx, filter)
}

func (s *LoggingTemplateService) DeleteTemplate(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) {
		s.logger.Info("delete template",
			"id", id,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.DeleteTemplate(ctx, id)
}
