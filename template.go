package listgrab

import (
	"context"
	"time"
)

// Template is a saved site template: the selectors and fingerprint of a
// locked pattern, reapplied later without re-running detection.
type Template struct {
	ID                string      `json:"id"`
	Host              string      `json:"host"`
	Name              string      `json:"name"`
	ContainerSelector string      `json:"containerSelector"`
	ItemSelector      string      `json:"itemSelector"`
	FullItemSelector  string      `json:"fullItemSelector"`
	Fingerprint       Fingerprint `json:"fingerprint"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// Validate returns an error if the template contains invalid fields.
func (t *Template) Validate() error {
	if t.Host == "" {
		return Errorf(EINVALID, "template host required")
	}
	if t.Name == "" {
		return Errorf(EINVALID, "template name required")
	}
	if t.ContainerSelector == "" {
		return Errorf(EINVALID, "template container selector required")
	}
	if t.ItemSelector == "" {
		return Errorf(EINVALID, "template item selector required")
	}
	return nil
}

// Selectors returns the template's selectors.
func (t *Template) Selectors() Selectors {
	return Selectors{
		ContainerSelector: t.ContainerSelector,
		ItemSelector:      t.ItemSelector,
		FullItemSelector:  t.FullItemSelector,
	}
}

// TemplateService represents a service for managing site templates.
type TemplateService interface {
	// CreateTemplate creates a new template.
	// Returns ECONFLICT if a template with the same host and name exists.
	CreateTemplate(ctx context.Context, tmpl *Template) error

	// FindTemplateByID retrieves a template by ID.
	// Returns ENOTFOUND if template does not exist.
	FindTemplateByID(ctx context.Context, id string) (*Template, error)

	// FindTemplates retrieves templates matching the filter.
	FindTemplates(ctx context.Context, filter TemplateFilter) ([]*Template, error)

	// DeleteTemplate permanently removes a template.
	// Returns ENOTFOUND if template does not exist.
	DeleteTemplate(ctx context.Context, id string) error
}

// TemplateFilter represents a filter for FindTemplates.
type TemplateFilter struct {
	ID   *string `json:"id"`
	Host *string `json:"host"`
	Name *string `json:"name"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
