package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ listgrab.TemplateService = (*TemplateService)(nil)

// TemplateService implements listgrab.TemplateService using SQLite.
type TemplateService struct {
	db *DB
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(db *DB) *TemplateService {
	return &TemplateService{db: db}
}

const templateColumns = "id, host, name, container_selector, item_selector, full_item_selector, fingerprint, created_at, updated_at"

// CreateTemplate creates a new template.
func (s *TemplateService) CreateTemplate(ctx context.Context, tmpl *listgrab.Template) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates WHERE host = ? AND name = ?",
		tmpl.Host, tmpl.Name).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return listgrab.Errorf(listgrab.ECONFLICT, "template %q already exists for %s", tmpl.Name, tmpl.Host)
	}

	fp, err := encodeFingerprint(tmpl.Fingerprint)
	if err != nil {
		return err
	}

	tmpl.ID = uuid.New().String()
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	if tmpl.FullItemSelector == "" {
		tmpl.FullItemSelector = tmpl.ContainerSelector + " > " + tmpl.ItemSelector
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tmpl.ID, tmpl.Host, tmpl.Name, tmpl.ContainerSelector, tmpl.ItemSelector, tmpl.FullItemSelector,
		fp, formatTime(tmpl.CreatedAt), formatTime(tmpl.UpdatedAt))

	return err
}

// FindTemplateByID retrieves a template by ID.
func (s *TemplateService) FindTemplateByID(ctx context.Context, id string) (*listgrab.Template, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id)
	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, listgrab.Errorf(listgrab.ENOTFOUND, "template not found")
	}
	return tmpl, err
}

// FindTemplates retrieves templates matching the filter, newest first.
func (s *TemplateService) FindTemplates(ctx context.Context, filter listgrab.TemplateFilter) ([]*listgrab.Template, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + templateColumns + " FROM templates WHERE 1=1")

	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.Host != nil {
		query.WriteString(" AND host = ?")
		args = append(args, *filter.Host)
	}
	if filter.Name != nil {
		query.WriteString(" AND name = ?")
		args = append(args, *filter.Name)
	}

	query.WriteString(" ORDER BY created_at DESC, id ASC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tmpls []*listgrab.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		tmpls = append(tmpls, tmpl)
	}

	return tmpls, rows.Err()
}

// DeleteTemplate permanently removes a template. Runs that used it keep
// their records with the template reference cleared.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return listgrab.Errorf(listgrab.ENOTFOUND, "template not found")
	}

	return nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*listgrab.Template, error) {
	var tmpl listgrab.Template
	var fp, createdAt, updatedAt string

	if err := row.Scan(&tmpl.ID, &tmpl.Host, &tmpl.Name, &tmpl.ContainerSelector, &tmpl.ItemSelector,
		&tmpl.FullItemSelector, &fp, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if tmpl.Fingerprint, err = decodeFingerprint(fp); err != nil {
		return nil, err
	}
	if tmpl.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if tmpl.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &tmpl, nil
}
