package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/listgrab"
)

// Compile-time interface verification.
var _ listgrab.ItemService = (*ItemService)(nil)

// ItemService implements listgrab.ItemService using SQLite.
type ItemService struct {
	db *DB
}

// NewItemService creates a new ItemService.
func NewItemService(db *DB) *ItemService {
	return &ItemService{db: db}
}

// CreateItems stores items for a run in one transaction. Items whose key is
// already stored for the run are skipped.
func (s *ItemService) CreateItems(ctx context.Context, runID string, items []*listgrab.Item) error {
	for _, item := range items {
		if item.Key == "" {
			return listgrab.Errorf(listgrab.EINVALID, "item %d has no key", item.Index)
		}
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return listgrab.Errorf(listgrab.ENOTFOUND, "run not found")
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO items (run_id, key, position, fields)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		fields, err := json.Marshal(item.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields of item %d: %w", item.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, item.Key, item.Index, string(fields)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FindItems retrieves items matching the filter in discovery order.
func (s *ItemService) FindItems(ctx context.Context, filter listgrab.ItemFilter) ([]*listgrab.Item, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT key, position, fields FROM items WHERE 1=1")

	if filter.RunID != nil {
		query.WriteString(" AND run_id = ?")
		args = append(args, *filter.RunID)
	}

	query.WriteString(" ORDER BY run_id, position ASC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*listgrab.Item
	for rows.Next() {
		var item listgrab.Item
		var fields string
		if err := rows.Scan(&item.Key, &item.Index, &fields); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &item.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields: %w", err)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}
