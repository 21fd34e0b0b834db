package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fwojciec/listgrab"
)

// timeFormat is RFC3339 with a fixed-width fraction so stored timestamps sort
// lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// parseRFC3339 parses an RFC3339 formatted timestamp string.
// Returns an error if parsing fails with a descriptive message including the field name.
func parseRFC3339(value, fieldName string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return t, nil
}

// formatTime formats t for storage. The zero time is stored as "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

// parseOptionalTime is parseRFC3339 for columns that may be "".
func parseOptionalTime(value, fieldName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return parseRFC3339(value, fieldName)
}

// appendPagination appends LIMIT and OFFSET clauses to a query builder if values are > 0.
func appendPagination(query *strings.Builder, args *[]any, limit, offset int) {
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			query.WriteString(" LIMIT -1")
		}
		query.WriteString(" OFFSET ?")
		*args = append(*args, offset)
	}
}

// storedFingerprint is the column form of a listgrab.Fingerprint.
type storedFingerprint struct {
	Tag        string            `json:"tag"`
	Classes    []string          `json:"classes"`
	Attrs      map[string]string `json:"attrs"`
	ChildCount int               `json:"childCount"`
}

func encodeFingerprint(fp listgrab.Fingerprint) (string, error) {
	s := storedFingerprint{
		Tag:        fp.Tag,
		Classes:    make([]string, 0, len(fp.Classes)),
		Attrs:      fp.Attrs,
		ChildCount: fp.ChildCount,
	}
	for c := range fp.Classes {
		s.Classes = append(s.Classes, c)
	}
	sort.Strings(s.Classes)
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint: %w", err)
	}
	return string(b), nil
}

func decodeFingerprint(value string) (listgrab.Fingerprint, error) {
	var s storedFingerprint
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return listgrab.Fingerprint{}, fmt.Errorf("failed to decode fingerprint: %w", err)
	}
	fp := listgrab.Fingerprint{
		Tag:        s.Tag,
		Classes:    make(map[string]struct{}, len(s.Classes)),
		Attrs:      s.Attrs,
		ChildCount: s.ChildCount,
	}
	if fp.Attrs == nil {
		fp.Attrs = make(map[string]string)
	}
	for _, c := range s.Classes {
		fp.Classes[c] = struct{}{}
	}
	return fp, nil
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
