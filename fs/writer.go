// Package fs exports harvested items to files.
package fs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fwojciec/listgrab"
	"gopkg.in/yaml.v3"
)

// Format is an export file format.
type Format string

// Export formats.
const (
	FormatJSONL    Format = "jsonl"
	FormatMarkdown Format = "md"
)

// fieldMarkdown and fieldText hold the body of a markdown export entry.
const (
	fieldMarkdown = "markdown"
	fieldText     = "text"
)

// ParseFormat returns the Format named s. An empty name means FormatJSONL.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSONL:
		return FormatJSONL, nil
	case FormatMarkdown, "markdown":
		return FormatMarkdown, nil
	}
	return "", listgrab.Errorf(listgrab.EINVALID, "unknown format %q", s)
}

// FormatFromPath picks the format from the extension of path.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	}
	return FormatJSONL
}

// Ensure ItemWriter implements listgrab.ItemSink at compile time.
var _ listgrab.ItemSink = (*ItemWriter)(nil)

// ItemWriter exports items to a file with atomic update semantics.
// Items are written to path + ".tmp" and moved to path on Commit, so a
// failed or canceled run never leaves a partial export behind.
//
// ItemWriter is safe for concurrent use.
type ItemWriter struct {
	mu     sync.Mutex
	path   string
	format Format
	f      *os.File
	w      *bufio.Writer
	count  int
	closed bool
}

// NewItemWriter creates the temporary export file for path.
func NewItemWriter(path string, format Format) (*ItemWriter, error) {
	if path == "" {
		return nil, listgrab.Errorf(listgrab.EINVALID, "export path required")
	}
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, err
	}
	return &ItemWriter{
		path:   path,
		format: format,
		f:      f,
		w:      bufio.NewWriter(f),
	}, nil
}

// Path returns the final export path.
func (w *ItemWriter) Path() string {
	return w.path
}

// Count returns the number of items written.
func (w *ItemWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Write appends item to the export.
// Returns ECONFLICT after Commit or Abort.
func (w *ItemWriter) Write(item *listgrab.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(item)
}

// WriteItems appends items to the export in order.
func (w *ItemWriter) WriteItems(items []*listgrab.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range items {
		if err := w.write(item); err != nil {
			return err
		}
	}
	return nil
}

func (w *ItemWriter) write(item *listgrab.Item) error {
	if w.closed {
		return listgrab.Errorf(listgrab.ECONFLICT, "export %s already closed", w.path)
	}

	var b []byte
	switch w.format {
	case FormatMarkdown:
		s, err := FormatItem(item)
		if err != nil {
			return err
		}
		if w.count > 0 {
			s = "\n" + s
		}
		b = []byte(s)
	default:
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encoding item %d: %w", item.Index, err)
		}
		b = append(line, '\n')
	}

	if _, err := w.w.Write(b); err != nil {
		return err
	}
	w.count++
	return nil
}

// Commit flushes the export and moves it to its final path, replacing any
// previous export.
func (w *ItemWriter) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return listgrab.Errorf(listgrab.ECONFLICT, "export %s already closed", w.path)
	}
	w.closed = true

	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}
	return os.Rename(w.path+".tmp", w.path)
}

// Abort discards the export. Abort after Commit is a no-op.
func (w *ItemWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.f.Close()
	return os.RemoveAll(w.path + ".tmp")
}

// frontmatter is the YAML header of a markdown export entry.
type frontmatter struct {
	Key    string            `yaml:"key"`
	Index  int               `yaml:"index"`
	Fields map[string]string `yaml:"fields,omitempty"`
}

// FormatItem formats an item as a markdown entry with YAML frontmatter. The
// body is the item's markdown field, or its text when there is none.
func FormatItem(item *listgrab.Item) (string, error) {
	fm := frontmatter{Key: item.Key, Index: item.Index}
	for name, v := range item.Fields {
		if name == fieldMarkdown {
			continue
		}
		if fm.Fields == nil {
			fm.Fields = make(map[string]string)
		}
		fm.Fields[name] = v
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}

	body, ok := item.Fields[fieldMarkdown]
	if !ok {
		body = item.Fields[fieldText]
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	if body != "" {
		b.WriteString(strings.TrimSpace(body))
		b.WriteString("\n")
	}
	return b.String(), nil
}

