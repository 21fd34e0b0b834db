package mock

import "github.com/fwojciec/listgrab"

var _ listgrab.Converter = (*Converter)(nil)

// Converter is a mock implementation of listgrab.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

func (c *Converter) Convert(html string) (string, error) {
	return c.ConvertFn(html)
}
