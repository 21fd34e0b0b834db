package mock

import "github.com/fwojciec/listgrab"

var _ listgrab.Element = (*Element)(nil)

// Element is a static implementation of listgrab.Element.
type Element struct {
	ID         string
	Name       string
	Attributes []listgrab.Attr
	Children   int
}

func (e *Element) Key() string {
	return e.ID
}

func (e *Element) Tag() string {
	return e.Name
}

func (e *Element) Attrs() []listgrab.Attr {
	return e.Attributes
}

func (e *Element) ChildCount() int {
	return e.Children
}
