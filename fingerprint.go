package listgrab

import (
	"math"
	"strings"
)

// Similarity weights in tenths. Child count dominates because list items
// share internal structure more reliably than exact class names.
const (
	classWeight = 3
	attrWeight  = 3
	childWeight = 4
)

// Fingerprint is the structural descriptor of one element.
// Fingerprints are values; they are recomputed on demand and never cached
// across DOM mutations.
type Fingerprint struct {
	Tag        string
	Classes    map[string]struct{}
	Attrs      map[string]string // data-*, aria-* and role only
	ChildCount int
}

// ComputeFingerprint returns the structural descriptor of el.
func ComputeFingerprint(el Element) Fingerprint {
	fp := Fingerprint{
		Tag:        strings.ToLower(el.Tag()),
		Classes:    make(map[string]struct{}),
		Attrs:      make(map[string]string),
		ChildCount: el.ChildCount(),
	}
	for _, a := range el.Attrs() {
		name := strings.ToLower(a.Name)
		switch {
		case name == "class":
			for _, c := range strings.Fields(a.Value) {
				fp.Classes[c] = struct{}{}
			}
		case isStableAttr(name):
			fp.Attrs[name] = a.Value
		}
	}
	return fp
}

// isStableAttr reports whether an attribute takes part in fingerprinting.
func isStableAttr(name string) bool {
	return strings.HasPrefix(name, "data-") ||
		strings.HasPrefix(name, "aria-") ||
		name == "role"
}

// Similarity returns a symmetric score in [0,1] for two fingerprints.
//
// Tags must match exactly, otherwise the score is 0. Attribute comparison
// uses names only since values such as data-id vary per item.
func Similarity(a, b Fingerprint) float64 {
	if a.Tag != b.Tag {
		return 0
	}

	classScore := jaccard(a.Classes, b.Classes)

	aNames := make(map[string]struct{}, len(a.Attrs))
	for k := range a.Attrs {
		aNames[k] = struct{}{}
	}
	bNames := make(map[string]struct{}, len(b.Attrs))
	for k := range b.Attrs {
		bNames[k] = struct{}{}
	}
	attrScore := jaccard(aNames, bNames)

	childScore := 1.0
	if hi := max(a.ChildCount, b.ChildCount); hi > 0 {
		childScore = float64(min(a.ChildCount, b.ChildCount)) / float64(hi)
	}

	score := (classWeight*classScore + attrWeight*attrScore + childWeight*childScore) / 10
	return math.Min(1, math.Max(0, score))
}

// jaccard returns |a∩b| / |a∪b|. Two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
