// Package pattern infers repeating list structures from a seed element and
// derives reusable selectors for them.
package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fwojciec/listgrab"
)

// Detector finds the most plausible enclosing list of a seed element.
//
// A Detector holds the current preview match and the lock state for one
// Document. Detection is a hover preview until Lock is called; callers must
// check IsLocked before detecting again, or use Hover which does so.
//
// Detector is safe for concurrent use.
type Detector struct {
	doc         listgrab.Document
	cfg         listgrab.DetectorConfig
	highlighter listgrab.Highlighter
	logger      *slog.Logger

	mu        sync.Mutex
	current   *listgrab.PatternMatch
	selectors *listgrab.Selectors
	locked    bool
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithHighlighter sets the highlighter used to preview matches.
func WithHighlighter(h listgrab.Highlighter) DetectorOption {
	return func(d *Detector) {
		d.highlighter = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector returns a Detector over doc.
// Returns EINVALID if cfg is invalid.
func NewDetector(doc listgrab.Document, cfg listgrab.DetectorConfig, opts ...DetectorOption) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		doc:    doc,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the detection thresholds.
func (d *Detector) Config() listgrab.DetectorConfig {
	return d.cfg
}

// Detect walks up from seed and returns the best candidate list.
//
// The walk is greedy and bottom-up: a list beats a single, a list with more
// matched siblings beats one with fewer, and a single is only recorded when
// nothing was recorded before. Returns nil without error when nothing
// qualifies.
func (d *Detector) Detect(ctx context.Context, seed listgrab.Element) (*listgrab.PatternMatch, error) {
	return Detect(ctx, d.doc, seed, d.cfg)
}

// Detect runs detection from seed against doc with cfg.
func Detect(ctx context.Context, doc listgrab.Document, seed listgrab.Element, cfg listgrab.DetectorConfig) (*listgrab.PatternMatch, error) {
	var best *listgrab.PatternMatch
	current := seed

	for depth := 0; depth < cfg.DepthLimit && current != nil; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		container, err := doc.Parent(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("reading parent: %w", err)
		}
		if container == nil || isBoundary(container) {
			break
		}

		fp := listgrab.ComputeFingerprint(current)
		matches, err := matchChildren(ctx, doc, container, fp, current, cfg.SimThreshold)
		if err != nil {
			return nil, err
		}

		isList := len(matches) >= cfg.MinListItems
		if isList || cfg.AllowSingleFallback {
			candidate := &listgrab.PatternMatch{
				Container:   container,
				Fingerprint: fp,
				Siblings:    matches,
				IsSingle:    !isList,
				Confidence:  listgrab.SingleConfidence,
			}
			if isList {
				candidate.Confidence = listgrab.ListConfidence
			}
			if better(candidate, best) {
				best = candidate
			}
		}

		current = container
	}

	return best, nil
}

// better reports whether candidate should replace best.
func better(candidate, best *listgrab.PatternMatch) bool {
	if best == nil {
		return true
	}
	if candidate.IsSingle {
		return false
	}
	if best.IsSingle {
		return true
	}
	return len(candidate.Siblings) > len(best.Siblings)
}

// isBoundary reports whether el is the top of the document structure.
func isBoundary(el listgrab.Element) bool {
	switch el.Tag() {
	case "html", "body":
		return true
	}
	return false
}

// eligible reports whether a container child may be a pattern member.
func eligible(el listgrab.Element) bool {
	return !listgrab.IsScriptOrStyle(el) && !listgrab.IsOverlay(el)
}

// matchChildren returns the children of container similar to fp, always
// including self when it is still a child.
func matchChildren(ctx context.Context, doc listgrab.Document, container listgrab.Element, fp listgrab.Fingerprint, self listgrab.Element, threshold float64) ([]listgrab.Element, error) {
	children, err := doc.Children(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("reading children: %w", err)
	}

	var matches []listgrab.Element
	for _, child := range children {
		if listgrab.SameElement(child, container) {
			continue
		}
		if self != nil && listgrab.SameElement(child, self) {
			matches = append(matches, child)
			continue
		}
		if !eligible(child) {
			continue
		}
		if listgrab.Similarity(fp, listgrab.ComputeFingerprint(child)) >= threshold {
			matches = append(matches, child)
		}
	}
	return matches, nil
}

// ResolveCurrentMembers re-reads match.Container's children and returns those
// matching the original fingerprint. The seed element may no longer exist,
// so the fingerprint is never recomputed.
func (d *Detector) ResolveCurrentMembers(ctx context.Context, match *listgrab.PatternMatch) ([]listgrab.Element, error) {
	return ResolveCurrentMembers(ctx, d.doc, match, d.cfg.SimThreshold)
}

// ResolveCurrentMembers returns the live members of match in doc.
func ResolveCurrentMembers(ctx context.Context, doc listgrab.Document, match *listgrab.PatternMatch, threshold float64) ([]listgrab.Element, error) {
	if match == nil || match.Container == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "pattern match required")
	}
	return matchChildren(ctx, doc, match.Container, match.Fingerprint, nil, threshold)
}

// Hover runs a preview detection from seed. While locked it returns the
// locked match untouched. Otherwise the detected match replaces the current
// one wholesale and is highlighted.
func (d *Detector) Hover(ctx context.Context, seed listgrab.Element) (*listgrab.PatternMatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.locked {
		return d.current, nil
	}

	match, err := d.Detect(ctx, seed)
	if err != nil {
		return nil, err
	}
	d.current = match
	d.selectors = nil

	if d.highlighter != nil {
		if match == nil {
			err = d.highlighter.ClearHighlight(ctx)
		} else {
			err = d.highlighter.Highlight(ctx, match)
		}
		if err != nil {
			d.logger.Warn("highlight failed", "err", err)
		}
	}
	return match, nil
}

// Current returns the current match, or nil.
func (d *Detector) Current() *listgrab.PatternMatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// IsLocked reports whether the current match is locked.
func (d *Detector) IsLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// Lock freezes the current match and returns its selectors. Locking an
// already locked detector returns the same selectors.
// Returns EINVALID if there is no current match.
func (d *Detector) Lock(ctx context.Context) (*listgrab.Selectors, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.locked {
		return d.selectors, nil
	}
	if d.current == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "no pattern to lock")
	}

	members, err := ResolveCurrentMembers(ctx, d.doc, d.current, d.cfg.SimThreshold)
	if err != nil {
		return nil, fmt.Errorf("resolving members: %w", err)
	}
	live := *d.current
	if len(members) > 0 {
		live.Siblings = members
	}

	selectors, err := BuildSelectors(ctx, d.doc, &live)
	if err != nil {
		return nil, fmt.Errorf("building selectors: %w", err)
	}
	d.selectors = selectors
	d.locked = true
	d.logger.Info("pattern locked",
		"container", selectors.ContainerSelector,
		"item", selectors.ItemSelector,
		"members", len(live.Siblings),
		"confidence", d.current.Confidence,
	)
	return selectors, nil
}

// LockMatch replaces the current match with match and locks it, e.g. when
// replaying a saved template.
func (d *Detector) LockMatch(ctx context.Context, match *listgrab.PatternMatch) (*listgrab.Selectors, error) {
	d.mu.Lock()
	if match == nil {
		d.mu.Unlock()
		return nil, listgrab.Errorf(listgrab.EINVALID, "pattern match required")
	}
	d.current = match
	d.selectors = nil
	d.locked = false
	d.mu.Unlock()
	return d.Lock(ctx)
}

// Selectors returns the selectors computed on Lock, or nil while unlocked.
func (d *Detector) Selectors() *listgrab.Selectors {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectors
}

// Unlock returns to preview mode and clears any highlight.
// The current match is kept until the next Hover.
func (d *Detector) Unlock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.locked = false
	d.selectors = nil
	return d.clearHighlight(ctx)
}

// Reset discards the current match, unlocks and clears any highlight.
func (d *Detector) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current = nil
	d.selectors = nil
	d.locked = false
	return d.clearHighlight(ctx)
}

// clearHighlight must be called with mu held.
func (d *Detector) clearHighlight(ctx context.Context) error {
	if d.highlighter == nil {
		return nil
	}
	if err := d.highlighter.ClearHighlight(ctx); err != nil {
		return fmt.Errorf("clearing highlight: %w", err)
	}
	return nil
}
