package pattern

import (
	"context"
	"fmt"

	"github.com/fwojciec/listgrab"
)

// MatchTemplate rebuilds a match from a saved template. The first element
// matching the container selector becomes the container and its children
// similar to the stored fingerprint become the members. A template saved
// without a fingerprint uses the first element matching its item selector.
// Members are compared and classified with cfg the way Detect does: fewer
// than MinListItems members make a single, which needs AllowSingleFallback.
//
// Returns ENOTFOUND if the container or any member is missing.
func MatchTemplate(ctx context.Context, doc listgrab.Document, tmpl *listgrab.Template, cfg listgrab.DetectorConfig) (*listgrab.PatternMatch, error) {
	if tmpl == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "template required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	containers, err := doc.QueryAll(ctx, tmpl.ContainerSelector)
	if err != nil {
		return nil, fmt.Errorf("querying container: %w", err)
	}
	if len(containers) == 0 {
		return nil, listgrab.Errorf(listgrab.ENOTFOUND, "no element matches container selector %q", tmpl.ContainerSelector)
	}
	container := containers[0]

	fp := tmpl.Fingerprint
	if fp.Tag == "" {
		sel := tmpl.FullItemSelector
		if sel == "" {
			sel = tmpl.ItemSelector
		}
		items, err := doc.QueryAll(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("querying items: %w", err)
		}
		if len(items) == 0 {
			return nil, listgrab.Errorf(listgrab.ENOTFOUND, "no element matches item selector %q", sel)
		}
		fp = listgrab.ComputeFingerprint(items[0])
	}

	members, err := matchChildren(ctx, doc, container, fp, nil, cfg.SimThreshold)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, listgrab.Errorf(listgrab.ENOTFOUND, "template %q matches no items", tmpl.Name)
	}

	match := &listgrab.PatternMatch{
		Container:   container,
		Fingerprint: fp,
		Siblings:    members,
		Confidence:  listgrab.ListConfidence,
	}
	if len(members) < cfg.MinListItems {
		if !cfg.AllowSingleFallback {
			return nil, listgrab.Errorf(listgrab.ENOTFOUND, "template %q matches %d items, want at least %d", tmpl.Name, len(members), cfg.MinListItems)
		}
		match.IsSingle = true
		match.Confidence = listgrab.SingleConfidence
	}
	return match, nil
}

// NewTemplate returns an unsaved template for a locked match.
func NewTemplate(host, name string, selectors *listgrab.Selectors, match *listgrab.PatternMatch) (*listgrab.Template, error) {
	if selectors == nil || match == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "locked pattern required")
	}
	tmpl := &listgrab.Template{
		Host:              host,
		Name:              name,
		ContainerSelector: selectors.ContainerSelector,
		ItemSelector:      selectors.ItemSelector,
		FullItemSelector:  selectors.FullItemSelector,
		Fingerprint:       match.Fingerprint,
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return tmpl, nil
}
