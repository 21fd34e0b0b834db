package scroll

import (
	"context"
	"fmt"
	"strings"

	"github.com/fwojciec/listgrab"
)

// DefaultItemSelectors are broad selectors for item-like elements, in order
// of preference. The first one that matches anything provides the coarse
// item count.
var DefaultItemSelectors = []string{
	"article",
	`[data-testid*="item"]`,
	`[data-testid*="card"]`,
	`[class*="item"]`,
	`[class*="card"]`,
	`[class*="row"]`,
	"li",
}

// loadMoreSelectors match common "load more" controls, in order.
var loadMoreSelectors = []string{
	`[data-testid*="load-more"]`,
	`[data-testid*="show-more"]`,
	`button[class*="load-more"]`,
	`[class*="load-more"]`,
	`[class*="loadMore"]`,
	`[class*="show-more"]`,
	`[class*="showMore"]`,
	`button[class*="more"]`,
}

// clickableSelector matches elements whose text is checked against
// loadMorePhrases.
const clickableSelector = `button, a, [role="button"]`

var loadMorePhrases = []string{
	"load more",
	"show more",
	"view more",
	"see more",
	"more results",
}

// CountItems returns the number of elements matched by the first selector
// that matches anything. Invalid selectors are skipped.
func CountItems(ctx context.Context, doc listgrab.Document, selectors []string) (int, error) {
	for _, sel := range selectors {
		els, err := doc.QueryAll(ctx, sel)
		if err != nil {
			if listgrab.ErrorCode(err) == listgrab.EINVALID {
				continue
			}
			return 0, fmt.Errorf("counting %q: %w", sel, err)
		}
		if len(els) > 0 {
			return len(els), nil
		}
	}
	return 0, nil
}

// FindLoadMore returns a visible control that loads more content, or nil.
// Known selectors are tried first, then clickable elements whose text
// contains a load-more phrase.
func FindLoadMore(ctx context.Context, doc listgrab.Document) (listgrab.Element, error) {
	for _, sel := range loadMoreSelectors {
		els, err := doc.QueryAll(ctx, sel)
		if err != nil {
			if listgrab.ErrorCode(err) == listgrab.EINVALID {
				continue
			}
			return nil, fmt.Errorf("querying %q: %w", sel, err)
		}
		el, err := firstVisible(ctx, doc, els)
		if err != nil || el != nil {
			return el, err
		}
	}

	els, err := doc.QueryAll(ctx, clickableSelector)
	if err != nil {
		return nil, fmt.Errorf("querying clickable elements: %w", err)
	}
	for _, el := range els {
		text, err := doc.Text(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("reading text: %w", err)
		}
		if !hasLoadMorePhrase(text) {
			continue
		}
		visible, err := doc.Visible(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("checking visibility: %w", err)
		}
		if visible {
			return el, nil
		}
	}
	return nil, nil
}

func firstVisible(ctx context.Context, doc listgrab.Document, els []listgrab.Element) (listgrab.Element, error) {
	for _, el := range els {
		visible, err := doc.Visible(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("checking visibility: %w", err)
		}
		if visible {
			return el, nil
		}
	}
	return nil, nil
}

func hasLoadMorePhrase(text string) bool {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, p := range loadMorePhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
