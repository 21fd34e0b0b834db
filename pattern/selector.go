package pattern

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fwojciec/listgrab"
)

// Limits on generated selectors.
const (
	maxContainerClasses = 2
	maxItemClasses      = 3
)

// stableAttrs identify an element reliably across reloads, in order of
// preference.
var stableAttrs = []string{"data-testid", "data-qa", "role", "aria-label"}

// stateClasses are class names that reflect transient UI state.
var stateClasses = map[string]bool{
	"active": true, "hover": true, "hovered": true, "selected": true,
	"focus": true, "focused": true, "open": true, "opened": true,
	"visible": true, "hidden": true, "disabled": true, "current": true,
	"expanded": true, "collapsed": true, "loading": true, "loaded": true,
	"checked": true, "show": true, "in": true, "fade": true,
}

// hashedClass matches generated class names: CSS-in-JS prefixes, CSS modules
// suffixes and short hash-like tokens.
var hashedClass = regexp.MustCompile(`^(css-[a-z0-9]+|sc-[a-zA-Z0-9]+|jsx-[0-9]+|svelte-[a-z0-9]+|emotion-[0-9]+|ng-[a-z]+-c[0-9]+|[a-zA-Z0-9]+_[a-zA-Z0-9]+__[a-zA-Z0-9_-]{4,}|_[a-zA-Z0-9_-]{5,})$`)

// IsVolatileClass reports whether a class name is unlikely to survive a
// reload: state classes and generated hash-like names.
func IsVolatileClass(class string) bool {
	lc := strings.ToLower(class)
	if stateClasses[lc] {
		return true
	}
	for _, prefix := range []string{"is-", "has-"} {
		if strings.HasPrefix(lc, prefix) {
			return true
		}
	}
	if i := strings.LastIndex(lc, "--"); i >= 0 && stateClasses[lc[i+2:]] {
		return true
	}
	if hashedClass.MatchString(class) {
		return true
	}
	return isShortHash(class)
}

// isShortHash reports whether class looks like a short random token that
// mixes letters and digits, e.g. "x7f3k".
func isShortHash(class string) bool {
	if len(class) < 4 || len(class) > 8 {
		return false
	}
	var letters, digits int
	for _, r := range class {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letters++
		default:
			return false
		}
	}
	return letters > 0 && digits >= 2
}

// stableClasses returns the non-volatile classes of el, in order.
func stableClasses(el listgrab.Element) []string {
	var classes []string
	for _, c := range listgrab.Classes(el) {
		if !IsVolatileClass(c) {
			classes = append(classes, c)
		}
	}
	return classes
}

// BuildSelectors derives container and item selectors for match.
//
// The container selector tries a unique id, then a unique stable attribute,
// then an ancestor path disambiguated with nth-of-type, validating
// uniqueness after each step. If nothing is unique the longest path is
// returned as a best effort.
func BuildSelectors(ctx context.Context, doc listgrab.Document, match *listgrab.PatternMatch) (*listgrab.Selectors, error) {
	if match == nil || match.Container == nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "pattern match required")
	}

	container, err := containerSelector(ctx, doc, match.Container)
	if err != nil {
		return nil, err
	}
	item := itemSelector(match)

	return &listgrab.Selectors{
		ContainerSelector: container,
		ItemSelector:      item,
		FullItemSelector:  container + " > " + item,
	}, nil
}

func containerSelector(ctx context.Context, doc listgrab.Document, el listgrab.Element) (string, error) {
	if sel, ok, err := uniqueIdentity(ctx, doc, el); err != nil || ok {
		return sel, err
	}

	var segments []string
	current := el
	for current != nil && current.Tag() != "html" {
		seg, err := pathSegment(ctx, doc, current)
		if err != nil {
			return "", err
		}
		segments = append([]string{seg}, segments...)
		candidate := strings.Join(segments, " > ")
		if ok, err := unique(ctx, doc, candidate); err != nil {
			return "", err
		} else if ok {
			return candidate, nil
		}

		parent, err := doc.Parent(ctx, current)
		if err != nil {
			return "", fmt.Errorf("reading parent: %w", err)
		}
		if parent != nil {
			if sel, ok, err := uniqueIdentity(ctx, doc, parent); err != nil {
				return "", err
			} else if ok {
				anchored := sel + " > " + candidate
				if ok, err := unique(ctx, doc, anchored); err != nil {
					return "", err
				} else if ok {
					return anchored, nil
				}
			}
		}
		current = parent
	}
	return strings.Join(segments, " > "), nil
}

// uniqueIdentity returns an id or stable attribute selector that matches
// only el.
func uniqueIdentity(ctx context.Context, doc listgrab.Document, el listgrab.Element) (string, bool, error) {
	if id, ok := listgrab.AttrValue(el, "id"); ok && id != "" {
		sel := "#" + cssEscape(id)
		if ok, err := unique(ctx, doc, sel); err != nil || ok {
			return sel, ok, err
		}
	}
	for _, name := range stableAttrs {
		v, ok := listgrab.AttrValue(el, name)
		if !ok || v == "" {
			continue
		}
		for _, sel := range []string{
			attrSelector(name, v),
			el.Tag() + attrSelector(name, v),
		} {
			if ok, err := unique(ctx, doc, sel); err != nil || ok {
				return sel, ok, err
			}
		}
	}
	return "", false, nil
}

// pathSegment returns tag plus up to two stable classes, with nth-of-type
// when same-tag siblings would also match.
func pathSegment(ctx context.Context, doc listgrab.Document, el listgrab.Element) (string, error) {
	classes := stableClasses(el)
	if len(classes) > maxContainerClasses {
		classes = classes[:maxContainerClasses]
	}
	seg := el.Tag()
	for _, c := range classes {
		seg += "." + cssEscape(c)
	}

	parent, err := doc.Parent(ctx, el)
	if err != nil {
		return "", fmt.Errorf("reading parent: %w", err)
	}
	if parent == nil {
		return seg, nil
	}
	siblings, err := doc.Children(ctx, parent)
	if err != nil {
		return "", fmt.Errorf("reading children: %w", err)
	}

	index, sameTag, sameSeg := 0, 0, 0
	for _, s := range siblings {
		if s.Tag() != el.Tag() {
			continue
		}
		sameTag++
		if listgrab.SameElement(s, el) {
			index = sameTag
		}
		if hasClasses(s, classes) {
			sameSeg++
		}
	}
	if sameSeg > 1 && index > 0 {
		seg += fmt.Sprintf(":nth-of-type(%d)", index)
	}
	return seg, nil
}

func hasClasses(el listgrab.Element, classes []string) bool {
	have := make(map[string]bool)
	for _, c := range listgrab.Classes(el) {
		have[c] = true
	}
	for _, c := range classes {
		if !have[c] {
			return false
		}
	}
	return true
}

// itemSelector returns a selector for the members of match: shared stable
// classes, else a shared stable attribute, else the tag alone.
func itemSelector(match *listgrab.PatternMatch) string {
	tag := match.Fingerprint.Tag
	members := match.Siblings
	if len(members) == 0 {
		return tag
	}
	if tag == "" {
		tag = members[0].Tag()
	}

	// Class intersection in the order of the first member.
	var common []string
	for _, c := range stableClasses(members[0]) {
		shared := true
		for _, m := range members[1:] {
			if !hasClasses(m, []string{c}) {
				shared = false
				break
			}
		}
		if shared {
			common = append(common, c)
		}
	}
	if len(common) > 0 {
		if len(common) > maxItemClasses {
			common = common[:maxItemClasses]
		}
		sel := tag
		for _, c := range common {
			sel += "." + cssEscape(c)
		}
		return sel
	}

	for _, a := range members[0].Attrs() {
		name := strings.ToLower(a.Name)
		if !isItemAttr(name) {
			continue
		}
		sameValue := true
		shared := true
		for _, m := range members[1:] {
			v, ok := listgrab.AttrValue(m, a.Name)
			if !ok {
				shared = false
				break
			}
			if v != a.Value {
				sameValue = false
			}
		}
		if !shared {
			continue
		}
		if sameValue && a.Value != "" {
			return tag + attrSelector(name, a.Value)
		}
		return tag + "[" + cssEscape(name) + "]"
	}

	return tag
}

// isItemAttr reports whether an attribute may identify list items.
func isItemAttr(name string) bool {
	return strings.HasPrefix(name, "data-") ||
		strings.HasPrefix(name, "aria-") ||
		name == "role" ||
		name == "itemprop" ||
		name == "itemtype"
}

func unique(ctx context.Context, doc listgrab.Document, selector string) (bool, error) {
	els, err := doc.QueryAll(ctx, selector)
	if err != nil {
		if listgrab.ErrorCode(err) == listgrab.EINVALID {
			return false, nil
		}
		return false, fmt.Errorf("validating selector %q: %w", selector, err)
	}
	return len(els) == 1, nil
}

func attrSelector(name, value string) string {
	return "[" + cssEscape(name) + "=" + quote(value) + "]"
}

// quote returns value as a double-quoted CSS string.
func quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(value) + `"`
}

// cssEscape escapes an identifier for use in a CSS selector.
func cssEscape(ident string) string {
	var b strings.Builder
	for i, r := range ident {
		switch {
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, "\\%x ", r)
			} else {
				b.WriteRune(r)
			}
		case r == '-' && i == 0 && len(ident) == 1:
			b.WriteString(`\-`)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' || r > 0x7f:
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
