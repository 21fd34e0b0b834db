package goquery

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/listgrab"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Standard field names.
const (
	FieldTitle = "title"
	FieldLink  = "link"
	FieldImage = "image"
	FieldText  = "text"
)

// titleSelectors are tried in order inside an item.
var titleSelectors = []string{
	"h1", "h2", "h3", "h4", "h5", "h6",
	`[itemprop="name"]`, `[itemprop="headline"]`,
	`[class*="title"]`, `[class*="headline"]`, `[class*="name"]`,
}

var _ listgrab.Extractor = (*FieldExtractor)(nil)

// FieldExtractor reads a flat field record from the markup of one item:
// title, link, image and text by heuristic, the data-* attributes of the
// item root, and any configured fields.
type FieldExtractor struct {
	fields map[string]field
}

type field struct {
	sel  cascadia.Selector
	attr string
}

// NewExtractor returns a FieldExtractor. Each entry of fields maps a field
// name to a selector evaluated inside the item; a selector may end in
// "@attr" to read an attribute instead of the text, e.g. "a.more@href".
// Returns EINVALID if a selector does not compile.
func NewExtractor(fields map[string]string) (*FieldExtractor, error) {
	e := &FieldExtractor{fields: make(map[string]field, len(fields))}
	for name, spec := range fields {
		sel, attr := spec, ""
		if i := strings.LastIndex(spec, "@"); i >= 0 {
			sel, attr = spec[:i], spec[i+1:]
		}
		sel = strings.TrimSpace(sel)
		if sel == "" {
			// Attribute of the item root.
			e.fields[name] = field{attr: attr}
			continue
		}
		compiled, err := cascadia.Compile(sel)
		if err != nil {
			return nil, listgrab.Errorf(listgrab.EINVALID, "invalid selector for field %q: %v", name, err)
		}
		e.fields[name] = field{sel: compiled, attr: attr}
	}
	return e, nil
}

// Extract parses html and returns its fields. Links and images are resolved
// against baseURL.
func (e *FieldExtractor) Extract(html string, baseURL string) (*listgrab.Item, error) {
	if strings.TrimSpace(html) == "" {
		return nil, listgrab.Errorf(listgrab.EINVALID, "item HTML required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "invalid base URL: %v", err)
	}

	root, err := parseItem(html)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string)
	if text := collapse(root.Text()); text != "" {
		fields[FieldText] = text
	}
	anchor, link := findLink(root, base)
	if link != "" {
		fields[FieldLink] = link
	}
	title := findTitle(root)
	if title == "" && anchor != nil {
		title = collapse(anchor.Text())
	}
	if title != "" {
		fields[FieldTitle] = title
	}
	if image := findImage(root, base); image != "" {
		fields[FieldImage] = image
	}
	for _, a := range root.Nodes[0].Attr {
		if strings.HasPrefix(a.Key, "data-") && a.Key != listgrab.OverlayAttr {
			fields[a.Key] = a.Val
		}
	}

	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := e.fields[name]
		sel := root
		if f.sel != nil {
			sel = root.FindMatcher(f.sel).First()
			if sel.Length() == 0 && root.IsMatcher(f.sel) {
				sel = root
			}
		}
		if sel.Length() == 0 {
			continue
		}
		var v string
		if f.attr == "" {
			v = collapse(sel.Text())
		} else {
			v, _ = sel.Attr(f.attr)
			if f.attr == "href" || f.attr == "src" {
				v = resolveURL(base, v)
			}
		}
		if v != "" {
			fields[name] = v
		}
	}

	return &listgrab.Item{Fields: fields, HTML: html}, nil
}

// fragmentContext maps item root tags to the parent element they must be
// parsed in. Everything else parses in body.
var fragmentContext = map[string]atom.Atom{
	"tr":       atom.Tbody,
	"td":       atom.Tr,
	"th":       atom.Tr,
	"tbody":    atom.Table,
	"thead":    atom.Table,
	"option":   atom.Select,
	"li":       atom.Ul,
	"dt":       atom.Dl,
	"dd":       atom.Dl,
	"colgroup": atom.Table,
}

// parseItem parses the markup of one item and returns its root element.
func parseItem(markup string) (*goquery.Selection, error) {
	parent := atom.Body
	if a, ok := fragmentContext[leadingTag(markup)]; ok {
		parent = a
	}
	parentNode := &html.Node{Type: html.ElementNode, Data: parent.String(), DataAtom: parent}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parentNode)
	if err != nil {
		return nil, listgrab.Errorf(listgrab.EINVALID, "failed to parse HTML: %v", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return goquery.NewDocumentFromNode(n).Selection, nil
		}
	}
	return nil, listgrab.Errorf(listgrab.EINVALID, "item HTML has no element")
}

// leadingTag returns the lowercased name of the first tag in markup.
func leadingTag(markup string) string {
	s := strings.TrimSpace(markup)
	if !strings.HasPrefix(s, "<") {
		return ""
	}
	end := 1
	for end < len(s) && (s[end] >= 'a' && s[end] <= 'z' || s[end] >= 'A' && s[end] <= 'Z' || s[end] >= '0' && s[end] <= '9') {
		end++
	}
	return strings.ToLower(s[1:end])
}

func findTitle(root *goquery.Selection) string {
	for _, sel := range titleSelectors {
		if t := collapse(root.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// findLink returns the first followable anchor of root and its resolved URL.
func findLink(root *goquery.Selection, base *url.URL) (*goquery.Selection, string) {
	candidates := root.Find("a[href]")
	if goquery.NodeName(root) == "a" {
		candidates = root.AddSelection(candidates)
	}
	var (
		anchor *goquery.Selection
		link   string
	)
	candidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if href == "" || isNonHTTPLink(href) {
			return true
		}
		if link = resolveURL(base, href); link != "" {
			anchor = s
			return false
		}
		return true
	})
	return anchor, link
}

func findImage(root *goquery.Selection, base *url.URL) string {
	var image string
	root.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "data-src"} {
			src, _ := s.Attr(attr)
			if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
				continue
			}
			image = resolveURL(base, src)
			if image != "" {
				return false
			}
		}
		return true
	})
	return image
}

// resolveURL resolves href against base. Returns "" if href cannot be
// parsed.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		strings.HasPrefix(href, "#")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
