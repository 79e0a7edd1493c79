// Package htmldoc is an in-memory document for domstate built on
// golang.org/x/net/html.
//
// It models the live state a browser keeps next to the markup (input values,
// checkedness, select index, scroll offsets, focus) so that pages can be
// captured and restored without a browser: server-side rendering of a saved
// state, tests, and fixtures.
package htmldoc

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domresume/domstate"
)

// ErrForeignElement is returned when an element of another document (or of
// another Element implementation) is passed to a Document.
var ErrForeignElement = errors.New("htmldoc: element does not belong to this document")

// Document is a parsed HTML document plus the live state of its elements.
// It is not safe for concurrent use, like the single-threaded page it models.
type Document struct {
	root       *html.Node
	elements   map[*html.Node]*Element
	active     *Element
	location   string
	reload     bool
	components map[string][]string
	onScroll   []func(*Element)
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{
		root:       root,
		elements:   make(map[*html.Node]*Element),
		location:   "/",
		components: make(map[string][]string),
	}, nil
}

// ParseString reads an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render serialises the markup. Live properties that are not reflected in
// attributes (input values, checkedness) are not part of the output.
func (d *Document) Render() (string, error) {
	var b strings.Builder
	if err := html.Render(&b, d.root); err != nil {
		return "", fmt.Errorf("htmldoc: render: %w", err)
	}
	return b.String(), nil
}

// Location returns the path of the document.
func (d *Document) Location() string { return d.location }

// SetLocation sets the path of the document.
func (d *Document) SetLocation(path string) { d.location = path }

// IsReload reports whether the document was loaded by a reload.
func (d *Document) IsReload() bool { return d.reload }

// SetReload marks the document as loaded by a reload.
func (d *Document) SetReload(reload bool) { d.reload = reload }

// RegisterComponent declares the props of a component. Elements carrying
// data-simple-component="name" report them through ComponentProps.
func (d *Document) RegisterComponent(name string, props ...string) {
	d.components[name] = append([]string(nil), props...)
}

// OnScroll registers fn to be called whenever an element's scroll offset
// changes.
func (d *Document) OnScroll(fn func(*Element)) {
	d.onScroll = append(d.onScroll, fn)
}

// QueryAll implements domstate.Document.
func (d *Document) QueryAll(query string) ([]domstate.Element, error) {
	els, err := d.Elements(query)
	if err != nil {
		return nil, err
	}
	out := make([]domstate.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

// Query implements domstate.Document.
func (d *Document) Query(selector string) (domstate.Element, error) {
	el, err := d.Element(selector)
	if err != nil || el == nil {
		return nil, err
	}
	return el, nil
}

// ActiveElement implements domstate.Document.
func (d *Document) ActiveElement() (domstate.Element, error) {
	if d.active == nil {
		return nil, nil
	}
	return d.active, nil
}

// Elements returns the elements matching query in document order.
func (d *Document) Elements(query string) ([]*Element, error) {
	group, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	nodes := queryAll(d.root, group)
	out := make([]*Element, len(nodes))
	for i, n := range nodes {
		out[i] = d.wrap(n)
	}
	return out, nil
}

// Element returns the first element matching selector, or nil.
func (d *Document) Element(selector string) (*Element, error) {
	els, err := d.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// MustElement is Element for tests and fixtures; it panics when nothing
// matches.
func (d *Document) MustElement(selector string) *Element {
	el, err := d.Element(selector)
	if err != nil {
		panic(err)
	}
	if el == nil {
		panic("htmldoc: no element matches " + selector)
	}
	return el
}

// Body returns the body element.
func (d *Document) Body() *Element {
	if n := findFirst(d.root, atom.Body); n != nil {
		return d.wrap(n)
	}
	return nil
}

// Root returns the html element.
func (d *Document) Root() *Element {
	if n := findFirst(d.root, atom.Html); n != nil {
		return d.wrap(n)
	}
	return nil
}

func (d *Document) wrap(n *html.Node) *Element {
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

func (d *Document) own(el domstate.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.doc != d {
		return nil, ErrForeignElement
	}
	return e, nil
}

func (d *Document) scrolled(el *Element) {
	for _, fn := range d.onScroll {
		fn(el)
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// --- selector generation ---

var plainIdent = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// Selector implements domstate.SelectorGenerator. It prefers a unique #id,
// then climbs the ancestor chain and returns the shortest " > " chain of
// tag, tag[name="…"] or tag:nth-of-type(k) segments that matches exactly el.
func (d *Document) Selector(el domstate.Element) (string, error) {
	e, err := d.own(el)
	if err != nil {
		return "", err
	}
	target := e.node

	var chain []string
	for cur := target; cur != nil; cur = parentElement(cur) {
		for _, cand := range d.candidates(cur) {
			sel := joinChain(cand, chain)
			if d.resolvesTo(sel, target) {
				return sel, nil
			}
		}
		chain = append([]string{exactSegment(cur)}, chain...)
	}

	sel := strings.Join(chain, " > ")
	if !d.resolvesTo(sel, target) {
		return "", fmt.Errorf("htmldoc: no unique selector for <%s>", target.Data)
	}
	return sel, nil
}

func (d *Document) candidates(n *html.Node) []string {
	var out []string
	if id, ok := getAttr(n, "id"); ok && plainIdent.MatchString(id) {
		out = append(out, "#"+id)
	}
	out = append(out, n.Data)
	if name, ok := getAttr(n, "name"); ok && name != "" {
		out = append(out, fmt.Sprintf("%s[name=%s]", n.Data, quote(name)))
	}
	if typeCount(n) > 1 {
		out = append(out, exactSegment(n))
	}
	return out
}

func (d *Document) resolvesTo(sel string, target *html.Node) bool {
	group, err := compileQuery(sel)
	if err != nil {
		return false
	}
	nodes := queryAll(d.root, group)
	return len(nodes) == 1 && nodes[0] == target
}

func exactSegment(n *html.Node) string {
	if typeCount(n) > 1 {
		return fmt.Sprintf("%s:nth-of-type(%d)", n.Data, typeIndex(n))
	}
	return n.Data
}

func joinChain(head string, chain []string) string {
	if len(chain) == 0 {
		return head
	}
	return head + " > " + strings.Join(chain, " > ")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
