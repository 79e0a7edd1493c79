package domstate

import (
	"fmt"
	"iter"
	"maps"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is one selector/state pair of a Page.
type Entry struct {
	Selector string
	State    ElementState
}

// Page is a full-page snapshot: selector -> ElementState. Iteration follows
// insertion order, which for a captured page is capture order. A Page is not
// modified after it has been built; Get and All hand out copies.
type Page struct {
	entries *orderedmap.OrderedMap[string, ElementState]
}

// NewPage builds a Page from entries. A repeated selector keeps its first
// position and the last state.
func NewPage(entries ...Entry) Page {
	b := newPageBuilder()
	for _, e := range entries {
		b.set(e.Selector, e.State)
	}
	return b.page()
}

// Len returns the number of entries.
func (p Page) Len() int {
	if p.entries == nil {
		return 0
	}
	return p.entries.Len()
}

// Get returns a copy of the state stored for selector.
func (p Page) Get(selector string) (ElementState, bool) {
	if p.entries == nil {
		return ElementState{}, false
	}
	st, ok := p.entries.Get(selector)
	return st.clone(), ok
}

// Selectors returns the selectors in iteration order.
func (p Page) Selectors() []string {
	out := make([]string, 0, p.Len())
	for k := range p.All() {
		out = append(out, k)
	}
	return out
}

// All iterates over copies of the entries in order.
func (p Page) All() iter.Seq2[string, ElementState] {
	return func(yield func(string, ElementState) bool) {
		if p.entries == nil {
			return
		}
		for pair := p.entries.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value.clone()) {
				return
			}
		}
	}
}

// MarshalJSON encodes the page as a plain object, keys in page order.
func (p Page) MarshalJSON() ([]byte, error) {
	if p.entries == nil {
		return []byte("{}"), nil
	}
	return p.entries.MarshalJSON()
}

// UnmarshalJSON decodes a plain object, keeping the key order of the input.
// Numeric property values decode as float64, the type live properties
// report numbers in.
func (p *Page) UnmarshalJSON(data []byte) error {
	om := orderedmap.New[string, ElementState]()
	if err := om.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("domstate: decode page: %w", err)
	}
	p.entries = om
	return nil
}

// clone copies the maps and pointers of s so that callers cannot reach the
// state held by a Page.
func (s ElementState) clone() ElementState {
	out := ElementState{
		Attributes: maps.Clone(s.Attributes),
		Properties: maps.Clone(s.Properties),
		Dataset:    maps.Clone(s.Dataset),
	}
	if s.Scroll != nil {
		sc := *s.Scroll
		out.Scroll = &sc
	}
	if s.Focused != nil {
		out.Focused = boolPtr(*s.Focused)
	}
	return out
}

type pageBuilder struct {
	entries *orderedmap.OrderedMap[string, ElementState]
}

func newPageBuilder() *pageBuilder {
	return &pageBuilder{entries: orderedmap.New[string, ElementState]()}
}

func (b *pageBuilder) set(selector string, st ElementState) {
	b.entries.Set(selector, st.clone())
}

// merge stores st under selector, merged over any existing entry.
func (b *pageBuilder) merge(selector string, st ElementState) {
	if prev, ok := b.entries.Get(selector); ok {
		st = Merge(prev, st)
	}
	b.set(selector, st)
}

func (b *pageBuilder) page() Page {
	return Page{entries: b.entries}
}
