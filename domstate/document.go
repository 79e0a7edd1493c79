package domstate

import "errors"

// ErrUnsupportedProperty is returned by Element implementations when asked to
// write a live property they do not model.
var ErrUnsupportedProperty = errors.New("domstate: unsupported property")

// Element is one live element of a Document.
//
// Implementations expose a closed set of named live properties per element
// kind. Reads report whether the value is present at all; a missing
// attribute, an unknown property or an undefined dataset entry reads as
// (zero, false, nil).
//
// Element values are used as map keys by Session, so implementations must be
// comparable and stable for the lifetime of the document (pointer types).
type Element interface {
	Attribute(name string) (string, bool, error)
	SetAttribute(name, value string) error

	Property(name string) (any, bool, error)
	SetProperty(name string, value any) error

	Data(name string) (string, bool, error)
	SetData(name, value string) error

	ScrollOffset() (Scroll, error)
	ScrollTo(offset Scroll) error

	Focus() error
}

// Document resolves queries against a live document.
type Document interface {
	// QueryAll returns every element matching query, in document order.
	QueryAll(query string) ([]Element, error)
	// Query returns the first element matching selector, or nil when nothing
	// matches.
	Query(selector string) (Element, error)
	// ActiveElement returns the focused element, or nil when focus rests on
	// the body root.
	ActiveElement() (Element, error)
}

// SelectorGenerator maps an element to a string that resolves back to exactly
// that element through Document.Query on a structurally unchanged document.
type SelectorGenerator interface {
	Selector(el Element) (string, error)
}

// SelectorFunc adapts a function to SelectorGenerator.
type SelectorFunc func(el Element) (string, error)

func (f SelectorFunc) Selector(el Element) (string, error) { return f(el) }

// ComponentElement is implemented by elements that belong to a registered
// component and can list its declared props.
type ComponentElement interface {
	ComponentProps() ([]string, error)
}
