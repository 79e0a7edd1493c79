package domstate

// FieldFunc computes a field list from the element. Returning nil means the
// field is absent for that element.
type FieldFunc func(el Element) ([]string, error)

// Field is either a static list of names or a list computed per element. The
// zero Field is absent.
type Field struct {
	static []string
	fn     FieldFunc
}

// Static returns a Field with a fixed list of names.
func Static(names ...string) Field {
	if len(names) == 0 {
		return Field{}
	}
	return Field{static: append([]string(nil), names...)}
}

// Computed returns a Field whose names are computed for every matched element.
func Computed(fn FieldFunc) Field {
	return Field{fn: fn}
}

// IsZero reports whether the field is absent.
func (f Field) IsZero() bool { return f.fn == nil && len(f.static) == 0 }

// Resolve returns the names to read on el. Absent resolves to an empty list.
func (f Field) Resolve(el Element) ([]string, error) {
	if f.fn != nil {
		return f.fn(el)
	}
	return f.static, nil
}

// Rule pairs a document query with the fields to record on each match.
type Rule struct {
	Query      string
	Attributes Field
	Properties Field
	Dataset    Field
}

// ComponentProps lists the props declared by the component an element
// belongs to. Elements that are not components have no props.
func ComponentProps(el Element) ([]string, error) {
	c, ok := el.(ComponentElement)
	if !ok {
		return nil, nil
	}
	return c.ComponentProps()
}

// ComponentQuery matches elements mounted as components.
const ComponentQuery = "[data-simple-component]"

// DefaultRules returns the built-in rule set: form controls, disclosure
// widgets, ARIA selection and component props.
func DefaultRules() []Rule {
	return []Rule{
		{
			Query:      "input:not([type=radio]):not([type=checkbox]):not([type=file])",
			Properties: Static("value"),
		},
		{
			Query:      "input[type=radio], input[type=checkbox]",
			Properties: Static("checked"),
		},
		{
			Query:      "textarea",
			Properties: Static("value"),
		},
		{
			Query:      "select",
			Properties: Static("value"),
		},
		{
			Query:      "details, dialog",
			Properties: Static("open"),
		},
		{
			Query:      "[aria-selected]",
			Attributes: Static("aria-selected"),
		},
		{
			Query:   ComponentQuery,
			Dataset: Computed(ComponentProps),
		},
	}
}
