package domstate

import (
	"fmt"
	"math"
)

// Extract reads the fields rule asks for on el. Falsy values (empty string,
// false, numeric zero, nil) are left out, and a category with no recorded
// field is absent from the result.
func Extract(el Element, rule Rule) (ElementState, error) {
	return extract(el, rule, false)
}

func extract(el Element, rule Rule, keepFalsy bool) (ElementState, error) {
	var st ElementState

	names, err := rule.Attributes.Resolve(el)
	if err != nil {
		return st, fmt.Errorf("domstate: resolve attributes for %q: %w", rule.Query, err)
	}
	for _, name := range names {
		v, ok, err := el.Attribute(name)
		if err != nil {
			return st, fmt.Errorf("domstate: read attribute %q: %w", name, err)
		}
		if !ok || (!keepFalsy && v == "") {
			continue
		}
		if st.Attributes == nil {
			st.Attributes = make(map[string]string)
		}
		st.Attributes[name] = v
	}

	names, err = rule.Properties.Resolve(el)
	if err != nil {
		return st, fmt.Errorf("domstate: resolve properties for %q: %w", rule.Query, err)
	}
	for _, name := range names {
		v, ok, err := el.Property(name)
		if err != nil {
			return st, fmt.Errorf("domstate: read property %q: %w", name, err)
		}
		if !ok || v == nil || (!keepFalsy && !truthy(v)) {
			continue
		}
		if st.Properties == nil {
			st.Properties = make(map[string]any)
		}
		st.Properties[name] = v
	}

	names, err = rule.Dataset.Resolve(el)
	if err != nil {
		return st, fmt.Errorf("domstate: resolve dataset for %q: %w", rule.Query, err)
	}
	for _, name := range names {
		v, ok, err := el.Data(name)
		if err != nil {
			return st, fmt.Errorf("domstate: read dataset %q: %w", name, err)
		}
		if !ok || (!keepFalsy && v == "") {
			continue
		}
		if st.Dataset == nil {
			st.Dataset = make(map[string]string)
		}
		st.Dataset[name] = v
	}

	return st, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint:
		return x != 0
	case uint64:
		return x != 0
	}
	return true
}
