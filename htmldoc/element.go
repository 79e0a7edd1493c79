package htmldoc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/domresume/domstate"
)

// Element is one element of a Document together with its live state.
type Element struct {
	doc  *Document
	node *html.Node

	// Live state; nil means "still the default derived from the markup".
	value    *string
	checked  *bool
	selected *int

	scroll domstate.Scroll
}

var _ domstate.Element = (*Element)(nil)

// Node returns the underlying html node.
func (e *Element) Node() *html.Node { return e.node }

// TagName returns the lower-case tag name.
func (e *Element) TagName() string { return e.node.Data }

// Attribute implements domstate.Element.
func (e *Element) Attribute(name string) (string, bool, error) {
	v, ok := getAttr(e.node, strings.ToLower(name))
	return v, ok, nil
}

// SetAttribute implements domstate.Element.
func (e *Element) SetAttribute(name, value string) error {
	setAttr(e.node, strings.ToLower(name), value)
	return nil
}

// RemoveAttribute removes an attribute.
func (e *Element) RemoveAttribute(name string) {
	removeAttr(e.node, strings.ToLower(name))
}

// Data implements domstate.Element. name is the camelCase dataset key.
func (e *Element) Data(name string) (string, bool, error) {
	v, ok := getAttr(e.node, datasetAttr(name))
	return v, ok, nil
}

// SetData implements domstate.Element.
func (e *Element) SetData(name, value string) error {
	setAttr(e.node, datasetAttr(name), value)
	return nil
}

// ScrollOffset implements domstate.Element.
func (e *Element) ScrollOffset() (domstate.Scroll, error) {
	return e.scroll, nil
}

// ScrollTo implements domstate.Element. Scroll listeners fire when the
// offset changes.
func (e *Element) ScrollTo(off domstate.Scroll) error {
	off.Top = math.Max(0, off.Top)
	off.Left = math.Max(0, off.Left)
	if off == e.scroll {
		return nil
	}
	e.scroll = off
	e.doc.scrolled(e)
	return nil
}

// Focus implements domstate.Element. Focusing the body clears the focus.
func (e *Element) Focus() error {
	switch e.node.DataAtom {
	case atom.Body, atom.Html:
		e.doc.active = nil
	default:
		e.doc.active = e
	}
	return nil
}

// Blur removes the focus from e.
func (e *Element) Blur() {
	if e.doc.active == e {
		e.doc.active = nil
	}
}

// ComponentProps implements domstate.ComponentElement.
func (e *Element) ComponentProps() ([]string, error) {
	name, ok := getAttr(e.node, "data-simple-component")
	if !ok {
		return nil, nil
	}
	props, ok := e.doc.components[name]
	if !ok || len(props) == 0 {
		return nil, nil
	}
	return append([]string(nil), props...), nil
}

// Property implements domstate.Element. The supported properties depend on
// the element kind:
//
//	input            value, checked (checkbox, radio), disabled
//	textarea         value, disabled
//	select           value, selectedIndex, disabled
//	option           value, disabled
//	details, dialog  open
//	any element      id, className, hidden
func (e *Element) Property(name string) (any, bool, error) {
	n := e.node
	switch name {
	case "id":
		v, _ := getAttr(n, "id")
		return v, true, nil
	case "className":
		v, _ := getAttr(n, "class")
		return v, true, nil
	case "hidden":
		_, ok := getAttr(n, "hidden")
		return ok, true, nil
	case "disabled":
		if !e.isFormControl() {
			return nil, false, nil
		}
		_, ok := getAttr(n, "disabled")
		return ok, true, nil
	case "open":
		if n.DataAtom != atom.Details && n.DataAtom != atom.Dialog {
			return nil, false, nil
		}
		_, ok := getAttr(n, "open")
		return ok, true, nil
	case "value":
		switch n.DataAtom {
		case atom.Input, atom.Textarea:
			return e.currentValue(), true, nil
		case atom.Select:
			idx := e.selectedIndex()
			if idx < 0 {
				return "", true, nil
			}
			return optionValue(e.options()[idx]), true, nil
		case atom.Option:
			return optionValue(n), true, nil
		}
	case "checked":
		if e.isCheckable() {
			return e.currentChecked(), true, nil
		}
	case "selectedIndex":
		if n.DataAtom == atom.Select {
			return float64(e.selectedIndex()), true, nil
		}
	}
	return nil, false, nil
}

// SetProperty implements domstate.Element.
func (e *Element) SetProperty(name string, value any) error {
	n := e.node
	switch name {
	case "id":
		setAttr(n, "id", toString(value))
		return nil
	case "className":
		setAttr(n, "class", toString(value))
		return nil
	case "hidden":
		e.reflectBool("hidden", toBool(value))
		return nil
	case "disabled":
		if e.isFormControl() {
			e.reflectBool("disabled", toBool(value))
			return nil
		}
	case "open":
		if n.DataAtom == atom.Details || n.DataAtom == atom.Dialog {
			e.reflectBool("open", toBool(value))
			return nil
		}
	case "value":
		switch n.DataAtom {
		case atom.Input, atom.Textarea:
			v := toString(value)
			e.value = &v
			return nil
		case atom.Select:
			want := toString(value)
			idx := -1
			for i, opt := range e.options() {
				if optionValue(opt) == want {
					idx = i
					break
				}
			}
			e.selected = &idx
			return nil
		case atom.Option:
			setAttr(n, "value", toString(value))
			return nil
		}
	case "checked":
		if e.isCheckable() {
			e.setChecked(toBool(value))
			return nil
		}
	case "selectedIndex":
		if n.DataAtom == atom.Select {
			f, err := toFloat(value)
			if err != nil {
				return fmt.Errorf("htmldoc: selectedIndex: %w", err)
			}
			idx := int(f)
			if idx < 0 || idx >= len(e.options()) {
				idx = -1
			}
			e.selected = &idx
			return nil
		}
	}
	return fmt.Errorf("%w: <%s>.%s", domstate.ErrUnsupportedProperty, n.Data, name)
}

func (e *Element) isFormControl() bool {
	switch e.node.DataAtom {
	case atom.Input, atom.Textarea, atom.Select, atom.Option, atom.Button, atom.Fieldset:
		return true
	}
	return false
}

func (e *Element) inputType() string {
	t, _ := getAttr(e.node, "type")
	return strings.ToLower(t)
}

func (e *Element) isCheckable() bool {
	if e.node.DataAtom != atom.Input {
		return false
	}
	t := e.inputType()
	return t == "checkbox" || t == "radio"
}

func (e *Element) reflectBool(attr string, on bool) {
	if on {
		setAttr(e.node, attr, "")
	} else {
		removeAttr(e.node, attr)
	}
}

func (e *Element) currentValue() string {
	if e.value != nil {
		return *e.value
	}
	if e.node.DataAtom == atom.Textarea {
		return textContent(e.node)
	}
	if v, ok := getAttr(e.node, "value"); ok {
		return v
	}
	if e.isCheckable() {
		return "on"
	}
	return ""
}

func (e *Element) currentChecked() bool {
	if e.checked != nil {
		return *e.checked
	}
	_, ok := getAttr(e.node, "checked")
	return ok
}

// setChecked updates checkedness; checking a radio button unchecks the other
// buttons of its group.
func (e *Element) setChecked(on bool) {
	e.checked = &on
	if !on || e.inputType() != "radio" {
		return
	}
	name, ok := getAttr(e.node, "name")
	if !ok || name == "" {
		return
	}
	group, err := e.doc.Elements(fmt.Sprintf("input[type=radio][name=%s]", quote(name)))
	if err != nil {
		return
	}
	for _, other := range group {
		if other != e {
			off := false
			other.checked = &off
		}
	}
}

func (e *Element) options() []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Option {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(e.node)
	return out
}

// selectedIndex follows the single-select rules: the last option carrying
// the selected attribute wins, otherwise the first option.
func (e *Element) selectedIndex() int {
	opts := e.options()
	if e.selected != nil {
		if *e.selected >= len(opts) {
			return -1
		}
		return *e.selected
	}
	if len(opts) == 0 {
		return -1
	}
	idx := 0
	for i, opt := range opts {
		if _, ok := getAttr(opt, "selected"); ok {
			idx = i
		}
	}
	return idx
}

func optionValue(n *html.Node) string {
	if v, ok := getAttr(n, "value"); ok {
		return v
	}
	return strings.Join(strings.Fields(textContent(n)), " ")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// datasetAttr maps a camelCase dataset key to its data-* attribute.
func datasetAttr(name string) string {
	var b strings.Builder
	b.WriteString("data-")
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case nil:
		return false
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	}
	return true
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
