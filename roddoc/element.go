package roddoc

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/domresume/domstate"
)

// Element is one element of a live page.
type Element struct {
	doc *Document
	el  *rod.Element
	tag string
}

var (
	_ domstate.Element          = (*Element)(nil)
	_ domstate.ComponentElement = (*Element)(nil)
)

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

// TagName returns the local name of the element.
func (e *Element) TagName() string { return e.tag }

// Attribute implements domstate.Element.
func (e *Element) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("roddoc: attribute %q: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// SetAttribute implements domstate.Element.
func (e *Element) SetAttribute(name, value string) error {
	if _, err := e.el.Eval(`(n, v) => this.setAttribute(n, v)`, name, value); err != nil {
		return fmt.Errorf("roddoc: set attribute %q: %w", name, err)
	}
	return nil
}

// Property implements domstate.Element. Only primitive values (string,
// number, boolean) count as present; object-valued properties read as absent.
func (e *Element) Property(name string) (any, bool, error) {
	res, err := e.el.Eval(`(n) => {
		if (!(n in this)) return { ok: false };
		const v = this[n];
		const t = typeof v;
		if (t !== 'string' && t !== 'number' && t !== 'boolean') return { ok: false };
		return { ok: true, v };
	}`, name)
	if err != nil {
		return nil, false, fmt.Errorf("roddoc: property %q: %w", name, err)
	}
	if !res.Value.Get("ok").Bool() {
		return nil, false, nil
	}
	return res.Value.Get("v").Val(), true, nil
}

// SetProperty implements domstate.Element. Writing a property the element
// does not have fails with domstate.ErrUnsupportedProperty.
func (e *Element) SetProperty(name string, value any) error {
	res, err := e.el.Eval(`(n, v) => {
		if (!(n in this)) return false;
		this[n] = v;
		return true;
	}`, name, value)
	if err != nil {
		return fmt.Errorf("roddoc: set property %q: %w", name, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: <%s>.%s", domstate.ErrUnsupportedProperty, e.tag, name)
	}
	return nil
}

// Data implements domstate.Element.
func (e *Element) Data(name string) (string, bool, error) {
	res, err := e.el.Eval(`(n) => n in this.dataset ? this.dataset[n] : null`, name)
	if err != nil {
		return "", false, fmt.Errorf("roddoc: dataset %q: %w", name, err)
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

// SetData implements domstate.Element.
func (e *Element) SetData(name, value string) error {
	if _, err := e.el.Eval(`(n, v) => { this.dataset[n] = v }`, name, value); err != nil {
		return fmt.Errorf("roddoc: set dataset %q: %w", name, err)
	}
	return nil
}

// ScrollOffset implements domstate.Element.
func (e *Element) ScrollOffset() (domstate.Scroll, error) {
	res, err := e.el.Eval(`() => ({ top: this.scrollTop, left: this.scrollLeft })`)
	if err != nil {
		return domstate.Scroll{}, fmt.Errorf("roddoc: scroll offset: %w", err)
	}
	return domstate.Scroll{
		Top:  res.Value.Get("top").Num(),
		Left: res.Value.Get("left").Num(),
	}, nil
}

// ScrollTo implements domstate.Element.
func (e *Element) ScrollTo(off domstate.Scroll) error {
	if _, err := e.el.Eval(`(top, left) => { this.scrollTop = top; this.scrollLeft = left }`, off.Top, off.Left); err != nil {
		return fmt.Errorf("roddoc: scroll: %w", err)
	}
	return nil
}

// Focus implements domstate.Element.
func (e *Element) Focus() error {
	if err := e.el.Focus(); err != nil {
		return fmt.Errorf("roddoc: focus: %w", err)
	}
	return nil
}

// ComponentProps implements domstate.ComponentElement from the component
// table the Document was created with.
func (e *Element) ComponentProps() ([]string, error) {
	name, ok, err := e.Attribute("data-simple-component")
	if err != nil || !ok {
		return nil, err
	}
	props := e.doc.components[name]
	if len(props) == 0 {
		return nil, nil
	}
	return append([]string(nil), props...), nil
}
