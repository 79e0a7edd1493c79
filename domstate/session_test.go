package domstate_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/domresume/domstate"
	"github.com/hazyhaar/domresume/htmldoc"
)

func parse(t *testing.T, src string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func newSession(t *testing.T, doc *htmldoc.Document, logs *bytes.Buffer, opts ...func(*domstate.Options)) *domstate.Session {
	t.Helper()
	o := domstate.Options{Selectors: doc}
	if logs != nil {
		o.Logger = slog.New(slog.NewTextHandler(logs, nil))
	}
	for _, fn := range opts {
		fn(&o)
	}
	s := domstate.NewSession(doc, o)
	doc.OnScroll(func(el *htmldoc.Element) { s.TrackScroll(el) })
	return s
}

const formHTML = `<html><body>
<input id="a" value="x">
<input id="b" type="checkbox" checked>
</body></html>`

func TestCapture_RoundTrip(t *testing.T) {
	doc := parse(t, formHTML)
	s := newSession(t, doc, nil)

	page, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	if got := page.Selectors(); !reflect.DeepEqual(got, []string{"#a", "#b"}) {
		t.Fatalf("selectors: got %v", got)
	}
	a, _ := page.Get("#a")
	if !reflect.DeepEqual(a, domstate.ElementState{Properties: map[string]any{"value": "x"}}) {
		t.Errorf("#a: got %+v", a)
	}
	b, _ := page.Get("#b")
	if !reflect.DeepEqual(b, domstate.ElementState{Properties: map[string]any{"checked": true}}) {
		t.Errorf("#b: got %+v", b)
	}

	fresh := parse(t, `<html><body><input id="a"><input id="b" type="checkbox"></body></html>`)
	newSession(t, fresh, nil).Apply(page)

	if v, _, _ := fresh.MustElement("#a").Property("value"); v != "x" {
		t.Errorf("#a.value: got %v, want x", v)
	}
	if v, _, _ := fresh.MustElement("#b").Property("checked"); v != true {
		t.Errorf("#b.checked: got %v, want true", v)
	}
}

func TestCapture_MixedCaseInputType(t *testing.T) {
	doc := parse(t, `<html><body>
<input id="c" type="Checkbox" checked>
<input id="r" type="RADIO" name="g">
</body></html>`)
	s := newSession(t, doc, nil)

	page, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got := page.Selectors(); !reflect.DeepEqual(got, []string{"#c"}) {
		t.Fatalf("selectors: got %v, want [#c]", got)
	}
	c, _ := page.Get("#c")
	if !reflect.DeepEqual(c, domstate.ElementState{Properties: map[string]any{"checked": true}}) {
		t.Errorf("#c: got %+v", c)
	}
}

func TestCapture_Idempotent(t *testing.T) {
	doc := parse(t, `<html><body>
<form><input name="q" value="go"><select><option>a</option><option selected>b</option></select></form>
<details open><summary>x</summary></details>
<div aria-selected="true"></div>
</body></html>`)
	s := newSession(t, doc, nil)
	if err := doc.MustElement("form").ScrollTo(domstate.Scroll{Top: 12}); err != nil {
		t.Fatal(err)
	}

	first, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("captures differ:\n%s\n%s", a, b)
	}
	if first.Len() != 5 {
		t.Fatalf("entries: got %d (%v), want 5", first.Len(), first.Selectors())
	}
}

func TestCapture_EmptyAttributeOmitted(t *testing.T) {
	doc := parse(t, `<html><body><div id="d" aria-selected=""></div></body></html>`)
	s := newSession(t, doc, nil)

	page, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	if page.Len() != 0 {
		t.Fatalf("expected empty page, got %v", page.Selectors())
	}
}

func TestCapture_KeepFalsy(t *testing.T) {
	doc := parse(t, `<html><body><input id="c" type="checkbox"><div id="d" aria-selected=""></div></body></html>`)
	s := newSession(t, doc, nil, func(o *domstate.Options) { o.KeepFalsy = true })

	page, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	c, ok := page.Get("#c")
	if !ok || c.Properties["checked"] != false {
		t.Errorf("#c: got %+v", c)
	}
	d, ok := page.Get("#d")
	if !ok || d.Attributes["aria-selected"] != "" {
		t.Errorf("#d: got %+v", d)
	}

	fresh := parse(t, `<html><body><input id="c" type="checkbox" checked><div id="d"></div></body></html>`)
	newSession(t, fresh, nil).Apply(page)
	if v, _, _ := fresh.MustElement("#c").Property("checked"); v != false {
		t.Errorf("#c.checked restored: got %v, want false", v)
	}
}

func TestCapture_MultiRuleMerge(t *testing.T) {
	doc := parse(t, `<html><body><div id="w" role="tab" data-panel="two"></div></body></html>`)
	s := newSession(t, doc, nil)

	rules := []domstate.Rule{
		{Query: "[role=tab]", Attributes: domstate.Static("role")},
		{Query: "#w", Dataset: domstate.Static("panel")},
		{Query: "div"},
	}
	page, err := s.Capture(rules)
	if err != nil {
		t.Fatal(err)
	}
	if page.Len() != 1 {
		t.Fatalf("entries: got %v", page.Selectors())
	}
	st, _ := page.Get("#w")
	if st.Attributes["role"] != "tab" || st.Dataset["panel"] != "two" {
		t.Fatalf("merged state: got %+v", st)
	}
}

func TestCapture_LaterRuleWinsOnConflict(t *testing.T) {
	doc := parse(t, `<html><body><input id="i" value="v" title="t"></body></html>`)
	s := newSession(t, doc, nil)

	rules := []domstate.Rule{
		{Query: "input", Attributes: domstate.Static("value", "title")},
		{Query: "#i", Attributes: domstate.Computed(func(domstate.Element) ([]string, error) {
			return []string{"value"}, nil
		}), Properties: domstate.Static("value")},
	}
	page, err := s.Capture(rules)
	if err != nil {
		t.Fatal(err)
	}
	st, _ := page.Get("#i")
	if st.Attributes["title"] != "t" || st.Attributes["value"] != "v" || st.Properties["value"] != "v" {
		t.Fatalf("got %+v", st)
	}
}

func TestCapture_ComputedFieldErrorAborts(t *testing.T) {
	doc := parse(t, formHTML)
	s := newSession(t, doc, nil)
	boom := errors.New("boom")

	rules := append(domstate.DefaultRules(), domstate.Rule{
		Query:      "input",
		Properties: domstate.Computed(func(domstate.Element) ([]string, error) { return nil, boom }),
	})
	if _, err := s.Capture(rules); !errors.Is(err, boom) {
		t.Fatalf("capture error: got %v, want %v", err, boom)
	}
}

func TestCapture_ComponentDataset(t *testing.T) {
	doc := parse(t, `<html><body>
<dialog data-simple-component="dialog" data-open="true"></dialog>
<div data-simple-component="unknown" data-open="true"></div>
</body></html>`)
	doc.RegisterComponent("dialog", "open")
	s := newSession(t, doc, nil)

	page, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	if page.Len() != 1 {
		t.Fatalf("entries: got %v", page.Selectors())
	}
	st, _ := page.Get("dialog")
	if st.Dataset["open"] != "true" {
		t.Fatalf("dialog dataset: got %+v", st)
	}
}

func TestCapture_ScrollAndFocus(t *testing.T) {
	doc := parse(t, `<html><body>
<div id="pane"></div><div id="still"></div><input id="name" value="ada">
</body></html>`)
	s := newSession(t, doc, nil)

	doc.MustElement("#pane").ScrollTo(domstate.Scroll{Top: 40, Left: 3})
	doc.MustElement("#still").ScrollTo(domstate.Scroll{Top: 10})
	doc.MustElement("#still").ScrollTo(domstate.Scroll{})
	doc.MustElement("#name").Focus()

	page, err := s.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	if got := page.Selectors(); !reflect.DeepEqual(got, []string{"#name", "#pane"}) {
		t.Fatalf("selectors: got %v", got)
	}
	pane, _ := page.Get("#pane")
	if pane.Scroll == nil || *pane.Scroll != (domstate.Scroll{Top: 40, Left: 3}) {
		t.Errorf("#pane scroll: got %+v", pane.Scroll)
	}
	name, _ := page.Get("#name")
	if name.Focused == nil || !*name.Focused || name.Properties["value"] != "ada" {
		t.Errorf("#name: got %+v", name)
	}
	if len(s.Tracked()) != 2 {
		t.Errorf("tracked: got %d, want 2", len(s.Tracked()))
	}
}

func TestCapture_BodyFocusIgnored(t *testing.T) {
	doc := parse(t, `<html><body><p>x</p></body></html>`)
	doc.Body().Focus()
	page, err := newSession(t, doc, nil).Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	if page.Len() != 0 {
		t.Fatalf("got %v", page.Selectors())
	}
}

func TestApply_MissingElementTolerated(t *testing.T) {
	doc := parse(t, `<html><body><input id="a"><textarea id="t"></textarea></body></html>`)
	var logs bytes.Buffer
	s := newSession(t, doc, &logs)

	page := domstate.NewPage(
		domstate.Entry{Selector: "#a", State: domstate.ElementState{Properties: map[string]any{"value": "1"}}},
		domstate.Entry{Selector: "#gone", State: domstate.ElementState{Properties: map[string]any{"value": "2"}}},
		domstate.Entry{Selector: "#t", State: domstate.ElementState{Properties: map[string]any{"value": "3"}}},
	)
	s.Apply(page)

	if n := strings.Count(logs.String(), "no element found for selector"); n != 1 {
		t.Fatalf("warnings: got %d, want 1\n%s", n, logs.String())
	}
	if v, _, _ := doc.MustElement("#a").Property("value"); v != "1" {
		t.Errorf("#a.value: got %v", v)
	}
	if v, _, _ := doc.MustElement("#t").Property("value"); v != "3" {
		t.Errorf("#t.value: got %v", v)
	}
}

func TestApply_UnsupportedPropertyContinues(t *testing.T) {
	doc := parse(t, `<html><body><div id="d"></div></body></html>`)
	var logs bytes.Buffer
	s := newSession(t, doc, &logs)

	s.Apply(domstate.NewPage(domstate.Entry{Selector: "#d", State: domstate.ElementState{
		Properties: map[string]any{"innerText": "x"},
		Dataset:    map[string]string{"tab": "2"},
	}}))

	if !strings.Contains(logs.String(), "restore property") {
		t.Errorf("expected property warning, got %s", logs.String())
	}
	if v, ok, _ := doc.MustElement("#d").Data("tab"); !ok || v != "2" {
		t.Errorf("dataset still applied: got %q %v", v, ok)
	}
}

func TestApply_WriteOrder(t *testing.T) {
	doc := parse(t, `<html><body><details id="x"></details></body></html>`)
	s := newSession(t, doc, nil)

	// The attribute write opens the element, the later property write closes it.
	s.Apply(domstate.NewPage(domstate.Entry{Selector: "#x", State: domstate.ElementState{
		Attributes: map[string]string{"open": "open"},
		Properties: map[string]any{"open": false},
	}}))

	if _, ok, _ := doc.MustElement("#x").Attribute("open"); ok {
		t.Fatal("property write should run after attribute write")
	}
}

func TestApply_ScrollAndFocusDeferred(t *testing.T) {
	doc := parse(t, `<html><body><div id="pane"></div><input id="i"></body></html>`)
	s := newSession(t, doc, nil)

	page := domstate.NewPage(
		domstate.Entry{Selector: "#pane", State: domstate.ElementState{Scroll: &domstate.Scroll{Top: 40}}},
		domstate.Entry{Selector: "#i", State: domstate.ElementState{Focused: ptr(true)}},
	)
	s.Apply(page)

	pane := doc.MustElement("#pane")
	if off, _ := pane.ScrollOffset(); !off.IsZero() {
		t.Fatalf("scroll applied synchronously: %+v", off)
	}
	if el, _ := doc.ActiveElement(); el != nil {
		t.Fatal("focus applied synchronously")
	}

	if n := s.Queue().RunPending(); n != 2 {
		t.Fatalf("deferred tasks: got %d, want 2", n)
	}
	if off, _ := pane.ScrollOffset(); off.Top != 40 {
		t.Errorf("scroll after turn: got %+v", off)
	}
	if el, _ := doc.ActiveElement(); el != doc.MustElement("#i") {
		t.Error("focus after turn not applied")
	}
}

// recordingDoc logs every write made through the elements it hands out.
type recordingDoc struct {
	*htmldoc.Document
	log *[]string
}

type recordingElement struct {
	domstate.Element
	selector string
	log      *[]string
}

func (d recordingDoc) Query(selector string) (domstate.Element, error) {
	el, err := d.Document.Query(selector)
	if err != nil || el == nil {
		return el, err
	}
	return &recordingElement{Element: el, selector: selector, log: d.log}, nil
}

func (e *recordingElement) SetAttribute(name, value string) error {
	*e.log = append(*e.log, e.selector+" attr "+name)
	return e.Element.SetAttribute(name, value)
}

func (e *recordingElement) SetProperty(name string, value any) error {
	*e.log = append(*e.log, e.selector+" prop "+name)
	return e.Element.SetProperty(name, value)
}

func (e *recordingElement) SetData(name, value string) error {
	*e.log = append(*e.log, e.selector+" data "+name)
	return e.Element.SetData(name, value)
}

func (e *recordingElement) ScrollTo(off domstate.Scroll) error {
	*e.log = append(*e.log, e.selector+" scroll")
	return e.Element.ScrollTo(off)
}

func (e *recordingElement) Focus() error {
	*e.log = append(*e.log, e.selector+" focus")
	return e.Element.Focus()
}

func TestApply_FollowsPageOrderNotDocumentOrder(t *testing.T) {
	doc := parse(t, `<html><body>
<input id="first"><input id="second"><input id="third">
</body></html>`)
	var log []string
	s := domstate.NewSession(recordingDoc{Document: doc, log: &log}, domstate.Options{Selectors: doc})

	// Entries are stored in reverse document order.
	page := domstate.NewPage(
		domstate.Entry{Selector: "#third", State: domstate.ElementState{
			Properties: map[string]any{"value": "3"},
			Focused:    ptr(true),
		}},
		domstate.Entry{Selector: "#second", State: domstate.ElementState{
			Attributes: map[string]string{"title": "t"},
			Dataset:    map[string]string{"k": "v"},
			Scroll:     &domstate.Scroll{Top: 5},
		}},
		domstate.Entry{Selector: "#first", State: domstate.ElementState{
			Properties: map[string]any{"value": "1"},
			Focused:    ptr(true),
		}},
	)
	s.Apply(page)
	if n := s.Queue().RunPending(); n != 3 {
		t.Fatalf("deferred tasks: got %d, want 3", n)
	}

	want := []string{
		"#third prop value",
		"#second attr title",
		"#second data k",
		"#first prop value",
		"#third focus",
		"#second scroll",
		"#first focus",
	}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("write order:\n got %v\nwant %v", log, want)
	}
	if el, _ := doc.ActiveElement(); el != doc.MustElement("#first") {
		t.Error("last focus write in page order should win")
	}
}

func TestRestore_ReturnsDeferredPhase(t *testing.T) {
	doc := parse(t, `<html><body><div id="pane"></div></body></html>`)
	s := newSession(t, doc, nil)

	tasks := s.Restore(domstate.NewPage(domstate.Entry{
		Selector: "#pane",
		State:    domstate.ElementState{Scroll: &domstate.Scroll{Left: 7}, Focused: ptr(false)},
	}))
	if len(tasks) != 1 {
		t.Fatalf("tasks: got %d, want 1", len(tasks))
	}
	if s.Queue().Len() != 0 {
		t.Fatal("Restore must not schedule")
	}
	tasks[0]()
	if off, _ := doc.MustElement("#pane").ScrollOffset(); off.Left != 7 {
		t.Errorf("scroll: got %+v", off)
	}
}

func TestPage_GetReturnsCopy(t *testing.T) {
	page := domstate.NewPage(domstate.Entry{Selector: "#a", State: domstate.ElementState{
		Attributes: map[string]string{"title": "t"},
		Properties: map[string]any{"value": "x"},
		Dataset:    map[string]string{"k": "v"},
		Scroll:     &domstate.Scroll{Top: 1},
		Focused:    ptr(true),
	}})

	st, _ := page.Get("#a")
	st.Attributes["title"] = "changed"
	st.Properties["value"] = "changed"
	st.Dataset["k"] = "changed"
	st.Scroll.Top = 99
	*st.Focused = false

	for _, got := range page.All() {
		st = got
	}
	st.Properties["extra"] = true

	again, _ := page.Get("#a")
	want := domstate.ElementState{
		Attributes: map[string]string{"title": "t"},
		Properties: map[string]any{"value": "x"},
		Dataset:    map[string]string{"k": "v"},
		Scroll:     &domstate.Scroll{Top: 1},
		Focused:    ptr(true),
	}
	if !reflect.DeepEqual(again, want) {
		t.Fatalf("page mutated through a returned state: got %+v", again)
	}
}

func TestPage_NewPageCopiesInput(t *testing.T) {
	props := map[string]any{"value": "x"}
	page := domstate.NewPage(domstate.Entry{Selector: "#a", State: domstate.ElementState{Properties: props}})
	props["value"] = "changed"

	if st, _ := page.Get("#a"); st.Properties["value"] != "x" {
		t.Fatalf("page shares the caller's map: got %v", st.Properties["value"])
	}
}

func TestCapture_RequiresSelectorGenerator(t *testing.T) {
	doc := parse(t, formHTML)
	s := domstate.NewSession(doc, domstate.Options{})
	if _, err := s.Capture(domstate.DefaultRules()); err == nil {
		t.Fatal("expected error without selector generator")
	}
}

func ptr[T any](v T) *T { return &v }
