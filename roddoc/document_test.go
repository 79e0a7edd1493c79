package roddoc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domresume/domstate"
)

const fixture = `<!doctype html>
<html><body>
<form id="f">
  <input id="name" value="">
  <input type="checkbox" name="agree">
  <select name="size"><option>s</option><option>m</option></select>
</form>
<details id="more"><summary>more</summary>text</details>
<div id="box" style="height:50px;overflow:auto"><div style="height:500px"></div></div>
<div data-simple-component="card" data-color="red"></div>
</body></html>`

// openPage launches a headless Chrome on the fixture. It skips when no
// browser is installed.
func openPage(t *testing.T) *Document {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome binary found")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(fixture))
	}))
	t.Cleanup(ts.Close)

	l := launcher.New().Bin(bin).Headless(true)
	u, err := l.Launch()
	if err != nil {
		t.Skipf("launch chrome: %v", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		b.Close()
		l.Cleanup()
	})

	page, err := b.Page(proto.TargetCreateTarget{URL: ts.URL + "/form"})
	if err != nil {
		t.Fatalf("open page: %v", err)
	}
	if err := page.WaitLoad(); err != nil {
		t.Fatalf("wait load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	doc := New(ctx, page, Options{Components: map[string][]string{"card": {"color"}}})
	t.Cleanup(func() {
		cancel()
		doc.Close()
	})
	return doc
}

func eventually(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDocument_Location(t *testing.T) {
	doc := openPage(t)

	path, err := doc.Location()
	if err != nil || path != "/form" {
		t.Fatalf("Location = %q, %v", path, err)
	}
	reload, err := doc.IsReload()
	if err != nil || reload {
		t.Fatalf("IsReload = %v, %v", reload, err)
	}
}

func TestDocument_IdentityAndSelector(t *testing.T) {
	doc := openPage(t)

	a, err := doc.Query("#name")
	if err != nil || a == nil {
		t.Fatalf("Query: %v, %v", a, err)
	}
	b, err := doc.Query("form > input")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if a != b {
		t.Fatal("same node wrapped twice")
	}

	cases := map[string]string{
		"#name":                   "#name",
		"[name=agree]":            `input[name="agree"]`,
		"[data-simple-component]": "div:nth-of-type(2)",
	}
	for query, want := range cases {
		el, err := doc.Query(query)
		if err != nil || el == nil {
			t.Fatalf("Query(%s): %v", query, err)
		}
		got, err := doc.Selector(el)
		if err != nil || got != want {
			t.Errorf("Selector(%s) = %q, %v; want %q", query, got, err, want)
		}
	}
}

func TestElement_Properties(t *testing.T) {
	doc := openPage(t)

	el, _ := doc.Query("#name")
	if err := el.SetProperty("value", "Ada"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	v, ok, err := el.Property("value")
	if err != nil || !ok || v != "Ada" {
		t.Fatalf("Property(value) = %v, %v, %v", v, ok, err)
	}
	if _, ok, _ := el.Attribute("value"); !ok {
		t.Fatal("value attribute should still be present")
	}
	if _, ok, _ := el.Property("form"); ok {
		t.Fatal("object-valued property should read as absent")
	}

	more, _ := doc.Query("#more")
	if err := more.SetProperty("open", true); err != nil {
		t.Fatalf("details.open: %v", err)
	}
	box, _ := doc.Query("#box")
	if err := box.SetProperty("nope", 1); err == nil {
		t.Fatal("expected ErrUnsupportedProperty")
	}
}

func TestSession_RoundTrip(t *testing.T) {
	doc := openPage(t)
	sess := domstate.NewSession(doc, domstate.Options{Selectors: doc, Scheduler: doc})

	if err := doc.WatchScroll(context.Background(), func(el *Element) { sess.TrackScroll(el) }); err != nil {
		t.Fatalf("WatchScroll: %v", err)
	}

	name, _ := doc.Query("#name")
	name.SetProperty("value", "Ada")
	agree, _ := doc.Query("[name=agree]")
	agree.SetProperty("checked", true)
	box, _ := doc.Query("#box")
	box.ScrollTo(domstate.Scroll{Top: 120})
	eventually(t, "scroll tracking", func() bool { return len(sess.Tracked()) > 0 })

	page, err := sess.Capture(domstate.DefaultRules())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	st, ok := page.Get("#name")
	if !ok || st.Properties["value"] != "Ada" {
		t.Fatalf("#name = %+v, %v", st, ok)
	}
	st, ok = page.Get("#box")
	if !ok || st.Scroll == nil || st.Scroll.Top != 120 {
		t.Fatalf("#box = %+v, %v", st, ok)
	}
	st, ok = page.Get("div:nth-of-type(2)")
	if !ok || st.Dataset["color"] != "red" {
		t.Fatalf("component = %+v, %v", st, ok)
	}

	name.SetProperty("value", "")
	agree.SetProperty("checked", false)
	box.ScrollTo(domstate.Scroll{})

	sess.Apply(page)
	if v, _, _ := name.Property("value"); v != "Ada" {
		t.Fatalf("restored value = %v", v)
	}
	if v, _, _ := agree.Property("checked"); v != true {
		t.Fatalf("restored checked = %v", v)
	}
	eventually(t, "deferred scroll", func() bool {
		off, err := box.ScrollOffset()
		return err == nil && off.Top == 120
	})
}
