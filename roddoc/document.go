// Package roddoc exposes a live Chrome tab, driven through go-rod, as a
// domstate document.
//
// Elements are cached per CDP backend node id, so the same DOM node always
// maps to the same *Element for the lifetime of the page load. Deferred
// scroll and focus writes run on a domstate.Worker owned by the Document.
package roddoc

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domresume/domstate"
)

//go:embed finder.js
var finderJS string

//go:embed scroll.js
var scrollJS string

const scrollBinding = "__domresume_scroll"

// Options configures a Document.
type Options struct {
	// Components maps a data-simple-component name to its declared props.
	Components map[string][]string
	Logger     *slog.Logger
}

// Document is a domstate.Document over a rod page.
type Document struct {
	page       *rod.Page
	components map[string][]string
	logger     *slog.Logger
	worker     *domstate.Worker

	mu       sync.Mutex
	elements map[proto.DOMBackendNodeID]*Element
}

var (
	_ domstate.Document          = (*Document)(nil)
	_ domstate.SelectorGenerator = (*Document)(nil)
	_ domstate.Scheduler         = (*Document)(nil)
)

// New wraps page. The Document's worker stops when ctx is done or on Close.
func New(ctx context.Context, page *rod.Page, opts Options) *Document {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Document{
		page:       page.Context(ctx),
		components: opts.Components,
		logger:     opts.Logger,
		worker:     domstate.NewWorker(ctx),
		elements:   make(map[proto.DOMBackendNodeID]*Element),
	}
}

// Page returns the underlying rod page.
func (d *Document) Page() *rod.Page { return d.page }

// Close stops the deferred-task worker.
func (d *Document) Close() { d.worker.Close() }

// Defer implements domstate.Scheduler.
func (d *Document) Defer(task func()) { d.worker.Defer(task) }

// QueryAll implements domstate.Document.
func (d *Document) QueryAll(query string) ([]domstate.Element, error) {
	els, err := d.page.Elements(query)
	if err != nil {
		return nil, fmt.Errorf("roddoc: query %q: %w", query, err)
	}
	out := make([]domstate.Element, 0, len(els))
	for _, el := range els {
		e, err := d.wrap(el)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Query implements domstate.Document.
func (d *Document) Query(selector string) (domstate.Element, error) {
	els, err := d.QueryAll(selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// ActiveElement implements domstate.Document.
func (d *Document) ActiveElement() (domstate.Element, error) {
	obj, err := d.page.Evaluate(rod.Eval(`() => {
		const el = document.activeElement;
		return el && el !== document.body && el !== document.documentElement ? el : null;
	}`).ByObject())
	if err != nil {
		return nil, fmt.Errorf("roddoc: active element: %w", err)
	}
	if obj.ObjectID == "" {
		return nil, nil
	}
	el, err := d.page.ElementFromObject(obj)
	if err != nil {
		return nil, fmt.Errorf("roddoc: active element: %w", err)
	}
	return d.wrap(el)
}

// Selector implements domstate.SelectorGenerator with the same algorithm as
// htmldoc, evaluated in the page.
func (d *Document) Selector(el domstate.Element) (string, error) {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return "", fmt.Errorf("roddoc: element does not belong to this document")
	}
	res, err := e.el.Eval(finderJS)
	if err != nil {
		return "", fmt.Errorf("roddoc: selector: %w", err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("roddoc: no unique selector")
	}
	return res.Value.Str(), nil
}

// Location returns location.pathname.
func (d *Document) Location() (string, error) {
	return d.evalString(`() => location.pathname`)
}

// Origin returns location.origin.
func (d *Document) Origin() (string, error) {
	return d.evalString(`() => location.origin`)
}

// IsReload reports whether the current document was loaded by a reload,
// according to its navigation timing entry.
func (d *Document) IsReload() (bool, error) {
	res, err := d.page.Eval(`() => {
		const nav = performance.getEntriesByType('navigation')[0];
		return !!nav && nav.type === 'reload';
	}`)
	if err != nil {
		return false, fmt.Errorf("roddoc: navigation type: %w", err)
	}
	return res.Value.Bool(), nil
}

// WatchScroll installs a capture-phase scroll listener in the page and calls
// fn once for each element the first time it scrolls. A scroll of the
// document maps to the root element. WatchScroll returns once the listener
// is installed; delivery stops when ctx is done.
func (d *Document) WatchScroll(ctx context.Context, fn func(*Element)) error {
	if err := (proto.RuntimeAddBinding{Name: scrollBinding}).Call(d.page); err != nil {
		d.logger.Warn("roddoc: addBinding failed (may already exist)", "error", err)
	}

	wait := d.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != scrollBinding {
			return
		}
		idx, err := strconv.Atoi(e.Payload)
		if err != nil {
			d.logger.Warn("roddoc: bad scroll payload", "payload", e.Payload)
			return
		}
		el, err := d.scrolledElement(idx)
		if err != nil {
			d.logger.Warn("roddoc: resolve scrolled element", "error", err)
			return
		}
		fn(el)
	})
	go wait()

	if _, err := d.page.Eval(scrollJS, scrollBinding); err != nil {
		return fmt.Errorf("roddoc: inject scroll listener: %w", err)
	}
	return nil
}

func (d *Document) scrolledElement(idx int) (*Element, error) {
	obj, err := d.page.Evaluate(rod.Eval(`(i) => window.__domresume_scrolled[i]`, idx).ByObject())
	if err != nil {
		return nil, err
	}
	el, err := d.page.ElementFromObject(obj)
	if err != nil {
		return nil, err
	}
	return d.wrap(el)
}

func (d *Document) evalString(js string) (string, error) {
	res, err := d.page.Eval(js)
	if err != nil {
		return "", fmt.Errorf("roddoc: eval: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *Document) wrap(el *rod.Element) (*Element, error) {
	node, err := el.Describe(0, false)
	if err != nil {
		return nil, fmt.Errorf("roddoc: describe element: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.elements[node.BackendNodeID]; ok {
		return e, nil
	}
	e := &Element{doc: d, el: el, tag: node.LocalName}
	d.elements[node.BackendNodeID] = e
	return e, nil
}
