package domstate

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Options configures a Session.
type Options struct {
	// Selectors computes the stable selector of captured elements. Required.
	Selectors SelectorGenerator

	// Scheduler runs the deferred scroll and focus writes of Apply.
	// Default: a Queue, reachable through Session.Queue.
	Scheduler Scheduler

	// KeepFalsy records values the element reports as present even when
	// they are falsy (empty string, false, zero). Off by default: a falsy
	// value and an absent one are treated alike.
	KeepFalsy bool

	Logger *slog.Logger
}

// Session is the capture/restore context of one document for the lifetime
// of one page load. It owns the set of elements seen scrolling.
type Session struct {
	doc    Document
	sel    SelectorGenerator
	sched  Scheduler
	keep   bool
	logger *slog.Logger

	mu        sync.Mutex
	tracked   []Element
	trackedAt map[Element]struct{}
}

// NewSession creates a Session for doc.
func NewSession(doc Document, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = &Queue{}
	}
	return &Session{
		doc:       doc,
		sel:       opts.Selectors,
		sched:     opts.Scheduler,
		keep:      opts.KeepFalsy,
		logger:    opts.Logger,
		trackedAt: make(map[Element]struct{}),
	}
}

// Document returns the document the session works on.
func (s *Session) Document() Document { return s.doc }

// Queue returns the session scheduler when it is a Queue, nil otherwise.
func (s *Session) Queue() *Queue {
	q, _ := s.sched.(*Queue)
	return q
}

// TrackScroll adds el to the set of scrolled elements. Safe to call from
// event listeners running concurrently with Capture.
func (s *Session) TrackScroll(el Element) {
	if el == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trackedAt[el]; ok {
		return
	}
	s.trackedAt[el] = struct{}{}
	s.tracked = append(s.tracked, el)
}

// Tracked returns the tracked elements in the order they were first seen.
func (s *Session) Tracked() []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Element, len(s.tracked))
	copy(out, s.tracked)
	return out
}

// Capture builds a Page from the current document.
//
// Rules run in order and elements in document order. An element whose
// extracted state is empty is skipped before its selector is computed. After
// the rules, tracked elements with a non-zero scroll offset and the focused
// element are merged in. Any error aborts the capture.
func (s *Session) Capture(rules []Rule) (Page, error) {
	if s.sel == nil {
		return Page{}, fmt.Errorf("domstate: capture: no selector generator")
	}
	b := newPageBuilder()

	for _, rule := range rules {
		els, err := s.doc.QueryAll(rule.Query)
		if err != nil {
			return Page{}, fmt.Errorf("domstate: query %q: %w", rule.Query, err)
		}
		for _, el := range els {
			st, err := extract(el, rule, s.keep)
			if err != nil {
				return Page{}, err
			}
			if st.IsEmpty() {
				continue
			}
			selector, err := s.sel.Selector(el)
			if err != nil {
				return Page{}, fmt.Errorf("domstate: selector: %w", err)
			}
			b.merge(selector, st)
		}
	}

	for _, el := range s.Tracked() {
		off, err := el.ScrollOffset()
		if err != nil {
			return Page{}, fmt.Errorf("domstate: scroll offset: %w", err)
		}
		if off.IsZero() {
			continue
		}
		selector, err := s.sel.Selector(el)
		if err != nil {
			return Page{}, fmt.Errorf("domstate: selector: %w", err)
		}
		b.merge(selector, ElementState{Scroll: &off})
	}

	active, err := s.doc.ActiveElement()
	if err != nil {
		return Page{}, fmt.Errorf("domstate: active element: %w", err)
	}
	if active != nil {
		selector, err := s.sel.Selector(active)
		if err != nil {
			return Page{}, fmt.Errorf("domstate: selector: %w", err)
		}
		b.merge(selector, ElementState{Focused: boolPtr(true)})
	}

	return b.page(), nil
}

// Apply replays page onto the document: Restore, then Schedule.
func (s *Session) Apply(page Page) {
	tasks := s.Restore(page)
	s.Schedule(tasks)
	s.logger.Info("domstate: restored page state", "entries", page.Len(), "deferred", len(tasks))
}

// Restore performs the synchronous phase of Apply. For each entry in page
// order it resolves the selector and writes attributes, then properties, then
// dataset entries. It returns the deferred scroll and focus writes without
// running them. Unresolved selectors and failed writes are logged and
// skipped.
func (s *Session) Restore(page Page) []Task {
	var tasks []Task
	for selector, st := range page.All() {
		el, err := s.doc.Query(selector)
		if err != nil {
			s.logger.Warn("domstate: query failed", "selector", selector, "error", err)
			continue
		}
		if el == nil {
			s.logger.Warn("domstate: no element found for selector", "selector", selector)
			continue
		}
		s.restoreElement(selector, el, st)
		tasks = append(tasks, s.deferred(selector, el, st)...)
	}
	return tasks
}

// Schedule submits the deferred phase to the scheduler.
func (s *Session) Schedule(tasks []Task) {
	for _, t := range tasks {
		s.sched.Defer(t)
	}
}

func (s *Session) restoreElement(selector string, el Element, st ElementState) {
	for _, name := range slices.Sorted(maps.Keys(st.Attributes)) {
		if err := el.SetAttribute(name, st.Attributes[name]); err != nil {
			s.logger.Warn("domstate: restore attribute", "selector", selector, "name", name, "error", err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(st.Properties)) {
		if err := el.SetProperty(name, st.Properties[name]); err != nil {
			s.logger.Warn("domstate: restore property", "selector", selector, "name", name, "error", err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(st.Dataset)) {
		if err := el.SetData(name, st.Dataset[name]); err != nil {
			s.logger.Warn("domstate: restore dataset", "selector", selector, "name", name, "error", err)
		}
	}
}

func (s *Session) deferred(selector string, el Element, st ElementState) []Task {
	var tasks []Task
	if st.Scroll != nil {
		off := *st.Scroll
		tasks = append(tasks, func() {
			if err := el.ScrollTo(off); err != nil {
				s.logger.Warn("domstate: restore scroll", "selector", selector, "error", err)
			}
		})
	}
	if st.Focused != nil && *st.Focused {
		tasks = append(tasks, func() {
			if err := el.Focus(); err != nil {
				s.logger.Warn("domstate: restore focus", "selector", selector, "error", err)
			}
		})
	}
	return tasks
}
