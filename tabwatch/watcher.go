// Package tabwatch keeps a set of browser pages resumable. It runs Chrome as
// a disposable component, attaches a domstate session and a resume.Resumer
// to every configured page, autosaves while auto-resume is on, saves before
// every browser recycle and on shutdown, and reapplies the saved state when
// the pages are reopened.
//
// Every save, restore and clear is reported to sinks (stdout, webhook,
// callback).
package tabwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/domresume/domstate"
	"github.com/hazyhaar/domresume/idgen"
	"github.com/hazyhaar/domresume/resume"
	"github.com/hazyhaar/domresume/roddoc"
	"github.com/hazyhaar/domresume/tabwatch/internal/browser"
	"github.com/hazyhaar/domresume/tabwatch/internal/config"
	"github.com/hazyhaar/domresume/tabwatch/internal/sink"
)

// ErrUnknownPage is returned for a page id that is not being watched.
var ErrUnknownPage = errors.New("tabwatch: unknown page")

// PageInfo describes a watched page.
type PageInfo struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Origin     string `json:"origin"`
	Path       string `json:"path"`
	Key        string `json:"key"`
	AutoResume bool   `json:"auto_resume"`
}

// Watcher is the top-level orchestrator. Create one per process.
type Watcher struct {
	cfg    *config.Config
	mgr    *browser.Manager
	scopes resume.Scopes
	sinkR  *sink.Router
	rules  []domstate.Rule
	newID  idgen.Generator
	logger *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	pages map[string]*page
	order []string
	stop  context.CancelFunc
	done  chan struct{}
}

// page is one watched tab and the resume machinery of its current load.
type page struct {
	cfg config.PageConfig

	mu      sync.Mutex
	tab     *browser.Tab
	doc     *roddoc.Document
	resumer *resume.Resumer
	origin  string
	path    string
	cancel  context.CancelFunc
}

// New creates a Watcher. scopes stores the page states, one scope per
// origin.
func New(cfg *config.Config, scopes resume.Scopes, logger *slog.Logger, sinks ...sink.Sink) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := browser.ParseMode(cfg.Browser.Mode)
	if err != nil {
		return nil, err
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             mode,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           logger,
	})

	return &Watcher{
		cfg:    cfg,
		mgr:    mgr,
		scopes: scopes,
		sinkR:  sink.NewRouter(logger, sinks...),
		rules:  cfg.Resume.BuildRules(),
		newID:  idgen.Prefixed("evt_", idgen.UUIDv7()),
		logger: logger,
		pages:  make(map[string]*page),
	}, nil
}

// Start launches the browser, opens every configured page and starts the
// autosave loop. A page that fails to open is logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("tabwatch: start browser: %w", err)
	}
	w.mgr.SetRecycleHooks(browser.RecycleHooks{
		Before: func(ctx context.Context) { w.detachAll(ctx, "recycle") },
		After:  func(ctx context.Context, _ *rod.Browser) { w.reopenAll(ctx) },
	})

	loopCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.ctx = ctx
	w.stop = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	for _, pc := range w.cfg.Pages {
		if err := w.Watch(ctx, pc); err != nil {
			w.logger.Error("tabwatch: failed to open page", "id", pc.ID, "url", pc.URL, "error", err)
		}
	}

	go w.autosaveLoop(loopCtx)
	return nil
}

// Watch opens a page and keeps it resumable. The first load counts as a
// reload when resume_on_start is set.
func (w *Watcher) Watch(ctx context.Context, pc config.PageConfig) error {
	w.mu.Lock()
	if _, dup := w.pages[pc.ID]; dup {
		w.mu.Unlock()
		return fmt.Errorf("tabwatch: page %s already watched", pc.ID)
	}
	p := &page{cfg: pc}
	w.pages[pc.ID] = p
	w.order = append(w.order, pc.ID)
	w.mu.Unlock()

	if err := w.open(ctx, p, w.cfg.ResumeOnStart); err != nil {
		w.forget(pc.ID)
		return err
	}
	w.logger.Info("tabwatch: watching page", "id", pc.ID, "url", pc.URL)
	return nil
}

// Stop saves every page, closes the tabs, the sinks and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}

	w.detachAll(context.Background(), "stop")
	for _, p := range w.snapshotPages() {
		p.mu.Lock()
		if p.tab != nil {
			p.tab.Close()
			p.tab = nil
		}
		p.mu.Unlock()
	}
	w.sinkR.Close()
	w.mgr.Close()
}

// Save stores the current state of a page and switches its auto-resume off.
func (w *Watcher) Save(ctx context.Context, id string) (resume.Saved, error) {
	p, err := w.page(id)
	if err != nil {
		return resume.Saved{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumer == nil {
		return resume.Saved{}, fmt.Errorf("tabwatch: page %s is not open", id)
	}

	saved, err := p.resumer.ResumeFromHere(ctx)
	if err != nil {
		return resume.Saved{}, err
	}
	w.emitSaved(ctx, p, saved, "manual")
	return saved, nil
}

// Clear removes the stored state of a page, or of every page of its origin
// when all is set.
func (w *Watcher) Clear(ctx context.Context, id string, all bool) error {
	p, err := w.page(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumer == nil {
		return fmt.Errorf("tabwatch: page %s is not open", id)
	}

	reason := "page"
	if all {
		reason = "all"
		err = p.resumer.ClearAll(ctx)
	} else {
		err = p.resumer.Clear(ctx)
	}
	if err != nil {
		return err
	}
	w.emit(ctx, p, sink.Event{Type: sink.TypeCleared, Key: p.resumer.Key(), Reason: reason})
	return nil
}

// AutoResume sets or toggles the auto-resume flag of a page's origin.
func (w *Watcher) AutoResume(ctx context.Context, id string, force *bool) (bool, error) {
	p, err := w.page(id)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumer == nil {
		return false, fmt.Errorf("tabwatch: page %s is not open", id)
	}

	on, err := p.resumer.AutoResume(ctx, force)
	if err != nil {
		return false, err
	}
	w.emit(ctx, p, sink.Event{Type: sink.TypeAuto, Auto: &on})
	return on, nil
}

// Snapshot returns the stored state of a page.
func (w *Watcher) Snapshot(ctx context.Context, id string) (domstate.Page, bool, error) {
	p, err := w.page(id)
	if err != nil {
		return domstate.Page{}, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumer == nil {
		return domstate.Page{}, false, fmt.Errorf("tabwatch: page %s is not open", id)
	}
	return p.resumer.Snapshot(ctx)
}

// Reload reloads a page the way a user would: the unload handler runs
// first, then the new document is initialised as a reload.
func (w *Watcher) Reload(ctx context.Context, id string) error {
	p, err := w.page(id)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tab == nil {
		return fmt.Errorf("tabwatch: page %s is not open", id)
	}

	return w.reload(ctx, p, p.tab.Reload, w.attach)
}

// reload detaches p, reloads its tab and attaches to the new document. When
// the reload fails the current document is attached again as a plain load
// so the page keeps saving. p.mu is held.
func (w *Watcher) reload(ctx context.Context, p *page, reloadTab func(context.Context) error, attach func(context.Context, *page, bool) error) error {
	w.detach(ctx, p, "reload")
	if err := reloadTab(ctx); err != nil {
		err = fmt.Errorf("tabwatch: reload %s: %w", p.cfg.ID, err)
		w.logger.Warn("tabwatch: reload failed, reattaching", "id", p.cfg.ID, "error", err)
		if aerr := attach(ctx, p, false); aerr != nil {
			return errors.Join(err, aerr)
		}
		return err
	}
	return attach(ctx, p, true)
}

// Pages lists the watched pages in configuration order.
func (w *Watcher) Pages(ctx context.Context) ([]PageInfo, error) {
	var out []PageInfo
	for _, p := range w.snapshotPages() {
		p.mu.Lock()
		info := PageInfo{ID: p.cfg.ID, URL: p.cfg.URL, Origin: p.origin, Path: p.path}
		if p.resumer != nil {
			info.Key = p.resumer.Key()
			on, err := p.resumer.AutoResumeEnabled(ctx)
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			info.AutoResume = on
		}
		p.mu.Unlock()
		out = append(out, info)
	}
	return out, nil
}

func (w *Watcher) page(id string) (*page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	return p, nil
}

func (w *Watcher) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pages, id)
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *Watcher) snapshotPages() []*page {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*page, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.pages[id])
	}
	return out
}

// open opens the tab of p and attaches to its document.
func (w *Watcher) open(ctx context.Context, p *page, reload bool) error {
	tab, err := browser.OpenTab(ctx, w.mgr, p.cfg.ID, p.cfg.URL)
	if err != nil {
		return fmt.Errorf("tabwatch: open tab: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tab = tab
	if err := w.attach(ctx, p, reload); err != nil {
		tab.Close()
		p.tab = nil
		return err
	}
	return nil
}

// attach builds the document, session and resumer of the current load of
// p.tab and runs Init. p.mu is held.
func (w *Watcher) attach(ctx context.Context, p *page, reload bool) error {
	w.mu.Lock()
	base := w.ctx
	w.mu.Unlock()
	if base == nil {
		base = ctx
	}
	pctx, cancel := context.WithCancel(base)

	doc := roddoc.New(pctx, p.tab.Page, roddoc.Options{
		Components: w.cfg.Components,
		Logger:     w.logger,
	})
	fail := func(err error) error {
		cancel()
		doc.Close()
		return err
	}

	origin, err := doc.Origin()
	if err != nil {
		return fail(err)
	}
	path, err := doc.Location()
	if err != nil {
		return fail(err)
	}
	if !reload {
		if reload, err = doc.IsReload(); err != nil {
			return fail(err)
		}
	}

	logger := w.logger.With("page_id", p.cfg.ID)
	session := domstate.NewSession(doc, domstate.Options{
		Selectors: doc,
		Scheduler: doc,
		KeepFalsy: w.cfg.Resume.KeepFalsy,
		Logger:    logger,
	})
	if err := doc.WatchScroll(pctx, func(el *roddoc.Element) { session.TrackScroll(el) }); err != nil {
		return fail(err)
	}

	r, err := resume.New(resume.Options{
		Session: session,
		Storage: w.scopes.Scope(origin),
		Path:    path,
		Prefix:  w.cfg.Resume.Prefix,
		Rules:   w.rules,
		Logger:  logger,
	})
	if err != nil {
		return fail(err)
	}
	restored, err := r.Init(ctx, resume.InitOptions{Auto: w.cfg.Resume.Auto, Reload: reload})
	if err != nil {
		return fail(fmt.Errorf("tabwatch: init %s: %w", p.cfg.ID, err))
	}

	p.doc, p.resumer, p.origin, p.path, p.cancel = doc, r, origin, path, cancel
	if restored {
		w.emit(ctx, p, sink.Event{Type: sink.TypeRestored, Key: r.Key()})
	}
	return nil
}

// detach runs the unload handler of the current load of p and releases its
// document. p.mu is held.
func (w *Watcher) detach(ctx context.Context, p *page, reason string) {
	if p.resumer == nil {
		return
	}
	saved, err := p.resumer.BeforeUnload(ctx)
	if err != nil {
		w.logger.Warn("tabwatch: save on unload failed", "id", p.cfg.ID, "reason", reason, "error", err)
	} else if saved != nil {
		w.emitSaved(ctx, p, *saved, reason)
	}
	p.cancel()
	p.doc.Close()
	p.doc, p.resumer, p.cancel = nil, nil, nil
}

func (w *Watcher) detachAll(ctx context.Context, reason string) {
	for _, p := range w.snapshotPages() {
		p.mu.Lock()
		w.detach(ctx, p, reason)
		if reason == "recycle" {
			p.tab = nil
		}
		p.mu.Unlock()
	}
}

// reopenAll reopens every page after a browser recycle, as a reload.
func (w *Watcher) reopenAll(ctx context.Context) {
	for _, p := range w.snapshotPages() {
		if err := w.open(ctx, p, true); err != nil {
			w.logger.Error("tabwatch: reopen after recycle failed", "id", p.cfg.ID, "error", err)
		}
	}
}

func (w *Watcher) autosaveLoop(ctx context.Context) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	defer close(done)

	ticker := time.NewTicker(w.cfg.AutosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, p := range w.snapshotPages() {
			p.mu.Lock()
			if p.resumer != nil {
				saved, err := p.resumer.BeforeUnload(ctx)
				if err != nil {
					w.logger.Warn("tabwatch: autosave failed", "id", p.cfg.ID, "error", err)
				} else if saved != nil {
					w.emitSaved(ctx, p, *saved, "autosave")
				}
			}
			p.mu.Unlock()
		}
	}
}

func (w *Watcher) emitSaved(ctx context.Context, p *page, saved resume.Saved, reason string) {
	pg := saved.Page
	w.emit(ctx, p, sink.Event{
		Type:    sink.TypeSaved,
		Key:     saved.Key,
		Version: saved.Version,
		Reason:  reason,
		Page:    &pg,
	})
}

// emit stamps ev with the page identity and sends it. p.mu is held.
func (w *Watcher) emit(ctx context.Context, p *page, ev sink.Event) {
	ev.ID = w.newID()
	ev.PageID = p.cfg.ID
	ev.URL = p.cfg.URL
	ev.Path = p.path
	ev.At = time.Now().UTC()
	if err := w.sinkR.Send(ctx, ev); err != nil {
		w.logger.Warn("tabwatch: emit event failed", "type", ev.Type, "error", err)
	}
}
