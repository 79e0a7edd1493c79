// Package resume is the persistence and lifecycle layer around domstate: it
// decides when a page snapshot is taken, where it is stored and when it is
// applied back after a reload.
//
// A Resumer lives for one page load. Page states are stored under
// "<prefix>:page-<path>", the auto-resume flag under "<prefix>:auto-resume"
// as the string "true" or "false".
package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/domresume/domstate"
)

// Options configures a Resumer.
type Options struct {
	// Session captures and applies the page state. Required.
	Session *domstate.Session
	// Storage holds the snapshots. Required.
	Storage Storage
	// Path identifies the page (location.pathname).
	Path string
	// Prefix namespaces the storage keys. Default: DefaultPrefix.
	Prefix string
	// Rules used by Capture. Default: domstate.DefaultRules().
	Rules  []domstate.Rule
	Logger *slog.Logger
}

// InitOptions are the arguments of Init.
type InitOptions struct {
	// Auto is the auto-resume setting of a fresh (non-reload) load.
	Auto bool
	// Rules replaces the capture rules when non-nil.
	Rules []domstate.Rule
	// Reload reports whether the page load is a reload.
	Reload bool
}

// Saved describes a stored snapshot.
type Saved struct {
	Key     string
	Path    string
	Version string
	Page    domstate.Page
}

// Resumer saves and restores the state of one page load.
type Resumer struct {
	session *domstate.Session
	store   Storage
	keys    Keys
	path    string
	logger  *slog.Logger

	mu    sync.Mutex
	rules []domstate.Rule
	armed bool
}

// New creates a Resumer.
func New(opts Options) (*Resumer, error) {
	if opts.Session == nil {
		return nil, errors.New("resume: session is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("resume: storage is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rules == nil {
		opts.Rules = domstate.DefaultRules()
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &Resumer{
		session: opts.Session,
		store:   opts.Storage,
		keys:    Keys{Prefix: opts.Prefix},
		path:    opts.Path,
		logger:  opts.Logger.With("path", opts.Path),
		rules:   opts.Rules,
	}, nil
}

// Session returns the capture session.
func (r *Resumer) Session() *domstate.Session { return r.session }

// Key returns the storage key of this page.
func (r *Resumer) Key() string { return r.keys.Page(r.path) }

// ResumeFromHere saves the current state of the page so that the next
// reload resumes from it. Auto-resume is switched off first, otherwise the
// next unload would overwrite the saved state.
func (r *Resumer) ResumeFromHere(ctx context.Context) (Saved, error) {
	if err := r.guardAutoResume(ctx, "overwriting the current state"); err != nil {
		return Saved{}, err
	}
	saved, err := r.save(ctx)
	if err != nil {
		return Saved{}, err
	}
	r.logger.Info("resume: saved state", "version", saved.Version, "entries", saved.Page.Len())
	return saved, nil
}

// Clear removes the saved state of this page.
func (r *Resumer) Clear(ctx context.Context) error {
	if err := r.guardAutoResume(ctx, "overwriting the cleared state"); err != nil {
		return err
	}
	if err := r.store.Remove(ctx, r.Key()); err != nil {
		return fmt.Errorf("resume: clear: %w", err)
	}
	return nil
}

// ClearAll removes the saved state of every page.
func (r *Resumer) ClearAll(ctx context.Context) error {
	if err := r.guardAutoResume(ctx, "overwriting the cleared state"); err != nil {
		return err
	}
	return r.clearPages(ctx)
}

// AutoResume sets the auto-resume flag to *force, or toggles it when force
// is nil, and returns the new value. While it is on, BeforeUnload saves the
// page.
func (r *Resumer) AutoResume(ctx context.Context, force *bool) (bool, error) {
	state := false
	if force != nil {
		state = *force
	} else {
		on, err := r.AutoResumeEnabled(ctx)
		if err != nil {
			return false, err
		}
		state = !on
	}

	value := "false"
	if state {
		value = "true"
	}
	if _, err := r.store.Set(ctx, r.keys.AutoResume(), value); err != nil {
		return false, fmt.Errorf("resume: set auto-resume: %w", err)
	}

	r.mu.Lock()
	r.armed = state
	r.mu.Unlock()

	if state {
		r.logger.Info("resume: auto-resume is on")
	} else {
		r.logger.Info("resume: auto-resume is off")
	}
	return state, nil
}

// AutoResumeEnabled reads the stored auto-resume flag.
func (r *Resumer) AutoResumeEnabled(ctx context.Context) (bool, error) {
	it, err := r.store.Get(ctx, r.keys.AutoResume())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resume: read auto-resume: %w", err)
	}
	return it.Value == "true", nil
}

// BeforeUnload saves the page when auto-resume was switched on during this
// page load. It returns nil, nil when nothing was saved.
func (r *Resumer) BeforeUnload(ctx context.Context) (*Saved, error) {
	r.mu.Lock()
	armed := r.armed
	r.mu.Unlock()
	if !armed {
		return nil, nil
	}
	saved, err := r.save(ctx)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Init runs once per page load. On a reload the stored state of the page is
// applied and auto-resume is re-armed if it is on. Otherwise every stored
// page is dropped and auto-resume is set to opts.Auto. It reports whether a
// state was applied.
//
// A stored state that does not decode is logged and skipped.
func (r *Resumer) Init(ctx context.Context, opts InitOptions) (bool, error) {
	if opts.Rules != nil {
		r.mu.Lock()
		r.rules = opts.Rules
		r.mu.Unlock()
	}

	if !opts.Reload {
		if err := r.clearPages(ctx); err != nil {
			return false, err
		}
		auto := opts.Auto
		if _, err := r.AutoResume(ctx, &auto); err != nil {
			return false, err
		}
		return false, nil
	}

	restored := false
	page, ok, err := r.Snapshot(ctx)
	switch {
	case err != nil && errors.Is(err, errMalformed):
		r.logger.Warn("resume: ignoring malformed stored state", "key", r.Key(), "error", err)
	case err != nil:
		return false, err
	case ok:
		r.session.Apply(page)
		restored = true
		r.logger.Info("resume: restored state", "entries", page.Len())
	}

	on, err := r.AutoResumeEnabled(ctx)
	if err != nil {
		return restored, err
	}
	if on {
		t := true
		if _, err := r.AutoResume(ctx, &t); err != nil {
			return restored, err
		}
	}
	return restored, nil
}

var errMalformed = errors.New("resume: malformed stored state")

// Snapshot returns the stored state of this page.
func (r *Resumer) Snapshot(ctx context.Context) (domstate.Page, bool, error) {
	it, err := r.store.Get(ctx, r.Key())
	if errors.Is(err, ErrNotFound) {
		return domstate.Page{}, false, nil
	}
	if err != nil {
		return domstate.Page{}, false, fmt.Errorf("resume: read state: %w", err)
	}
	var page domstate.Page
	if err := json.Unmarshal([]byte(it.Value), &page); err != nil {
		return domstate.Page{}, false, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return page, true, nil
}

func (r *Resumer) save(ctx context.Context) (Saved, error) {
	r.mu.Lock()
	rules := r.rules
	r.mu.Unlock()

	page, err := r.session.Capture(rules)
	if err != nil {
		return Saved{}, fmt.Errorf("resume: capture: %w", err)
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return Saved{}, fmt.Errorf("resume: encode: %w", err)
	}
	it, err := r.store.Set(ctx, r.Key(), string(raw))
	if err != nil {
		return Saved{}, fmt.Errorf("resume: store: %w", err)
	}
	return Saved{Key: it.Key, Path: r.path, Version: it.Version, Page: page}, nil
}

func (r *Resumer) guardAutoResume(ctx context.Context, what string) error {
	on, err := r.AutoResumeEnabled(ctx)
	if err != nil {
		return err
	}
	if !on {
		return nil
	}
	off := false
	if _, err := r.AutoResume(ctx, &off); err != nil {
		return err
	}
	r.logger.Warn("resume: auto-resume was disabled to prevent " + what)
	return nil
}

type prefixRemover interface {
	RemovePrefix(ctx context.Context, prefix string) error
}

func (r *Resumer) clearPages(ctx context.Context) error {
	prefix := r.keys.PagePrefix()
	if pr, ok := r.store.(prefixRemover); ok {
		if err := pr.RemovePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("resume: clear all: %w", err)
		}
		return nil
	}
	keys, err := r.store.Keys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("resume: list pages: %w", err)
	}
	for _, k := range keys {
		if err := r.store.Remove(ctx, k); err != nil {
			return fmt.Errorf("resume: clear all: %w", err)
		}
	}
	return nil
}
