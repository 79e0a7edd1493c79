package resume

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/domresume/domstate"
)

const maxPageBody = 4 << 20

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	Prefix string
	Logger *slog.Logger
}

// NewHandler serves the stored states of every scope over HTTP:
//
//	GET    /scopes/{scope}/keys
//	GET    /scopes/{scope}/pages/*
//	PUT    /scopes/{scope}/pages/*
//	DELETE /scopes/{scope}/pages/*
//	GET    /scopes/{scope}/auto-resume
//	PUT    /scopes/{scope}/auto-resume
//
// The page path is the remainder of the URL after /pages, so
// /scopes/s/pages/docs/intro addresses the page "/docs/intro". Stored
// versions are returned as ETag; a PUT with If-Match fails with 412 when the
// version moved on. Request ids are taken from the context, so mount the
// handler behind middleware.RequestID.
func NewHandler(scopes Scopes, opts HandlerOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handler{scopes: scopes, keys: Keys{Prefix: opts.Prefix}, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/scopes/{scope}", func(r chi.Router) {
		r.Get("/keys", h.listKeys)
		r.Get("/pages/*", h.getPage)
		r.Put("/pages/*", h.putPage)
		r.Delete("/pages/*", h.deletePage)
		r.Get("/auto-resume", h.getAuto)
		r.Put("/auto-resume", h.putAuto)
	})
	return r
}

type handler struct {
	scopes Scopes
	keys   Keys
	logger *slog.Logger
}

type autoResumeBody struct {
	Enabled bool `json:"enabled"`
}

func (h *handler) storage(r *http.Request) Storage {
	return h.scopes.Scope(chi.URLParam(r, "scope"))
}

func pagePath(r *http.Request) string {
	return "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (h *handler) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.storage(r).Keys(r.Context(), h.keys.PagePrefix())
	if err != nil {
		h.internal(w, r, err)
		return
	}
	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		if p, ok := h.keys.PathOf(k); ok {
			paths = append(paths, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "paths": paths})
}

func (h *handler) getPage(w http.ResponseWriter, r *http.Request) {
	it, err := h.storage(r).Get(r.Context(), h.keys.Page(pagePath(r)))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internal(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(it.Version))
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, it.Value)
}

func (h *handler) putPage(w http.ResponseWriter, r *http.Request) {
	var page domstate.Page
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPageBody)).Decode(&page); err != nil {
		http.Error(w, "invalid page state: "+err.Error(), http.StatusBadRequest)
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		h.internal(w, r, err)
		return
	}

	st := h.storage(r)
	key := h.keys.Page(pagePath(r))
	var it Item
	if match := r.Header.Get("If-Match"); match != "" {
		it, err = SetIfVersion(r.Context(), st, key, string(raw), versionOf(match))
	} else {
		it, err = st.Set(r.Context(), key, string(raw))
	}
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "page not found", http.StatusPreconditionFailed)
		return
	case errors.Is(err, ErrVersionMismatch):
		http.Error(w, "version mismatch", http.StatusPreconditionFailed)
		return
	case err != nil:
		h.internal(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(it.Version))
	writeJSON(w, http.StatusOK, map[string]any{
		"key":     it.Key,
		"version": it.Version,
		"entries": page.Len(),
	})
}

func (h *handler) deletePage(w http.ResponseWriter, r *http.Request) {
	st := h.storage(r)
	key := h.keys.Page(pagePath(r))
	if _, err := st.Get(r.Context(), key); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		h.internal(w, r, err)
		return
	}
	if err := st.Remove(r.Context(), key); err != nil {
		h.internal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getAuto(w http.ResponseWriter, r *http.Request) {
	it, err := h.storage(r).Get(r.Context(), h.keys.AutoResume())
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.internal(w, r, err)
		return
	}
	if it.Version != "" {
		w.Header().Set("ETag", etag(it.Version))
	}
	writeJSON(w, http.StatusOK, autoResumeBody{Enabled: it.Value == "true"})
}

func (h *handler) putAuto(w http.ResponseWriter, r *http.Request) {
	var body autoResumeBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	value := "false"
	if body.Enabled {
		value = "true"
	}
	it, err := h.storage(r).Set(r.Context(), h.keys.AutoResume(), value)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(it.Version))
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("resume: http", "method", r.Method, "path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()), "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func etag(version string) string {
	return `"` + version + `"`
}

// versionOf turns an If-Match value into a stored version. "*" matches any
// version and maps to "".
func versionOf(match string) string {
	if match == "*" {
		return ""
	}
	if v := strings.Trim(strings.TrimPrefix(match, "W/"), `"`); v != "" {
		return v
	}
	return match
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
