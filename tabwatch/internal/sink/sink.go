// Package sink defines output backends for tabwatch events.
package sink

import (
	"context"
	"time"

	"github.com/hazyhaar/domresume/domstate"
)

// Event types.
const (
	TypeSaved    = "saved"
	TypeRestored = "restored"
	TypeCleared  = "cleared"
	TypeAuto     = "auto_resume"
)

// Event reports something that happened to the stored state of a page.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	PageID  string         `json:"page_id"`
	URL     string         `json:"url"`
	Path    string         `json:"path"`
	Key     string         `json:"key,omitempty"`
	Version string         `json:"version,omitempty"`
	Reason  string         `json:"reason,omitempty"` // manual, autosave, reload, recycle, stop
	Auto    *bool          `json:"auto,omitempty"`
	Page    *domstate.Page `json:"page,omitempty"`
	At      time.Time      `json:"at"`
}

// Sink delivers events to one backend.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}
