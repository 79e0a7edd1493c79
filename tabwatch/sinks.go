package tabwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/domresume/tabwatch/internal/sink"
)

// Sink is the output interface for tabwatch events.
type Sink = sink.Sink

// Event is one save, restore, clear or auto-resume change.
type Event = sink.Event

// Event types.
const (
	EventSaved    = sink.TypeSaved
	EventRestored = sink.TypeRestored
	EventCleared  = sink.TypeCleared
	EventAuto     = sink.TypeAuto
)

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn func(ctx context.Context, ev Event) error) Sink {
	return sink.NewCallback(fn)
}

// NewSinks builds the sinks of a configuration. An empty list yields a
// stdout sink.
func NewSinks(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	var sinks []Sink
	for _, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		default:
			return nil, fmt.Errorf("tabwatch: unknown sink type %q", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, NewStdoutSink(nil))
	}
	return sinks, nil
}
