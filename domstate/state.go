// Package domstate captures the transient interaction state of a document
// (form values, toggles, scroll offsets, focus) and replays it after a reload.
//
// A Session walks a Document with an ordered list of Rules, extracts the
// requested attributes, live properties and dataset entries of every matched
// element, merges the partial states per element and keys the result by a
// stable selector. Apply replays such a Page onto a freshly loaded document:
// attribute, property and dataset writes happen synchronously, scroll and
// focus are deferred to the Scheduler.
//
// The package does not know about storage or page lifecycle; see package
// resume for that layer.
package domstate

// Scroll is the scroll offset of an element.
type Scroll struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// IsZero reports whether the offset is (0,0).
func (s Scroll) IsZero() bool { return s.Top == 0 && s.Left == 0 }

// ElementState is the captured facet of one element. Every field is optional.
type ElementState struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	Dataset    map[string]string `json:"dataset,omitempty"`
	Scroll     *Scroll           `json:"scroll,omitempty"`
	Focused    *bool             `json:"focused,omitempty"`
}

// IsEmpty reports whether nothing was recorded.
func (s ElementState) IsEmpty() bool {
	return len(s.Attributes) == 0 &&
		len(s.Properties) == 0 &&
		len(s.Dataset) == 0 &&
		s.Scroll == nil &&
		s.Focused == nil
}

func boolPtr(b bool) *bool { return &b }

// Merge combines two states into a new one. Entries of source win over
// entries of target key by key; scroll and focused come from source when it
// sets them. Neither input is modified.
func Merge(target, source ElementState) ElementState {
	out := ElementState{
		Attributes: mergeMap(target.Attributes, source.Attributes),
		Properties: mergeMap(target.Properties, source.Properties),
		Dataset:    mergeMap(target.Dataset, source.Dataset),
		Scroll:     target.Scroll,
		Focused:    target.Focused,
	}
	if source.Scroll != nil {
		s := *source.Scroll
		out.Scroll = &s
	} else if target.Scroll != nil {
		s := *target.Scroll
		out.Scroll = &s
	}
	if source.Focused != nil {
		out.Focused = boolPtr(*source.Focused)
	} else if target.Focused != nil {
		out.Focused = boolPtr(*target.Focused)
	}
	return out
}

// mergeMap returns nil when both sides are empty so that absent categories
// stay absent.
func mergeMap[V any](target, source map[string]V) map[string]V {
	if len(target) == 0 && len(source) == 0 {
		return nil
	}
	out := make(map[string]V, len(target)+len(source))
	for k, v := range target {
		out[k] = v
	}
	for k, v := range source {
		out[k] = v
	}
	return out
}
