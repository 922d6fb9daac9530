package observability

import (
	"fmt"
	"sync"
)

// EventKind classifies a diagnostic event recorded during a run.
type EventKind int

const (
	// EventOperatorSkipped records a malformed content-stream operator
	// that was skipped during extraction.
	EventOperatorSkipped EventKind = iota
	// EventPageFallback records a page emitted unmodified after a
	// page-level extraction failure.
	EventPageFallback
	// EventFontTier records which resolution tier satisfied a font request.
	EventFontTier
	// EventGlyphSubstituted records a glyph replaced by the placeholder
	// because no font in the cascade covered it.
	EventGlyphSubstituted
	// EventFitOverflow records translated text that exceeded its box
	// vertically even at minimum size.
	EventFitOverflow
	// EventWarning records any other recoverable condition.
	EventWarning
)

func (k EventKind) String() string {
	switch k {
	case EventOperatorSkipped:
		return "operator_skipped"
	case EventPageFallback:
		return "page_fallback"
	case EventFontTier:
		return "font_tier"
	case EventGlyphSubstituted:
		return "glyph_substituted"
	case EventFitOverflow:
		return "fit_overflow"
	default:
		return "warning"
	}
}

// Event is one diagnostic entry. Page is -1 when the event is not tied
// to a particular page.
type Event struct {
	Kind   EventKind
	Page   int
	Detail string
}

func (e Event) String() string {
	if e.Page < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s page %d: %s", e.Kind, e.Page, e.Detail)
}

// Collector gathers diagnostic events for a single pipeline invocation.
// It is safe for concurrent use; pages are processed in parallel. A nil
// *Collector discards all events, so callers never need to nil-check.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Record(kind EventKind, page int, format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, Event{Kind: kind, Page: page, Detail: fmt.Sprintf(format, args...)})
	c.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Count returns how many events of the given kind were recorded.
func (c *Collector) Count(kind EventKind) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
