// Package router forwards scanned and received key transitions to the
// layout engine in canonical coordinates, and sends local transitions to
// the other half.
//
// The canonical layout is the left half's view of the full board. Events
// originating on the other half are mirrored into it: col' = MaxCol - col.
// Frames on the wire always carry the sender's own coordinates.
package router

import (
	"log/slog"

	"github.com/crolbar/yuki/matrix"
)

// Sender transmits a local transition to the other half.
type Sender interface {
	Send(e matrix.Event) error
}

// Sink receives events in canonical coordinates.
type Sink interface {
	Event(e matrix.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e matrix.Event)

func (f SinkFunc) Event(e matrix.Event) { f(e) }

// DefaultMaxCol returns the mirror constant for halves with cols columns:
// the last column index of the joined board.
func DefaultMaxCol(cols uint8) uint8 { return 2*cols - 1 }

// Router routes events for one half.
type Router struct {
	// Canonical is true on the half whose local coordinates are the
	// canonical ones.
	Canonical bool
	MaxCol    uint8

	tx     Sender
	sink   Sink
	logger *slog.Logger
}

// New returns a router. tx may be nil when the half runs without a link.
func New(canonical bool, maxCol uint8, tx Sender, sink Sink, logger *slog.Logger) *Router {
	return &Router{
		Canonical: canonical,
		MaxCol:    maxCol,
		tx:        tx,
		sink:      sink,
		logger:    logger,
	}
}

// Mirror reflects e's column across the joined board.
func (r *Router) Mirror(e matrix.Event) matrix.Event {
	e.Col = r.MaxCol - e.Col
	return e
}

// Local transmits a locally scanned event to the other half and feeds the
// layout engine. Transmission failures are logged and dropped.
func (r *Router) Local(e matrix.Event) {
	if r.tx != nil {
		if err := r.tx.Send(e); err != nil {
			r.logger.Warn("link transmit failed", "event", e, "error", err)
		}
	}
	if !r.Canonical {
		e = r.Mirror(e)
	}
	r.sink.Event(e)
}

// Remote feeds the layout engine with an event received from the other
// half.
func (r *Router) Remote(e matrix.Event) {
	if r.Canonical {
		e = r.Mirror(e)
	}
	r.sink.Event(e)
}
