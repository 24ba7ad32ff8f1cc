// Package half runs the per-tick control loop of one keyboard half.
package half

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crolbar/yuki/arbiter"
	"github.com/crolbar/yuki/display"
	"github.com/crolbar/yuki/internal/ceiling"
	"github.com/crolbar/yuki/layout"
	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/matrix"
	"github.com/crolbar/yuki/mouse"
	"github.com/crolbar/yuki/router"
	"tinygo.org/x/drivers"
)

// Direction tells which half owns the USB host connection.
type Direction = link.Direction

const (
	ThisHalfIsHost  = link.ThisHalfIsHost
	OtherHalfIsHost = link.OtherHalfIsHost
)

// DefaultTickPeriod is the 1 kHz control rate.
const DefaultTickPeriod = time.Millisecond

// Ticks from a toggle press until the direction flips. The peer sees the
// press up to one tick later over the link, and the half taking the host
// role must wait until the other has stopped flushing.
const (
	loseHostDelay = 1
	gainHostDelay = 3
)

// InitError reports a peripheral that could not be brought up. It is fatal.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Options wires a half to its peripherals. Link, Remote, Transport and
// Display are optional.
type Options struct {
	Sampler    matrix.Sampler
	Scanner    matrix.ScannerConfig
	Bootloader matrix.Bootloader

	Canonical bool
	MaxCol    uint8 // 0 selects router.DefaultMaxCol

	Link   router.Sender
	Remote <-chan matrix.Event

	Engine layout.Engine
	Mouse  mouse.Config

	Transport  arbiter.Transport
	RetryDelay time.Duration

	Display drivers.Displayer

	// Shared with the USB task; created when nil.
	Direction   *ceiling.Resource[Direction]
	MouseActive *ceiling.Resource[bool]

	Logger *slog.Logger
}

// Half owns the tick task state. Only Tick mutates it.
type Half struct {
	logger   *slog.Logger
	scanner  *matrix.Scanner
	router   *router.Router
	engine   layout.Engine
	remote   <-chan matrix.Event
	mouse    *mouse.Engine
	arbiter  *arbiter.Arbiter
	feedback *display.Feedback

	dir         *ceiling.Resource[Direction]
	mouseActive *ceiling.Resource[bool]

	toggleIn int // ticks until a pending toggle applies, 0 when none
	layer    int
	ticks    uint64
}

// New validates the options and builds the half.
func New(o Options) (*Half, error) {
	if o.Logger == nil {
		return nil, &InitError{Component: "logger", Err: errors.New("missing")}
	}
	if o.Engine == nil {
		return nil, &InitError{Component: "layout", Err: errors.New("missing engine")}
	}
	sc, err := matrix.NewScanner(o.Sampler, o.Scanner, o.Bootloader)
	if err != nil {
		return nil, &InitError{Component: "matrix", Err: err}
	}
	if o.MaxCol == 0 {
		o.MaxCol = router.DefaultMaxCol(o.Scanner.Size.Cols)
	}
	if o.Direction == nil {
		o.Direction = ceiling.New(ThisHalfIsHost, ceiling.Tick, ceiling.USB)
	}
	if o.MouseActive == nil {
		o.MouseActive = ceiling.New(true, ceiling.Tick, ceiling.USB)
	}

	h := &Half{
		logger:      o.Logger,
		scanner:     sc,
		engine:      o.Engine,
		remote:      o.Remote,
		mouse:       mouse.NewEngine(o.Mouse),
		dir:         o.Direction,
		mouseActive: o.MouseActive,
	}
	h.router = router.New(o.Canonical, o.MaxCol, o.Link, router.SinkFunc(o.Engine.Event), o.Logger.With("component", "router"))
	if o.Transport != nil {
		h.arbiter = arbiter.New(o.Transport, o.RetryDelay, o.Logger.With("component", "arbiter"))
	}
	if o.Display != nil {
		h.feedback = display.New(o.Display)
	}
	h.mouseActive.Store(ceiling.Tick, h.mouse.Active())
	return h, nil
}

// Direction returns the current link direction.
func (h *Half) Direction() Direction { return h.dir.Load(ceiling.Tick) }

// Layer returns the layer reported by the last tick.
func (h *Half) Layer() int { return h.layer }

// Mouse returns the mouse state after the last tick.
func (h *Half) Mouse() mouse.State { return h.mouse.State() }

// Ticks returns the number of completed ticks.
func (h *Half) Ticks() uint64 { return h.ticks }

// Tick runs one control period. Recoverable peripheral errors are logged;
// the returned error is either the bootloader trap or ctx's error.
func (h *Half) Tick(ctx context.Context) error {
	if h.toggleIn > 0 {
		h.toggleIn--
		if h.toggleIn == 0 {
			var now Direction
			h.dir.Lock(ceiling.Tick, func(d *Direction) {
				*d = d.Toggle()
				now = *d
			})
			h.logger.Info("link direction toggled", "direction", now)
		}
	}

	events, err := h.scanner.Scan()
	if err != nil {
		if errors.Is(err, matrix.ErrBootloader) {
			return err
		}
		h.logger.Warn("scan failed", "error", err)
	}
	for e := range events {
		h.router.Local(e)
	}

	// events arriving while draining wait for the next tick
	for n := len(h.remote); n > 0; n-- {
		h.router.Remote(<-h.remote)
	}

	out := h.engine.Tick()
	h.layer = out.Layer
	if out.HasCustom {
		h.dispatch(out.Custom)
	}

	h.mouse.Tick()
	active := h.mouse.Active()
	h.mouseActive.Store(ceiling.Tick, active)

	dir := h.Direction()
	if h.arbiter != nil {
		err := h.arbiter.Flush(ctx, dir, out.Keycodes, h.mouse.Report(), active)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, arbiter.ErrNotConfigured):
			h.logger.Debug("usb flush skipped", "error", err)
		default:
			h.logger.Warn("usb flush failed", "error", err)
		}
	}

	if h.feedback != nil {
		if err := h.feedback.Update(out.Layer, dir); err != nil {
			h.logger.Debug("display update failed", "error", err)
		}
	}
	h.ticks++
	return nil
}

func (h *Half) dispatch(t layout.Transition) {
	switch t.Custom.Kind {
	case layout.CustomMouse:
		h.mouse.Handle(t.Custom.Mouse, t.Pressed)
	case layout.CustomToggleLink:
		switch {
		case !t.Pressed:
		case h.toggleIn > 0:
			h.logger.Debug("link toggle already pending")
		case h.Direction() == ThisHalfIsHost:
			h.toggleIn = loseHostDelay
		default:
			h.toggleIn = gainHostDelay
		}
	}
}

// Run ticks every period until ctx is done or the bootloader trap fires.
func (h *Half) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	h.logger.Info("half running", "period", period, "direction", h.Direction())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Bootloader is the trap of a half that cannot reboot into a bootloader:
// it logs and ends the run with matrix.ErrBootloader.
type Bootloader struct {
	Logger *slog.Logger
}

func (b Bootloader) Enter() error {
	b.Logger.Warn("bootloader chord pressed, stopping")
	return matrix.ErrBootloader
}
