// Package arbiter flushes keyboard and mouse reports to the USB host when
// this half owns the host connection.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/mouse"
)

var (
	// ErrBusy is returned by a transport whose previous report has not been
	// taken by the host yet.
	ErrBusy = errors.New("usb transport busy")
	// ErrNotConfigured is returned when the host is not (or no longer)
	// attached to the device.
	ErrNotConfigured = errors.New("usb device not configured")
)

// DefaultRetryDelay is the pause between write attempts on a busy
// transport.
const DefaultRetryDelay = 100 * time.Microsecond

// Transport is the HID device as seen from the tick task.
type Transport interface {
	Configured() bool
	WriteKeyboard(report []byte) (int, error)
	WriteMouse(report []byte) (int, error)
}

// Discarder is implemented by transports that can drop reports queued but
// not yet taken by the host.
type Discarder interface {
	Discard()
}

// Arbiter composes and flushes reports once per tick.
type Arbiter struct {
	t          Transport
	logger     *slog.Logger
	retryDelay time.Duration

	lastKb    keyboard.Report
	haveKb    bool
	lastMouse mouse.Report
	haveMouse bool
}

// New returns an arbiter writing to t. A zero retryDelay selects
// DefaultRetryDelay.
func New(t Transport, retryDelay time.Duration, logger *slog.Logger) *Arbiter {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Arbiter{t: t, logger: logger, retryDelay: retryDelay}
}

// Flush writes the keyboard report when it changed and the mouse report
// when the mouse is active and moving or changed. Nothing is written unless
// this half is the host and the device is configured, except on the first
// flush after losing the host role: keys and buttons still held by the last
// reports are released once. A host detaching during a busy wait yields
// ErrNotConfigured.
func (a *Arbiter) Flush(ctx context.Context, dir link.Direction, keycodes []keyboard.Keycode, m mouse.Report, mouseActive bool) error {
	if dir != link.ThisHalfIsHost {
		err := a.release(ctx)
		a.forget()
		return err
	}
	if !a.t.Configured() {
		a.forget()
		return nil
	}

	kb := keyboard.Compose(keycodes)
	if !a.haveKb || kb != a.lastKb {
		if err := a.write(ctx, a.t.WriteKeyboard, kb[:]); err != nil {
			a.fail(err)
			return fmt.Errorf("keyboard report: %w", err)
		}
		a.lastKb, a.haveKb = kb, true
	}

	if !mouseActive {
		// buttons held when the mouse went inactive must not stay down
		if !a.haveMouse || a.lastMouse.Neutral() {
			return nil
		}
		m = mouse.Report{}
	}
	if m.Neutral() && a.haveMouse && a.lastMouse.Neutral() {
		return nil
	}
	if err := a.write(ctx, a.t.WriteMouse, m.Bytes()); err != nil {
		a.fail(err)
		return fmt.Errorf("mouse report: %w", err)
	}
	a.lastMouse, a.haveMouse = m, true
	return nil
}

// release replaces whatever is still queued with reports holding nothing.
func (a *Arbiter) release(ctx context.Context) error {
	kbHeld := a.haveKb && a.lastKb != (keyboard.Report{})
	mouseHeld := a.haveMouse && !a.lastMouse.Neutral()
	if !kbHeld && !mouseHeld || !a.t.Configured() {
		return nil
	}
	if d, ok := a.t.(Discarder); ok {
		d.Discard()
	}
	a.logger.Debug("host role lost, releasing held reports", "keyboard", kbHeld, "mouse", mouseHeld)
	if kbHeld {
		var empty keyboard.Report
		if err := a.write(ctx, a.t.WriteKeyboard, empty[:]); err != nil {
			return fmt.Errorf("keyboard release: %w", err)
		}
	}
	if mouseHeld {
		if err := a.write(ctx, a.t.WriteMouse, mouse.Report{}.Bytes()); err != nil {
			return fmt.Errorf("mouse release: %w", err)
		}
	}
	return nil
}

// write retries until the transport accepts the whole report.
func (a *Arbiter) write(ctx context.Context, w func([]byte) (int, error), report []byte) error {
	for {
		n, err := w(report)
		if err == nil && n == len(report) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrBusy) {
			return err
		}
		if !a.t.Configured() {
			return ErrNotConfigured
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(a.retryDelay)
	}
}

func (a *Arbiter) fail(err error) {
	if errors.Is(err, ErrNotConfigured) {
		a.forget()
	}
}

// forget drops the last flushed reports so the next flush is unconditional.
func (a *Arbiter) forget() {
	if a.haveKb || a.haveMouse {
		a.logger.Debug("usb host lost, forgetting flushed reports")
	}
	a.haveKb, a.haveMouse = false, false
}
