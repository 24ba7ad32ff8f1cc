// Package layout turns canonical key events into keycodes, the active layer
// and custom action transitions.
//
// Engine is the contract the rest of the half depends on; Keymap is the
// layered keymap implementation used by default.
package layout

import (
	"fmt"

	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/matrix"
	"github.com/crolbar/yuki/mouse"
)

// Engine resolves key events. Event is called for every routed event in
// canonical coordinates; Tick is called exactly once per tick afterwards.
type Engine interface {
	Event(e matrix.Event)
	Tick() Output
}

// Output is the engine's result for one tick.
type Output struct {
	Keycodes []keyboard.Keycode
	Layer    int
	// Custom is valid when HasCustom is set. At most one custom transition
	// is produced per tick; later ones wait for the following ticks.
	Custom    Transition
	HasCustom bool
}

// CustomKind selects what a custom action drives.
type CustomKind uint8

const (
	CustomNone CustomKind = iota
	// CustomMouse drives the mouse engine.
	CustomMouse
	// CustomToggleLink swaps which half talks to the USB host.
	CustomToggleLink
)

// Custom is an action handled outside the keyboard report.
type Custom struct {
	Kind  CustomKind
	Mouse mouse.Action
}

func (c Custom) String() string {
	switch c.Kind {
	case CustomMouse:
		return "mouse:" + c.Mouse.String()
	case CustomToggleLink:
		return "toggle-link"
	}
	return fmt.Sprintf("custom(%d)", uint8(c.Kind))
}

// Transition is the press or release of a custom action.
type Transition struct {
	Custom  Custom
	Pressed bool
}
