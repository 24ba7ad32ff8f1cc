package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/mouse"
)

// ActionKind is the type of a keymap entry.
type ActionKind uint8

const (
	NoOp ActionKind = iota
	// Trans falls through to the default layer.
	Trans
	Key
	// Layer activates a layer while held.
	Layer
	// DefaultLayer makes a layer the base layer.
	DefaultLayer
	CustomAction
	// HoldTap resolves to Hold when held past the timeout or when another
	// key is pressed meanwhile, and to Tap otherwise.
	HoldTap
)

// Action is one keymap entry.
type Action struct {
	Kind   ActionKind
	Key    keyboard.Keycode
	Layer  int
	Custom Custom
	Hold   *Action
	Tap    *Action
}

// K returns a key action.
func K(k keyboard.Keycode) Action { return Action{Kind: Key, Key: k} }

// L returns a momentary layer action.
func L(n int) Action { return Action{Kind: Layer, Layer: n} }

// D returns a default layer action.
func D(n int) Action { return Action{Kind: DefaultLayer, Layer: n} }

// M returns a mouse custom action.
func M(a mouse.Action) Action {
	return Action{Kind: CustomAction, Custom: Custom{Kind: CustomMouse, Mouse: a}}
}

// HT returns a hold-tap action.
func HT(hold, tap Action) Action { return Action{Kind: HoldTap, Hold: &hold, Tap: &tap} }

var (
	// T is the transparent action.
	T = Action{Kind: Trans}
	// N does nothing.
	N = Action{Kind: NoOp}
	// ToggleLink swaps the USB host half.
	ToggleLink = Action{Kind: CustomAction, Custom: Custom{Kind: CustomToggleLink}}
)

var errNested = errors.New("hold-tap only takes key and layer actions")

// ParseAction parses a keymap entry:
//
//	"", "no"               no-op
//	"trans", "_"           transparent
//	"A", "Enter", "LCtrl"  key
//	"layer:N"              momentary layer N
//	"default:N"            default layer N
//	"mouse:<action>"       mouse action, e.g. mouse:move-up
//	"toggle-link"          swap the USB host half
//	"holdtap:<hold>/<tap>" hold-tap of two key or layer actions
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch lower {
	case "", "no":
		return N, nil
	case "trans", "_":
		return T, nil
	case "toggle-link":
		return ToggleLink, nil
	}

	prefix, rest, ok := strings.Cut(s, ":")
	if !ok {
		k, err := keyboard.ParseKeycode(s)
		if err != nil {
			return N, err
		}
		return K(k), nil
	}
	switch strings.ToLower(prefix) {
	case "layer", "default":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return N, fmt.Errorf("bad layer in %q", s)
		}
		if strings.EqualFold(prefix, "layer") {
			return L(n), nil
		}
		return D(n), nil
	case "mouse":
		a, err := mouse.ParseAction(rest)
		if err != nil {
			return N, err
		}
		return M(a), nil
	case "holdtap":
		h, t, ok := strings.Cut(rest, "/")
		if !ok {
			return N, fmt.Errorf("holdtap %q: want <hold>/<tap>", s)
		}
		hold, err := parseSimple(h)
		if err != nil {
			return N, fmt.Errorf("holdtap hold: %w", err)
		}
		tap, err := parseSimple(t)
		if err != nil {
			return N, fmt.Errorf("holdtap tap: %w", err)
		}
		return HT(hold, tap), nil
	}
	return N, fmt.Errorf("unknown action %q", s)
}

func parseSimple(s string) (Action, error) {
	a, err := ParseAction(s)
	if err != nil {
		return N, err
	}
	if a.Kind != Key && a.Kind != Layer {
		return N, errNested
	}
	return a, nil
}

func (a Action) String() string {
	switch a.Kind {
	case NoOp:
		return "no"
	case Trans:
		return "trans"
	case Key:
		return a.Key.String()
	case Layer:
		return fmt.Sprintf("layer:%d", a.Layer)
	case DefaultLayer:
		return fmt.Sprintf("default:%d", a.Layer)
	case CustomAction:
		return a.Custom.String()
	case HoldTap:
		return fmt.Sprintf("holdtap:%s/%s", a.Hold, a.Tap)
	}
	return fmt.Sprintf("action(%d)", uint8(a.Kind))
}
