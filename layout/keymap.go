package layout

import (
	"errors"
	"fmt"

	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/matrix"
)

// DefaultHoldTimeout is the hold-tap timeout in ticks.
const DefaultHoldTimeout = 200

// Layers is a stack of keymap layers indexed [layer][row][col] in canonical
// coordinates.
type Layers [][][]Action

// Validate checks that every layer has the same shape and that layer
// references exist.
func (ls Layers) Validate() error {
	if len(ls) == 0 || len(ls[0]) == 0 || len(ls[0][0]) == 0 {
		return errors.New("keymap has no keys")
	}
	rows, cols := len(ls[0]), len(ls[0][0])
	for i, l := range ls {
		if len(l) != rows {
			return fmt.Errorf("layer %d: %d rows, want %d", i, len(l), rows)
		}
		for r, row := range l {
			if len(row) != cols {
				return fmt.Errorf("layer %d row %d: %d keys, want %d", i, r, len(row), cols)
			}
			for c, a := range row {
				if err := ls.checkRef(a); err != nil {
					return fmt.Errorf("layer %d (%d,%d): %w", i, r, c, err)
				}
			}
		}
	}
	return nil
}

func (ls Layers) checkRef(a Action) error {
	switch a.Kind {
	case Layer, DefaultLayer:
		if a.Layer >= len(ls) {
			return fmt.Errorf("%s: no such layer", a)
		}
	case HoldTap:
		if a.Hold == nil || a.Tap == nil {
			return errors.New("incomplete hold-tap")
		}
		if err := ls.checkRef(*a.Hold); err != nil {
			return err
		}
		return ls.checkRef(*a.Tap)
	}
	return nil
}

type slot struct {
	on  bool
	act Action
}

type momentary struct {
	at    matrix.Coord
	layer int
}

type pendingHoldTap struct {
	at      matrix.Coord
	act     Action
	elapsed int
}

// Keymap is a layered keymap engine with momentary and default layer
// switching, transparent keys, hold-tap keys and custom actions.
type Keymap struct {
	layers  Layers
	timeout int

	queue        []matrix.Event
	active       [][]slot
	defaultLayer int
	held         []momentary
	pending      *pendingHoldTap
	autoRelease  []matrix.Coord
	keycodes     []keyboard.Keycode
}

// NewKeymap returns an engine over layers. A holdTimeout of 0 selects
// DefaultHoldTimeout.
func NewKeymap(layers Layers, holdTimeout int) (*Keymap, error) {
	if err := layers.Validate(); err != nil {
		return nil, err
	}
	if holdTimeout <= 0 {
		holdTimeout = DefaultHoldTimeout
	}
	active := make([][]slot, len(layers[0]))
	for r := range active {
		active[r] = make([]slot, len(layers[0][0]))
	}
	return &Keymap{layers: layers, timeout: holdTimeout, active: active}, nil
}

// Layers returns the keymap layers.
func (k *Keymap) Layers() Layers { return k.layers }

// CurrentLayer is the last held momentary layer, or the default layer.
func (k *Keymap) CurrentLayer() int {
	if n := len(k.held); n > 0 {
		return k.held[n-1].layer
	}
	return k.defaultLayer
}

// Event queues a canonical event for the next Tick.
func (k *Keymap) Event(e matrix.Event) {
	k.queue = append(k.queue, e)
}

// Tick consumes queued events until one produces a custom transition. The
// returned keycodes are only valid until the next Tick.
func (k *Keymap) Tick() Output {
	var out Output

	for _, at := range k.autoRelease {
		k.release(at)
	}
	k.autoRelease = k.autoRelease[:0]

	if k.pending != nil {
		k.pending.elapsed++
		if k.pending.elapsed >= k.timeout {
			k.resolveHold()
		}
	}

	n := 0
	for n < len(k.queue) && !out.HasCustom {
		e := k.queue[n]
		n++
		out.Custom, out.HasCustom = k.handle(e)
	}
	k.queue = append(k.queue[:0], k.queue[n:]...)

	k.keycodes = k.keycodes[:0]
	for _, row := range k.active {
		for _, s := range row {
			if s.on && s.act.Kind == Key {
				k.keycodes = append(k.keycodes, s.act.Key)
			}
		}
	}
	out.Keycodes = k.keycodes
	out.Layer = k.CurrentLayer()
	return out
}

func (k *Keymap) handle(e matrix.Event) (Transition, bool) {
	at := e.Coord()
	if int(at.Row) >= len(k.active) || int(at.Col) >= len(k.active[0]) {
		return Transition{}, false
	}
	if p := k.pending; p != nil {
		switch {
		case at == p.at && !e.Pressed:
			k.pending = nil
			k.press(at, *p.act.Tap)
			k.autoRelease = append(k.autoRelease, at)
			return Transition{}, false
		case e.Pressed:
			k.resolveHold()
		}
	}
	if e.Pressed {
		return k.press(at, k.resolve(at))
	}
	return k.release(at)
}

// resolve finds the action for a newly pressed key on the current layer.
func (k *Keymap) resolve(at matrix.Coord) Action {
	a := k.layers[k.CurrentLayer()][at.Row][at.Col]
	if a.Kind == Trans {
		a = k.layers[k.defaultLayer][at.Row][at.Col]
	}
	if a.Kind == Trans {
		return N
	}
	return a
}

func (k *Keymap) press(at matrix.Coord, a Action) (Transition, bool) {
	switch a.Kind {
	case HoldTap:
		k.pending = &pendingHoldTap{at: at, act: a}
		return Transition{}, false
	case DefaultLayer:
		k.defaultLayer = a.Layer
	case Layer:
		k.held = append(k.held, momentary{at: at, layer: a.Layer})
	case NoOp, Trans:
		return Transition{}, false
	}
	k.active[at.Row][at.Col] = slot{on: true, act: a}
	if a.Kind == CustomAction {
		return Transition{Custom: a.Custom, Pressed: true}, true
	}
	return Transition{}, false
}

func (k *Keymap) release(at matrix.Coord) (Transition, bool) {
	s := k.active[at.Row][at.Col]
	if !s.on {
		return Transition{}, false
	}
	k.active[at.Row][at.Col] = slot{}
	switch s.act.Kind {
	case Layer:
		for i, m := range k.held {
			if m.at == at {
				k.held = append(k.held[:i], k.held[i+1:]...)
				break
			}
		}
	case CustomAction:
		return Transition{Custom: s.act.Custom}, true
	}
	return Transition{}, false
}

func (k *Keymap) resolveHold() {
	p := k.pending
	k.pending = nil
	k.press(p.at, *p.act.Hold)
}
