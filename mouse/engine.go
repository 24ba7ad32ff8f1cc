// Package mouse emulates a wheel mouse from key actions: buttons, movement
// with an acceleration ramp, scrolling and a speed-up modifier.
package mouse

import (
	"math"
)

// Config tunes movement.
type Config struct {
	Step         int16  `help:"Velocity added per held movement key" default:"5"`
	Boost        int16  `help:"Velocity added to moving directions while speed-up is held" default:"10"`
	Accel        int16  `help:"Velocity added per ramp step while a direction is held" default:"1"`
	RampInterval uint16 `help:"Ticks per acceleration ramp step" default:"20"`
	RampMax      uint16 `help:"Maximum number of ramp steps" default:"40"`
}

// DefaultConfig matches the default CLI values.
func DefaultConfig() Config {
	return Config{Step: 5, Boost: 10, Accel: 1, RampInterval: 20, RampMax: 40}
}

// State is the engine's observable state.
type State struct {
	// Output fields, neutral while inactive.
	Buttons uint8
	X, Y    int8
	Wheel   int8
	Pan     int8

	Active  bool
	Speedup bool
	// Press is the per-direction velocity counter, indexed by Dir.
	Press [4]int16
}

// Engine is the mouse state machine. It is owned by the tick task and is
// not safe for concurrent use.
type Engine struct {
	st    State
	conf  Config
	held  [4]int
	muted [4]int // presses made while inactive; they never move
	boost [4]bool
	ramp  [4]uint16

	buttons uint8
	wheel   int8
	pan     int8
}

// NewEngine returns an active engine.
func NewEngine(c Config) *Engine {
	if c.RampInterval == 0 {
		c.RampInterval = 1
	}
	e := &Engine{conf: c}
	e.st.Active = true
	return e
}

// State returns a copy of the current state.
func (e *Engine) State() State { return e.st }

// Active reports whether the mouse is presented to the host.
func (e *Engine) Active() bool { return e.st.Active }

// Report returns the current input report. It is neutral while inactive.
func (e *Engine) Report() Report {
	s := &e.st
	return Report{Buttons: s.Buttons, X: s.X, Y: s.Y, Wheel: s.Wheel, Pan: s.Pan}
}

// Handle applies one action transition. Unknown actions are ignored.
// Button, move and scroll presses made while inactive never reach the
// output; move counters still track them so releases stay symmetric.
func (e *Engine) Handle(a Action, pressed bool) {
	s := &e.st
	if dir, ok := a.move(); ok {
		switch {
		case pressed && !s.Active:
			e.muted[dir]++
			s.Press[dir] = satAdd16(s.Press[dir], e.conf.Step)
		case pressed:
			e.held[dir]++
			s.Press[dir] = satAdd16(s.Press[dir], e.conf.Step)
		case e.muted[dir] > 0 && e.held[dir] == 0:
			e.muted[dir]--
			s.Press[dir] = satAdd16(s.Press[dir], -e.conf.Step)
		case e.held[dir] > 0:
			e.held[dir]--
			s.Press[dir] = satAdd16(s.Press[dir], -e.conf.Step)
			if e.held[dir] == 0 {
				e.ramp[dir] = 0
			}
		}
		e.recompute()
		return
	}
	if bit, ok := a.button(); ok {
		if !pressed {
			e.buttons &^= bit
		} else if s.Active {
			e.buttons |= bit
		}
		e.recompute()
		return
	}

	// a scroll pressed while inactive must not appear on reactivation
	if pressed && !s.Active && a.scroll() {
		return
	}
	switch a {
	case ScrollUp, ScrollDown:
		e.wheel = scrollValue(a == ScrollUp, pressed)
	case ScrollLeft, ScrollRight:
		e.pan = scrollValue(a == ScrollRight, pressed)
	case Speedup:
		e.speedup(pressed)
	case ToggleActive:
		if pressed {
			s.Active = !s.Active
		}
	default:
		return
	}
	e.recompute()
}

func scrollValue(positive, pressed bool) int8 {
	switch {
	case !pressed:
		return 0
	case positive:
		return 1
	default:
		return -1
	}
}

// speedup adds the boost to the directions moving at press time and takes
// it back from exactly those on release.
func (e *Engine) speedup(pressed bool) {
	s := &e.st
	if pressed == s.Speedup {
		return
	}
	s.Speedup = pressed
	for d := range s.Press {
		switch {
		case pressed && s.Press[d] != 0:
			s.Press[d] = satAdd16(s.Press[d], e.conf.Boost)
			e.boost[d] = true
		case !pressed && e.boost[d]:
			s.Press[d] = satAdd16(s.Press[d], -e.conf.Boost)
			e.boost[d] = false
		}
	}
}

// Tick advances the acceleration ramp of every held direction.
func (e *Engine) Tick() {
	limit := uint32(e.conf.RampMax) * uint32(e.conf.RampInterval)
	for d := range e.ramp {
		if e.held[d] > 0 && uint32(e.ramp[d]) < limit && e.ramp[d] < math.MaxUint16 {
			e.ramp[d]++
		}
	}
	e.recompute()
}

// velocity of direction d; released directions never move.
func (e *Engine) velocity(d Dir) int32 {
	if e.held[d] == 0 {
		return 0
	}
	steps := int32(e.ramp[d] / e.conf.RampInterval)
	muted := int32(e.muted[d]) * int32(e.conf.Step)
	return int32(e.st.Press[d]) - muted + steps*int32(e.conf.Accel)
}

func (e *Engine) recompute() {
	s := &e.st
	if !s.Active {
		s.Buttons, s.X, s.Y, s.Wheel, s.Pan = 0, 0, 0, 0, 0
		return
	}
	s.Buttons = e.buttons
	s.X = sat8(e.velocity(Right) - e.velocity(Left))
	s.Y = sat8(e.velocity(Down) - e.velocity(Up))
	s.Wheel = e.wheel
	s.Pan = e.pan
}

// sat8 clamps to the report's logical range.
func sat8(v int32) int8 {
	switch {
	case v > math.MaxInt8:
		return math.MaxInt8
	case v < -math.MaxInt8:
		return -math.MaxInt8
	}
	return int8(v)
}

func satAdd16(a, b int16) int16 {
	v := int32(a) + int32(b)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
