// Package matrix models a keyboard half's switch matrix: coordinates, key
// transitions, raw samples and the debounced scanner that turns samples
// into settled events.
package matrix

import (
	"errors"
	"fmt"
)

// MaxRows and MaxCols bound every matrix. The link frame carries row and
// column in 3 bits each, so a half can never be larger than 8x8.
const (
	MaxRows = 8
	MaxCols = 8
)

// ErrTooLarge is returned when a configured size does not fit the 8x8 cap.
var ErrTooLarge = errors.New("matrix larger than 8x8")

// Origin tells whether an event was scanned on this half or received over
// the link.
type Origin uint8

const (
	Local Origin = iota
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

// Coord addresses one switch.
type Coord struct {
	Row uint8
	Col uint8
}

// Event is a single settled key transition.
type Event struct {
	Row     uint8
	Col     uint8
	Pressed bool
	Origin  Origin
}

// Press returns a local press event.
func Press(row, col uint8) Event { return Event{Row: row, Col: col, Pressed: true} }

// Release returns a local release event.
func Release(row, col uint8) Event { return Event{Row: row, Col: col} }

// Coord returns the event's coordinate.
func (e Event) Coord() Coord { return Coord{Row: e.Row, Col: e.Col} }

func (e Event) String() string {
	kind := "release"
	if e.Pressed {
		kind = "press"
	}
	return fmt.Sprintf("%s(%d,%d)/%s", kind, e.Row, e.Col, e.Origin)
}

// Size is the dimension of one half's matrix.
type Size struct {
	Rows uint8 `help:"Matrix rows per half" default:"4"`
	Cols uint8 `help:"Matrix columns per half" default:"6"`
}

// Validate checks the size against the 8x8 link cap.
func (s Size) Validate() error {
	if s.Rows == 0 || s.Cols == 0 {
		return fmt.Errorf("matrix size %dx%d: empty", s.Rows, s.Cols)
	}
	if s.Rows > MaxRows || s.Cols > MaxCols {
		return fmt.Errorf("matrix size %dx%d: %w", s.Rows, s.Cols, ErrTooLarge)
	}
	return nil
}

// Contains reports whether c lies inside the matrix.
func (s Size) Contains(c Coord) bool {
	return c.Row < s.Rows && c.Col < s.Cols
}

// Snapshot is one raw or settled sample: bit c of row r is set when the
// switch at (r, c) is closed.
type Snapshot [MaxRows]uint8

// Get reports whether (row, col) is pressed.
func (s *Snapshot) Get(row, col uint8) bool {
	return s[row]&(1<<col) != 0
}

// Set records the state of (row, col).
func (s *Snapshot) Set(row, col uint8, pressed bool) {
	if pressed {
		s[row] |= 1 << col
	} else {
		s[row] &^= 1 << col
	}
}

// Sampler reads the electrical state of the matrix. Implementations fill
// dst completely; absent switches read as released.
type Sampler interface {
	Sample(dst *Snapshot) error
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(dst *Snapshot) error

func (f SamplerFunc) Sample(dst *Snapshot) error { return f(dst) }
