package matrix

import (
	"errors"
	"fmt"
	"iter"
)

// ErrBootloader is returned by bootloaders that hand control back instead
// of jumping into the ROM bootloader (for instance on a workstation build).
var ErrBootloader = errors.New("bootloader requested")

// Bootloader jumps into the MCU's built-in bootloader. On hardware Enter
// never returns.
type Bootloader interface {
	Enter() error
}

// BootloaderFunc adapts a function to Bootloader.
type BootloaderFunc func() error

func (f BootloaderFunc) Enter() error { return f() }

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Size  Size
	Depth uint8 // 0 selects DefaultDebounceDepth
	// Absent lists declared coordinates with no switch wired.
	Absent []Coord
	// Chord is the pair of corner switches that triggers the bootloader
	// when both are newly pressed in the same raw sample.
	Chord [2]Coord
}

// DefaultChord returns the bootloader corners of a half: top and bottom of
// the innermost column.
func DefaultChord(size Size) [2]Coord {
	return [2]Coord{
		{Row: 0, Col: size.Cols - 1},
		{Row: size.Rows - 1, Col: size.Cols - 1},
	}
}

// Scanner samples the local matrix once per tick and yields debounced
// transitions.
type Scanner struct {
	sampler Sampler
	size    Size
	deb     *Debouncer
	absent  Snapshot
	chord   [2]Coord
	boot    Bootloader
	masked  bool

	raw     Snapshot
	changed Snapshot
	events  []Event
}

// NewScanner builds a scanner over sampler. A nil bootloader disables the
// chord check.
func NewScanner(sampler Sampler, cfg ScannerConfig, boot Bootloader) (*Scanner, error) {
	if sampler == nil {
		return nil, errors.New("nil sampler")
	}
	if err := cfg.Size.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{
		sampler: sampler,
		size:    cfg.Size,
		deb:     NewDebouncer(cfg.Depth),
		chord:   cfg.Chord,
		boot:    boot,
		events:  make([]Event, 0, int(cfg.Size.Rows)*int(cfg.Size.Cols)),
	}
	for _, c := range cfg.Absent {
		if !cfg.Size.Contains(c) {
			return nil, fmt.Errorf("absent coordinate (%d,%d) outside %dx%d matrix", c.Row, c.Col, cfg.Size.Rows, cfg.Size.Cols)
		}
		s.absent.Set(c.Row, c.Col, true)
	}
	if boot != nil {
		for _, c := range cfg.Chord {
			if !cfg.Size.Contains(c) {
				return nil, fmt.Errorf("bootloader chord (%d,%d) outside %dx%d matrix", c.Row, c.Col, cfg.Size.Rows, cfg.Size.Cols)
			}
		}
	}
	return s, nil
}

// Size returns the scanned matrix size.
func (s *Scanner) Size() Size { return s.size }

// Settled returns the debounced state.
func (s *Scanner) Settled() Snapshot { return s.deb.Settled() }

// Scan samples the matrix and returns this tick's settled transitions:
// presses in row-major order, then releases in row-major order. The chord
// check runs on the raw sample before debouncing; when it fires, no events
// are produced and the corner switches stay silent until both are
// released.
func (s *Scanner) Scan() (iter.Seq[Event], error) {
	s.events = s.events[:0]
	if err := s.sampler.Sample(&s.raw); err != nil {
		return s.seq(), fmt.Errorf("sample matrix: %w", err)
	}
	for r := range s.raw {
		s.raw[r] &^= s.absent[r]
	}

	if s.chordPressed() {
		s.masked = true
		if err := s.boot.Enter(); err != nil {
			return s.seq(), err
		}
		return s.seq(), nil
	}
	if s.masked {
		a, b := s.chord[0], s.chord[1]
		if !s.raw.Get(a.Row, a.Col) && !s.raw.Get(b.Row, b.Col) {
			s.masked = false
		} else {
			settled := s.deb.Settled()
			for _, c := range s.chord {
				s.raw.Set(c.Row, c.Col, settled.Get(c.Row, c.Col))
				s.deb.reset(c.Row, c.Col)
			}
		}
	}

	s.deb.Update(&s.raw, s.size, &s.changed)
	settled := s.deb.Settled()
	for _, pressed := range [2]bool{true, false} {
		for r := uint8(0); r < s.size.Rows; r++ {
			if s.changed[r] == 0 {
				continue
			}
			for c := uint8(0); c < s.size.Cols; c++ {
				if s.changed.Get(r, c) && settled.Get(r, c) == pressed {
					s.events = append(s.events, Event{Row: r, Col: c, Pressed: pressed, Origin: Local})
				}
			}
		}
	}
	return s.seq(), nil
}

func (s *Scanner) chordPressed() bool {
	if s.boot == nil || s.masked {
		return false
	}
	settled := s.deb.Settled()
	for _, c := range s.chord {
		if !s.raw.Get(c.Row, c.Col) || settled.Get(c.Row, c.Col) {
			return false
		}
	}
	return true
}

func (s *Scanner) seq() iter.Seq[Event] {
	events := s.events
	return func(yield func(Event) bool) {
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}
