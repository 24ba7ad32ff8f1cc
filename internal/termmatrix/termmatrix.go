// Package termmatrix feeds a half's matrix from a terminal in raw mode.
//
// Terminals report key presses but not releases, so every byte holds its
// switch closed for a fixed number of samples. Keyboard auto-repeat keeps
// refreshing the hold while a key is down.
package termmatrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crolbar/yuki/matrix"
	"golang.org/x/term"
)

const ctrlC = 0x03

// DefaultHold is long enough to settle through the default debounce depth
// and bridge typical auto-repeat gaps at 1 kHz.
const DefaultHold = 600

// DefaultRows maps the left hand block of a US keyboard onto a 4x6 half.
var DefaultRows = []string{"123456", "qwerty", "asdfgh", "zxcvbn"}

// Sampler is a matrix.Sampler driven by terminal input.
type Sampler struct {
	r    io.Reader
	keys map[byte]matrix.Coord
	hold uint16

	in        chan byte
	interrupt chan struct{}
	once      sync.Once

	left [matrix.MaxRows][matrix.MaxCols]uint16
}

// New maps rows[r][c] to coordinate (r, c). hold is the number of samples a
// key stays closed after its byte arrives; 0 selects DefaultHold.
func New(r io.Reader, rows []string, hold uint16) (*Sampler, error) {
	if len(rows) == 0 {
		rows = DefaultRows
	}
	if hold == 0 {
		hold = DefaultHold
	}
	if len(rows) > matrix.MaxRows {
		return nil, fmt.Errorf("%d key rows: %w", len(rows), matrix.ErrTooLarge)
	}
	keys := map[byte]matrix.Coord{}
	for ri, row := range rows {
		if len(row) > matrix.MaxCols {
			return nil, fmt.Errorf("key row %q: %w", row, matrix.ErrTooLarge)
		}
		for ci := 0; ci < len(row); ci++ {
			b := row[ci]
			if _, dup := keys[b]; dup {
				return nil, fmt.Errorf("key %q mapped twice", b)
			}
			keys[b] = matrix.Coord{Row: uint8(ri), Col: uint8(ci)}
		}
	}
	return &Sampler{
		r:         r,
		keys:      keys,
		hold:      hold,
		in:        make(chan byte, 64),
		interrupt: make(chan struct{}),
	}, nil
}

// Interrupted is closed when Ctrl-C is read. Raw mode swallows SIGINT.
func (s *Sampler) Interrupted() <-chan struct{} { return s.interrupt }

// Run reads terminal input until ctx is done or the reader ends. Bytes
// arriving faster than they are sampled are dropped.
func (s *Sampler) Run(ctx context.Context) error {
	buf := make([]byte, 32)
	for {
		n, err := s.r.Read(buf)
		for _, b := range buf[:n] {
			if b == ctrlC {
				s.once.Do(func() { close(s.interrupt) })
				continue
			}
			select {
			case s.in <- b:
			default:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("terminal read: %w", err)
		}
	}
}

// Sample reports every key still inside its hold window.
func (s *Sampler) Sample(dst *matrix.Snapshot) error {
	for drained := false; !drained; {
		select {
		case b := <-s.in:
			if c, ok := s.keys[b]; ok {
				s.left[c.Row][c.Col] = s.hold
			}
		default:
			drained = true
		}
	}
	*dst = matrix.Snapshot{}
	for r := range s.left {
		for c := range s.left[r] {
			if s.left[r][c] > 0 {
				s.left[r][c]--
				dst.Set(uint8(r), uint8(c), true)
			}
		}
	}
	return nil
}

// MakeRaw puts the terminal on fd into raw mode and returns the function
// restoring it. A non-terminal fd is left alone.
func MakeRaw(fd int) (func() error, error) {
	if !term.IsTerminal(fd) {
		return func() error { return nil }, nil
	}
	st, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("terminal raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, st) }, nil
}
