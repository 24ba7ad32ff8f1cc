// Package link implements the one-byte inter-half protocol: every settled
// key transition on one half travels to the other half as a single frame.
//
// Frame layout:
//
//	bit 7    pressed (1) / released (0)
//	bit 6    reserved, always 0
//	bits 3-5 column
//	bits 0-2 row
package link

import (
	"errors"
	"fmt"

	"github.com/crolbar/yuki/matrix"
)

// Frame is one encoded key transition.
type Frame byte

const (
	pressedBit  Frame = 1 << 7
	reservedBit Frame = 1 << 6
	colShift          = 3
	fieldMask         = 0x07
)

// ErrOutOfRange is returned by Encode when a coordinate does not fit the
// 3-bit row and column fields.
var ErrOutOfRange = errors.New("coordinate out of link range")

// ErrFraming matches every *FramingError with errors.Is.
var ErrFraming = errors.New("link framing error")

// FramingError describes a received byte that is not a valid frame.
type FramingError struct {
	Frame  Frame
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("link frame 0x%02x: %s", byte(e.Frame), e.Reason)
}

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// Pressed reports the frame's pressed bit.
func (f Frame) Pressed() bool { return f&pressedBit != 0 }

// Row returns the encoded row.
func (f Frame) Row() uint8 { return uint8(f) & fieldMask }

// Col returns the encoded column.
func (f Frame) Col() uint8 { return uint8(f>>colShift) & fieldMask }

// Encode packs e into a frame. The event origin is not transmitted.
func Encode(e matrix.Event) (Frame, error) {
	if e.Row > fieldMask || e.Col > fieldMask {
		return 0, fmt.Errorf("encode (%d,%d): %w", e.Row, e.Col, ErrOutOfRange)
	}
	f := Frame(e.Col)<<colShift | Frame(e.Row)
	if e.Pressed {
		f |= pressedBit
	}
	return f, nil
}

// Decode unpacks f into an event. The origin of the returned event is
// left Local; the receiver marks it Remote.
func Decode(f Frame) (matrix.Event, error) {
	if f&reservedBit != 0 {
		return matrix.Event{}, &FramingError{Frame: f, Reason: "reserved bit set"}
	}
	return matrix.Event{Row: f.Row(), Col: f.Col(), Pressed: f.Pressed()}, nil
}

// Codec validates frames against the size of the sending half.
type Codec struct {
	Size matrix.Size
}

// Encode packs e, rejecting coordinates outside the half.
func (c Codec) Encode(e matrix.Event) (Frame, error) {
	if !c.Size.Contains(e.Coord()) {
		return 0, fmt.Errorf("encode (%d,%d) on %dx%d half: %w", e.Row, e.Col, c.Size.Rows, c.Size.Cols, ErrOutOfRange)
	}
	return Encode(e)
}

// Decode unpacks f, rejecting coordinates outside the half.
func (c Codec) Decode(f Frame) (matrix.Event, error) {
	e, err := Decode(f)
	if err != nil {
		return e, err
	}
	if !c.Size.Contains(e.Coord()) {
		return matrix.Event{}, &FramingError{
			Frame:  f,
			Reason: fmt.Sprintf("coordinate (%d,%d) outside %dx%d half", e.Row, e.Col, c.Size.Rows, c.Size.Cols),
		}
	}
	return e, nil
}
