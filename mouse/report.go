package mouse

import (
	"io"
)

// Report button bits.
const (
	ButtonBitLeft   = 0x01
	ButtonBitRight  = 0x02
	ButtonBitMiddle = 0x04
)

// ReportSize is the length of a wheel-mouse input report.
const ReportSize = 5

// Report is one wheel-mouse input report.
type Report struct {
	// Button bitfield: bit 0=Left, 1=Right, 2=Middle
	Buttons uint8
	X, Y    int8
	Wheel   int8
	Pan     int8
}

// Neutral reports whether the report carries no buttons and no motion.
func (r Report) Neutral() bool { return r == Report{} }

// Bytes encodes the report.
//
// Report layout (5 bytes):
//
//	Byte 0: Button bitfield (bit 0=Left, 1=Right, 2=Middle, bits 3-7=padding)
//	Byte 1: X (int8)
//	Byte 2: Y (int8)
//	Byte 3: Wheel (int8)
//	Byte 4: Pan (int8)
func (r Report) Bytes() []byte {
	return []byte{r.Buttons & 0x07, byte(r.X), byte(r.Y), byte(r.Wheel), byte(r.Pan)}
}

// UnmarshalBinary decodes a 5-byte report.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < ReportSize {
		return io.ErrUnexpectedEOF
	}
	r.Buttons = data[0]
	r.X = int8(data[1])
	r.Y = int8(data[2])
	r.Wheel = int8(data[3])
	r.Pan = int8(data[4])
	return nil
}

// ReportDescriptor describes a 3-button boot-compatible mouse with vertical
// and horizontal wheels.
var ReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x02, // Usage (Mouse)
	0xA1, 0x01, // Collection (Application)
	0x09, 0x01, //   Usage (Pointer)
	0xA1, 0x00, //   Collection (Physical)
	0x05, 0x09, //     Usage Page (Button)
	0x19, 0x01, //     Usage Minimum (Button 1)
	0x29, 0x03, //     Usage Maximum (Button 3)
	0x15, 0x00, //     Logical Minimum (0)
	0x25, 0x01, //     Logical Maximum (1)
	0x95, 0x03, //     Report Count (3)
	0x75, 0x01, //     Report Size (1)
	0x81, 0x02, //     Input (Data, Variable, Absolute)
	0x95, 0x01, //     Report Count (1)
	0x75, 0x05, //     Report Size (5)
	0x81, 0x01, //     Input - padding
	0x05, 0x01, //     Usage Page (Generic Desktop)
	0x09, 0x30, //     Usage (X)
	0x09, 0x31, //     Usage (Y)
	0x09, 0x38, //     Usage (Wheel)
	0x15, 0x81, //     Logical Minimum (-127)
	0x25, 0x7F, //     Logical Maximum (127)
	0x75, 0x08, //     Report Size (8)
	0x95, 0x03, //     Report Count (3)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0x05, 0x0C, //     Usage Page (Consumer)
	0x0A, 0x38, 0x02, // Usage (AC Pan)
	0x15, 0x81, //     Logical Minimum (-127)
	0x25, 0x7F, //     Logical Maximum (127)
	0x75, 0x08, //     Report Size (8)
	0x95, 0x01, //     Report Count (1)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0xC0, //   End Collection
	0xC0, // End Collection
}
