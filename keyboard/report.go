package keyboard

import (
	"io"
)

// Modifier key bitmasks
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08 // Windows/Command key
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// LED bitmasks
const (
	LEDNumLock    = 0x01
	LEDCapsLock   = 0x02
	LEDScrollLock = 0x04
	LEDCompose    = 0x08
	LEDKana       = 0x10
)

// ReportSize is the length of a boot keyboard report.
const ReportSize = 8

// MaxKeys is the number of key slots in a boot report.
const MaxKeys = 6

// Report is a boot protocol keyboard report.
//
// Report layout (8 bytes):
//
//	Byte 0: Modifiers (8 bits)
//	Byte 1: Reserved (0x00)
//	Bytes 2-7: Up to 6 pressed key usages
type Report [ReportSize]byte

// Modifiers returns the modifier byte.
func (r Report) Modifiers() uint8 { return r[0] }

// Keys returns the occupied key slots.
func (r Report) Keys() []Keycode {
	var keys []Keycode
	for _, b := range r[2:] {
		if b != 0 {
			keys = append(keys, Keycode(b))
		}
	}
	return keys
}

// Compose builds the report for a set of resolved keycodes. Modifiers go to
// the modifier byte, duplicates are folded, and more than six ordinary
// keys fill every slot with ErrorRollOver.
func Compose(keycodes []Keycode) Report {
	var r Report
	n := 0
	overflow := false
	for _, k := range keycodes {
		if k == KeyNone {
			continue
		}
		if k.IsModifier() {
			r[0] |= k.ModifierBit()
			continue
		}
		if r.has(k, n) {
			continue
		}
		if n == MaxKeys {
			overflow = true
			continue
		}
		r[2+n] = byte(k)
		n++
	}
	if overflow {
		for i := 2; i < ReportSize; i++ {
			r[i] = byte(KeyErrorRollOver)
		}
	}
	return r
}

func (r *Report) has(k Keycode, n int) bool {
	for _, b := range r[2 : 2+n] {
		if Keycode(b) == k {
			return true
		}
	}
	return false
}

// LEDState represents the state of keyboard LEDs controlled by the host.
type LEDState struct {
	NumLock    bool
	CapsLock   bool
	ScrollLock bool
	Compose    bool
	Kana       bool
}

// UnmarshalBinary decodes a 1-byte LED bitmask into LEDState.
// Bits are defined by LEDNumLock, LEDCapsLock, LEDScrollLock, LEDCompose, LEDKana.
func (st *LEDState) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return io.ErrUnexpectedEOF
	}
	b := data[0]
	st.NumLock = b&LEDNumLock != 0
	st.CapsLock = b&LEDCapsLock != 0
	st.ScrollLock = b&LEDScrollLock != 0
	st.Compose = b&LEDCompose != 0
	st.Kana = b&LEDKana != 0
	return nil
}

// ReportDescriptor is the boot keyboard report descriptor with the LED
// output report.
var ReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	0x05, 0x07, //   Usage Page (Keyboard)
	0x19, 0xE0, //   Usage Minimum (Left Control)
	0x29, 0xE7, //   Usage Maximum (Right GUI)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x01, //   Input (Constant) - reserved byte
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (Num Lock)
	0x29, 0x05, //   Usage Maximum (Kana)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x05, //   Report Count (5)
	0x91, 0x02, //   Output (Data, Variable, Absolute)
	0x75, 0x03, //   Report Size (3)
	0x95, 0x01, //   Report Count (1)
	0x91, 0x01, //   Output (Constant) - padding
	0x05, 0x07, //   Usage Page (Keyboard)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0x65, //   Usage Maximum (Application)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x65, //   Logical Maximum (101)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x06, //   Report Count (6)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}
