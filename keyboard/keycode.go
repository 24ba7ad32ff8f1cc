// Package keyboard defines HID keyboard usages and the 8-byte boot
// keyboard report sent to the host.
package keyboard

import (
	"fmt"
	"strings"
)

// Keycode is a HID usage on the Keyboard/Keypad page.
type Keycode uint8

// Reserved usages.
const (
	KeyNone          Keycode = 0x00
	KeyErrorRollOver Keycode = 0x01
)

// Letters, digits and the main block.
const (
	KeyA Keycode = 0x04 + iota
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	Key0
	KeyEnter
	KeyEscape
	KeyBackspace
	KeyTab
	KeySpace
	KeyMinus      // - and _
	KeyEqual      // = and +
	KeyLeftBrace  // [ and {
	KeyRightBrace // ] and }
	KeyBackslash  // \ and |
	KeyNonUSHash  // Non-US # and ~
	KeySemicolon  // ; and :
	KeyApostrophe // ' and "
	KeyGrave      // ` and ~
	KeyComma      // , and <
	KeyPeriod     // . and >
	KeySlash      // / and ?
	KeyCapsLock
)

// Function and navigation keys.
const (
	KeyF1 Keycode = 0x3A + iota
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	KeyPrintScreen
	KeyScrollLock
	KeyPause
	KeyInsert
	KeyHome
	KeyPageUp
	KeyDelete
	KeyEnd
	KeyPageDown
	KeyRight
	KeyLeft
	KeyDown
	KeyUp
)

// Other keys used by the default layouts.
const (
	KeyNonUSBackslash Keycode = 0x64
	KeyApplication    Keycode = 0x65
	KeyMute           Keycode = 0x7F
	KeyVolumeUp       Keycode = 0x80
	KeyVolumeDown     Keycode = 0x81
)

// Modifier usages. They never occupy a key slot in the boot report.
const (
	KeyLeftCtrl Keycode = 0xE0 + iota
	KeyLeftShift
	KeyLeftAlt
	KeyLeftGUI
	KeyRightCtrl
	KeyRightShift
	KeyRightAlt
	KeyRightGUI
)

// IsModifier reports whether k is one of 0xE0-0xE7.
func (k Keycode) IsModifier() bool { return k >= KeyLeftCtrl && k <= KeyRightGUI }

// ModifierBit returns the report modifier bit of k, or 0.
func (k Keycode) ModifierBit() uint8 {
	if !k.IsModifier() {
		return 0
	}
	return 1 << (k - KeyLeftCtrl)
}

var keyNames = map[Keycode]string{
	KeyEnter: "Enter", KeyEscape: "Escape", KeyBackspace: "Backspace", KeyTab: "Tab",
	KeySpace: "Space", KeyMinus: "Minus", KeyEqual: "Equal", KeyLeftBrace: "LeftBrace",
	KeyRightBrace: "RightBrace", KeyBackslash: "Backslash", KeyNonUSHash: "NonUSHash",
	KeySemicolon: "Semicolon", KeyApostrophe: "Apostrophe", KeyGrave: "Grave",
	KeyComma: "Comma", KeyPeriod: "Period", KeySlash: "Slash", KeyCapsLock: "CapsLock",

	KeyPrintScreen: "PrintScreen", KeyScrollLock: "ScrollLock", KeyPause: "Pause",
	KeyInsert: "Insert", KeyHome: "Home", KeyPageUp: "PageUp", KeyDelete: "Delete",
	KeyEnd: "End", KeyPageDown: "PageDown",
	KeyRight: "Right", KeyLeft: "Left", KeyDown: "Down", KeyUp: "Up",

	KeyNonUSBackslash: "NonUSBackslash", KeyApplication: "Application",
	KeyMute: "Mute", KeyVolumeUp: "VolumeUp", KeyVolumeDown: "VolumeDown",

	KeyLeftCtrl: "LCtrl", KeyLeftShift: "LShift", KeyLeftAlt: "LAlt", KeyLeftGUI: "LGui",
	KeyRightCtrl: "RCtrl", KeyRightShift: "RShift", KeyRightAlt: "RAlt", KeyRightGUI: "RGui",
}

var byName map[string]Keycode

func init() {
	for k := KeyA; k <= KeyZ; k++ {
		keyNames[k] = string(rune('A' + k - KeyA))
	}
	for k := Key1; k <= Key9; k++ {
		keyNames[k] = string(rune('1' + k - Key1))
	}
	keyNames[Key0] = "0"
	for k := KeyF1; k <= KeyF12; k++ {
		keyNames[k] = fmt.Sprintf("F%d", k-KeyF1+1)
	}

	byName = make(map[string]Keycode, len(keyNames))
	for k, n := range keyNames {
		byName[strings.ToLower(n)] = k
	}
}

func (k Keycode) String() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", uint8(k))
}

// ParseKeycode resolves a key by its name (case-insensitive), e.g. "A",
// "Enter", "LShift" or "F5".
func ParseKeycode(s string) (Keycode, error) {
	if k, ok := byName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return KeyNone, fmt.Errorf("unknown key %q", s)
}
