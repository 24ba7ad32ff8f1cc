package mouse

import (
	"fmt"
	"strings"
)

// Dir is a movement or scroll direction.
type Dir uint8

const (
	Up Dir = iota
	Down
	Left
	Right
)

var dirNames = [...]string{Up: "up", Down: "down", Left: "left", Right: "right"}

func (d Dir) String() string {
	if int(d) < len(dirNames) {
		return dirNames[d]
	}
	return fmt.Sprintf("dir(%d)", uint8(d))
}

// Action is a mouse key action bound in the keymap.
type Action uint8

const (
	None Action = iota
	ButtonLeft
	ButtonRight
	ButtonMiddle
	MoveUp
	MoveDown
	MoveLeft
	MoveRight
	ScrollUp
	ScrollDown
	ScrollLeft
	ScrollRight
	Speedup
	ToggleActive
)

var actionNames = map[Action]string{
	ButtonLeft:   "left",
	ButtonRight:  "right",
	ButtonMiddle: "middle",
	MoveUp:       "move-up",
	MoveDown:     "move-down",
	MoveLeft:     "move-left",
	MoveRight:    "move-right",
	ScrollUp:     "scroll-up",
	ScrollDown:   "scroll-down",
	ScrollLeft:   "scroll-left",
	ScrollRight:  "scroll-right",
	Speedup:      "speedup",
	ToggleActive: "toggle",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// ParseAction resolves an action by name, e.g. "move-up" or "scroll-left".
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, n := range actionNames {
		if n == s {
			return a, nil
		}
	}
	return None, fmt.Errorf("unknown mouse action %q", s)
}

// move returns the direction of a movement action.
func (a Action) move() (Dir, bool) {
	if a >= MoveUp && a <= MoveRight {
		return Dir(a - MoveUp), true
	}
	return 0, false
}

func (a Action) scroll() bool {
	switch a {
	case ScrollUp, ScrollDown, ScrollLeft, ScrollRight:
		return true
	}
	return false
}

// button returns the report bit of a button action.
func (a Action) button() (uint8, bool) {
	switch a {
	case ButtonLeft:
		return ButtonBitLeft, true
	case ButtonRight:
		return ButtonBitRight, true
	case ButtonMiddle:
		return ButtonBitMiddle, true
	}
	return 0, false
}
