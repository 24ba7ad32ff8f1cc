package layout

import (
	kb "github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/mouse"
)

// Default layer indices.
const (
	LayerDvorak = 0
	LayerQwerty = 1
	LayerMouse  = 2
)

// DefaultNames names the default layers.
var DefaultNames = []string{"dvorak", "qwerty", "mouse"}

var ctrlEnter = HT(K(kb.KeyLeftCtrl), K(kb.KeyEnter))

// DefaultLayers is the built-in 4x12 keymap: dvorak and qwerty base layers
// swapped with the bottom-right key of the third row, and a mouse layer held
// from the outer bottom corners.
func DefaultLayers() Layers {
	k := K
	thumbs := []Action{
		L(LayerMouse), T, k(kb.KeyLeftAlt), k(kb.KeyLeftGUI), k(kb.KeySpace), ctrlEnter,
		k(kb.KeyBackspace), k(kb.KeyLeftAlt), k(kb.KeyTab), k(kb.KeyLeftCtrl), T, L(LayerMouse),
	}
	return Layers{
		LayerDvorak: {
			{k(kb.KeyGrave), k(kb.KeyApostrophe), k(kb.KeyComma), k(kb.KeyPeriod), k(kb.KeyP), k(kb.KeyY),
				k(kb.KeyF), k(kb.KeyG), k(kb.KeyC), k(kb.KeyR), k(kb.KeyL), k(kb.KeySlash)},
			{k(kb.KeyEscape), k(kb.KeyA), k(kb.KeyO), k(kb.KeyE), k(kb.KeyU), k(kb.KeyI),
				k(kb.KeyD), k(kb.KeyH), k(kb.KeyT), k(kb.KeyN), k(kb.KeyS), k(kb.KeyMinus)},
			{k(kb.KeyLeftShift), k(kb.KeySemicolon), k(kb.KeyQ), k(kb.KeyJ), k(kb.KeyK), k(kb.KeyX),
				k(kb.KeyB), k(kb.KeyM), k(kb.KeyW), k(kb.KeyV), k(kb.KeyZ), D(LayerQwerty)},
			thumbs,
		},
		LayerQwerty: {
			{k(kb.KeyGrave), k(kb.KeyQ), k(kb.KeyW), k(kb.KeyE), k(kb.KeyR), k(kb.KeyT),
				k(kb.KeyY), k(kb.KeyU), k(kb.KeyI), k(kb.KeyO), k(kb.KeyP), T},
			{k(kb.KeyTab), k(kb.KeyA), k(kb.KeyS), k(kb.KeyD), k(kb.KeyF), k(kb.KeyG),
				k(kb.KeyH), k(kb.KeyJ), k(kb.KeyK), k(kb.KeyL), k(kb.KeySemicolon), k(kb.KeyApostrophe)},
			{k(kb.KeyLeftShift), k(kb.KeyZ), k(kb.KeyX), k(kb.KeyC), k(kb.KeyV), k(kb.KeyB),
				k(kb.KeyN), k(kb.KeyM), k(kb.KeyComma), k(kb.KeyPeriod), k(kb.KeySlash), D(LayerDvorak)},
			thumbs,
		},
		LayerMouse: {
			{T, T, T, M(mouse.MoveUp), T, T,
				T, M(mouse.ScrollLeft), M(mouse.ScrollUp), M(mouse.ScrollRight), T, T},
			{T, T, M(mouse.MoveLeft), M(mouse.MoveDown), M(mouse.MoveRight), T,
				k(kb.KeyLeft), k(kb.KeyDown), k(kb.KeyUp), k(kb.KeyRight), T, T},
			{T, T, M(mouse.ButtonLeft), M(mouse.ButtonMiddle), M(mouse.ButtonRight), T,
				T, M(mouse.ScrollDown), T, T, T, T},
			{T, T, T, M(mouse.Speedup), T, T,
				T, T, M(mouse.ToggleActive), ToggleLink, T, T},
		},
	}
}

// DefaultKeymap returns an engine over DefaultLayers.
func DefaultKeymap() *Keymap {
	km, err := NewKeymap(DefaultLayers(), DefaultHoldTimeout)
	if err != nil {
		panic(err)
	}
	return km
}
