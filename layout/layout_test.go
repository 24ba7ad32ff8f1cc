package layout_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/layout"
	"github.com/crolbar/yuki/matrix"
	"github.com/crolbar/yuki/mouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tap(km *layout.Keymap, e matrix.Event) layout.Output {
	km.Event(e)
	return km.Tick()
}

func TestDefaultKeymapKeys(t *testing.T) {
	km := layout.DefaultKeymap()

	out := tap(km, matrix.Press(1, 1))
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyA}, out.Keycodes)
	assert.Equal(t, layout.LayerDvorak, out.Layer)

	out = tap(km, matrix.Press(0, 11))
	assert.Equal(t, []keyboard.Keycode{keyboard.KeySlash, keyboard.KeyA}, out.Keycodes, "row-major order")

	tap(km, matrix.Release(1, 1))
	out = tap(km, matrix.Release(0, 11))
	assert.Empty(t, out.Keycodes)
}

func TestDefaultLayerSwitch(t *testing.T) {
	km := layout.DefaultKeymap()

	tap(km, matrix.Press(2, 11))
	out := tap(km, matrix.Release(2, 11))
	assert.Equal(t, layout.LayerQwerty, out.Layer)

	out = tap(km, matrix.Press(0, 1))
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyQ}, out.Keycodes)
	tap(km, matrix.Release(0, 1))

	tap(km, matrix.Press(2, 11))
	out = tap(km, matrix.Release(2, 11))
	assert.Equal(t, layout.LayerDvorak, out.Layer)
}

func TestMomentaryLayerAndTransparent(t *testing.T) {
	km := layout.DefaultKeymap()

	out := tap(km, matrix.Press(3, 0))
	assert.Equal(t, layout.LayerMouse, out.Layer)

	out = tap(km, matrix.Press(1, 1))
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyA}, out.Keycodes, "transparent falls through to default layer")

	out = tap(km, matrix.Press(1, 6))
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyA, keyboard.KeyLeft}, out.Keycodes)

	out = tap(km, matrix.Release(3, 0))
	assert.Equal(t, layout.LayerDvorak, out.Layer)
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyA, keyboard.KeyLeft}, out.Keycodes, "keys keep the action they were pressed with")

	tap(km, matrix.Release(1, 6))
	out = tap(km, matrix.Release(1, 1))
	assert.Empty(t, out.Keycodes)
}

func TestCustomActionsOnePerTick(t *testing.T) {
	km := layout.DefaultKeymap()
	tap(km, matrix.Press(3, 0))

	km.Event(matrix.Press(0, 3))
	km.Event(matrix.Press(2, 2))
	out := km.Tick()
	require.True(t, out.HasCustom)
	assert.Equal(t, layout.Transition{Custom: layout.Custom{Kind: layout.CustomMouse, Mouse: mouse.MoveUp}, Pressed: true}, out.Custom)

	out = km.Tick()
	require.True(t, out.HasCustom)
	assert.Equal(t, mouse.ButtonLeft, out.Custom.Custom.Mouse)

	out = km.Tick()
	assert.False(t, out.HasCustom)

	out = tap(km, matrix.Release(0, 3))
	require.True(t, out.HasCustom)
	assert.False(t, out.Custom.Pressed)
}

func TestToggleLinkAction(t *testing.T) {
	km := layout.DefaultKeymap()
	tap(km, matrix.Press(3, 11))
	out := tap(km, matrix.Press(3, 9))
	require.True(t, out.HasCustom)
	assert.Equal(t, layout.CustomToggleLink, out.Custom.Custom.Kind)
	assert.True(t, out.Custom.Pressed)
}

func TestHoldTap(t *testing.T) {
	t.Run("tap", func(t *testing.T) {
		km := layout.DefaultKeymap()
		out := tap(km, matrix.Press(3, 5))
		assert.Empty(t, out.Keycodes)
		out = tap(km, matrix.Release(3, 5))
		assert.Equal(t, []keyboard.Keycode{keyboard.KeyEnter}, out.Keycodes)
		out = km.Tick()
		assert.Empty(t, out.Keycodes)
	})
	t.Run("timeout", func(t *testing.T) {
		km := layout.DefaultKeymap()
		tap(km, matrix.Press(3, 5))
		var out layout.Output
		for range layout.DefaultHoldTimeout {
			out = km.Tick()
		}
		assert.Equal(t, []keyboard.Keycode{keyboard.KeyLeftCtrl}, out.Keycodes)
		out = tap(km, matrix.Release(3, 5))
		assert.Empty(t, out.Keycodes)
	})
	t.Run("other key press", func(t *testing.T) {
		km := layout.DefaultKeymap()
		tap(km, matrix.Press(3, 5))
		out := tap(km, matrix.Press(1, 1))
		assert.Equal(t, []keyboard.Keycode{keyboard.KeyA, keyboard.KeyLeftCtrl}, out.Keycodes)
	})
}

func TestEventsOutsideKeymapIgnored(t *testing.T) {
	km := layout.DefaultKeymap()
	out := tap(km, matrix.Press(5, 13))
	assert.Empty(t, out.Keycodes)
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   string
		want layout.Action
	}{
		{"", layout.N},
		{"_", layout.T},
		{"T", layout.K(keyboard.KeyT)},
		{"LShift", layout.K(keyboard.KeyLeftShift)},
		{"layer:2", layout.L(2)},
		{"default:1", layout.D(1)},
		{"mouse:move-up", layout.M(mouse.MoveUp)},
		{"toggle-link", layout.ToggleLink},
		{"holdtap:LCtrl/Enter", layout.HT(layout.K(keyboard.KeyLeftCtrl), layout.K(keyboard.KeyEnter))},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := layout.ParseAction(tc.in)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, tc.want, got)
			again, err := layout.ParseAction(got.String())
			if assert.NoError(t, err) {
				assert.Equal(t, got, again)
			}
		})
	}

	for _, bad := range []string{"nope", "layer:x", "mouse:fly", "holdtap:A", "holdtap:mouse:left/A"} {
		_, err := layout.ParseAction(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultKeymapRoundTripsThroughFile(t *testing.T) {
	f := layout.Encode(layout.DefaultLayers(), layout.DefaultNames, layout.DefaultHoldTimeout)
	layers, names, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, layout.DefaultLayers(), layers)
	assert.Equal(t, layout.DefaultNames, names)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "keymap.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
hold_timeout: 50
layers:
  - name: base
    keys:
      - [A, B, "layer:1"]
  - name: fn
    keys:
      - [F1, _, _]
`), 0o644))
	tomlPath := filepath.Join(dir, "keymap.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
hold_timeout = 50

[[layers]]
name = "base"
keys = [["A", "B", "layer:1"]]

[[layers]]
name = "fn"
keys = [["F1", "_", "_"]]
`), 0o644))

	for _, path := range []string{yamlPath, tomlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			km, names, err := layout.Load(path)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, []string{"base", "fn"}, names)
			tap(km, matrix.Press(0, 2))
			out := tap(km, matrix.Press(0, 0))
			assert.Equal(t, []keyboard.Keycode{keyboard.KeyF1}, out.Keycodes)
			assert.Equal(t, 1, out.Layer)
		})
	}

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("layers:\n  - keys:\n      - [A, \"layer:3\"]\n"), 0o644))
	_, _, err := layout.Load(bad)
	assert.Error(t, err)

	_, _, err = layout.Load(filepath.Join(dir, "keymap.ini"))
	assert.Error(t, err)
}
