package half_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/crolbar/yuki/half"
	"github.com/crolbar/yuki/internal/ceiling"
	"github.com/crolbar/yuki/keyboard"
	"github.com/crolbar/yuki/layout"
	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/matrix"
	"github.com/crolbar/yuki/mouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var size = matrix.Size{Rows: 4, Cols: 6}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type keys struct {
	snap matrix.Snapshot
	err  error
}

func (k *keys) Sample(dst *matrix.Snapshot) error {
	*dst = k.snap
	return k.err
}

func (k *keys) press(row, col uint8)   { k.snap.Set(row, col, true) }
func (k *keys) release(row, col uint8) { k.snap.Set(row, col, false) }

type transport struct {
	kb     [][]byte
	mouse  [][]byte
	config bool
}

func (t *transport) Configured() bool { return t.config }

func (t *transport) WriteKeyboard(r []byte) (int, error) {
	t.kb = append(t.kb, append([]byte(nil), r...))
	return len(r), nil
}

func (t *transport) WriteMouse(r []byte) (int, error) {
	t.mouse = append(t.mouse, append([]byte(nil), r...))
	return len(r), nil
}

func (t *transport) lastKeys() []keyboard.Keycode {
	if len(t.kb) == 0 {
		return nil
	}
	var r keyboard.Report
	copy(r[:], t.kb[len(t.kb)-1])
	return r.Keys()
}

// wire delivers every transmitted byte straight into the peer's receiver.
type wire struct{ rx *link.Receiver }

func (w wire) Write(p []byte) (int, error) {
	for _, b := range p {
		w.rx.Handle(link.Frame(b))
	}
	return len(p), nil
}

type side struct {
	h    *half.Half
	keys *keys
	usb  *transport
}

// board joins a left (canonical) and right half over an in-memory link.
func board(t *testing.T) (left, right side) {
	t.Helper()
	leftRx := link.NewReceiver(nil, size, discard(), nil)
	rightRx := link.NewReceiver(nil, size, discard(), nil)

	mk := func(canonical bool, dir link.Direction, tx io.Writer, rx *link.Receiver) side {
		s := side{keys: &keys{}, usb: &transport{config: true}}
		h, err := half.New(half.Options{
			Sampler:   s.keys,
			Scanner:   matrix.ScannerConfig{Size: size},
			Canonical: canonical,
			Link:      link.NewTransmitter(tx, size, nil),
			Remote:    rx.Events(),
			Engine:    layout.DefaultKeymap(),
			Mouse:     mouse.DefaultConfig(),
			Transport: s.usb,
			Direction: ceiling.New(dir, ceiling.Tick, ceiling.USB),
			Logger:    discard(),
		})
		require.NoError(t, err)
		s.h = h
		return s
	}
	left = mk(true, link.ThisHalfIsHost, wire{rightRx}, leftRx)
	right = mk(false, link.OtherHalfIsHost, wire{leftRx}, rightRx)
	return left, right
}

func ticks(t *testing.T, n int, sides ...side) {
	t.Helper()
	for range n {
		for _, s := range sides {
			require.NoError(t, s.h.Tick(context.Background()))
		}
	}
}

func TestRemoteKeyReachesHost(t *testing.T) {
	left, right := board(t)

	// right local (1,0) is canonical (1,11)
	right.keys.press(1, 0)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)

	assert.Equal(t, []keyboard.Keycode{keyboard.KeyMinus}, left.usb.lastKeys())
	assert.Empty(t, right.usb.kb, "non-host half never writes")

	right.keys.release(1, 0)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	assert.Empty(t, left.usb.lastKeys())
}

func TestToggleLinkSwapsHost(t *testing.T) {
	left, right := board(t)
	require.Equal(t, half.ThisHalfIsHost, left.h.Direction())
	require.Equal(t, half.OtherHalfIsHost, right.h.Direction())

	left.keys.press(3, 0) // mouse layer
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	assert.Equal(t, layout.LayerMouse, left.h.Layer())
	assert.Equal(t, layout.LayerMouse, right.h.Layer())

	right.keys.press(3, 2) // canonical (3,9): toggle link
	ticks(t, matrix.DefaultDebounceDepth+4, left, right)

	assert.Equal(t, half.OtherHalfIsHost, left.h.Direction())
	assert.Equal(t, half.ThisHalfIsHost, right.h.Direction())

	left.keys.release(3, 0)
	right.keys.release(3, 2)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	assert.Equal(t, half.ThisHalfIsHost, right.h.Direction(), "release does not toggle back")

	before := len(left.usb.kb)
	left.keys.press(1, 1)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyA}, right.usb.lastKeys())
	assert.Len(t, left.usb.kb, before, "old host went quiet")
}

func TestToggleNeverOverlapsHosts(t *testing.T) {
	left, right := board(t)
	writes := func(s side) int { return len(s.usb.kb) + len(s.usb.mouse) }

	left.keys.press(3, 0)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	left.keys.press(0, 3) // keep the host writing mouse reports
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)

	right.keys.press(3, 2)
	var leftWrote, rightWrote bool
	for round := range matrix.DefaultDebounceDepth + 6 {
		l, r := writes(left), writes(right)
		require.NoError(t, left.h.Tick(context.Background()))
		require.NoError(t, right.h.Tick(context.Background()))

		bothHost := left.h.Direction() == half.ThisHalfIsHost && right.h.Direction() == half.ThisHalfIsHost
		assert.False(t, bothHost, "round %d: both halves are host", round)
		lw, rw := writes(left) > l, writes(right) > r
		assert.False(t, lw && rw, "round %d: both halves wrote reports", round)
		leftWrote = leftWrote || lw
		rightWrote = rightWrote || rw
	}

	assert.Equal(t, half.OtherHalfIsHost, left.h.Direction())
	assert.Equal(t, half.ThisHalfIsHost, right.h.Direction())
	assert.True(t, leftWrote)
	assert.True(t, rightWrote, "new host took over")
}

func TestOldHostReleasesOnHandover(t *testing.T) {
	left, right := board(t)

	left.keys.press(3, 0)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	left.keys.press(1, 1)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	require.Equal(t, []keyboard.Keycode{keyboard.KeyA}, left.usb.lastKeys())

	right.keys.press(3, 2)
	ticks(t, matrix.DefaultDebounceDepth+4, left, right)
	require.Equal(t, half.ThisHalfIsHost, right.h.Direction())

	assert.Empty(t, left.usb.lastKeys(), "old host released its keys")
	assert.Equal(t, []keyboard.Keycode{keyboard.KeyA}, right.usb.lastKeys(), "held key moved to the new host")

	left.keys.release(1, 1)
	left.keys.release(3, 0)
	right.keys.release(3, 2)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	assert.Empty(t, right.usb.lastKeys())
}

func TestMouseKeysDriveMouse(t *testing.T) {
	left, right := board(t)

	left.keys.press(3, 0)
	ticks(t, matrix.DefaultDebounceDepth+2, left, right)
	left.keys.press(0, 3) // move up
	ticks(t, matrix.DefaultDebounceDepth+4, left, right)

	assert.Negative(t, left.h.Mouse().Y)
	assert.Negative(t, right.h.Mouse().Y, "both halves track the same state")
	require.NotEmpty(t, left.usb.mouse)
	var r mouse.Report
	require.NoError(t, r.UnmarshalBinary(left.usb.mouse[len(left.usb.mouse)-1]))
	assert.Negative(t, r.Y)
	assert.Empty(t, right.usb.mouse)
}

func TestBootloaderChordStopsHalf(t *testing.T) {
	k := &keys{}
	h, err := half.New(half.Options{
		Sampler:    k,
		Scanner:    matrix.ScannerConfig{Size: size, Chord: matrix.DefaultChord(size)},
		Bootloader: half.Bootloader{Logger: discard()},
		Engine:     layout.DefaultKeymap(),
		Logger:     discard(),
	})
	require.NoError(t, err)

	require.NoError(t, h.Tick(context.Background()))
	for _, c := range matrix.DefaultChord(size) {
		k.press(c.Row, c.Col)
	}
	err = h.Run(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, matrix.ErrBootloader)
}

func TestScanErrorIsNotFatal(t *testing.T) {
	k := &keys{err: errors.New("gpio glitch")}
	h, err := half.New(half.Options{
		Sampler: k,
		Scanner: matrix.ScannerConfig{Size: size},
		Engine:  layout.DefaultKeymap(),
		Logger:  discard(),
	})
	require.NoError(t, err)
	assert.NoError(t, h.Tick(context.Background()))
	assert.Equal(t, uint64(1), h.Ticks())
}

func TestRunStopsOnCancel(t *testing.T) {
	h, err := half.New(half.Options{
		Sampler: &keys{},
		Scanner: matrix.ScannerConfig{Size: size},
		Engine:  layout.DefaultKeymap(),
		Logger:  discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.Run(ctx, time.Millisecond))
	assert.NotZero(t, h.Ticks())
}

func TestNewInitErrors(t *testing.T) {
	cases := []struct {
		name      string
		opts      half.Options
		component string
	}{
		{"no engine", half.Options{Sampler: &keys{}, Scanner: matrix.ScannerConfig{Size: size}, Logger: discard()}, "layout"},
		{"bad size", half.Options{Sampler: &keys{}, Engine: layout.DefaultKeymap(), Logger: discard()}, "matrix"},
		{"no sampler", half.Options{Scanner: matrix.ScannerConfig{Size: size}, Engine: layout.DefaultKeymap(), Logger: discard()}, "matrix"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := half.New(tc.opts)
			var ie *half.InitError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tc.component, ie.Component)
		})
	}
}
