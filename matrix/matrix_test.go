package matrix_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/crolbar/yuki/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMatrix is a sampler whose raw state is set by the test.
type fakeMatrix struct {
	raw matrix.Snapshot
	err error
}

func (f *fakeMatrix) Sample(dst *matrix.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	*dst = f.raw
	return nil
}

func (f *fakeMatrix) hold(row, col uint8, pressed bool) { f.raw.Set(row, col, pressed) }

var size = matrix.Size{Rows: 4, Cols: 6}

func newScanner(t *testing.T, m *fakeMatrix, boot matrix.Bootloader, absent ...matrix.Coord) *matrix.Scanner {
	t.Helper()
	s, err := matrix.NewScanner(m, matrix.ScannerConfig{
		Size:   size,
		Depth:  matrix.DefaultDebounceDepth,
		Absent: absent,
		Chord:  matrix.DefaultChord(size),
	}, boot)
	require.NoError(t, err)
	return s
}

func scan(t *testing.T, s *matrix.Scanner) []matrix.Event {
	t.Helper()
	seq, err := s.Scan()
	require.NoError(t, err)
	return slices.Collect(seq)
}

func scanN(t *testing.T, s *matrix.Scanner, n int) []matrix.Event {
	t.Helper()
	var all []matrix.Event
	for range n {
		all = append(all, scan(t, s)...)
	}
	return all
}

func TestDebounceDepth(t *testing.T) {
	m := &fakeMatrix{}
	s := newScanner(t, m, nil)

	m.hold(1, 2, true)
	assert.Empty(t, scanN(t, s, matrix.DefaultDebounceDepth-1), "N-1 samples must not settle")
	assert.Equal(t, []matrix.Event{matrix.Press(1, 2)}, scan(t, s))
	assert.Empty(t, scanN(t, s, 20), "held switch reports once")

	m.hold(1, 2, false)
	assert.Empty(t, scanN(t, s, matrix.DefaultDebounceDepth-1))
	assert.Equal(t, []matrix.Event{matrix.Release(1, 2)}, scan(t, s))
}

func TestDebounceBounceRestartsCount(t *testing.T) {
	m := &fakeMatrix{}
	s := newScanner(t, m, nil)

	m.hold(0, 0, true)
	assert.Empty(t, scanN(t, s, 3))
	m.hold(0, 0, false)
	assert.Empty(t, scan(t, s))
	m.hold(0, 0, true)
	assert.Empty(t, scanN(t, s, matrix.DefaultDebounceDepth-1))
	assert.Equal(t, []matrix.Event{matrix.Press(0, 0)}, scan(t, s))
}

func TestDebouncerZeroDepthIsDefault(t *testing.T) {
	d := matrix.NewDebouncer(0)
	assert.Equal(t, uint8(matrix.DefaultDebounceDepth), d.Depth())

	var raw, changed matrix.Snapshot
	raw.Set(2, 3, true)
	for range matrix.DefaultDebounceDepth - 1 {
		d.Update(&raw, size, &changed)
		assert.False(t, changed.Get(2, 3), "a bouncing contact must not settle early")
	}
	d.Update(&raw, size, &changed)
	assert.True(t, changed.Get(2, 3))
	settled := d.Settled()
	assert.True(t, settled.Get(2, 3))
}

func TestScannerZeroDepthDebounces(t *testing.T) {
	m := &fakeMatrix{}
	s, err := matrix.NewScanner(m, matrix.ScannerConfig{Size: size}, nil)
	require.NoError(t, err)

	m.hold(1, 1, true)
	assert.Empty(t, scanN(t, s, matrix.DefaultDebounceDepth-1))
	assert.Equal(t, []matrix.Event{matrix.Press(1, 1)}, scan(t, s))
}

func TestScanOrdersPressesBeforeReleases(t *testing.T) {
	m := &fakeMatrix{}
	s := newScanner(t, m, nil)

	m.hold(2, 1, true)
	m.hold(0, 4, true)
	scanN(t, s, matrix.DefaultDebounceDepth)

	m.hold(2, 1, false)
	m.hold(0, 4, false)
	m.hold(3, 0, true)
	m.hold(1, 5, true)
	got := scanN(t, s, matrix.DefaultDebounceDepth)
	assert.Equal(t, []matrix.Event{
		matrix.Press(1, 5),
		matrix.Press(3, 0),
		matrix.Release(0, 4),
		matrix.Release(2, 1),
	}, got)
}

func TestScanAbsentCoordinates(t *testing.T) {
	m := &fakeMatrix{}
	s := newScanner(t, m, nil, matrix.Coord{Row: 3, Col: 0})

	m.hold(3, 0, true)
	assert.Empty(t, scanN(t, s, 10))
}

func TestScanStopsEarly(t *testing.T) {
	m := &fakeMatrix{}
	s := newScanner(t, m, nil)
	m.hold(0, 0, true)
	m.hold(0, 1, true)
	scanN(t, s, matrix.DefaultDebounceDepth-1)

	seq, err := s.Scan()
	require.NoError(t, err)
	var first []matrix.Event
	for e := range seq {
		first = append(first, e)
		break
	}
	assert.Equal(t, []matrix.Event{matrix.Press(0, 0)}, first)
}

func TestScanSamplerError(t *testing.T) {
	boom := errors.New("gpio fault")
	m := &fakeMatrix{err: boom}
	s := newScanner(t, m, nil)

	seq, err := s.Scan()
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, slices.Collect(seq))
}

func TestBootloaderChord(t *testing.T) {
	m := &fakeMatrix{}
	entered := 0
	s := newScanner(t, m, matrix.BootloaderFunc(func() error {
		entered++
		return nil
	}))
	chord := matrix.DefaultChord(size)

	for _, c := range chord {
		m.hold(c.Row, c.Col, true)
	}
	assert.Empty(t, scan(t, s))
	assert.Equal(t, 1, entered)

	assert.Empty(t, scanN(t, s, 20), "chord keys stay masked while held")
	assert.Equal(t, 1, entered)

	m.hold(chord[0].Row, chord[0].Col, false)
	assert.Empty(t, scanN(t, s, 20))

	m.hold(chord[1].Row, chord[1].Col, false)
	assert.Empty(t, scanN(t, s, 20), "chord never produces ordinary events")

	// once released the corners behave normally again
	m.hold(chord[0].Row, chord[0].Col, true)
	assert.Equal(t, []matrix.Event{matrix.Press(chord[0].Row, chord[0].Col)},
		scanN(t, s, matrix.DefaultDebounceDepth))
	assert.Equal(t, 1, entered)
}

func TestBootloaderChordNeedsBothNewlyPressed(t *testing.T) {
	m := &fakeMatrix{}
	entered := 0
	s := newScanner(t, m, matrix.BootloaderFunc(func() error {
		entered++
		return nil
	}))
	chord := matrix.DefaultChord(size)

	m.hold(chord[0].Row, chord[0].Col, true)
	assert.Len(t, scanN(t, s, matrix.DefaultDebounceDepth), 1)
	m.hold(chord[1].Row, chord[1].Col, true)
	assert.Len(t, scanN(t, s, matrix.DefaultDebounceDepth), 1)
	assert.Zero(t, entered)
}

func TestBootloaderError(t *testing.T) {
	m := &fakeMatrix{}
	s := newScanner(t, m, matrix.BootloaderFunc(func() error { return matrix.ErrBootloader }))
	for _, c := range matrix.DefaultChord(size) {
		m.hold(c.Row, c.Col, true)
	}
	_, err := s.Scan()
	assert.ErrorIs(t, err, matrix.ErrBootloader)
}

func TestSizeValidate(t *testing.T) {
	cases := []struct {
		name string
		size matrix.Size
		ok   bool
	}{
		{"default", matrix.Size{Rows: 4, Cols: 6}, true},
		{"max", matrix.Size{Rows: 8, Cols: 8}, true},
		{"empty", matrix.Size{}, false},
		{"too many columns", matrix.Size{Rows: 4, Cols: 9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.size.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
	assert.ErrorIs(t, matrix.Size{Rows: 9, Cols: 1}.Validate(), matrix.ErrTooLarge)
}

func TestNewScannerRejectsOutOfRange(t *testing.T) {
	_, err := matrix.NewScanner(&fakeMatrix{}, matrix.ScannerConfig{
		Size:   size,
		Absent: []matrix.Coord{{Row: 4, Col: 0}},
	}, nil)
	assert.Error(t, err)

	_, err = matrix.NewScanner(&fakeMatrix{}, matrix.ScannerConfig{
		Size:  size,
		Chord: [2]matrix.Coord{{Row: 0, Col: 6}, {Row: 3, Col: 5}},
	}, matrix.BootloaderFunc(func() error { return nil }))
	assert.Error(t, err)
}
