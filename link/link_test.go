package link_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/crolbar/yuki/link"
	"github.com/crolbar/yuki/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripExhaustive(t *testing.T) {
	for row := uint8(0); row < 8; row++ {
		for col := uint8(0); col < 8; col++ {
			for _, pressed := range []bool{false, true} {
				e := matrix.Event{Row: row, Col: col, Pressed: pressed}
				f, err := link.Encode(e)
				require.NoError(t, err)
				assert.Zero(t, byte(f)&0x40, "reserved bit must be clear")

				got, err := link.Decode(f)
				require.NoError(t, err)
				assert.Equal(t, e, got)
			}
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	cases := []struct {
		name  string
		event matrix.Event
		frame byte
	}{
		{"origin release", matrix.Release(0, 0), 0x00},
		{"row only", matrix.Release(3, 0), 0x03},
		{"column only", matrix.Release(0, 5), 0x28},
		{"corner press", matrix.Press(3, 5), 0xAB},
		{"max press", matrix.Press(7, 7), 0xBF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := link.Encode(tc.event)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, tc.frame, byte(f))
		})
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	_, err := link.Encode(matrix.Press(8, 0))
	assert.ErrorIs(t, err, link.ErrOutOfRange)
	_, err = link.Encode(matrix.Press(0, 9))
	assert.ErrorIs(t, err, link.ErrOutOfRange)
}

func TestDecodeReservedBit(t *testing.T) {
	for b := 0; b < 256; b++ {
		f := link.Frame(b)
		_, err := link.Decode(f)
		if b&0x40 == 0 {
			assert.NoError(t, err)
			continue
		}
		var fe *link.FramingError
		if assert.ErrorAs(t, err, &fe) {
			assert.Equal(t, f, fe.Frame)
		}
		assert.ErrorIs(t, err, link.ErrFraming)
	}
}

func TestCodecRejectsOutsideHalf(t *testing.T) {
	c := link.Codec{Size: matrix.Size{Rows: 4, Cols: 6}}

	_, err := c.Encode(matrix.Press(4, 0))
	assert.ErrorIs(t, err, link.ErrOutOfRange)

	f, err := link.Encode(matrix.Press(0, 6))
	require.NoError(t, err)
	_, err = c.Decode(f)
	assert.ErrorIs(t, err, link.ErrFraming)

	f, err = link.Encode(matrix.Press(3, 5))
	require.NoError(t, err)
	e, err := c.Decode(f)
	assert.NoError(t, err)
	assert.Equal(t, matrix.Press(3, 5), e)
}

func TestTransmitterWritesOneByte(t *testing.T) {
	var buf bytes.Buffer
	tx := link.NewTransmitter(&buf, matrix.Size{Rows: 4, Cols: 6}, nil)

	require.NoError(t, tx.Send(matrix.Press(1, 2)))
	require.NoError(t, tx.Send(matrix.Release(1, 2)))
	assert.Equal(t, []byte{0x91, 0x11}, buf.Bytes())

	assert.Error(t, tx.Send(matrix.Press(0, 7)))
	assert.Equal(t, 2, buf.Len())
}

func TestReceiverQueuesInArrivalOrder(t *testing.T) {
	in := bytes.NewReader([]byte{0x91, 0x40, 0x2B, 0x11})
	rx := link.NewReceiver(in, matrix.Size{Rows: 4, Cols: 6}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	require.NoError(t, rx.Run(context.Background()))

	var got []matrix.Event
	for len(rx.Events()) > 0 {
		got = append(got, <-rx.Events())
	}
	assert.Equal(t, []matrix.Event{
		{Row: 1, Col: 2, Pressed: true, Origin: matrix.Remote},
		{Row: 3, Col: 5, Origin: matrix.Remote},
		{Row: 1, Col: 2, Origin: matrix.Remote},
	}, got)
	assert.Equal(t, link.Stats{Received: 4, Framing: 1}, rx.Stats())
}

func TestReceiverDropsOnOverflow(t *testing.T) {
	rx := link.NewReceiver(nil, matrix.Size{Rows: 4, Cols: 6}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	for range link.QueueSize + 3 {
		rx.Handle(0x80)
	}
	assert.Len(t, rx.Events(), link.QueueSize)
	assert.Equal(t, uint64(3), rx.Stats().Overflow)
}

func TestReceiverStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	rx := link.NewReceiver(pr, matrix.Size{Rows: 4, Cols: 6}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rx.Run(ctx) }()

	_, err := pw.Write([]byte{0x80})
	require.NoError(t, err)
	select {
	case e := <-rx.Events():
		assert.Equal(t, matrix.Event{Pressed: true, Origin: matrix.Remote}, e)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	_ = pr.CloseWithError(io.ErrClosedPipe)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("receiver did not stop")
	}
}
