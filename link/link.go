package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/crolbar/yuki/internal/log"
	"github.com/crolbar/yuki/matrix"
)

// QueueSize is the capacity of the remote event queue between the receive
// task and the tick task.
const QueueSize = 8

// Port is the byte stream joining the two halves.
type Port interface {
	io.Reader
	io.Writer
}

// Transmitter sends local transitions to the other half. Delivery is
// fire-and-forget: there is no acknowledgement or retransmission.
type Transmitter struct {
	w     io.Writer
	codec Codec
	raw   log.RawLogger
	buf   [1]byte
}

// NewTransmitter returns a transmitter writing frames to w. raw may be nil.
func NewTransmitter(w io.Writer, size matrix.Size, raw log.RawLogger) *Transmitter {
	if raw == nil {
		raw = log.NewRaw(nil, "")
	}
	return &Transmitter{w: w, codec: Codec{Size: size}, raw: raw}
}

// Send encodes e and writes exactly one byte.
func (t *Transmitter) Send(e matrix.Event) error {
	f, err := t.codec.Encode(e)
	if err != nil {
		return err
	}
	t.buf[0] = byte(f)
	if _, err := t.w.Write(t.buf[:]); err != nil {
		return fmt.Errorf("link write: %w", err)
	}
	t.raw.Log(false, t.buf[:])
	return nil
}

// Stats counts bytes the receiver discarded.
type Stats struct {
	Received uint64
	Framing  uint64
	Overflow uint64
}

// Receiver is the link receive task: it decodes incoming bytes and queues
// the resulting events for the tick task without ever blocking on it.
type Receiver struct {
	r      io.Reader
	codec  Codec
	queue  chan matrix.Event
	logger *slog.Logger
	raw    log.RawLogger

	received atomic.Uint64
	framing  atomic.Uint64
	overflow atomic.Uint64
}

// NewReceiver returns a receiver reading frames sent by a half of the given
// size. raw may be nil.
func NewReceiver(r io.Reader, size matrix.Size, logger *slog.Logger, raw log.RawLogger) *Receiver {
	if raw == nil {
		raw = log.NewRaw(nil, "")
	}
	return &Receiver{
		r:      r,
		codec:  Codec{Size: size},
		queue:  make(chan matrix.Event, QueueSize),
		logger: logger,
		raw:    raw,
	}
}

// Events is the bounded queue of decoded remote events, in arrival order.
func (r *Receiver) Events() <-chan matrix.Event { return r.queue }

// Stats returns the receive counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Received: r.received.Load(),
		Framing:  r.framing.Load(),
		Overflow: r.overflow.Load(),
	}
}

// Run reads frames until ctx is cancelled or the reader fails. A read that
// returns no data (a port read timeout) only re-checks ctx. io.EOF ends the
// task without error.
func (r *Receiver) Run(ctx context.Context) error {
	var buf [1]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.r.Read(buf[:])
		if n == 1 {
			r.raw.Log(true, buf[:])
			r.Handle(Frame(buf[0]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("link read: %w", err)
		}
	}
}

// Handle decodes one received byte and enqueues it. Invalid frames and
// frames arriving while the queue is full are dropped.
func (r *Receiver) Handle(f Frame) {
	r.received.Add(1)
	e, err := r.codec.Decode(f)
	if err != nil {
		r.framing.Add(1)
		r.logger.Debug("dropping link frame", "error", err)
		return
	}
	e.Origin = matrix.Remote
	select {
	case r.queue <- e:
	default:
		r.overflow.Add(1)
		r.logger.Debug("remote queue full, dropping event", "event", e)
	}
}
