package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger dumps raw traffic of one channel (USB/IP socket, split link).
type RawLogger interface {
	Log(in bool, data []byte)
}

type rawLogger struct {
	w       io.Writer
	channel string
	mu      sync.Mutex
}

// NewRaw returns a RawLogger tagging lines with channel. A nil writer
// yields a no-op logger.
func NewRaw(w io.Writer, channel string) RawLogger {
	return &rawLogger{w: w, channel: channel}
}

// Log emits one line with timestamp, direction and hex dump.
// in=true means received, in=false means sent.
func (r *rawLogger) Log(in bool, data []byte) {
	if len(data) == 0 || r.w == nil {
		return
	}

	dir := "tx"
	if in {
		dir = "rx"
	}

	var hexbuf bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
	}

	line := fmt.Sprintf("%s %s %s %d bytes: %s\n",
		time.Now().Format("2006/01/02 15:04:05.000"),
		r.channel,
		dir,
		len(data),
		hexbuf.String())

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}

// RawOutput is the raw traffic destination bound into commands. W is nil
// when raw logging is off.
type RawOutput struct {
	W io.Writer
}

// Logger returns a RawLogger for one channel.
func (o RawOutput) Logger(channel string) RawLogger {
	return NewRaw(o.W, channel)
}
