package cmpproto

import (
	"time"

	"github.com/aox/pkicore/berrors"
	"github.com/aox/pkicore/session"
)

// Conn adapts a raw session.Transport to speak CMP-over-TCP framing, so a
// session.Session can drive a CMP transaction the same way it drives a
// SCEP one: Read yields one request's PKIMessage payload per call, Write
// wraps its argument as a single PkiRep frame, and the last-message flag
// on the most recently read frame is exposed for the caller to act on
// (cryptlib's own readHeader closes the connection outright when it's
// set).
type Conn struct {
	underlying session.Transport
	maxLength  int
	last       bool
}

// NewConn wraps underlying. maxLength bounds the payload size ReadFrame
// will accept from a single client request.
func NewConn(underlying session.Transport, maxLength int) *Conn {
	return &Conn{underlying: underlying, maxLength: maxLength}
}

// Read decodes exactly one CMP-over-TCP frame and copies its payload
// into p, failing rather than silently truncating if p is too small.
func (c *Conn) Read(p []byte) (int, error) {
	frame, err := ReadFrame(c.underlying, c.maxLength)
	if err != nil {
		return 0, err
	}
	c.last = frame.LastMessage
	if len(frame.Payload) > len(p) {
		return 0, berrors.New(berrors.Overflow, "cmpproto: frame payload of %d bytes does not fit in a %d-byte read buffer", len(frame.Payload), len(p))
	}
	return copy(p, frame.Payload), nil
}

// Write wraps p as a single, non-final PkiRep frame. The CMP-over-TCP
// server side never originates the last-message flag -- that signal is
// the client's to give, per cryptlib's own client-closes-the-loop model.
func (c *Conn) Write(p []byte) (int, error) {
	if err := WriteFrame(c.underlying, p, false, PkiRep); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) Close() error { return c.underlying.Close() }

func (c *Conn) SetDeadline(t time.Time) error { return c.underlying.SetDeadline(t) }

// LastMessage reports whether the most recently read frame was marked by
// the client as its last message on this connection.
func (c *Conn) LastMessage() bool { return c.last }
