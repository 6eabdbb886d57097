// Package runtime implements the per-rig state machine and polling/dispatch
// loop (spec.md §4.4): one RigInstance per configured transceiver, owning a
// serial channel, a compiled Model, the current status vector and a command
// queue.
package runtime

import (
	"io"
	"time"
)

// Channel is the byte-duplex abstraction a RigInstance drives exchanges
// over. The concrete serial-port driver is an external collaborator (spec.md
// §1); this interface is the seam, deliberately small enough that a test
// fake or a real serial.Port (github.com/tarm/serial et al.) both satisfy it
// with no adapter.
type Channel interface {
	io.Writer
	io.Reader
	io.Closer

	// SetReadDeadline bounds the next Read call, the mechanism the
	// per-exchange timeout T (spec.md §4.4) is built on.
	SetReadDeadline(t time.Time) error
}

// Dial opens (or reopens) a Channel to one rig. Supplied per-rig by the
// caller that owns the concrete serial configuration; the runtime never
// constructs a Channel itself, only asks for one.
type Dial func() (Channel, error)
