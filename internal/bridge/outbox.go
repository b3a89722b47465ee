package bridge

import (
	"sync"

	cerrors "companion/internal/errors"
	"companion/internal/protocol"
)

// ErrNotConnected is returned by Send once the connection is gone.
var ErrNotConnected = cerrors.ErrNotConnected

// Outbox is the send side of one agent connection. Sends never block: lines
// are queued in order and drained by the connection's writer goroutine.
type Outbox struct {
	mu      sync.Mutex
	pending []string
	closed  bool
	notify  chan struct{}
}

func newOutbox() *Outbox {
	return &Outbox{notify: make(chan struct{}, 1)}
}

// Send queues one NDJSON line. It fails softly with ErrNotConnected after the
// connection has closed.
func (o *Outbox) Send(line string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrNotConnected
	}
	o.pending = append(o.pending, protocol.EnsureNewline(line))
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// Closed reports whether the connection behind the outbox has gone away.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Outbox) drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	lines := o.pending
	o.pending = nil
	return lines
}

func (o *Outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.pending = nil
}
