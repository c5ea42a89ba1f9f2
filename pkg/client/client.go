// Package client implements the send-queue protocol a conformant editor
// client must follow: a FIFO of pending local operations, at most one
// operation in flight, and base versions stamped when an operation is
// sent rather than when it was produced.
package client

import (
	"sync"
	"unicode/utf16"

	"github.com/inklet-dev/inklet/pkg/ot"
	"github.com/inklet-dev/inklet/pkg/wire"
)

// SendFunc ships one operation to the server. The client calls it with
// its mutex held, so implementations must not call back into the client.
type SendFunc func(op ot.Operation)

// Client tracks one user's view of one document.
type Client struct {
	send SendFunc

	mu       sync.Mutex
	content  string
	version  int64
	queue    []ot.Operation
	inflight *ot.Operation
}

// New returns a client that ships operations through send.
func New(send SendFunc) *Client {
	return &Client{send: send}
}

// LoadState resets the client from an authoritative document_state. Any
// queued or in-flight operation is dropped; the server's snapshot wins.
func (c *Client) LoadState(state wire.DocumentState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = state.Content
	c.version = state.Version
	c.queue = nil
	c.inflight = nil
}

// Content returns the local text, including optimistic edits.
func (c *Client) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// Version returns the last server version the client has seen.
func (c *Client) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// InFlight reports whether an operation awaits its ack.
func (c *Client) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Pending reports the number of queued, not yet sent operations.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Edit records a user edit producing newText: the minimal delete/insert
// pair is computed against the current local text, applied optimistically,
// and queued for the server.
func (c *Client) Edit(newText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := Diff(c.content, newText)
	if len(ops) == 0 {
		return
	}
	c.content = newText
	c.queue = append(c.queue, ops...)
	c.trySendNext()
}

// HandleAck processes the server's acknowledgement of the in-flight
// operation and sends the next queued one, if any. Acks do not ride the
// bus, so a remote operation stacked on top of ours can arrive first;
// the version only ever moves forward.
func (c *Client) HandleAck(ack wire.OperationAck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ack.Version > c.version {
		c.version = ack.Version
	}
	c.inflight = nil
	c.trySendNext()
}

// HandleRemote applies another user's accepted operation. Versions at or
// below the current one are duplicates from the fan-out and are ignored.
//
// The local text already contains this client's optimistic edits, which
// the server has not seen yet, so the remote operation is rebased over
// the in-flight and queued operations before it touches the content. The
// in-flight and queued operations are transformed the other way so that
// later remotes, and send-time stamping, stay consistent; the transformed
// in-flight copy is never resent, the server acks its own transform of it.
func (c *Client) HandleRemote(rem wire.RemoteOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rem.Version <= c.version {
		return
	}

	r := rem.Operation
	if c.inflight != nil {
		a := ot.Transform(*c.inflight, r)
		r = transformAfterLocal(r, *c.inflight)
		c.inflight = &a
	}
	for i := range c.queue {
		q := c.queue[i]
		c.queue[i] = ot.Transform(q, r)
		r = transformAfterLocal(r, q)
	}

	c.content = ot.Apply(c.content, r)
	c.version = rem.Version
}

// transformAfterLocal adjusts the server-accepted operation r to apply
// after the locally applied, not yet acknowledged operation q. The server
// accepted r first, so on an equal-position insert tie r keeps its place,
// the mirror image of Transform's tie-break; every other case is the
// position arithmetic Transform already implements.
func transformAfterLocal(r, q ot.Operation) ot.Operation {
	if r.Type == ot.TypeInsert && q.Type == ot.TypeInsert && r.Position == q.Position {
		return r
	}
	return ot.Transform(r, q)
}

// trySendNext ships the queue head when nothing is in flight, stamping
// the base version now. Callers hold c.mu.
func (c *Client) trySendNext() {
	for c.inflight == nil && len(c.queue) > 0 {
		op := c.queue[0]
		c.queue = c.queue[1:]
		if op.IsNoop() {
			// Rebasing collapsed it; nothing to send.
			continue
		}
		op.BaseVersion = c.version
		c.inflight = &op
		c.send(op)
	}
}

// Diff returns the minimal operation pair turning oldText into newText:
// at most one delete followed by one insert over the changed region,
// located by the longest common prefix and suffix in UTF-16 code units.
// Base versions are zero; the queue stamps them at send time.
func Diff(oldText, newText string) []ot.Operation {
	if oldText == newText {
		return nil
	}

	oldUnits := utf16.Encode([]rune(oldText))
	newUnits := utf16.Encode([]rune(newText))

	prefix := 0
	for prefix < len(oldUnits) && prefix < len(newUnits) && oldUnits[prefix] == newUnits[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldUnits)-prefix && suffix < len(newUnits)-prefix &&
		oldUnits[len(oldUnits)-1-suffix] == newUnits[len(newUnits)-1-suffix] {
		suffix++
	}

	removed := len(oldUnits) - prefix - suffix
	inserted := newUnits[prefix : len(newUnits)-suffix]

	var ops []ot.Operation
	if removed > 0 {
		ops = append(ops, ot.Operation{Type: ot.TypeDelete, Position: prefix, Length: removed})
	}
	if len(inserted) > 0 {
		ops = append(ops, ot.Operation{Type: ot.TypeInsert, Position: prefix, Text: string(utf16.Decode(inserted))})
	}
	return ops
}
