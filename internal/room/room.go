// Package room tracks, per document and per instance, the locally
// connected sessions; it runs operations through the engine, fans results
// out to local sessions, and exchanges events with peer instances over
// the bus.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/inklet-dev/inklet/internal/access"
	"github.com/inklet-dev/inklet/pkg/ot"
	"github.com/inklet-dev/inklet/pkg/wire"
)

const (
	// presenceTTL bounds how long a crashed instance's presence entries
	// survive on the bus.
	presenceTTL = 300 * time.Second

	// cursorMinInterval throttles cursor fan-out per user per document.
	cursorMinInterval = 50 * time.Millisecond

	// outboxDepth bounds the queue of bus publishes awaiting the room's
	// pump. An overflowing frame is dropped from fan-out; the store holds
	// the accepted state and lagging clients recover on rejoin.
	outboxDepth = 256
)

// Sender is the session-side surface the manager needs: the connected
// user's identity plus non-blocking delivery of one encoded frame.
type Sender interface {
	UserID() string
	Username() string
	Send(frame []byte)
}

// Engine processes operations serialized per document.
type Engine interface {
	Process(ctx context.Context, documentID string, op ot.Operation, userID string) (ot.Operation, int64, error)
	Forget(documentID string)
}

// room is the local state for one document: the sessions connected to
// this instance, keyed by user id. A second join by the same user
// replaces the first.
type room struct {
	documentID string

	mu      sync.Mutex
	members map[string]*member

	// opMu serializes each engine call with its fan-out, so frames leave
	// in the order versions were assigned. Everything done under it is
	// non-blocking apart from the engine call itself.
	opMu sync.Mutex

	outbox chan []byte
	done   chan struct{}
}

type member struct {
	sender     Sender
	role       access.Role
	joinedAt   time.Time
	lastCursor time.Time
	cursor     *wire.Cursor
}

func newRoom(documentID string) *room {
	return &room{
		documentID: documentID,
		members:    make(map[string]*member),
		outbox:     make(chan []byte, outboxDepth),
		done:       make(chan struct{}),
	}
}

// enqueue hands one sealed frame to the room's publish pump without
// blocking. Reports false when the outbox is full.
func (r *room) enqueue(frame []byte) bool {
	select {
	case r.outbox <- frame:
		return true
	default:
		return false
	}
}

// broadcastExcept delivers frame to every local member but skipUserID.
// Pass an empty skipUserID to reach everyone.
func (r *room) broadcastExcept(skipUserID string, frame []byte) {
	r.mu.Lock()
	senders := make([]Sender, 0, len(r.members))
	for userID, mem := range r.members {
		if userID == skipUserID {
			continue
		}
		senders = append(senders, mem.sender)
	}
	r.mu.Unlock()

	for _, s := range senders {
		s.Send(frame)
	}
}
