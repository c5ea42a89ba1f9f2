// Package session owns one logical session per websocket connection: it
// authenticates the handshake, pumps frames in both directions, and
// dispatches inbound events to the room manager.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inklet-dev/inklet/internal/access"
	"github.com/inklet-dev/inklet/internal/room"
	"github.com/inklet-dev/inklet/internal/store"
	"github.com/inklet-dev/inklet/pkg/ot"
	"github.com/inklet-dev/inklet/pkg/wire"
)

const (
	// writeWait bounds a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent before the read
	// deadline ends the session.
	pongWait = 60 * time.Second

	// pingPeriod is the keepalive interval; it must stay under pongWait.
	pingPeriod = 25 * time.Second

	// maxMessageSize bounds one inbound frame.
	maxMessageSize = 64 * 1024

	// sendBuffer is the outbound queue depth; a client that falls this
	// far behind is disconnected rather than blocking the room.
	sendBuffer = 256
)

// Rooms is the room-manager surface a session dispatches into.
type Rooms interface {
	Join(ctx context.Context, s room.Sender, documentID string) error
	Operation(ctx context.Context, s room.Sender, documentID string, op ot.Operation) error
	CursorMove(ctx context.Context, s room.Sender, documentID string, cur wire.Cursor)
	Touch(ctx context.Context, s room.Sender, documentID string)
	Leave(ctx context.Context, s room.Sender, documentID string)
}

// Session is one authenticated client connection.
type Session struct {
	conn  *websocket.Conn
	rooms Rooms
	log   zerolog.Logger

	userID   string
	username string

	send      chan []byte
	closeOnce sync.Once

	mu         sync.Mutex
	documentID string
}

func newSession(conn *websocket.Conn, rooms Rooms, user *store.User, log zerolog.Logger) *Session {
	return &Session{
		conn:     conn,
		rooms:    rooms,
		log:      log.With().Str("user", user.ID).Logger(),
		userID:   user.ID,
		username: user.Username,
		send:     make(chan []byte, sendBuffer),
	}
}

func (s *Session) UserID() string   { return s.userID }
func (s *Session) Username() string { return s.username }

// Send queues one encoded frame without blocking. A full queue means the
// client stopped reading; the session is torn down so the room never
// stalls on it.
func (s *Session) Send(frame []byte) {
	select {
	case s.send <- frame:
	default:
		s.log.Warn().Msg("outbound queue full, dropping session")
		s.close()
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// run drives the session to completion: the write pump in a goroutine,
// the read pump on the calling goroutine, and the leave pathway once the
// read side ends for any reason.
func (s *Session) run(ctx context.Context) {
	go s.writePump(ctx)
	s.readPump(ctx)

	if doc := s.currentDocument(); doc != "" {
		s.rooms.Leave(ctx, s, doc)
	}
	s.close()
}

func (s *Session) readPump(ctx context.Context) {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		s.dispatch(ctx, data)
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// Keep the presence TTL ahead of idle readers who never move
			// their caret.
			if doc := s.currentDocument(); doc != "" {
				s.rooms.Touch(ctx, s, doc)
			}
		}
	}
}

// dispatch routes one inbound frame. Per-event failures are reported as
// error_message; the connection stays open and usable.
func (s *Session) dispatch(ctx context.Context, data []byte) {
	msg, err := wire.DecodeClient(data)
	if err != nil {
		s.sendError(err)
		return
	}

	switch m := msg.(type) {
	case wire.JoinDocument:
		if m.DocumentID == "" {
			s.sendError(ot.ErrInvalidOperation)
			return
		}
		// Re-joining a document, or switching, leaves the old room first.
		if prev := s.currentDocument(); prev != "" && prev != m.DocumentID {
			s.rooms.Leave(ctx, s, prev)
			s.setDocument("")
		}
		if err := s.rooms.Join(ctx, s, m.DocumentID); err != nil {
			s.sendError(err)
			return
		}
		s.setDocument(m.DocumentID)

	case wire.LeaveDocument:
		if doc := s.currentDocument(); doc != "" {
			s.rooms.Leave(ctx, s, doc)
			s.setDocument("")
		}

	case wire.Operation:
		doc := s.currentDocument()
		if doc == "" {
			s.sendError(errNotJoined)
			return
		}
		if err := s.rooms.Operation(ctx, s, doc, m.Operation); err != nil {
			s.sendError(err)
		}

	case wire.CursorMove:
		if doc := s.currentDocument(); doc != "" {
			s.rooms.CursorMove(ctx, s, doc, m.Cursor)
		}
	}
}

// errNotJoined rejects operations sent before a join_document.
var errNotJoined = errors.New("join a document first")

// sendError maps err to the client-facing message of its kind.
func (s *Session) sendError(err error) {
	var msg string
	switch {
	case errors.Is(err, errNotJoined):
		msg = errNotJoined.Error()
	case errors.Is(err, store.ErrNotFound):
		msg = "document not found"
	case errors.Is(err, access.ErrForbidden):
		msg = "permission denied"
	case errors.Is(err, ot.ErrInvalidBaseVersion):
		msg = "operation ahead of document version, rejoin the document"
	case errors.Is(err, ot.ErrInvalidOperation), errors.Is(err, wire.ErrUnknownEvent):
		msg = "invalid operation"
	default:
		s.log.Error().Err(err).Msg("session event failed")
		msg = "internal error, please retry"
	}

	frame, err := marshalFrame(wire.NewErrorMessage(msg))
	if err != nil {
		return
	}
	s.Send(frame)
}

func (s *Session) currentDocument() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID
}

func (s *Session) setDocument(id string) {
	s.mu.Lock()
	s.documentID = id
	s.mu.Unlock()
}
