// Package wire defines the JSON event protocol between clients and the
// session layer, plus the envelope that carries the same events across
// instances on the pub/sub bus. Every frame is {"event": ..., ...payload}.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inklet-dev/inklet/pkg/ot"
)

// Inbound (client to server) events.
const (
	EventJoinDocument  = "join_document"
	EventLeaveDocument = "leave_document"
	EventOperation     = "operation"
	EventCursorMove    = "cursor_move"
)

// Outbound (server to client) events.
const (
	EventDocumentState   = "document_state"
	EventOperationAck    = "operation_ack"
	EventRemoteOperation = "remote_operation"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventCursorMoved     = "cursor_moved"
	EventErrorMessage    = "error_message"
)

// ErrUnknownEvent reports an inbound frame whose event name is not part of
// the protocol.
var ErrUnknownEvent = errors.New("unknown event")

// Cursor is a caret, or a selection when SelectionEnd is set, in UTF-16
// code units.
type Cursor struct {
	Position     int `json:"position"`
	SelectionEnd int `json:"selectionEnd,omitempty"`
}

// Presence is the per-user liveness record kept on the bus with a TTL and
// echoed inside document_state so every instance can enumerate live users.
type Presence struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	Cursor   *Cursor   `json:"cursor,omitempty"`
}

// JoinDocument asks to enter a document's room.
type JoinDocument struct {
	Event      string `json:"event"`
	DocumentID string `json:"documentId"`
}

// LeaveDocument exits the current room.
type LeaveDocument struct {
	Event string `json:"event"`
}

// Operation submits one edit against the joined document.
type Operation struct {
	Event     string       `json:"event"`
	Operation ot.Operation `json:"operation"`
}

// CursorMove reports the caret of the sending user.
type CursorMove struct {
	Event  string `json:"event"`
	Cursor Cursor `json:"cursor"`
}

// DocumentState is the authoritative snapshot sent to a joining session.
type DocumentState struct {
	Event       string     `json:"event"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Version     int64      `json:"version"`
	Owner       string     `json:"owner"`
	Role        string     `json:"role"`
	ActiveUsers []Presence `json:"activeUsers"`
}

// OperationAck confirms the originator's operation, carrying the form the
// server actually applied and the version it produced. A noop operation
// with the unchanged version means the edit collapsed against concurrent
// ones.
type OperationAck struct {
	Event     string       `json:"event"`
	Operation ot.Operation `json:"operation"`
	Version   int64        `json:"version"`
	UserID    string       `json:"userId"`
}

// RemoteOperation delivers another user's accepted operation.
type RemoteOperation struct {
	Event     string       `json:"event"`
	Operation ot.Operation `json:"operation"`
	Version   int64        `json:"version"`
	UserID    string       `json:"userId"`
	Username  string       `json:"username"`
}

// UserJoined announces a new room participant.
type UserJoined struct {
	Event    string    `json:"event"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// UserLeft announces a departed participant.
type UserLeft struct {
	Event    string `json:"event"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// CursorMoved relays a participant's caret.
type CursorMoved struct {
	Event    string `json:"event"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Cursor   Cursor `json:"cursor"`
}

// ErrorMessage reports a per-event failure without closing the session.
type ErrorMessage struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func NewJoinDocument(documentID string) JoinDocument {
	return JoinDocument{Event: EventJoinDocument, DocumentID: documentID}
}

func NewLeaveDocument() LeaveDocument {
	return LeaveDocument{Event: EventLeaveDocument}
}

func NewOperation(op ot.Operation) Operation {
	return Operation{Event: EventOperation, Operation: op}
}

func NewCursorMove(c Cursor) CursorMove {
	return CursorMove{Event: EventCursorMove, Cursor: c}
}

func NewOperationAck(op ot.Operation, version int64, userID string) OperationAck {
	return OperationAck{Event: EventOperationAck, Operation: op, Version: version, UserID: userID}
}

func NewRemoteOperation(op ot.Operation, version int64, userID, username string) RemoteOperation {
	return RemoteOperation{Event: EventRemoteOperation, Operation: op, Version: version, UserID: userID, Username: username}
}

func NewUserJoined(p Presence) UserJoined {
	return UserJoined{Event: EventUserJoined, UserID: p.UserID, Username: p.Username, Role: p.Role, JoinedAt: p.JoinedAt}
}

func NewUserLeft(userID, username string) UserLeft {
	return UserLeft{Event: EventUserLeft, UserID: userID, Username: username}
}

func NewCursorMoved(userID, username string, c Cursor) CursorMoved {
	return CursorMoved{Event: EventCursorMoved, UserID: userID, Username: username, Cursor: c}
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Event: EventErrorMessage, Message: message}
}

// DecodeClient parses one inbound client frame into its typed message.
// Unknown event names return ErrUnknownEvent with the offending name.
func DecodeClient(data []byte) (any, error) {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch head.Event {
	case EventJoinDocument:
		var m JoinDocument
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return m, nil
	case EventLeaveDocument:
		var m LeaveDocument
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return m, nil
	case EventOperation:
		var m Operation
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return m, nil
	case EventCursorMove:
		var m CursorMove
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Event, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Event)
	}
}

// Envelope wraps an event for the bus. ServerID is the publishing
// instance's process-wide id; receivers drop their own echoes. Payload is
// the marshaled outbound frame, forwarded to local sessions as-is.
type Envelope struct {
	ServerID string          `json:"serverId"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
}

// Seal marshals payload and wraps it in an Envelope ready to publish.
func Seal(serverID, event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("seal %s: %w", event, err)
	}
	return json.Marshal(Envelope{ServerID: serverID, Event: event, Payload: raw})
}
