package room

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inklet-dev/inklet/internal/access"
	"github.com/inklet-dev/inklet/internal/bus"
	"github.com/inklet-dev/inklet/internal/store"
	"github.com/inklet-dev/inklet/pkg/ot"
	"github.com/inklet-dev/inklet/pkg/wire"
)

// Manager owns every room on this instance. It is the only writer to the
// room registry and to the bus subscription set, so a document's channels
// are subscribed exactly once per instance regardless of how many
// sessions join.
type Manager struct {
	serverID string
	store    store.DocumentStore
	engine   Engine
	bus      bus.Bus
	log      zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
	subs  map[string]struct{}
}

func NewManager(serverID string, st store.DocumentStore, eng Engine, b bus.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		serverID: serverID,
		store:    st,
		engine:   eng,
		bus:      b,
		log:      log.With().Str("component", "room").Logger(),
		rooms:    make(map[string]*room),
		subs:     make(map[string]struct{}),
	}
}

// Join admits s into the document's room after a fresh permission check.
// The caller receives document_state on its sender; everyone else, local
// and remote, receives user_joined.
func (m *Manager) Join(ctx context.Context, s Sender, documentID string) error {
	doc, role, err := store.GetWithAccess(ctx, m.store, documentID, s.UserID(), access.LevelRead)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	m.mu.Lock()
	r, ok := m.rooms[documentID]
	if !ok {
		r = newRoom(documentID)
		m.rooms[documentID] = r
		go m.pump(r)
	}
	r.mu.Lock()
	r.members[s.UserID()] = &member{sender: s, role: role, joinedAt: now}
	r.mu.Unlock()
	m.subscribeLocked(ctx, documentID)
	m.mu.Unlock()

	pres := wire.Presence{UserID: s.UserID(), Username: s.Username(), Role: string(role), JoinedAt: now}
	m.upsertPresence(ctx, documentID, pres)

	state := wire.DocumentState{
		Event:       wire.EventDocumentState,
		ID:          doc.ID,
		Title:       doc.Title,
		Content:     doc.Content,
		Version:     doc.Version,
		Owner:       doc.OwnerID,
		Role:        string(role),
		ActiveUsers: m.activeUsers(ctx, documentID),
	}
	m.send(s, state)

	joined := wire.NewUserJoined(pres)
	if frame, err := json.Marshal(joined); err == nil {
		r.broadcastExcept(s.UserID(), frame)
	}
	m.publish(ctx, bus.PresenceChannel(documentID), wire.EventUserJoined, joined)
	return nil
}

// Operation runs one edit through the engine. The submitter always gets
// an ack carrying the applied form; other participants see the applied
// form as remote_operation unless it collapsed to a noop.
func (m *Manager) Operation(ctx context.Context, s Sender, documentID string, op ot.Operation) error {
	if _, _, err := store.GetWithAccess(ctx, m.store, documentID, s.UserID(), access.LevelEdit); err != nil {
		return err
	}
	if err := op.Validate(); err != nil {
		return err
	}

	// Local delivery and the bus publish must follow the order versions
	// are assigned, so the engine call and the emission below share the
	// room's operation lock. Sender.Send and the outbox enqueue are
	// non-blocking; a concurrent writer waits only for the engine.
	r := m.lookup(documentID)
	if r != nil {
		r.opMu.Lock()
		defer r.opMu.Unlock()
	}

	applied, version, err := m.engine.Process(ctx, documentID, op, s.UserID())
	if err != nil {
		return err
	}

	m.send(s, wire.NewOperationAck(applied, version, s.UserID()))

	if applied.IsNoop() {
		return nil
	}

	remote := wire.NewRemoteOperation(applied, version, s.UserID(), s.Username())
	if r != nil {
		if frame, err := json.Marshal(remote); err == nil {
			r.broadcastExcept(s.UserID(), frame)
		}
		sealed, err := wire.Seal(m.serverID, wire.EventRemoteOperation, remote)
		if err != nil {
			m.log.Error().Err(err).Str("event", wire.EventRemoteOperation).Msg("seal failed")
			return nil
		}
		if !r.enqueue(sealed) {
			m.log.Warn().Str("documentId", documentID).Msg("publish outbox full, frame dropped")
		}
		return nil
	}

	// No local room (torn down mid-flight); publish directly.
	m.publish(ctx, bus.DocChannel(documentID), wire.EventRemoteOperation, remote)
	return nil
}

// pump ships the room's queued publishes in order. One goroutine per room
// keeps the emission path non-blocking while preserving per-channel
// publish order on the bus.
func (m *Manager) pump(r *room) {
	channel := bus.DocChannel(r.documentID)
	ship := func(frame []byte) {
		if err := m.bus.Publish(context.Background(), channel, frame); err != nil {
			m.log.Warn().Err(err).Str("channel", channel).Msg("bus publish failed")
		}
	}
	for {
		select {
		case frame := <-r.outbox:
			ship(frame)
		case <-r.done:
			// Drain what was queued before teardown.
			for {
				select {
				case frame := <-r.outbox:
					ship(frame)
				default:
					return
				}
			}
		}
	}
}

// CursorMove relays s's caret to the room, at most once per
// cursorMinInterval per user. Moves from users not in the room are
// dropped.
func (m *Manager) CursorMove(ctx context.Context, s Sender, documentID string, cur wire.Cursor) {
	r := m.lookup(documentID)
	if r == nil {
		return
	}

	r.mu.Lock()
	mem, ok := r.members[s.UserID()]
	if !ok || mem.sender != s {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(mem.lastCursor) < cursorMinInterval {
		r.mu.Unlock()
		return
	}
	mem.lastCursor = now
	c := cur
	mem.cursor = &c
	role := mem.role
	joinedAt := mem.joinedAt
	r.mu.Unlock()

	moved := wire.NewCursorMoved(s.UserID(), s.Username(), cur)
	if frame, err := json.Marshal(moved); err == nil {
		r.broadcastExcept(s.UserID(), frame)
	}

	m.upsertPresence(ctx, documentID, wire.Presence{
		UserID:   s.UserID(),
		Username: s.Username(),
		Role:     string(role),
		JoinedAt: joinedAt,
		Cursor:   &c,
	})
	m.publish(ctx, bus.PresenceChannel(documentID), wire.EventCursorMoved, moved)
}

// Touch re-upserts the user's presence entry, restarting its TTL. The
// session layer calls it on every keepalive tick so a connected reader
// who never moves the caret stays in active-user lists.
func (m *Manager) Touch(ctx context.Context, s Sender, documentID string) {
	r := m.lookup(documentID)
	if r == nil {
		return
	}

	r.mu.Lock()
	mem, ok := r.members[s.UserID()]
	if !ok || mem.sender != s {
		r.mu.Unlock()
		return
	}
	role := mem.role
	joinedAt := mem.joinedAt
	cursor := mem.cursor
	r.mu.Unlock()

	m.upsertPresence(ctx, documentID, wire.Presence{
		UserID:   s.UserID(),
		Username: s.Username(),
		Role:     string(role),
		JoinedAt: joinedAt,
		Cursor:   cursor,
	})
}

// Leave removes s from the room, if it is still the registered session
// for its user. The last member out tears the room down: presence gone,
// channels unsubscribed, engine state dropped.
func (m *Manager) Leave(ctx context.Context, s Sender, documentID string) {
	r := m.lookup(documentID)
	if r == nil {
		return
	}

	r.mu.Lock()
	mem, ok := r.members[s.UserID()]
	if !ok || mem.sender != s {
		r.mu.Unlock()
		return
	}
	delete(r.members, s.UserID())
	empty := len(r.members) == 0
	r.mu.Unlock()

	if err := m.bus.Del(ctx, bus.PresenceKey(documentID, s.UserID())); err != nil {
		m.log.Warn().Err(err).Str("documentId", documentID).Msg("presence delete failed")
	}

	left := wire.NewUserLeft(s.UserID(), s.Username())
	if !empty {
		if frame, err := json.Marshal(left); err == nil {
			r.broadcastExcept(s.UserID(), frame)
		}
	}
	m.publish(ctx, bus.PresenceChannel(documentID), wire.EventUserLeft, left)

	if empty {
		m.teardown(ctx, documentID)
	}
}

// Close empties every room during shutdown: presence entries are deleted
// and channels unsubscribed so peers do not see ghosts of this instance.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*room)
	channels := make([]string, 0, len(m.subs))
	for ch := range m.subs {
		channels = append(channels, ch)
	}
	m.subs = make(map[string]struct{})
	m.mu.Unlock()

	for documentID, r := range rooms {
		r.mu.Lock()
		userIDs := make([]string, 0, len(r.members))
		for userID := range r.members {
			userIDs = append(userIDs, userID)
		}
		r.members = make(map[string]*member)
		r.mu.Unlock()
		close(r.done)

		for _, userID := range userIDs {
			if err := m.bus.Del(ctx, bus.PresenceKey(documentID, userID)); err != nil {
				m.log.Warn().Err(err).Str("documentId", documentID).Msg("presence delete failed")
			}
		}
		m.engine.Forget(documentID)
	}

	for _, ch := range channels {
		if err := m.bus.Unsubscribe(ctx, ch); err != nil {
			m.log.Warn().Err(err).Str("channel", ch).Msg("unsubscribe failed")
		}
	}
}

func (m *Manager) lookup(documentID string) *room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[documentID]
}

// subscribeLocked wires the document's two channels into ingress, once.
// Callers hold m.mu. A subscribe failure is logged and retried on the
// next join; local sessions keep working meanwhile.
func (m *Manager) subscribeLocked(ctx context.Context, documentID string) {
	for _, ch := range []string{bus.DocChannel(documentID), bus.PresenceChannel(documentID)} {
		if _, ok := m.subs[ch]; ok {
			continue
		}
		if err := m.bus.Subscribe(ctx, ch, m.ingress); err != nil {
			m.log.Warn().Err(err).Str("channel", ch).Msg("subscribe failed")
			continue
		}
		m.subs[ch] = struct{}{}
	}
}

// teardown drops the room if it is still empty and releases its channel
// subscriptions and engine state.
func (m *Manager) teardown(ctx context.Context, documentID string) {
	channels := []string{bus.DocChannel(documentID), bus.PresenceChannel(documentID)}

	m.mu.Lock()
	if r, ok := m.rooms[documentID]; ok {
		r.mu.Lock()
		if len(r.members) > 0 {
			// A join raced the last leave; the room lives on.
			r.mu.Unlock()
			m.mu.Unlock()
			return
		}
		r.mu.Unlock()
		delete(m.rooms, documentID)
		close(r.done)
	}
	for _, ch := range channels {
		if _, ok := m.subs[ch]; !ok {
			continue
		}
		if err := m.bus.Unsubscribe(ctx, ch); err != nil {
			m.log.Warn().Err(err).Str("channel", ch).Msg("unsubscribe failed")
		}
		delete(m.subs, ch)
	}
	m.mu.Unlock()

	m.engine.Forget(documentID)
}

// ingress handles one bus message: drop own echoes, then forward the
// inner frame verbatim to every local member of the document's room.
func (m *Manager) ingress(channel string, payload []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		m.log.Warn().Err(err).Str("channel", channel).Msg("bad bus envelope")
		return
	}
	if env.ServerID == m.serverID {
		return
	}

	r := m.lookup(channelDocument(channel))
	if r == nil {
		return
	}
	r.broadcastExcept("", env.Payload)
}

// publish seals payload in this instance's envelope and ships it. The
// bus only accelerates fan-out, the store already holds the accepted
// state, so failures are logged and swallowed.
func (m *Manager) publish(ctx context.Context, channel, event string, payload any) {
	frame, err := wire.Seal(m.serverID, event, payload)
	if err != nil {
		m.log.Error().Err(err).Str("event", event).Msg("seal failed")
		return
	}
	if err := m.bus.Publish(ctx, channel, frame); err != nil {
		m.log.Warn().Err(err).Str("channel", channel).Str("event", event).Msg("bus publish failed")
	}
}

func (m *Manager) upsertPresence(ctx context.Context, documentID string, p wire.Presence) {
	value, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := m.bus.Set(ctx, bus.PresenceKey(documentID, p.UserID), value, presenceTTL); err != nil {
		m.log.Warn().Err(err).Str("documentId", documentID).Msg("presence upsert failed")
	}
}

// activeUsers enumerates the document's live presence entries across all
// instances, oldest join first. Entries that expire mid-enumeration are
// skipped.
func (m *Manager) activeUsers(ctx context.Context, documentID string) []wire.Presence {
	keys, err := m.bus.Keys(ctx, bus.PresencePattern(documentID))
	if err != nil {
		m.log.Warn().Err(err).Str("documentId", documentID).Msg("presence scan failed")
		return []wire.Presence{}
	}

	users := make([]wire.Presence, 0, len(keys))
	for _, key := range keys {
		value, err := m.bus.Get(ctx, key)
		if err != nil {
			continue
		}
		var p wire.Presence
		if err := json.Unmarshal(value, &p); err != nil {
			continue
		}
		users = append(users, p)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].JoinedAt.Before(users[j].JoinedAt)
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}

func (m *Manager) send(s Sender, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		m.log.Error().Err(err).Msg("encode frame")
		return
	}
	s.Send(frame)
}

func channelDocument(channel string) string {
	if id, ok := strings.CutPrefix(channel, "doc:"); ok {
		return id
	}
	if id, ok := strings.CutPrefix(channel, "presence:"); ok {
		return id
	}
	return channel
}
