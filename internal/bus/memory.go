package bus

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryBroker is an in-process stand-in for the Redis server. Tests wire
// several clients to one broker to exercise cross-instance fan-out; a
// development run without Redis uses a single client. Delivery is
// synchronous and, like Redis, echoes back to the publishing client when
// it is subscribed.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*Memory]Handler
	kv   map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[*Memory]Handler),
		kv:   make(map[string]memoryEntry),
	}
}

// Client connects a new Bus client to the broker.
func (b *MemoryBroker) Client() *Memory {
	return &Memory{broker: b}
}

// Subscribers reports how many clients are subscribed to a channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) entryAlive(e memoryEntry) bool {
	return e.expires.IsZero() || time.Now().Before(e.expires)
}

// Memory is one client connection to a MemoryBroker.
type Memory struct {
	broker *MemoryBroker
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	b := m.broker
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[channel]))
	for _, h := range b.subs[channel] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(channel, payload)
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string, h Handler) error {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Memory]Handler)
	}
	b.subs[channel][m] = h
	return nil
}

func (m *Memory) Unsubscribe(_ context.Context, channel string) error {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[channel], m)
	if len(b.subs[channel]) == 0 {
		delete(b.subs, channel)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	b.kv[key] = e
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.kv[key]
	if !ok || !b.entryAlive(e) {
		delete(b.kv, key)
		return nil, ErrNoEntry
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.kv, key)
	return nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k, e := range b.kv {
		if !b.entryAlive(e) {
			continue
		}
		if ok, err := path.Match(pattern, k); err != nil {
			return nil, err
		} else if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	b := m.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, clients := range b.subs {
		delete(clients, m)
		if len(clients) == 0 {
			delete(b.subs, channel)
		}
	}
	return nil
}
