package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inklet-dev/inklet/internal/access"
	"github.com/inklet-dev/inklet/internal/syncx"
)

// Memory is an in-process store used by tests and by development runs
// without a database. It implements DocumentStore and UserStore with the
// same semantics as the Postgres store, including the version
// compare-and-set in Save.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string]*Document
	history map[string][]HistoryEntry
	users   map[string]*User
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]*Document),
		history: make(map[string][]HistoryEntry),
		users:   make(map[string]*User),
	}
}

func cloneDoc(d *Document) *Document {
	out := *d
	out.Shares = make(map[string]access.Role, len(d.Shares))
	for k, v := range d.Shares {
		out.Shares[k] = v
	}
	return &out
}

// Put seeds a document verbatim, replacing any record with the same id.
// Tests use it to start from a known content and version.
func (m *Memory) Put(doc *Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Shares == nil {
		doc.Shares = make(map[string]access.Role)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	m.docs[doc.ID] = cloneDoc(doc)
}

func (m *Memory) GetByID(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Save(_ context.Context, doc *Document, entry HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != doc.Version-1 {
		return ErrConflict
	}
	cur.Content = doc.Content
	cur.Version = doc.Version
	cur.UpdatedAt = time.Now().UTC()

	hist := append(m.history[doc.ID], entry)
	if len(hist) > HistoryLimit {
		hist = hist[len(hist)-HistoryLimit:]
	}
	m.history[doc.ID] = hist
	return nil
}

func (m *Memory) Create(_ context.Context, ownerID, title string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	doc := &Document{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   "",
		Version:   1,
		OwnerID:   ownerID,
		Shares:    make(map[string]access.Role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.docs[doc.ID] = doc
	return cloneDoc(doc), nil
}

func (m *Memory) Rename(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Title = title
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.history, id)
	return nil
}

func (m *Memory) SetShare(_ context.Context, id, userID string, role access.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Shares[userID] = role
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) RemoveShare(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	delete(doc.Shares, userID)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) FindSharedOrOwned(_ context.Context, userID string, limit int, cursor string) (*DocumentPage, error) {
	if limit < 1 {
		limit = 20
	}
	m.mu.RLock()
	var all []*Document
	for _, doc := range m.docs {
		if doc.OwnerID == userID {
			all = append(all, doc)
			continue
		}
		if _, ok := doc.Shares[userID]; ok {
			all = append(all, doc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if c, ok := syncx.DecodeCursor(cursor); ok {
		filtered := all[:0]
		for _, doc := range all {
			ms := doc.UpdatedAt.UnixMilli()
			if ms < c.Ms || (ms == c.Ms && doc.ID < c.UID.String()) {
				filtered = append(filtered, doc)
			}
		}
		all = filtered
	}

	page := &DocumentPage{}
	for i, doc := range all {
		if i == limit {
			last := all[i-1]
			uid, err := uuid.Parse(last.ID)
			if err == nil {
				page.NextCursor = syncx.EncodeCursor(syncx.Cursor{Ms: last.UpdatedAt.UnixMilli(), UID: uid})
			}
			break
		}
		page.Documents = append(page.Documents, *cloneDoc(doc))
	}
	return page, nil
}

func (m *Memory) History(_ context.Context, id string) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.docs[id]; !ok {
		return nil, ErrNotFound
	}
	src := m.history[id]
	out := make([]HistoryEntry, len(src))
	for i, e := range src {
		out[len(src)-1-i] = e
	}
	return out, nil
}

func (m *Memory) CreateUser(_ context.Context, username, email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrConflict
		}
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.ID] = u
	out := *u
	return &out, nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
