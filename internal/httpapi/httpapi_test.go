package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inklet-dev/inklet/internal/auth"
	"github.com/inklet-dev/inklet/internal/engine"
	"github.com/inklet-dev/inklet/internal/store"
	"github.com/inklet-dev/inklet/pkg/ot"
)

type testEnv struct {
	router http.Handler
	mem    *store.Memory
	eng    *engine.Engine
	tokens *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	eng := engine.New(mem, zerolog.Nop())
	tokens := auth.NewService("test-secret", time.Hour)
	srv := &Server{
		Docs:   mem,
		Users:  mem,
		Tokens: tokens,
		Engine: eng,
		Client: "http://localhost:3000",
	}
	return &testEnv{router: srv.Routes(), mem: mem, eng: eng, tokens: tokens}
}

// registerUser creates an account directly in the store and returns
// (userID, bearer token).
func (e *testEnv) registerUser(t *testing.T, username, email string) (string, string) {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	u, err := e.mem.CreateUser(context.Background(), username, email, hash)
	require.NoError(t, err)
	token, err := e.tokens.Issue(u.ID)
	require.NoError(t, err)
	return u.ID, token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestRegisterLoginFlow(t *testing.T) {
	e := newTestEnv(t)

	w := e.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[userResponse](t, w)
	assert.Equal(t, "alice", created.Username)
	assert.NotEmpty(t, created.ID)

	// Same email again conflicts.
	w = e.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice2", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[loginResponse](t, w)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, created.ID, login.User.ID)

	w = e.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing username", map[string]string{"email": "a@b.c", "password": "password123"}},
		{"bad email", map[string]string{"username": "a", "email": "nope", "password": "password123"}},
		{"short password", map[string]string{"username": "a", "email": "a@b.c", "password": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.request(t, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDocumentCRUD(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.registerUser(t, "alice", "alice@example.com")

	w := e.request(t, http.MethodPost, "/api/documents/", token, map[string]string{"title": "Notes"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode[documentResponse](t, w)
	assert.Equal(t, "Notes", doc.Title)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, "owner", string(doc.Role))

	w = e.request(t, http.MethodGet, "/api/documents/"+doc.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodPatch, "/api/documents/"+doc.ID, token, map[string]string{"title": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode[documentResponse](t, w).Title)

	w = e.request(t, http.MethodGet, "/api/documents/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[store.DocumentPage](t, w)
	require.Len(t, page.Documents, 1)

	w = e.request(t, http.MethodDelete, "/api/documents/"+doc.ID, token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.request(t, http.MethodGet, "/api/documents/"+doc.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentsRequireAuth(t *testing.T) {
	e := newTestEnv(t)
	w := e.request(t, http.MethodGet, "/api/documents/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSharingAndPermissions(t *testing.T) {
	e := newTestEnv(t)
	_, owner := e.registerUser(t, "alice", "alice@example.com")
	bobID, bob := e.registerUser(t, "bob", "bob@example.com")

	doc := decode[documentResponse](t, e.request(t, http.MethodPost, "/api/documents/", owner, map[string]string{"title": "Shared"}))

	// Not shared yet: bob cannot see it.
	w := e.request(t, http.MethodGet, "/api/documents/"+doc.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Only the owner may share.
	w = e.request(t, http.MethodPut, "/api/documents/"+doc.ID+"/shares", bob, map[string]string{"userId": bobID, "role": "viewer"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.request(t, http.MethodPut, "/api/documents/"+doc.ID+"/shares", owner, map[string]string{"userId": bobID, "role": "viewer"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = e.request(t, http.MethodGet, "/api/documents/"+doc.ID, bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer", string(decode[documentResponse](t, w).Role))

	// A viewer cannot rename.
	w = e.request(t, http.MethodPatch, "/api/documents/"+doc.ID, bob, map[string]string{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Invalid share shapes.
	w = e.request(t, http.MethodPut, "/api/documents/"+doc.ID+"/shares", owner, map[string]string{"userId": bobID, "role": "emperor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.request(t, http.MethodPut, "/api/documents/"+doc.ID+"/shares", owner, map[string]string{"userId": doc.OwnerID, "role": "viewer"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Revoke and verify access is gone.
	w = e.request(t, http.MethodDelete, "/api/documents/"+doc.ID+"/shares/"+bobID, owner, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.request(t, http.MethodGet, "/api/documents/"+doc.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHistoryAndRestore(t *testing.T) {
	e := newTestEnv(t)
	ownerID, owner := e.registerUser(t, "alice", "alice@example.com")

	doc := decode[documentResponse](t, e.request(t, http.MethodPost, "/api/documents/", owner, map[string]string{"title": "Doc"}))

	// Two accepted edits leave two snapshots behind.
	_, _, err := e.eng.Process(context.Background(), doc.ID, ot.Insert(0, "hello", 1), ownerID)
	require.NoError(t, err)
	_, _, err = e.eng.Process(context.Background(), doc.ID, ot.Insert(5, " world", 2), ownerID)
	require.NoError(t, err)

	w := e.request(t, http.MethodGet, "/api/documents/"+doc.ID+"/history", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]store.HistoryEntry](t, w)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].Version, "newest first")

	w = e.request(t, http.MethodPost, "/api/documents/"+doc.ID+"/restore", owner, map[string]int64{"version": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	restored := decode[documentResponse](t, w)
	assert.Equal(t, "hello", restored.Content)
	assert.Equal(t, int64(4), restored.Version, "restore publishes a new head version")

	// Restoring an unknown version is a 404.
	w = e.request(t, http.MethodPost, "/api/documents/"+doc.ID+"/restore", owner, map[string]int64{"version": 99})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestoreIsOwnerOnly(t *testing.T) {
	e := newTestEnv(t)
	_, owner := e.registerUser(t, "alice", "alice@example.com")
	bobID, bob := e.registerUser(t, "bob", "bob@example.com")

	doc := decode[documentResponse](t, e.request(t, http.MethodPost, "/api/documents/", owner, map[string]string{"title": "Doc"}))
	w := e.request(t, http.MethodPut, "/api/documents/"+doc.ID+"/shares", owner, map[string]string{"userId": bobID, "role": "editor"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.request(t, http.MethodPost, "/api/documents/"+doc.ID+"/restore", bob, map[string]int64{"version": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	w := e.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestLoginRateLimit(t *testing.T) {
	e := newTestEnv(t)
	e.registerUser(t, "alice", "alice@example.com")

	body := map[string]string{"email": "alice@example.com", "password": "wrong-password"}
	var last int
	for i := 0; i < loginLimit.Burst+1; i++ {
		last = e.request(t, http.MethodPost, "/api/auth/login", "", body).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last, "burst exhausted, further attempts throttled")
}
