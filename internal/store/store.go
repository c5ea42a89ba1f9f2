// Package store owns the durable records behind the editor: documents
// with their version history, and user accounts. The document store is the
// source of truth for content and version; everything on the bus is an
// acceleration layer over it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/inklet-dev/inklet/internal/access"
)

var (
	// ErrNotFound reports a missing document or user.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique-constraint or concurrent-write clash.
	ErrConflict = errors.New("conflict")
)

// HistoryLimit bounds the retained version snapshots per document; the
// oldest entry is dropped first.
const HistoryLimit = 50

// Document is one collaborative text document.
type Document struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Version   int64                  `json:"version"`
	OwnerID   string                 `json:"owner"`
	Shares    map[string]access.Role `json:"shares"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// HistoryEntry is a pre-change snapshot pushed on every accepted edit.
type HistoryEntry struct {
	Version   int64     `json:"version"`
	Content   string    `json:"content"`
	EditedBy  string    `json:"editedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// User is an account that can own and share documents.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DocumentPage is one listing page plus the cursor for the next.
type DocumentPage struct {
	Documents  []Document `json:"documents"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// DocumentStore is the persistence contract consumed by the engine, the
// room manager, and the HTTP surface.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*Document, error)

	// Save persists doc's content and version and appends entry to its
	// history, atomically with respect to concurrent saves of the same
	// document. The caller has already bumped doc.Version; the write
	// applies only if the stored version still equals doc.Version-1,
	// otherwise ErrConflict.
	Save(ctx context.Context, doc *Document, entry HistoryEntry) error

	Create(ctx context.Context, ownerID, title string) (*Document, error)
	Rename(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error

	SetShare(ctx context.Context, id, userID string, role access.Role) error
	RemoveShare(ctx context.Context, id, userID string) error

	// FindSharedOrOwned lists documents the user owns or was granted,
	// most recently updated first. cursor is an opaque continuation
	// token from a previous page, empty for the first page.
	FindSharedOrOwned(ctx context.Context, userID string, limit int, cursor string) (*DocumentPage, error)

	// History returns the retained snapshots, newest first.
	History(ctx context.Context, id string) ([]HistoryEntry, error)
}

// UserStore is the account contract behind the auth collaborator.
type UserStore interface {
	// CreateUser fails with ErrConflict when the email is taken.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// GetWithAccess loads a document and gates it behind the level the caller
// needs. It returns the caller's role on success, ErrNotFound when the
// document is missing, and access.ErrForbidden when the role is too weak.
func GetWithAccess(ctx context.Context, s DocumentStore, id, userID string, level access.Level) (*Document, access.Role, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, access.RoleNone, err
	}
	role := access.ResolveRole(doc.OwnerID, doc.Shares, userID)
	if !role.Allows(level) {
		return nil, role, access.ErrForbidden
	}
	return doc, role, nil
}
