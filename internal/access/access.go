// Package access resolves a user's role on a document and the
// capabilities that role grants. It is consulted on every edit, not just
// at join, because shares can change mid-session.
package access

import "errors"

// ErrForbidden reports a role insufficient for the requested action.
var ErrForbidden = errors.New("forbidden")

// Role is a user's relationship to one document.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
	RoleNone      Role = "none"
)

// ShareableRoles are the roles an owner may grant to another user.
var ShareableRoles = []Role{RoleEditor, RoleCommenter, RoleViewer}

// Shareable reports whether r may appear in a document's share table.
func Shareable(r Role) bool {
	switch r {
	case RoleEditor, RoleCommenter, RoleViewer:
		return true
	}
	return false
}

// Level is the capability a caller must hold for an action.
type Level int

const (
	LevelRead Level = iota
	LevelEdit
	LevelOwner
)

// ResolveRole returns the role of userID on a document owned by ownerID
// with the given share table.
func ResolveRole(ownerID string, shares map[string]Role, userID string) Role {
	if userID == ownerID {
		return RoleOwner
	}
	if r, ok := shares[userID]; ok {
		return r
	}
	return RoleNone
}

// CanRead reports whether the role may load the document and join its room.
func (r Role) CanRead() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleCommenter, RoleViewer:
		return true
	}
	return false
}

// CanEdit reports whether the role may mutate document content.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanShare reports whether the role may grant or revoke shares.
func (r Role) CanShare() bool { return r == RoleOwner }

// CanDelete reports whether the role may delete the document.
func (r Role) CanDelete() bool { return r == RoleOwner }

// CanRestore reports whether the role may restore an old version.
func (r Role) CanRestore() bool { return r == RoleOwner }

// Allows reports whether the role satisfies the required level.
func (r Role) Allows(level Level) bool {
	switch level {
	case LevelRead:
		return r.CanRead()
	case LevelEdit:
		return r.CanEdit()
	case LevelOwner:
		return r == RoleOwner
	}
	return false
}
