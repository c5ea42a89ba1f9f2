package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inklet-dev/inklet/internal/access"
	"github.com/inklet-dev/inklet/internal/auth"
	"github.com/inklet-dev/inklet/internal/store"
)

const maxTitleLen = 200

type documentResponse struct {
	store.Document
	Role access.Role `json:"role"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type shareRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type restoreRequest struct {
	Version int64 `json:"version"`
}

func validTitle(w http.ResponseWriter, title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return "", false
	}
	if len([]rune(title)) > maxTitleLen {
		writeError(w, http.StatusBadRequest, "title is too long")
		return "", false
	}
	return title, true
}

// CreateDocument starts an empty document owned by the caller.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req titleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	title, ok := validTitle(w, req.Title)
	if !ok {
		return
	}

	doc, err := s.Docs.Create(r.Context(), userID, title)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentResponse{Document: *doc, Role: access.RoleOwner})
}

// ListDocuments pages through everything the caller owns or was granted,
// most recently updated first.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)
	cursor := r.URL.Query().Get("cursor")

	page, err := s.Docs.FindSharedOrOwned(r.Context(), userID, limit, cursor)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetDocument returns one record plus the caller's role on it.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	doc, role, err := store.GetWithAccess(r.Context(), s.Docs, chi.URLParam(r, "id"), userID, access.LevelRead)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{Document: *doc, Role: role})
}

// RenameDocument changes the title. Requires edit.
func (s *Server) RenameDocument(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	var req titleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	title, ok := validTitle(w, req.Title)
	if !ok {
		return
	}

	doc, role, err := store.GetWithAccess(r.Context(), s.Docs, id, userID, access.LevelEdit)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Docs.Rename(r.Context(), id, title); err != nil {
		respondError(w, err)
		return
	}
	doc.Title = title
	writeJSON(w, http.StatusOK, documentResponse{Document: *doc, Role: role})
}

// DeleteDocument removes the document. Owner only.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	if _, _, err := store.GetWithAccess(r.Context(), s.Docs, id, userID, access.LevelOwner); err != nil {
		respondError(w, err)
		return
	}
	if err := s.Docs.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetShare grants a role to another user. Owner only; the owner's own
// role is not shareable.
func (s *Server) SetShare(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	var req shareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role := access.Role(req.Role)
	if req.UserID == "" || !access.Shareable(role) {
		writeError(w, http.StatusBadRequest, "userId and a role of editor, commenter or viewer are required")
		return
	}

	doc, _, err := store.GetWithAccess(r.Context(), s.Docs, id, userID, access.LevelOwner)
	if err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == doc.OwnerID {
		writeError(w, http.StatusBadRequest, "cannot share a document with its owner")
		return
	}
	if _, err := s.Users.GetUserByID(r.Context(), req.UserID); err != nil {
		respondError(w, err)
		return
	}

	if err := s.Docs.SetShare(r.Context(), id, req.UserID, role); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveShare revokes a grant. Owner only.
func (s *Server) RemoveShare(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	if _, _, err := store.GetWithAccess(r.Context(), s.Docs, id, userID, access.LevelOwner); err != nil {
		respondError(w, err)
		return
	}
	if err := s.Docs.RemoveShare(r.Context(), id, chi.URLParam(r, "userId")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory lists the retained version snapshots, newest first.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	if _, _, err := store.GetWithAccess(r.Context(), s.Docs, id, userID, access.LevelRead); err != nil {
		respondError(w, err)
		return
	}
	entries, err := s.Docs.History(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RestoreDocument rewinds content to a snapshotted version through the
// engine, so it serializes with live edits. Owner only.
func (s *Server) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	var req restoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Version < 1 {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}

	if _, _, err := store.GetWithAccess(r.Context(), s.Docs, id, userID, access.LevelOwner); err != nil {
		respondError(w, err)
		return
	}
	doc, err := s.Engine.RestoreVersion(r.Context(), id, req.Version, userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{Document: *doc, Role: access.RoleOwner})
}
