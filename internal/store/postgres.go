package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inklet-dev/inklet/internal/access"
	"github.com/inklet-dev/inklet/internal/syncx"
)

// Postgres implements DocumentStore and UserStore over a pgx pool. The
// share table is a JSONB column keyed by user id; history rows live in
// their own table and are trimmed inside the Save transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const docColumns = `id, title, content, version, owner_id, shares, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var shares []byte
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Version, &d.OwnerID, &shares, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.Shares = make(map[string]access.Role)
	if len(shares) > 0 {
		if err := json.Unmarshal(shares, &d.Shares); err != nil {
			return nil, fmt.Errorf("decode shares: %w", err)
		}
	}
	return &d, nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*Document, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+docColumns+` FROM document WHERE id = $1`, id)
	return scanDocument(row)
}

// Save persists the bumped content and version and appends the history
// entry, all in one transaction. The UPDATE's version guard is the
// compare-and-set: a concurrent writer that got there first leaves zero
// rows affected and the caller sees ErrConflict.
func (p *Postgres) Save(ctx context.Context, doc *Document, entry HistoryEntry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE document
		SET content = $2, version = $3, updated_at = now()
		WHERE id = $1 AND version = $3 - 1
	`, doc.ID, doc.Content, doc.Version)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM document WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO document_history (document_id, version, content, edited_by, edited_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, version) DO UPDATE SET
			content = EXCLUDED.content,
			edited_by = EXCLUDED.edited_by,
			edited_at = EXCLUDED.edited_at
	`, doc.ID, entry.Version, entry.Content, entry.EditedBy, entry.Timestamp); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM document_history
		WHERE document_id = $1 AND version <= $2 - $3
	`, doc.ID, doc.Version, HistoryLimit); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Create(ctx context.Context, ownerID, title string) (*Document, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO document (id, title, owner_id)
		VALUES ($1, $2, $3)
		RETURNING `+docColumns,
		uuid.NewString(), title, ownerID)
	return scanDocument(row)
}

func (p *Postgres) Rename(ctx context.Context, id, title string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE document SET title = $2, updated_at = now() WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("rename document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetShare(ctx context.Context, id, userID string, role access.Role) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE document
		SET shares = shares || jsonb_build_object($2::text, $3::text), updated_at = now()
		WHERE id = $1
	`, id, userID, string(role))
	if err != nil {
		return fmt.Errorf("set share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RemoveShare(ctx context.Context, id, userID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE document
		SET shares = shares - $2::text, updated_at = now()
		WHERE id = $1
	`, id, userID)
	if err != nil {
		return fmt.Errorf("remove share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FindSharedOrOwned(ctx context.Context, userID string, limit int, cursor string) (*DocumentPage, error) {
	if limit < 1 {
		limit = 20
	}

	query := `
		SELECT ` + docColumns + `
		FROM document
		WHERE (owner_id = $1 OR shares ? $2)
	`
	args := []any{userID, userID}

	if c, ok := syncx.DecodeCursor(cursor); ok {
		query += ` AND (updated_at, id) < (to_timestamp($3::double precision / 1000), $4)`
		args = append(args, c.Ms, c.UID.String())
	}
	// One extra row decides whether a next page exists.
	query += fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	page := &DocumentPage{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		page.Documents = append(page.Documents, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	if len(page.Documents) > limit {
		page.Documents = page.Documents[:limit]
		last := page.Documents[limit-1]
		if uid, err := uuid.Parse(last.ID); err == nil {
			page.NextCursor = syncx.EncodeCursor(syncx.Cursor{Ms: last.UpdatedAt.UnixMilli(), UID: uid})
		}
	}
	return page, nil
}

func (p *Postgres) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	if _, err := p.GetByID(ctx, id); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT version, content, edited_by, edited_at
		FROM document_history
		WHERE document_id = $1
		ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Version, &e.Content, &e.EditedBy, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

func (p *Postgres) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO app_user (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM app_user WHERE id = $1
	`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM app_user WHERE lower(email) = lower($1)
	`, email))
}

func (p *Postgres) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
