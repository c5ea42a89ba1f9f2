// Package engine applies client operations to documents: it transforms
// each incoming operation against the concurrent ones the server already
// accepted, applies it, bumps the version, and persists, all serialized
// per document.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inklet-dev/inklet/internal/store"
	"github.com/inklet-dev/inklet/pkg/ot"
)

// BufferLimit bounds the per-document operation buffer; the oldest entry
// is dropped first. A client whose baseVersion predates the oldest entry
// is transformed against what remains and recovers fully on re-join.
const BufferLimit = 200

// Engine owns the operation buffers and the per-document serialization.
// One Engine serves one process; instances coordinate only through the
// store's versioned writes.
type Engine struct {
	store store.DocumentStore
	log   zerolog.Logger

	mu   sync.Mutex
	docs map[string]*docState
}

type docState struct {
	mu     sync.Mutex
	buffer []buffered
}

type buffered struct {
	version int64
	op      ot.Operation
}

// New returns an Engine over the given store.
func New(s store.DocumentStore, log zerolog.Logger) *Engine {
	return &Engine{
		store: s,
		log:   log.With().Str("component", "engine").Logger(),
		docs:  make(map[string]*docState),
	}
}

func (e *Engine) state(documentID string) *docState {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[documentID]
	if !ok {
		d = &docState{}
		e.docs[documentID] = d
	}
	return d
}

// Process accepts one operation from userID against documentID. It
// returns the operation as actually applied (possibly noop) and the
// version it produced; for a noop that is the unchanged current version.
//
// The per-document lock covers the whole fetch-transform-apply-persist
// sequence: buffer updates must be ordered with the durable write, or a
// concurrent caller could transform against a buffer that does not match
// the stored version.
func (e *Engine) Process(ctx context.Context, documentID string, op ot.Operation, userID string) (ot.Operation, int64, error) {
	d := e.state(documentID)
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := e.store.GetByID(ctx, documentID)
	if err != nil {
		return ot.Operation{}, 0, fmt.Errorf("load document %s: %w", documentID, err)
	}

	if op.BaseVersion > doc.Version {
		return ot.Operation{}, 0, ot.ErrInvalidBaseVersion
	}
	if op.BaseVersion < doc.Version {
		for _, past := range d.buffer {
			if past.version <= op.BaseVersion {
				continue
			}
			op = ot.Transform(op, past.op)
			if op.IsNoop() {
				break
			}
		}
	}

	if op.IsNoop() {
		// The edit collapsed against concurrent operations. Nothing is
		// stored and no snapshot is taken; the caller acks the current
		// version with the noop marker.
		return op, doc.Version, nil
	}

	entry := store.HistoryEntry{
		Version:   doc.Version,
		Content:   doc.Content,
		EditedBy:  userID,
		Timestamp: time.Now().UTC(),
	}
	doc.Content = ot.Apply(doc.Content, op)
	doc.Version++

	if err := e.store.Save(ctx, doc, entry); err != nil {
		e.log.Error().Err(err).Str("doc", documentID).Int64("version", doc.Version).Msg("save failed")
		return ot.Operation{}, 0, fmt.Errorf("save document %s: %w", documentID, err)
	}

	d.buffer = append(d.buffer, buffered{version: doc.Version, op: op})
	if len(d.buffer) > BufferLimit {
		d.buffer = d.buffer[len(d.buffer)-BufferLimit:]
	}

	return op, doc.Version, nil
}

// RestoreVersion rewinds documentID's content to the snapshot stored for
// version and publishes the result as a new head version. It serializes
// with Process through the same per-document lock and discards the
// operation buffer, whose entries predate the restored content.
func (e *Engine) RestoreVersion(ctx context.Context, documentID string, version int64, userID string) (*store.Document, error) {
	d := e.state(documentID)
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := e.store.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}

	entries, err := e.store.History(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", documentID, err)
	}
	var snapshot *store.HistoryEntry
	for i := range entries {
		if entries[i].Version == version {
			snapshot = &entries[i]
			break
		}
	}
	if snapshot == nil {
		return nil, fmt.Errorf("version %d of document %s: %w", version, documentID, store.ErrNotFound)
	}

	entry := store.HistoryEntry{
		Version:   doc.Version,
		Content:   doc.Content,
		EditedBy:  userID,
		Timestamp: time.Now().UTC(),
	}
	doc.Content = snapshot.Content
	doc.Version++

	if err := e.store.Save(ctx, doc, entry); err != nil {
		return nil, fmt.Errorf("save document %s: %w", documentID, err)
	}
	d.buffer = nil

	e.log.Info().Str("doc", documentID).Int64("restored", version).Int64("version", doc.Version).Msg("version restored")
	return doc, nil
}

// Forget discards the in-memory state for documentID. The room manager
// calls it when the last local session leaves; the next join rebuilds
// from the store.
func (e *Engine) Forget(documentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, documentID)
}
