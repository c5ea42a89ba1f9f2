// Package ot implements the operational-transformation algebra shared by
// the server and any conformant client: the operation type, the transform
// function, and text application over UTF-16 code units.
package ot

import "errors"

// Type discriminates the operation variants.
type Type string

const (
	TypeInsert Type = "insert"
	TypeDelete Type = "delete"
	// TypeNoop is produced only by transformation; clients never send it.
	TypeNoop Type = "noop"
)

// ErrInvalidOperation reports an operation whose shape is unacceptable
// (unknown type, negative position, empty insert text, zero-length delete).
var ErrInvalidOperation = errors.New("invalid operation")

// ErrInvalidBaseVersion reports an operation whose baseVersion is ahead of
// the document's current version.
var ErrInvalidBaseVersion = errors.New("operation base version ahead of document")

// Operation is an atomic intent to mutate a document: insert Text at
// Position, or delete Length units starting at Position. Position and
// Length count UTF-16 code units. BaseVersion is the document version the
// producer believed it was editing against.
type Operation struct {
	Type        Type   `json:"type"`
	Position    int    `json:"position"`
	Text        string `json:"text,omitempty"`
	Length      int    `json:"length,omitempty"`
	BaseVersion int64  `json:"baseVersion"`
}

// Insert builds an insert operation.
func Insert(position int, text string, baseVersion int64) Operation {
	return Operation{Type: TypeInsert, Position: position, Text: text, BaseVersion: baseVersion}
}

// Delete builds a delete operation.
func Delete(position, length int, baseVersion int64) Operation {
	return Operation{Type: TypeDelete, Position: position, Length: length, BaseVersion: baseVersion}
}

// Noop builds the do-nothing operation.
func Noop() Operation {
	return Operation{Type: TypeNoop}
}

// IsNoop reports whether the operation mutates nothing.
func (o Operation) IsNoop() bool {
	return o.Type == TypeNoop
}

// end returns the exclusive end of a delete's range.
func (o Operation) end() int {
	return o.Position + o.Length
}

// Validate checks the shape of a client-submitted operation. Noop is
// rejected because only transformation may produce it. Positions beyond
// the current content length are legal here; Apply clamps them.
func (o Operation) Validate() error {
	switch o.Type {
	case TypeInsert:
		if o.Position < 0 || o.Text == "" {
			return ErrInvalidOperation
		}
	case TypeDelete:
		if o.Position < 0 || o.Length < 1 {
			return ErrInvalidOperation
		}
	default:
		return ErrInvalidOperation
	}
	if o.BaseVersion < 1 {
		return ErrInvalidOperation
	}
	return nil
}
