// Package syncx holds small helpers shared by the synchronization
// surfaces, currently the opaque continuation cursor used when paginating
// document listings.
package syncx

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Cursor marks a position in a listing ordered by (updated_at DESC, id
// DESC). Format: base64url("<updated_at_ms>|<uuid>"). The uuid breaks ties
// between documents updated in the same millisecond so pages never skip or
// repeat a record.
type Cursor struct {
	Ms  int64     // Unix milliseconds of the last record's update time
	UID uuid.UUID // last record's id
}

// EncodeCursor renders an opaque cursor string, empty for the zero value.
func EncodeCursor(c Cursor) string {
	if c.Ms == 0 && c.UID == uuid.Nil {
		return ""
	}
	raw := fmt.Sprintf("%d|%s", c.Ms, c.UID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. It returns false
// for an empty or malformed string; callers treat that as "first page".
func DecodeCursor(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}

	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, false
	}

	parts := strings.Split(string(b), "|")
	if len(parts) != 2 {
		return Cursor{}, false
	}

	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, false
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, false
	}

	return Cursor{Ms: ms, UID: id}, true
}
