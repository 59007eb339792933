// Package docstore provides a small document store with partial updates and
// indexed range queries over JSON documents. Field deletion is distinct from
// setting a field to null: cleared fields disappear from the stored document.
package docstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrExists is returned by Create when the id is already taken.
var ErrExists = errors.New("document already exists")

// deleteSentinel marks a field for removal in a patch.
type deleteSentinel struct{}

// Delete is the patch value that removes a field from the document.
// It is not the same as setting the field to nil.
var Delete = deleteSentinel{}

// Patch maps dot-separated field paths to new values. A value of Delete
// removes the field; untouched fields are left exactly as they were.
type Patch map[string]any

// Filter is one query condition on a document field (dot paths allowed).
// Supported ops: ==, <, <=, >, >=.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query selects documents from a collection ordered by creation time.
type Query struct {
	Filters   []Filter
	Ascending bool
	Limit     int
	Cursor    string // Opaque; from a previous Result.NextCursor
}

// Document is one stored document plus its bookkeeping fields.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
}

// Result is a page of query results. NextCursor is empty on the last page.
type Result struct {
	Docs       []Document
	NextCursor string
}

// Store is the document store contract used by the pipeline.
type Store interface {
	Get(collection, id string) (*Document, error)
	Create(collection, id string, data map[string]any) error
	Update(collection, id string, patch Patch) error
	Query(collection string, q Query) (*Result, error)
	Close() error
}

// applyPatch applies a patch to a document in place. Dot paths create
// intermediate maps as needed; Delete removes the final key.
func applyPatch(data map[string]any, patch Patch) {
	for path, value := range patch {
		parts := strings.Split(path, ".")
		m := data
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		last := parts[len(parts)-1]
		if _, isDelete := value.(deleteSentinel); isDelete {
			delete(m, last)
		} else {
			m[last] = value
		}
	}
}

// lookupPath resolves a dot path inside a document. The second return is
// false when any segment is missing.
func lookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// matchFilter evaluates a filter against a value from the document.
func matchFilter(val any, f Filter) bool {
	switch want := f.Value.(type) {
	case string:
		got, ok := val.(string)
		if !ok {
			return false
		}
		return compareOrdered(strings.Compare(got, want), f.Op)
	case time.Time:
		s, ok := val.(string)
		if !ok {
			return false
		}
		got, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return false
		}
		return compareOrdered(got.Compare(want), f.Op)
	default:
		got, gok := toFloat(val)
		want64, wok := toFloat(f.Value)
		if !gok || !wok {
			return false
		}
		switch {
		case got < want64:
			return compareOrdered(-1, f.Op)
		case got > want64:
			return compareOrdered(1, f.Op)
		default:
			return compareOrdered(0, f.Op)
		}
	}
}

func compareOrdered(cmp int, op string) bool {
	switch op {
	case "==":
		return cmp == 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// encodeCursor packs the sort key of the last returned document.
func encodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a cursor produced by encodeCursor.
func decodeCursor(cursor string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, "", fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor: %w", err)
	}
	return nanos, parts[1], nil
}
