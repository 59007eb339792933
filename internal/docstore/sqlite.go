package docstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists documents as JSON rows in a single SQLite database.
// Filters run through json_extract; ordering uses an indexed created_at
// column so range queries stay cheap.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed document store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at
		ON documents(collection, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Get retrieves a document by id.
func (s *SQLiteStore) Get(collection, id string) (*Document, error) {
	var raw string
	var nanos int64
	err := s.db.QueryRow(
		`SELECT data, created_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &Document{ID: id, Data: data, CreatedAt: time.Unix(0, nanos).UTC()}, nil
}

// Create stores a new document; the id must not already exist.
func (s *SQLiteStore) Create(collection, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	createdAt := createdAtOf(data)
	_, err = s.db.Exec(
		`INSERT INTO documents (collection, id, data, created_at) VALUES (?, ?, ?, ?)`,
		collection, id, string(raw), createdAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrExists
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// Update applies a partial patch to an existing document. The read-modify-
// write runs inside a transaction so concurrent patches do not lose fields.
func (s *SQLiteStore) Update(collection, id string, patch Patch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRow(
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	// Patch values must be JSON types so json_extract filters keep working.
	normalized, err := normalizePatch(patch)
	if err != nil {
		return err
	}
	applyPatch(data, normalized)

	updated, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE documents SET data = ? WHERE collection = ? AND id = ?`,
		string(updated), collection, id,
	); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return tx.Commit()
}

// Query returns documents matching all filters, ordered by creation time,
// with cursor pagination.
func (s *SQLiteStore) Query(collection string, q Query) (*Result, error) {
	var conds []string
	var args []any

	conds = append(conds, "collection = ?")
	args = append(args, collection)

	for _, f := range q.Filters {
		if !validOp(f.Op) {
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
		if f.Field == "created_at" {
			t, ok := asTime(f.Value)
			if !ok {
				return nil, fmt.Errorf("created_at filter needs a time value")
			}
			conds = append(conds, "created_at "+f.Op+" ?")
			args = append(args, t.UnixNano())
			continue
		}
		conds = append(conds, "json_extract(data, ?) "+f.Op+" ?")
		args = append(args, "$."+f.Field, jsonValue(f.Value))
	}

	dir := "DESC"
	cmp := "<"
	if q.Ascending {
		dir = "ASC"
		cmp = ">"
	}
	if q.Cursor != "" {
		nanos, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		conds = append(conds, "(created_at, id) "+cmp+" (?, ?)")
		args = append(args, nanos, id)
	}

	query := "SELECT id, data, created_at FROM documents WHERE " +
		strings.Join(conds, " AND ") +
		" ORDER BY created_at " + dir + ", id " + dir
	if q.Limit > 0 {
		// Fetch one extra row to know whether another page exists.
		query += fmt.Sprintf(" LIMIT %d", q.Limit+1)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		var id, raw string
		var nanos int64
		if err := rows.Scan(&id, &raw, &nanos); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, Document{ID: id, Data: data, CreatedAt: time.Unix(0, nanos).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	res := &Result{Docs: docs}
	if q.Limit > 0 && len(docs) > q.Limit {
		res.Docs = docs[:q.Limit]
		last := res.Docs[len(res.Docs)-1]
		res.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func validOp(op string) bool {
	switch op {
	case "==", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// jsonValue converts a filter value to something comparable against
// json_extract output.
func jsonValue(v any) any {
	switch n := v.(type) {
	case time.Time:
		return n.Format(time.RFC3339Nano)
	case int:
		return int64(n)
	default:
		return v
	}
}

// normalizePatch round-trips patch values through JSON, preserving Delete
// sentinels.
func normalizePatch(patch Patch) (Patch, error) {
	out := make(Patch, len(patch))
	for k, v := range patch {
		if _, isDelete := v.(deleteSentinel); isDelete {
			out[k] = v
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %s: %w", k, err)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode patch field %s: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}
