package docstore

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and the "memory" driver.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memDoc
}

type memDoc struct {
	data      map[string]any
	createdAt time.Time
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memDoc),
	}
}

// Get retrieves a document by id.
func (s *MemoryStore) Get(collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: deepCopy(doc.data), CreatedAt: doc.createdAt}, nil
}

// Create stores a new document. The creation time is taken from the
// document's created_at field when present, otherwise now.
func (s *MemoryStore) Create(collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]*memDoc)
		s.collections[collection] = col
	}
	if _, exists := col[id]; exists {
		return ErrExists
	}
	col[id] = &memDoc{
		data:      deepCopy(data),
		createdAt: createdAtOf(data),
	}
	return nil
}

// Update applies a partial patch to an existing document.
func (s *MemoryStore) Update(collection, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	applyPatch(doc.data, patch)
	return nil
}

// Query returns documents matching all filters, ordered by creation time.
func (s *MemoryStore) Query(collection string, q Query) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Document
	for id, doc := range s.collections[collection] {
		ok := true
		for _, f := range q.Filters {
			if f.Field == "created_at" {
				if !matchFilter(doc.createdAt.Format(time.RFC3339Nano), Filter{Field: f.Field, Op: f.Op, Value: filterTime(f.Value)}) {
					ok = false
					break
				}
				continue
			}
			val, found := lookupPath(doc.data, f.Field)
			if !found || !matchFilter(val, f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, Document{ID: id, Data: deepCopy(doc.data), CreatedAt: doc.createdAt})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			if q.Ascending {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		}
		if q.Ascending {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if q.Cursor != "" {
		nanos, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		idx := 0
		for i, d := range matched {
			if after(d, nanos, id, q.Ascending) {
				idx = i
				break
			}
			idx = i + 1
		}
		matched = matched[idx:]
	}

	res := &Result{}
	if q.Limit > 0 && len(matched) > q.Limit {
		res.Docs = matched[:q.Limit]
		last := res.Docs[len(res.Docs)-1]
		res.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	} else {
		res.Docs = matched
	}
	return res, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func after(d Document, nanos int64, id string, ascending bool) bool {
	dn := d.CreatedAt.UnixNano()
	if dn == nanos {
		if ascending {
			return d.ID > id
		}
		return d.ID < id
	}
	if ascending {
		return dn > nanos
	}
	return dn < nanos
}

func filterTime(v any) any {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return v
}

func createdAtOf(data map[string]any) time.Time {
	if s, ok := data["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	if t, ok := data["created_at"].(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// deepCopy round-trips through JSON so callers cannot mutate stored state.
func deepCopy(data map[string]any) map[string]any {
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
