package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process DocumentStore. Values are normalized through
// JSON on write so reads look the same as from the persistent backends.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return &models.Document{ID: id, Fields: copyFields(fields)}, nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, filter models.Filter) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0)
	for id, fields := range s.collections[collection] {
		if filter.Matches(fields) {
			docs = append(docs, &models.Document{ID: id, Fields: copyFields(fields)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc *models.Document) (string, error) {
	fields, err := normalize(doc.Fields)
	if err != nil {
		return "", err
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return "", fmt.Errorf("%s/%s: %w", collection, id, domain.ErrAlreadyExists)
	}
	coll[id] = fields
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	changes, err := normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	for k, v := range changes {
		current[k] = v
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

func normalize(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	return models.ToFields(fields)
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case []any:
			out[k] = append([]any(nil), val...)
		case map[string]any:
			out[k] = copyFields(val)
		default:
			out[k] = v
		}
	}
	return out
}

// MemoryDateLocker serializes writers per date inside one process.
type MemoryDateLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryDateLocker() *MemoryDateLocker {
	return &MemoryDateLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryDateLocker) Lock(ctx context.Context, date string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.slots[date]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[date] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
