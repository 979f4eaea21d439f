package statestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates a store that lives as long as the process.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (s *memoryStore) Save(ctx context.Context, extension, state string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[extension]
	rec.Extension = extension
	rec.State = state
	rec.Version++
	rec.UpdatedAt = s.now()
	s.records[extension] = rec

	log.Debug().Str("extension", extension).Str("state", state).Int64("version", rec.Version).Msg("state saved")
	return rec, nil
}

func (s *memoryStore) Load(ctx context.Context, extension string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[extension]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, extension)
	}
	return rec, nil
}

func (s *memoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out, nil
}

func (s *memoryStore) Delete(ctx context.Context, extension string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, extension)
	return nil
}
