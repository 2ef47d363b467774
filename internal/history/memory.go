// internal/history/memory.go
package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{turns: make(map[string][]Turn)}
}

func (s *Memory) Load(_ context.Context, key string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[key]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *Memory) Append(_ context.Context, key string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.turns[key] = append(s.turns[key], turn)
	return nil
}

func (s *Memory) Sessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(s.turns))
	for key, turns := range s.turns {
		if len(turns) == 0 {
			continue
		}
		infos = append(infos, SessionInfo{
			Key:        key,
			Turns:      len(turns),
			LastActive: turns[len(turns)-1].CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActive.After(infos[j].LastActive)
	})
	return infos, nil
}

func (s *Memory) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, key)
	return nil
}

func (s *Memory) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, turns := range s.turns {
		kept := turns[:0]
		for _, t := range turns {
			if t.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(s.turns, key)
		} else {
			s.turns[key] = kept
		}
	}
	return removed, nil
}

func (s *Memory) Close() {}
