package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// MemoryStore is an in-memory reference Store implementation, useful for
// tests and for running JARVIS without a configured DB_PATH.
type MemoryStore struct {
	mu          sync.RWMutex
	messages    map[string][]models.ChatMessage
	events      []Event
	memories    []models.Memory
	preferences map[string]string
	costs       []models.CostEntry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:    make(map[string][]models.ChatMessage),
		preferences: make(map[string]string),
	}
}

func (s *MemoryStore) SaveMessage(ctx context.Context, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryStore) GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatMessage, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

func (s *MemoryStore) SaveEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) GetEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		if filter.Node != "" && ev.Node != filter.Node {
			continue
		}
		if !filter.Since.IsZero() && ev.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertMemory(ctx context.Context, mem models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.memories {
		if m.Category == mem.Category && m.Key == mem.Key {
			mem.LastAccessedAt = time.Now()
			s.memories[i] = mem
			return nil
		}
	}
	s.memories = append(s.memories, mem)
	return nil
}

func (s *MemoryStore) SearchMemories(ctx context.Context, query string, limit int) ([]models.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Memory
	q := strings.ToLower(query)
	for i := range s.memories {
		m := &s.memories[i]
		if q == "" || strings.Contains(strings.ToLower(m.Content), q) || strings.Contains(strings.ToLower(m.Key), q) {
			m.LastAccessedAt = time.Now()
			out = append(out, *m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) GetPreference(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.preferences[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SetPreference(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[key] = value
	return nil
}

func (s *MemoryStore) AppendCost(ctx context.Context, entry models.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costs = append(s.costs, entry)
	return nil
}

func (s *MemoryStore) SummarizeCost(ctx context.Context, rangeName string) (CostSummary, error) {
	cutoff, err := rangeCutoff(rangeName)
	if err != nil {
		return CostSummary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := CostSummary{Range: rangeName}
	for _, c := range s.costs {
		if c.Timestamp.Before(cutoff) {
			continue
		}
		sum.TotalUSD += c.USD
		sum.TokensIn += c.TokensIn
		sum.TokensOut += c.TokensOut
	}
	return sum, nil
}

func (s *MemoryStore) ExpireEpisodicMemories(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.memories[:0]
	removed := 0
	for _, m := range s.memories {
		if m.Tier == models.MemoryEpisodic && m.LastAccessedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.memories = kept
	return removed, nil
}

func rangeCutoff(rangeName string) (time.Time, error) {
	now := time.Now()
	switch rangeName {
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	default:
		return now.AddDate(0, 0, -1), nil
	}
}
