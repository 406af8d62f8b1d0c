package queue

import (
	"context"
	"sync"
)

// MemoryRepository is a Repository kept in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{queues: make(map[string]*Queue)}
}

// Load implements Repository.
func (r *MemoryRepository) Load(_ context.Context, channelID string) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[channelID]
	if !ok {
		return nil, nil
	}
	return q.Clone(), nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, q *Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[q.ChannelID] = q.Clone()
	return nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, channelID)
	return nil
}

// ChannelsWithCollection implements Repository.
func (r *MemoryRepository) ChannelsWithCollection(_ context.Context, collectionID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for ch, q := range r.queues {
		for _, it := range q.Items {
			if it.Type == ItemCollection && it.CollectionID == collectionID {
				out = append(out, ch)
				break
			}
		}
	}
	return out, nil
}

// StaticSizes is a CollectionSizer backed by a map.
type StaticSizes map[int64]int

// TrackCount implements CollectionSizer.
func (s StaticSizes) TrackCount(_ context.Context, collectionID int64) (int, error) {
	return s[collectionID], nil
}
