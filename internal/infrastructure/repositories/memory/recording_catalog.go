package memory

import (
	"context"
	"sort"
	"sync"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
)

type MemoryRecordingCatalog struct {
	recordings map[domain.RecordingID]*domain.FinishedRecording
	mu         sync.RWMutex
}

func NewMemoryRecordingCatalog() ports.RecordingCatalog {
	return &MemoryRecordingCatalog{
		recordings: make(map[domain.RecordingID]*domain.FinishedRecording),
	}
}

func (c *MemoryRecordingCatalog) Save(ctx context.Context, rec *domain.FinishedRecording) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := *rec
	c.recordings[rec.ID] = &clone
	return nil
}

func (c *MemoryRecordingCatalog) Get(ctx context.Context, id domain.RecordingID) (*domain.FinishedRecording, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, exists := c.recordings[id]
	if !exists {
		return nil, domain.ErrRecordingNotFound
	}

	clone := *rec
	return &clone, nil
}

func (c *MemoryRecordingCatalog) List(ctx context.Context) ([]*domain.FinishedRecording, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	recs := make([]*domain.FinishedRecording, 0, len(c.recordings))
	for _, rec := range c.recordings {
		clone := *rec
		recs = append(recs, &clone)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].EndedAt.Before(recs[j].EndedAt)
	})

	return recs, nil
}

func (c *MemoryRecordingCatalog) Delete(ctx context.Context, id domain.RecordingID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.recordings[id]; !exists {
		return domain.ErrRecordingNotFound
	}

	delete(c.recordings, id)
	return nil
}
