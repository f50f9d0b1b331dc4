package stubs

import (
	"context"
	"sort"
	"sync"

	"library/internal/models"
)

// MemoryJournal keeps journal entries in memory
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []models.JournalEntry
}

// NewMemoryJournal creates an empty in-memory journal
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make([]models.JournalEntry, 0)}
}

func (j *MemoryJournal) Initialize(ctx context.Context) error {
	return nil
}

// Record appends an entry
func (j *MemoryJournal) Record(ctx context.Context, entry models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, entry)
	return nil
}

// Recent returns the last N entries, newest first
func (j *MemoryJournal) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	sorted := make([]models.JournalEntry, len(j.entries))
	copy(sorted, j.entries)
	// Stable keeps insertion order for equal timestamps, reversed below
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].At.Before(sorted[k].At)
	})
	for i, k := 0, len(sorted)-1; i < k; i, k = i+1, k-1 {
		sorted[i], sorted[k] = sorted[k], sorted[i]
	}

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
