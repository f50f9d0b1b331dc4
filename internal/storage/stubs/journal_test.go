package stubs

import (
	"context"
	"testing"
	"time"

	"library/internal/models"
)

func TestMemoryJournal_Recent(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := models.JournalEntry{
			At:       base.Add(time.Duration(i) * time.Minute),
			Action:   models.ActionBookBorrowed,
			BookID:   "b1",
			Quantity: i + 1,
		}
		if err := j.Record(ctx, entry); err != nil {
			t.Fatalf("Failed to record entry: %v", err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Failed to read journal: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Quantity != 5 {
		t.Errorf("Expected newest entry first, got quantity %d", entries[0].Quantity)
	}
}
