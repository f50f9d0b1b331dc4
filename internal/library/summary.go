package library

import (
	"context"

	"library/internal/models"
	"library/internal/storage"
)

// SummaryAggregator reports how many copies of each book have been borrowed in total
type SummaryAggregator struct {
	db storage.Storage
}

// NewSummaryAggregator creates an aggregator over db
func NewSummaryAggregator(db storage.Storage) *SummaryAggregator {
	return &SummaryAggregator{db: db}
}

// Summarize groups borrows by book and sums their quantities.
// Borrows of deleted books are left out.
func (a *SummaryAggregator) Summarize(ctx context.Context) ([]models.BorrowSummary, error) {
	summary, err := a.db.BorrowSummary(ctx)
	if err != nil {
		return nil, classify("summarize borrows", err)
	}
	return summary, nil
}
