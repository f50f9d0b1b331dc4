package storage

import (
	"context"

	"library/internal/models"
)

// Storage defines the interface for data storage operations.
//
// Implementations never persist the availability flag; it is derived from copies on read.
// Mutating calls are atomic per book: a reader never observes a half-applied update.
type Storage interface {
	// Book operations

	// CreateBook persists book. ID and timestamps must already be set.
	// Returns models.ErrDuplicateISBN if the isbn is taken.
	CreateBook(ctx context.Context, book models.Book) error
	// GetBook returns models.ErrBookNotFound if id does not exist
	GetBook(ctx context.Context, id string) (models.Book, error)
	ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error)
	// UpdateBook applies patch in a single atomic write and returns the updated book
	UpdateBook(ctx context.Context, id string, patch models.BookPatch) (models.Book, error)
	DeleteBook(ctx context.Context, id string) error

	// Borrow operations

	// BorrowBook decrements the book's copies by borrow.Quantity only if enough copies
	// are in stock, and persists the borrow record in the same unit of work.
	// On models.ErrBookNotFound or models.ErrInsufficientStock nothing is written.
	// Returns the book as it is after the decrement.
	BorrowBook(ctx context.Context, borrow models.Borrow) (models.Book, error)
	// ListBorrows returns the borrows of one book, oldest first
	ListBorrows(ctx context.Context, bookID string) ([]models.Borrow, error)

	// Statistics operations

	// BorrowSummary returns the total borrowed quantity per existing book.
	// Borrows whose book has been deleted are left out.
	BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Journal is an append-only log of inventory changes
type Journal interface {
	Record(ctx context.Context, entry models.JournalEntry) error
	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]models.JournalEntry, error)

	Initialize(ctx context.Context) error
	Close() error
}
