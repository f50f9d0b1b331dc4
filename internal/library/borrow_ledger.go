package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"library/internal/models"
	"library/internal/storage"
)

// BorrowRequest asks for quantity copies of a book until DueDate
type BorrowRequest struct {
	BookID   string
	Quantity int
	DueDate  time.Time
}

// BorrowLedger records borrows and protects the book stock against over-borrowing
type BorrowLedger struct {
	db     storage.Storage
	books  *BookStore
	logger *zap.Logger
	now    func() time.Time
}

// NewBorrowLedger creates a ledger that checks stock through books
func NewBorrowLedger(db storage.Storage, books *BookStore, logger *zap.Logger, now func() time.Time) *BorrowLedger {
	return &BorrowLedger{db: db, books: books, logger: logger, now: now}
}

// Borrow validates the request, checks stock and records the borrow.
//
// The availability check is a fast rejection only. The decrement itself is a
// conditional update performed by the storage together with the borrow insert,
// so two concurrent borrows can never jointly overdraw a book.
// The returned book reflects the stock after the borrow.
func (l *BorrowLedger) Borrow(ctx context.Context, req BorrowRequest) (models.Borrow, models.Book, error) {
	dueDate, err := l.validate(req)
	if err != nil {
		return models.Borrow{}, models.Book{}, err
	}

	if _, err := l.books.Get(ctx, req.BookID); err != nil {
		return models.Borrow{}, models.Book{}, err
	}

	ok, err := l.books.CheckAvailability(ctx, req.BookID, req.Quantity)
	if err != nil {
		return models.Borrow{}, models.Book{}, err
	}
	if !ok {
		return models.Borrow{}, models.Book{}, models.ErrInsufficientStock
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Borrow{}, models.Book{}, fmt.Errorf("%w: failed to generate id: %w", models.ErrStoreFault, err)
	}

	now := l.now().UTC()
	borrow := models.Borrow{
		ID:        id.String(),
		BookID:    req.BookID,
		Quantity:  req.Quantity,
		DueDate:   dueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}

	book, err := l.db.BorrowBook(ctx, borrow)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			l.logger.Debug("Borrow lost race for remaining copies",
				zap.String("book_id", req.BookID),
				zap.Int("quantity", req.Quantity),
			)
		}
		return models.Borrow{}, models.Book{}, classify("borrow book", err)
	}

	if _, err := l.books.ReconcileAvailability(ctx, req.BookID); err != nil {
		if errors.Is(err, models.ErrInvariantViolation) {
			l.logger.Error("Stock invariant broken after borrow",
				zap.Error(err),
				zap.Bool("invariant_violation", true),
				zap.String("book_id", req.BookID),
				zap.String("borrow_id", borrow.ID),
			)
			return models.Borrow{}, models.Book{}, err
		}
		// The borrow is committed; a failed re-read does not undo it.
		l.logger.Warn("Failed to reconcile availability", zap.Error(err), zap.String("book_id", req.BookID))
	}

	l.logger.Debug("Book borrowed",
		zap.String("book_id", req.BookID),
		zap.String("borrow_id", borrow.ID),
		zap.Int("quantity", req.Quantity),
		zap.Int("copies_left", book.Copies),
	)
	return borrow, book, nil
}

// History returns the borrows recorded for one book, oldest first
func (l *BorrowLedger) History(ctx context.Context, bookID string) ([]models.Borrow, error) {
	if _, err := l.books.Get(ctx, bookID); err != nil {
		return nil, err
	}
	borrows, err := l.db.ListBorrows(ctx, bookID)
	if err != nil {
		return nil, classify("list borrows", err)
	}
	return borrows, nil
}

// validate checks quantity and due date and returns the due date truncated to a calendar day
func (l *BorrowLedger) validate(req BorrowRequest) (time.Time, error) {
	if req.BookID == "" {
		return time.Time{}, models.NewValidationError("book", "Book reference is required")
	}
	if req.Quantity < 1 {
		return time.Time{}, models.NewValidationError("quantity", "Quantity must be at least 1")
	}
	if req.DueDate.IsZero() {
		return time.Time{}, models.NewValidationError("dueDate", "Due date is required")
	}

	now := l.now()
	loc := now.Location()
	today := dateOf(now, loc)
	due := dateOf(req.DueDate, loc)
	if due.Before(today) {
		return time.Time{}, models.NewValidationError("dueDate", "Due date cannot be in the past")
	}

	y, m, d := due.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// dateOf drops the time of day of t as seen in loc
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
