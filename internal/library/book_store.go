package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"library/internal/models"
	"library/internal/storage"
)

// DefaultListLimit is used when a listing does not ask for a limit
const DefaultListLimit = 10

// BookStore owns book records and keeps copies and availability consistent
type BookStore struct {
	db           storage.Storage
	logger       *zap.Logger
	now          func() time.Time
	defaultLimit int
}

// NewBookStore creates a book store over db
func NewBookStore(db storage.Storage, logger *zap.Logger, now func() time.Time, defaultLimit int) *BookStore {
	if defaultLimit <= 0 {
		defaultLimit = DefaultListLimit
	}
	return &BookStore{db: db, logger: logger, now: now, defaultLimit: defaultLimit}
}

// Create validates input and persists a new book.
// Any caller-supplied availability is ignored: it follows copies.
func (s *BookStore) Create(ctx context.Context, input models.BookInput) (models.Book, error) {
	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	isbn := strings.TrimSpace(input.ISBN)

	switch {
	case title == "":
		return models.Book{}, models.NewValidationError("title", "Title is required")
	case author == "":
		return models.Book{}, models.NewValidationError("author", "Author is required")
	case !input.Genre.Valid():
		return models.Book{}, models.NewValidationError("genre", fmt.Sprintf("%q is not acceptable", input.Genre))
	case isbn == "":
		return models.Book{}, models.NewValidationError("isbn", "ISBN is required")
	case input.Copies == nil:
		return models.Book{}, models.NewValidationError("copies", "Copies is required")
	case *input.Copies < 0:
		return models.Book{}, models.NewValidationError("copies", "Copies can not be a negative number")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Book{}, fmt.Errorf("%w: failed to generate id: %w", models.ErrStoreFault, err)
	}

	now := s.now().UTC()
	book := models.Book{
		ID:          id.String(),
		Title:       title,
		Author:      author,
		Genre:       input.Genre,
		ISBN:        isbn,
		Description: input.Description,
		Copies:      *input.Copies,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.CreateBook(ctx, book); err != nil {
		return models.Book{}, classify("create book", err)
	}

	s.logger.Debug("Book created", zap.String("book_id", book.ID), zap.String("isbn", book.ISBN))
	return book, nil
}

// Get returns the book with the given id
func (s *BookStore) Get(ctx context.Context, id string) (models.Book, error) {
	book, err := s.db.GetBook(ctx, id)
	if err != nil {
		return models.Book{}, classify("get book", err)
	}
	return book, nil
}

// List returns a snapshot of books matching the query, ordered by creation time
func (s *BookStore) List(ctx context.Context, query models.BookQuery) ([]models.Book, error) {
	switch query.Sort {
	case "":
		query.Sort = models.SortDesc
	case models.SortAsc, models.SortDesc:
	default:
		return nil, models.NewValidationError("sort", "sort must be asc or desc")
	}
	if query.Limit < 0 {
		return nil, models.NewValidationError("limit", "limit must be a positive integer")
	}
	if query.Limit == 0 {
		query.Limit = s.defaultLimit
	}
	// No book can carry an unknown genre
	if query.Genre != "" && !query.Genre.Valid() {
		return []models.Book{}, nil
	}

	books, err := s.db.ListBooks(ctx, query)
	if err != nil {
		return nil, classify("list books", err)
	}
	return books, nil
}

// Update applies only the provided fields. Availability is derived from copies,
// so changing copies updates availability in the same write.
func (s *BookStore) Update(ctx context.Context, id string, patch models.BookPatch) (models.Book, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Book{}, models.NewValidationError("title", "Title can not be empty")
		}
		patch.Title = &title
	}
	if patch.Author != nil {
		author := strings.TrimSpace(*patch.Author)
		if author == "" {
			return models.Book{}, models.NewValidationError("author", "Author can not be empty")
		}
		patch.Author = &author
	}
	if patch.ISBN != nil {
		isbn := strings.TrimSpace(*patch.ISBN)
		if isbn == "" {
			return models.Book{}, models.NewValidationError("isbn", "ISBN can not be empty")
		}
		patch.ISBN = &isbn
	}
	if patch.Genre != nil && !patch.Genre.Valid() {
		return models.Book{}, models.NewValidationError("genre", fmt.Sprintf("%q is not acceptable", *patch.Genre))
	}
	if patch.Copies != nil && *patch.Copies < 0 {
		return models.Book{}, models.NewValidationError("copies", "Copies can not be a negative number")
	}

	book, err := s.db.UpdateBook(ctx, id, patch)
	if err != nil {
		return models.Book{}, classify("update book", err)
	}

	s.logger.Debug("Book updated", zap.String("book_id", id), zap.Int("copies", book.Copies))
	return book, nil
}

// Delete removes the book. Borrow records that reference it are kept.
func (s *BookStore) Delete(ctx context.Context, id string) (models.Book, error) {
	book, err := s.db.GetBook(ctx, id)
	if err != nil {
		return models.Book{}, classify("delete book", err)
	}
	if err := s.db.DeleteBook(ctx, id); err != nil {
		return models.Book{}, classify("delete book", err)
	}

	s.logger.Debug("Book deleted", zap.String("book_id", id))
	return book, nil
}

// CheckAvailability reports whether the book exists and has at least quantity copies.
// A missing book is reported as unavailable, not as an error.
func (s *BookStore) CheckAvailability(ctx context.Context, id string, quantity int) (bool, error) {
	book, err := s.db.GetBook(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify("check availability", err)
	}
	return book.Available() && book.Copies >= quantity, nil
}

// ReconcileAvailability re-reads the book after a stock change and returns its availability.
// Availability is derived from copies, so there is nothing to write; a negative stock
// count is reported as an invariant violation.
func (s *BookStore) ReconcileAvailability(ctx context.Context, id string) (bool, error) {
	book, err := s.db.GetBook(ctx, id)
	if err != nil {
		return false, classify("reconcile availability", err)
	}
	if book.Copies < 0 {
		return false, fmt.Errorf("%w: book %s has %d copies", models.ErrInvariantViolation, id, book.Copies)
	}
	return book.Available(), nil
}
