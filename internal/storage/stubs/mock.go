package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"library/internal/models"
)

// MockDB is an in-memory implementation of the Storage interface.
// Read-modify-write sequences on a book are serialized by that book's own lock.
// mu is held only while a map is read or written, never across a whole sequence,
// so work on different books does not wait on each other.
type MockDB struct {
	mu        sync.RWMutex
	books     map[string]models.Book
	isbnIndex map[string]string // isbn -> book id
	borrows   []models.Borrow

	bookLocks keyedMutex
	now       func() time.Time

	// afterRead runs between reading a book and writing it back; nil outside tests
	afterRead func(bookID string)
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		books:     make(map[string]models.Book),
		isbnIndex: make(map[string]string),
		borrows:   make([]models.Borrow, 0),
		now:       time.Now,
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook stores a new book if its isbn is free
func (m *MockDB) CreateBook(ctx context.Context, book models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.isbnIndex[book.ISBN]; taken {
		return fmt.Errorf("failed to create book: %w", models.ErrDuplicateISBN)
	}
	if _, exists := m.books[book.ID]; exists {
		return fmt.Errorf("failed to create book: id %s already exists", book.ID)
	}

	m.books[book.ID] = book
	m.isbnIndex[book.ISBN] = book.ID
	return nil
}

// GetBook returns a book by id
func (m *MockDB) GetBook(ctx context.Context, id string) (models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[id]
	if !ok {
		return models.Book{}, models.ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns books matching the query ordered by creation time
func (m *MockDB) ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, 0, len(m.books))
	for _, book := range m.books {
		if query.Genre != "" && book.Genre != query.Genre {
			continue
		}
		books = append(books, book)
	}

	sort.Slice(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			if query.Sort == models.SortAsc {
				return books[i].CreatedAt.Before(books[j].CreatedAt)
			}
			return books[i].CreatedAt.After(books[j].CreatedAt)
		}
		if query.Sort == models.SortAsc {
			return books[i].ID < books[j].ID
		}
		return books[i].ID > books[j].ID
	})

	if query.Limit > 0 && query.Limit < len(books) {
		books = books[:query.Limit]
	}
	return books, nil
}

// UpdateBook applies a partial update under the book's lock
func (m *MockDB) UpdateBook(ctx context.Context, id string, patch models.BookPatch) (models.Book, error) {
	unlock := m.bookLocks.Lock(id)
	defer unlock()

	book, ok := m.readBook(id)
	if !ok {
		return models.Book{}, models.ErrBookNotFound
	}
	if patch.Empty() {
		return book, nil
	}

	updated := patch.Apply(book)
	updated.UpdatedAt = m.now().UTC()
	m.hookAfterRead(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if updated.ISBN != book.ISBN {
		if owner, taken := m.isbnIndex[updated.ISBN]; taken && owner != id {
			return models.Book{}, fmt.Errorf("failed to update book: %w", models.ErrDuplicateISBN)
		}
		delete(m.isbnIndex, book.ISBN)
		m.isbnIndex[updated.ISBN] = id
	}
	m.books[id] = updated
	return updated, nil
}

// DeleteBook removes a book. Its borrow records are kept.
func (m *MockDB) DeleteBook(ctx context.Context, id string) error {
	unlock := m.bookLocks.Lock(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[id]
	if !ok {
		return models.ErrBookNotFound
	}
	delete(m.isbnIndex, book.ISBN)
	delete(m.books, id)
	return nil
}

// BorrowBook checks stock and decrements it together with recording the borrow.
// The book's lock is held from the stock check to the write-back.
func (m *MockDB) BorrowBook(ctx context.Context, borrow models.Borrow) (models.Book, error) {
	unlock := m.bookLocks.Lock(borrow.BookID)
	defer unlock()

	book, ok := m.readBook(borrow.BookID)
	if !ok {
		return models.Book{}, models.ErrBookNotFound
	}
	if book.Copies < borrow.Quantity {
		return models.Book{}, models.ErrInsufficientStock
	}

	book.Copies -= borrow.Quantity
	book.UpdatedAt = m.now().UTC()
	m.hookAfterRead(borrow.BookID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.books[book.ID] = book
	m.borrows = append(m.borrows, borrow)
	return book, nil
}

func (m *MockDB) readBook(id string) (models.Book, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[id]
	return book, ok
}

func (m *MockDB) hookAfterRead(bookID string) {
	if m.afterRead != nil {
		m.afterRead(bookID)
	}
}

// ListBorrows returns the borrows of a book, oldest first
func (m *MockDB) ListBorrows(ctx context.Context, bookID string) ([]models.Borrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	borrows := make([]models.Borrow, 0)
	for _, borrow := range m.borrows {
		if borrow.BookID == bookID {
			borrows = append(borrows, borrow)
		}
	}

	sort.SliceStable(borrows, func(i, j int) bool {
		return borrows[i].CreatedAt.Before(borrows[j].CreatedAt)
	})
	return borrows, nil
}

// BorrowSummary returns total borrowed quantity per book still in the catalog
func (m *MockDB) BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[string]int)
	for _, borrow := range m.borrows {
		totals[borrow.BookID] += borrow.Quantity
	}

	summary := make([]models.BorrowSummary, 0, len(totals))
	for bookID, total := range totals {
		book, ok := m.books[bookID]
		if !ok {
			continue
		}
		summary = append(summary, models.BorrowSummary{
			Book:          models.BookRef{Title: book.Title, ISBN: book.ISBN},
			TotalQuantity: total,
		})
	}

	// Sort by total descending, then by isbn
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].TotalQuantity != summary[j].TotalQuantity {
			return summary[i].TotalQuantity > summary[j].TotalQuantity
		}
		return summary[i].Book.ISBN < summary[j].Book.ISBN
	})

	return summary, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
