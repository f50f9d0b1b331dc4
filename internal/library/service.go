package library

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"library/internal/models"
	"library/internal/storage"
)

const (
	// DefaultJournalLimit is used when a journal read does not ask for a limit
	DefaultJournalLimit = 20
	// MaxJournalLimit caps a single journal read
	MaxJournalLimit = 500

	notifyTimeout = 10 * time.Second
)

// Notifier is told about successful borrows
type Notifier interface {
	BookBorrowed(ctx context.Context, book models.Book, borrow models.Borrow) error
}

// Service ties the book store, the borrow ledger and the summary together
// and records every successful inventory change in the journal.
type Service struct {
	Books   *BookStore
	Ledger  *BorrowLedger
	Summary *SummaryAggregator

	journal  storage.Journal
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	// in-flight notifications
	pending sync.WaitGroup
}

type serviceConfig struct {
	journal      storage.Journal
	notifier     Notifier
	logger       *zap.Logger
	now          func() time.Time
	defaultLimit int
}

// Option configures a Service
type Option func(*serviceConfig)

// WithJournal sets the journal inventory changes are recorded in
func WithJournal(j storage.Journal) Option {
	return func(c *serviceConfig) { c.journal = j }
}

// WithNotifier sets the borrow notifier
func WithNotifier(n Notifier) Option {
	return func(c *serviceConfig) { c.notifier = n }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *serviceConfig) { c.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *serviceConfig) { c.now = now }
}

// WithDefaultListLimit sets the book listing limit used when none is given
func WithDefaultListLimit(n int) Option {
	return func(c *serviceConfig) { c.defaultLimit = n }
}

// NewService creates a service over db
func NewService(db storage.Storage, opts ...Option) *Service {
	cfg := serviceConfig{
		logger:       zap.NewNop(),
		now:          time.Now,
		defaultLimit: DefaultListLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	books := NewBookStore(db, cfg.logger, cfg.now, cfg.defaultLimit)
	return &Service{
		Books:    books,
		Ledger:   NewBorrowLedger(db, books, cfg.logger, cfg.now),
		Summary:  NewSummaryAggregator(db),
		journal:  cfg.journal,
		notifier: cfg.notifier,
		logger:   cfg.logger,
		now:      cfg.now,
	}
}

// CreateBook creates a book
func (s *Service) CreateBook(ctx context.Context, input models.BookInput) (models.Book, error) {
	book, err := s.Books.Create(ctx, input)
	if err != nil {
		return models.Book{}, err
	}
	s.record(ctx, models.ActionBookCreated, book, book.Copies)
	return book, nil
}

// GetBook returns a book
func (s *Service) GetBook(ctx context.Context, id string) (models.Book, error) {
	return s.Books.Get(ctx, id)
}

// ListBooks lists books
func (s *Service) ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error) {
	return s.Books.List(ctx, query)
}

// UpdateBook applies a partial update
func (s *Service) UpdateBook(ctx context.Context, id string, patch models.BookPatch) (models.Book, error) {
	book, err := s.Books.Update(ctx, id, patch)
	if err != nil {
		return models.Book{}, err
	}
	s.record(ctx, models.ActionBookUpdated, book, 0)
	return book, nil
}

// DeleteBook deletes a book
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	book, err := s.Books.Delete(ctx, id)
	if err != nil {
		return err
	}
	book.Copies = 0
	s.record(ctx, models.ActionBookDeleted, book, 0)
	return nil
}

// Borrow borrows copies of a book
func (s *Service) Borrow(ctx context.Context, req BorrowRequest) (models.Borrow, error) {
	borrow, book, err := s.Ledger.Borrow(ctx, req)
	if err != nil {
		return models.Borrow{}, err
	}
	s.record(ctx, models.ActionBookBorrowed, book, borrow.Quantity)
	s.notify(ctx, book, borrow)
	return borrow, nil
}

// BorrowHistory returns the borrows of one book
func (s *Service) BorrowHistory(ctx context.Context, bookID string) ([]models.Borrow, error) {
	return s.Ledger.History(ctx, bookID)
}

// BorrowSummary returns total borrowed quantity per book
func (s *Service) BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error) {
	return s.Summary.Summarize(ctx)
}

// Journal returns recent inventory changes, newest first
func (s *Service) Journal(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	if limit < 0 || limit > MaxJournalLimit {
		return nil, models.NewValidationError("limit", "limit must be between 1 and 500")
	}
	if limit == 0 {
		limit = DefaultJournalLimit
	}
	if s.journal == nil {
		return []models.JournalEntry{}, nil
	}
	entries, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return nil, classify("read journal", err)
	}
	return entries, nil
}

// record writes a journal entry. The change it describes is already committed,
// so a journal failure is logged and not returned.
func (s *Service) record(ctx context.Context, action models.JournalAction, book models.Book, quantity int) {
	if s.journal == nil {
		return
	}
	entry := models.JournalEntry{
		At:          book.UpdatedAt,
		Action:      action,
		BookID:      book.ID,
		ISBN:        book.ISBN,
		Quantity:    quantity,
		CopiesAfter: book.Copies,
	}
	if action == models.ActionBookDeleted || entry.At.IsZero() {
		entry.At = s.now().UTC()
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record journal entry",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.String("book_id", book.ID),
		)
	}
}

// notify sends the borrow notification in the background
func (s *Service) notify(ctx context.Context, book models.Book, borrow models.Borrow) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := s.notifier.BookBorrowed(ctx, book, borrow); err != nil {
			s.logger.Warn("Failed to send borrow notification",
				zap.Error(err),
				zap.String("book_id", book.ID),
				zap.String("borrow_id", borrow.ID),
			)
		}
	}()
}

// Wait blocks until every notification already started has finished or ctx is done.
// Call it once no more borrows can arrive.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
