package httpapi

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"library/internal/library"
	"library/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Library is the set of operations the HTTP layer exposes
type Library interface {
	CreateBook(ctx context.Context, input models.BookInput) (models.Book, error)
	GetBook(ctx context.Context, id string) (models.Book, error)
	ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error)
	UpdateBook(ctx context.Context, id string, patch models.BookPatch) (models.Book, error)
	DeleteBook(ctx context.Context, id string) error
	Borrow(ctx context.Context, req library.BorrowRequest) (models.Borrow, error)
	BorrowHistory(ctx context.Context, bookID string) ([]models.Borrow, error)
	BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error)
	Journal(ctx context.Context, limit int) ([]models.JournalEntry, error)
}

// Server serves the library REST API
type Server struct {
	lib      Library
	logger   *zap.Logger
	location *time.Location
}

// Option configures a Server
type Option func(*Server)

// WithLocation sets the time zone date-only due dates are read in.
// It should match the clock the library compares due dates with.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.location = loc }
}

// NewServer creates the API server
func NewServer(lib Library, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		lib:      lib,
		logger:   logger,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes registers API routes on the provided mux
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleWelcome)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/books", s.handleCreateBook)
	mux.HandleFunc("GET /api/books", s.handleListBooks)
	mux.HandleFunc("GET /api/books/{bookId}", s.handleGetBook)
	mux.HandleFunc("PUT /api/books/{bookId}", s.handleUpdateBook)
	mux.HandleFunc("PATCH /api/books/{bookId}", s.handleUpdateBook)
	mux.HandleFunc("DELETE /api/books/{bookId}", s.handleDeleteBook)
	mux.HandleFunc("GET /api/books/{bookId}/borrows", s.handleBorrowHistory)

	mux.HandleFunc("POST /api/borrow", s.handleBorrow)
	mux.HandleFunc("GET /api/borrow", s.handleBorrowSummary)

	mux.HandleFunc("GET /api/journal", s.handleJournal)

	mux.HandleFunc("/", s.handleNotFound)
}

// Handler returns the API with request logging and panic recovery applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(s.recoverPanics(mux))
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, "Welcome to Library management system", nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, envelope{
		Success: false,
		Message: "Route not found",
		Error:   "Cannot " + r.Method + " " + r.URL.Path,
	})
}
