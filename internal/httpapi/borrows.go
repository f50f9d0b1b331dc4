package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"library/internal/library"
	"library/internal/models"
)

const dueDateMessage = "Due date must be a valid date in YYYY-MM-DD or ISO format and cannot be in the past"

// borrowRequest is the body of POST /api/borrow
type borrowRequest struct {
	Book     string `json:"book"`
	Quantity int    `json:"quantity"`
	DueDate  string `json:"dueDate"`
}

// parseDueDate accepts a calendar date or an RFC 3339 timestamp.
// Calendar dates are read in loc.
func parseDueDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, models.NewValidationError("dueDate", "Due date is required")
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, models.NewValidationError("dueDate", "Due date must be YYYY-MM-DD or an ISO 8601 timestamp")
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Debug("Failed to decode request body", zap.Error(err))
		s.writeBadRequest(w, "Failed to borrow a book", err)
		return
	}

	borrowFailure := failure{
		notFound: "Book not found. Unable to borrow the book.",
		conflict: "Insufficient copies available. Unable to borrow the book.",
		fallback: "Failed to borrow a book",
	}

	dueDate, err := parseDueDate(req.DueDate, s.location)
	if err != nil {
		borrowFailure.validation = dueDateMessage
		s.writeError(w, r, err, borrowFailure)
		return
	}

	borrow, err := s.lib.Borrow(r.Context(), library.BorrowRequest{
		BookID:   strings.TrimSpace(req.Book),
		Quantity: req.Quantity,
		DueDate:  dueDate,
	})
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) && vErr.Field == "dueDate" {
			borrowFailure.validation = dueDateMessage
		}
		s.writeError(w, r, err, borrowFailure)
		return
	}

	s.writeData(w, http.StatusCreated, "Book borrowed successfully", borrow)
}

func (s *Server) handleBorrowSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.lib.BorrowSummary(r.Context())
	if err != nil {
		s.writeError(w, r, err, failure{fallback: "Failed to retrieve borrowed books summary"})
		return
	}

	s.writeData(w, http.StatusOK, "Borrowed books summary retrieved successfully", summary)
}

func (s *Server) handleBorrowHistory(w http.ResponseWriter, r *http.Request) {
	borrows, err := s.lib.BorrowHistory(r.Context(), r.PathValue("bookId"))
	if err != nil {
		s.writeError(w, r, err, failure{
			notFound: "Book not found",
			fallback: "Failed to retrieve borrows",
		})
		return
	}

	s.writeData(w, http.StatusOK, "Borrows retrieved successfully", borrows)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, models.NewValidationError("limit", "limit must be a positive integer"), failure{
				fallback: "Failed to retrieve journal",
			})
			return
		}
		limit = n
	}

	entries, err := s.lib.Journal(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, failure{fallback: "Failed to retrieve journal"})
		return
	}

	s.writeData(w, http.StatusOK, "Journal retrieved successfully", entries)
}
