package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"library/internal/models"
)

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var input models.BookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.logger.Debug("Failed to decode request body", zap.Error(err))
		s.writeBadRequest(w, "Failed to create a book", err)
		return
	}

	book, err := s.lib.CreateBook(r.Context(), input)
	if err != nil {
		s.writeError(w, r, err, failure{
			conflict: "A book with this ISBN already exists",
			fallback: "Failed to create a book",
		})
		return
	}

	s.writeData(w, http.StatusCreated, "Book created successfully", book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.BookQuery{
		Genre: models.Genre(q.Get("filter")),
		Sort:  models.SortOrder(q.Get("sort")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.writeError(w, r, models.NewValidationError("limit", "limit must be a positive integer"), failure{
				fallback: "Failed to retrieve books",
			})
			return
		}
		query.Limit = limit
	}

	books, err := s.lib.ListBooks(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err, failure{fallback: "Failed to retrieve books"})
		return
	}

	s.writeData(w, http.StatusOK, "Books retrieved successfully", books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.lib.GetBook(r.Context(), r.PathValue("bookId"))
	if err != nil {
		s.writeError(w, r, err, failure{
			notFound: "Book not found",
			fallback: "Failed to retrieve book",
		})
		return
	}

	s.writeData(w, http.StatusOK, "Book retrieved successfully", book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var patch models.BookPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.logger.Debug("Failed to decode request body", zap.Error(err))
		s.writeBadRequest(w, "Failed to update book", err)
		return
	}

	book, err := s.lib.UpdateBook(r.Context(), r.PathValue("bookId"), patch)
	if err != nil {
		s.writeError(w, r, err, failure{
			notFound: "Book not found. Unable to update",
			conflict: "A book with this ISBN already exists",
			fallback: "Failed to update book",
		})
		return
	}

	s.writeData(w, http.StatusOK, "Book updated successfully", book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.DeleteBook(r.Context(), r.PathValue("bookId")); err != nil {
		s.writeError(w, r, err, failure{
			notFound: "Book not found. Unable to delete.",
			fallback: "Failed to delete book.",
		})
		return
	}

	s.writeData(w, http.StatusOK, "Book deleted successfully", nil)
}
