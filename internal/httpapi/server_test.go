package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"library/internal/library"
	"library/internal/models"
	"library/internal/storage/stubs"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type response struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   jsoniter.RawMessage `json:"error"`
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	db := stubs.NewMockDB()
	require.NoError(t, db.Initialize(context.Background()))
	svc := library.NewService(db,
		library.WithClock(func() time.Time { return testNow }),
		library.WithJournal(stubs.NewMemoryJournal()),
	)
	return NewServer(svc, zap.NewNop(), WithLocation(time.UTC)).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

type bookBody struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ISBN      string `json:"isbn"`
	Copies    int    `json:"copies"`
	Available bool   `json:"available"`
}

func createBook(t *testing.T, h http.Handler, isbn string, copies int) bookBody {
	t.Helper()
	body := `{"title":"The Theory of Everything","author":"Stephen Hawking","genre":"SCIENCE","isbn":"` + isbn +
		`","description":"An overview of cosmology","copies":` + itoa(copies) + `,"available":true}`
	status, resp := do(t, h, http.MethodPost, "/api/books", body)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, resp.Success)

	var book bookBody
	require.NoError(t, json.Unmarshal(resp.Data, &book))
	return book
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestBooksCRUD(t *testing.T) {
	h := newTestHandler(t)

	book := createBook(t, h, "9780553380163", 0)
	assert.Equal(t, 0, book.Copies)
	assert.False(t, book.Available, "availability follows copies")

	status, resp := do(t, h, http.MethodGet, "/api/books/"+book.ID, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Book retrieved successfully", resp.Message)

	status, resp = do(t, h, http.MethodPut, "/api/books/"+book.ID, `{"copies":5}`)
	require.Equal(t, http.StatusOK, status)
	var updated bookBody
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, 5, updated.Copies)
	assert.True(t, updated.Available)
	assert.Equal(t, book.Title, updated.Title)

	status, _ = do(t, h, http.MethodPatch, "/api/books/"+book.ID, `{"copies":-1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	req := httptest.NewRequest(http.MethodDelete, "/api/books/"+book.ID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Book deleted successfully","data":null}`, rec.Body.String())

	status, resp = do(t, h, http.MethodGet, "/api/books/"+book.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "Book not found", resp.Message)

	status, resp = do(t, h, http.MethodDelete, "/api/books/"+book.ID, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Book not found. Unable to delete.", resp.Message)
}

func TestCreateBook_Errors(t *testing.T) {
	h := newTestHandler(t)
	createBook(t, h, "isbn-1", 2)

	testCases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "duplicate isbn",
			body:       `{"title":"T","author":"A","genre":"FICTION","isbn":"isbn-1","copies":1}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown genre",
			body:       `{"title":"T","author":"A","genre":"POETRY","isbn":"isbn-2","copies":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative copies",
			body:       `{"title":"T","author":"A","genre":"FICTION","isbn":"isbn-3","copies":-4}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"title":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := do(t, h, http.MethodPost, "/api/books", tc.body)
			assert.Equal(t, tc.wantStatus, status)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestListBooks(t *testing.T) {
	h := newTestHandler(t)
	for _, isbn := range []string{"a", "b", "c"} {
		createBook(t, h, isbn, 1)
	}

	status, resp := do(t, h, http.MethodGet, "/api/books?filter=SCIENCE&sort=asc&limit=2", "")
	require.Equal(t, http.StatusOK, status)
	var books []bookBody
	require.NoError(t, json.Unmarshal(resp.Data, &books))
	assert.Len(t, books, 2)

	status, resp = do(t, h, http.MethodGet, "/api/books?filter=HISTORY", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", string(resp.Data))

	status, resp = do(t, h, http.MethodGet, "/api/books?filter=POETRY", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "[]", string(resp.Data))

	status, _ = do(t, h, http.MethodGet, "/api/books?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, h, http.MethodGet, "/api/books?sort=random", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBorrowFlow(t *testing.T) {
	h := newTestHandler(t)
	book := createBook(t, h, "isbn-1", 3)

	status, resp := do(t, h, http.MethodPost, "/api/borrow", `{"book":"`+book.ID+`","quantity":2,"dueDate":"2025-03-20"}`)
	require.Equal(t, http.StatusCreated, status, string(resp.Error))
	assert.Equal(t, "Book borrowed successfully", resp.Message)

	var borrow struct {
		Book     string    `json:"book"`
		Quantity int       `json:"quantity"`
		DueDate  time.Time `json:"dueDate"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &borrow))
	assert.Equal(t, book.ID, borrow.Book)
	assert.Equal(t, 2, borrow.Quantity)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), borrow.DueDate)

	status, resp = do(t, h, http.MethodPost, "/api/borrow", `{"book":"`+book.ID+`","quantity":2,"dueDate":"2025-03-20T10:00:00Z"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Insufficient copies available. Unable to borrow the book.", resp.Message)

	status, resp = do(t, h, http.MethodPost, "/api/borrow", `{"book":"missing","quantity":1,"dueDate":"2025-03-20"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Book not found. Unable to borrow the book.", resp.Message)

	status, resp = do(t, h, http.MethodPost, "/api/borrow", `{"book":"`+book.ID+`","quantity":1,"dueDate":"2025-03-09"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, dueDateMessage, resp.Message)

	status, resp = do(t, h, http.MethodPost, "/api/borrow", `{"book":"`+book.ID+`","quantity":1,"dueDate":"next week"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, dueDateMessage, resp.Message)

	status, _ = do(t, h, http.MethodPost, "/api/borrow", `{"book":"`+book.ID+`","quantity":0,"dueDate":"2025-03-20"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = do(t, h, http.MethodGet, "/api/books/"+book.ID, "")
	require.Equal(t, http.StatusOK, status)
	var got bookBody
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, 1, got.Copies)
	assert.True(t, got.Available)

	status, resp = do(t, h, http.MethodGet, "/api/books/"+book.ID+"/borrows", "")
	require.Equal(t, http.StatusOK, status)
	var history []jsoniter.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.Len(t, history, 1)
}

func TestBorrowSummary(t *testing.T) {
	h := newTestHandler(t)
	bookA := createBook(t, h, "isbn-a", 10)
	bookB := createBook(t, h, "isbn-b", 10)

	for _, b := range []struct {
		id string
		q  int
	}{{bookA.ID, 3}, {bookA.ID, 2}, {bookB.ID, 1}} {
		status, _ := do(t, h, http.MethodPost, "/api/borrow", `{"book":"`+b.id+`","quantity":`+itoa(b.q)+`,"dueDate":"2025-03-10"}`)
		require.Equal(t, http.StatusCreated, status)
	}

	status, resp := do(t, h, http.MethodGet, "/api/borrow", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Borrowed books summary retrieved successfully", resp.Message)

	var summary []models.BorrowSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	totals := make(map[string]int)
	for _, s := range summary {
		totals[s.Book.ISBN] = s.TotalQuantity
	}
	assert.Equal(t, map[string]int{"isbn-a": 5, "isbn-b": 1}, totals)
}

func TestJournal(t *testing.T) {
	h := newTestHandler(t)
	createBook(t, h, "isbn-1", 1)

	status, resp := do(t, h, http.MethodGet, "/api/journal?limit=5", "")
	require.Equal(t, http.StatusOK, status)
	var entries []models.JournalEntry
	require.NoError(t, json.Unmarshal(resp.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionBookCreated, entries[0].Action)

	status, _ = do(t, h, http.MethodGet, "/api/journal?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWelcomeHealthAndNotFound(t *testing.T) {
	h := newTestHandler(t)

	status, resp := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Welcome to Library management system", resp.Message)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	status, resp = do(t, h, http.MethodGet, "/api/authors", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Route not found", resp.Message)
	assert.JSONEq(t, `"Cannot GET /api/authors"`, string(resp.Error))
}

type brokenLibrary struct {
	Library
}

func (brokenLibrary) ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error) {
	return nil, errors.Join(models.ErrStoreFault, errors.New("connection refused"))
}

func TestStoreFaultIsInternalError(t *testing.T) {
	h := NewServer(brokenLibrary{}, zap.NewNop()).Handler()

	status, resp := do(t, h, http.MethodGet, "/api/books", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to retrieve books", resp.Message)
	assert.NotContains(t, string(resp.Error), "connection refused")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(models.NewValidationError("x", "y")))
	assert.Equal(t, http.StatusNotFound, statusFor(models.ErrBookNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(models.ErrDuplicateISBN))
	assert.Equal(t, http.StatusConflict, statusFor(models.ErrInsufficientStock))
	assert.Equal(t, http.StatusInternalServerError, statusFor(models.ErrInvariantViolation))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestParseDueDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)

	got, err := parseDueDate("2025-03-20", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, loc), got)

	got, err = parseDueDate("2025-03-20T23:30:00+02:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Day())

	for _, bad := range []string{"", "20/03/2025", "tomorrow"} {
		_, err := parseDueDate(bad, loc)
		assert.ErrorIs(t, err, models.ErrValidation, bad)
	}
}
