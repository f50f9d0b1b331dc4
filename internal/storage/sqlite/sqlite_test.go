package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library/internal/models"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("init db: %v", err)
	}
	return db
}

func book(id, isbn string, copies int, createdAt time.Time) models.Book {
	return models.Book{
		ID:        id,
		Title:     "Title " + id,
		Author:    "Author",
		Genre:     models.GenreBiography,
		ISBN:      isbn,
		Copies:    copies,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func borrow(id, bookID string, quantity int) models.Borrow {
	now := time.Now().UTC()
	return models.Borrow{
		ID:        id,
		BookID:    bookID,
		Quantity:  quantity,
		DueDate:   now.AddDate(0, 0, 14),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	db := tempDB(t)
	require.NoError(t, db.Initialize(context.Background()))
}

func TestInitializeRejectsUnreadableSchemaVersion(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	_, err := db.db.ExecContext(ctx, `UPDATE meta SET value='not-a-number' WHERE key='schema_version';`)
	require.NoError(t, err)

	assert.ErrorContains(t, db.Initialize(ctx), "read schema version")
}

func TestInitializeFailsOnClosedDatabase(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.Error(t, db.Initialize(context.Background()))
}

func TestBookCRUD(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.CreateBook(ctx, book("b1", "isbn-1", 2, created)))

	got, err := db.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "isbn-1", got.ISBN)
	assert.Equal(t, models.GenreBiography, got.Genre)
	assert.True(t, created.Equal(got.CreatedAt))

	assert.ErrorIs(t, db.CreateBook(ctx, book("b2", "isbn-1", 1, created)), models.ErrDuplicateISBN)

	five := 5
	title := "Renamed"
	updated, err := db.UpdateBook(ctx, "b1", models.BookPatch{Copies: &five, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Copies)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "Author", updated.Author)

	negative := -1
	_, err = db.UpdateBook(ctx, "b1", models.BookPatch{Copies: &negative})
	assert.ErrorIs(t, err, models.ErrInvariantViolation)

	_, err = db.UpdateBook(ctx, "missing", models.BookPatch{Copies: &five})
	assert.ErrorIs(t, err, models.ErrBookNotFound)

	require.NoError(t, db.DeleteBook(ctx, "b1"))
	assert.ErrorIs(t, db.DeleteBook(ctx, "b1"), models.ErrBookNotFound)
	_, err = db.GetBook(ctx, "b1")
	assert.ErrorIs(t, err, models.ErrBookNotFound)
}

func TestListBooks(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		b := book(fmt.Sprintf("b%d", i), fmt.Sprintf("isbn-%d", i), 1, base.Add(time.Duration(i)*time.Minute))
		if i < 2 {
			b.Genre = models.GenreScience
		}
		require.NoError(t, db.CreateBook(ctx, b))
	}

	books, err := db.ListBooks(ctx, models.BookQuery{Sort: models.SortDesc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "b3", books[0].ID)
	assert.Equal(t, "b2", books[1].ID)

	books, err = db.ListBooks(ctx, models.BookQuery{Genre: models.GenreScience, Sort: models.SortAsc, Limit: 10})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "b0", books[0].ID)
}

func TestBorrowFlow(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBook(ctx, book("b1", "isbn-1", 3, time.Now())))

	after, err := db.BorrowBook(ctx, borrow("r1", "b1", 3))
	require.NoError(t, err)
	assert.Equal(t, 0, after.Copies)
	assert.False(t, after.Available())

	_, err = db.BorrowBook(ctx, borrow("r2", "b1", 1))
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	_, err = db.BorrowBook(ctx, borrow("r3", "nope", 1))
	assert.ErrorIs(t, err, models.ErrBookNotFound)

	borrows, err := db.ListBorrows(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, borrows, 1)
	assert.Equal(t, "r1", borrows[0].ID)
}

func TestBorrowConcurrent(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBook(ctx, book("b1", "isbn-1", 4, time.Now())))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := db.BorrowBook(ctx, borrow(fmt.Sprintf("r%d", i), "b1", 1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, succeeded)
	got, err := db.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Copies)
}

func TestBorrowSummary(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.CreateBook(ctx, book(id, "isbn-"+id, 10, time.Now())))
	}
	for i, r := range []models.Borrow{
		borrow("r1", "a", 3),
		borrow("r2", "a", 2),
		borrow("r3", "b", 1),
		borrow("r4", "c", 6),
	} {
		_, err := db.BorrowBook(ctx, r)
		require.NoError(t, err, "borrow %d", i)
	}
	require.NoError(t, db.DeleteBook(ctx, "c"))

	summary, err := db.BorrowSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.BorrowSummary{
		{Book: models.BookRef{Title: "Title a", ISBN: "isbn-a"}, TotalQuantity: 5},
		{Book: models.BookRef{Title: "Title b", ISBN: "isbn-b"}, TotalQuantity: 1},
	}, summary)
}
