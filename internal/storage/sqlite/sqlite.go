package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"library/internal/models"
)

// Database implements storage.Storage on a SQLite file
type Database struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatabase opens (or creates) the SQLite database at dbPath
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Immediate transactions take the write lock up front, so a borrow's
	// check and decrement can never interleave with another writer.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return &Database{db: db, now: time.Now}, nil
}

// Initialize applies schema migrations
func (d *Database) Initialize(ctx context.Context) error {
	return applyMigrations(ctx, d.db)
}

// Close closes the DB
func (d *Database) Close() error {
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(ctx context.Context, db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            genre TEXT NOT NULL,
            isbn TEXT NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            copies INTEGER NOT NULL CHECK (copies >= 0),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS books_created_at_idx ON books(created_at);`,
		// No foreign key: borrow history outlives a deleted book.
		`CREATE TABLE IF NOT EXISTS borrows (
            id TEXT PRIMARY KEY,
            book_id TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity >= 1),
            due_date DATETIME NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS borrows_book_id_idx ON borrows(book_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

const bookColumns = `id,title,author,genre,isbn,description,copies,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (models.Book, error) {
	var b models.Book
	var genre string
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &genre, &b.ISBN, &b.Description,
		&b.Copies, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return models.Book{}, err
	}
	b.Genre = models.Genre(genre)
	return b, nil
}

// CreateBook inserts a new book
func (d *Database) CreateBook(ctx context.Context, b models.Book) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO books(`+bookColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Title, b.Author, string(b.Genre), b.ISBN, b.Description, b.Copies,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create book: %w", translateError(err))
	}
	return nil
}

// GetBook returns a book by id
func (d *Database) GetBook(ctx context.Context, id string) (models.Book, error) {
	b, err := scanBook(d.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Book{}, models.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return b, nil
}

// ListBooks returns books matching the query ordered by creation time
func (d *Database) ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`SELECT ` + bookColumns + ` FROM books`)
	if query.Genre != "" {
		sb.WriteString(` WHERE genre=?`)
		args = append(args, string(query.Genre))
	}
	if query.Sort == models.SortAsc {
		sb.WriteString(` ORDER BY created_at ASC, id ASC`)
	} else {
		sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	}
	if query.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, query.Limit)
	}

	rows, err := d.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := make([]models.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBook applies a partial update in a single statement
func (d *Database) UpdateBook(ctx context.Context, id string, patch models.BookPatch) (models.Book, error) {
	if patch.Empty() {
		return d.GetBook(ctx, id)
	}

	sets := []string{"updated_at=?"}
	args := []any{d.now().UTC()}
	add := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Author != nil {
		add("author", *patch.Author)
	}
	if patch.Genre != nil {
		add("genre", string(*patch.Genre))
	}
	if patch.ISBN != nil {
		add("isbn", *patch.ISBN)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Copies != nil {
		add("copies", *patch.Copies)
	}
	args = append(args, id)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Book{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE books SET `+strings.Join(sets, ",")+` WHERE id=?`, args...)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to update book: %w", translateError(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Book{}, err
	} else if n == 0 {
		return models.Book{}, models.ErrBookNotFound
	}

	b, err := scanBook(tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to reload book: %w", err)
	}
	return b, tx.Commit()
}

// DeleteBook removes a book. Its borrow records are kept.
func (d *Database) DeleteBook(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrBookNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Borrows
// ---------------------------------------------------------------------------

// BorrowBook records the borrow and decrements stock in one transaction.
func (d *Database) BorrowBook(ctx context.Context, borrow models.Borrow) (models.Book, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Book{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET copies=copies-?, updated_at=? WHERE id=? AND copies>=?`,
		borrow.Quantity, d.now().UTC(), borrow.BookID, borrow.Quantity)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to decrement copies: %w", translateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Book{}, err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM books WHERE id=?)`, borrow.BookID).Scan(&exists); err != nil {
			return models.Book{}, fmt.Errorf("failed to check book: %w", err)
		}
		if !exists {
			return models.Book{}, models.ErrBookNotFound
		}
		return models.Book{}, models.ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO borrows(id,book_id,quantity,due_date,created_at,updated_at) VALUES(?,?,?,?,?,?)`,
		borrow.ID, borrow.BookID, borrow.Quantity, borrow.DueDate.UTC(),
		borrow.CreatedAt.UTC(), borrow.UpdatedAt.UTC()); err != nil {
		return models.Book{}, fmt.Errorf("failed to record borrow: %w", err)
	}

	b, err := scanBook(tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, borrow.BookID))
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to reload book: %w", err)
	}
	return b, tx.Commit()
}

// ListBorrows returns the borrows of a book, oldest first
func (d *Database) ListBorrows(ctx context.Context, bookID string) ([]models.Borrow, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id,book_id,quantity,due_date,created_at,updated_at FROM borrows WHERE book_id=? ORDER BY created_at ASC, id ASC`,
		bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrows: %w", err)
	}
	defer rows.Close()

	borrows := make([]models.Borrow, 0)
	for rows.Next() {
		var r models.Borrow
		if err := rows.Scan(&r.ID, &r.BookID, &r.Quantity, &r.DueDate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan borrow: %w", err)
		}
		borrows = append(borrows, r)
	}
	return borrows, rows.Err()
}

// BorrowSummary sums borrowed quantities per book that still exists
func (d *Database) BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT b.title, b.isbn, SUM(r.quantity) AS total_quantity
        FROM borrows r JOIN books b ON b.id = r.book_id
        GROUP BY b.id, b.title, b.isbn
        ORDER BY total_quantity DESC, b.isbn ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow summary: %w", err)
	}
	defer rows.Close()

	summary := make([]models.BorrowSummary, 0)
	for rows.Next() {
		var s models.BorrowSummary
		if err := rows.Scan(&s.Book.Title, &s.Book.ISBN, &s.TotalQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summary = append(summary, s)
	}
	return summary, rows.Err()
}

// translateError maps constraint violations to domain errors
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return models.ErrDuplicateISBN
	case sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %s", models.ErrInvariantViolation, sqliteErr.Error())
	}
	return err
}
