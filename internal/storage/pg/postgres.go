package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"library/internal/models"
)

const (
	tableBooks   = "books"
	tableBorrows = "borrows"

	colID          = "id"
	colTitle       = "title"
	colAuthor      = "author"
	colGenre       = "genre"
	colISBN        = "isbn"
	colDescription = "description"
	colCopies      = "copies"
	colBookID      = "book_id"
	colQuantity    = "quantity"
	colDueDate     = "due_date"
	colCreatedAt   = "created_at"
	colUpdatedAt   = "updated_at"

	aliasTotalQuantity = "total_quantity"

	constraintISBN    = "books_isbn_key"
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	dialectPostgres = "postgres"
)

const (
	defaultMaxConnections  = int32(8)
	defaultMinConnections  = int32(2)
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = time.Minute * 5
	defaultConnectTimeout  = time.Second * 5
)

// PostgresDB implements storage.Storage on PostgreSQL
type PostgresDB struct {
	pool    *pgxpool.Pool
	dialect goqu.DialectWrapper
	now     func() time.Time
}

type options struct {
	maxConns int32
}

// Option configures the connection pool
type Option func(*options) error

// WithMaxConns sets the maximum pool size
func WithMaxConns(n int32) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max connections must be positive, got %d", n)
		}
		o.maxConns = n
		return nil
	}
}

// NewPostgresDB creates a new PostgreSQL connection pool
func NewPostgresDB(ctx context.Context, dsn string, opts ...Option) (*PostgresDB, error) {
	o := options{maxConns: defaultMaxConnections}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = o.maxConns
	cfg.MinConns = min(defaultMinConnections, o.maxConns)
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	cfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresDB{
		pool:    pool,
		dialect: goqu.Dialect(dialectPostgres),
		now:     time.Now,
	}, nil
}

// Initialize applies the embedded schema migrations
func (db *PostgresDB) Initialize(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	defer sqlDB.Close()

	return MigrateUp(ctx, sqlDB)
}

func bookColumns() []any {
	return []any{
		goqu.Cast(goqu.C(colID), "TEXT").As(colID),
		goqu.C(colTitle),
		goqu.C(colAuthor),
		goqu.C(colGenre),
		goqu.C(colISBN),
		goqu.C(colDescription),
		goqu.C(colCopies),
		goqu.C(colCreatedAt),
		goqu.C(colUpdatedAt),
	}
}

func scanBook(row pgx.Row) (models.Book, error) {
	var book models.Book
	var genre string
	err := row.Scan(&book.ID, &book.Title, &book.Author, &genre, &book.ISBN,
		&book.Description, &book.Copies, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return models.Book{}, err
	}
	book.Genre = models.Genre(genre)
	return book, nil
}

// CreateBook inserts a new book
func (db *PostgresDB) CreateBook(ctx context.Context, book models.Book) error {
	id, err := uuid.Parse(book.ID)
	if err != nil {
		return fmt.Errorf("failed to create book: invalid id %q: %w", book.ID, err)
	}

	query, args, err := db.dialect.Insert(tableBooks).Rows(goqu.Record{
		colID:          id,
		colTitle:       book.Title,
		colAuthor:      book.Author,
		colGenre:       string(book.Genre),
		colISBN:        book.ISBN,
		colDescription: book.Description,
		colCopies:      book.Copies,
		colCreatedAt:   book.CreatedAt,
		colUpdatedAt:   book.UpdatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create book: %w", translateError(err))
	}
	return nil
}

// GetBook returns a book by id
func (db *PostgresDB) GetBook(ctx context.Context, id string) (models.Book, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.Book{}, models.ErrBookNotFound
	}

	query, args, err := db.dialect.From(tableBooks).
		Select(bookColumns()...).
		Where(goqu.C(colID).Eq(uid)).
		Prepared(true).ToSQL()
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to build select query: %w", err)
	}

	book, err := scanBook(db.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, models.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks returns books matching the query ordered by creation time
func (db *PostgresDB) ListBooks(ctx context.Context, query models.BookQuery) ([]models.Book, error) {
	order := []exp.OrderedExpression{goqu.C(colCreatedAt).Desc(), goqu.C(colID).Desc()}
	if query.Sort == models.SortAsc {
		order = []exp.OrderedExpression{goqu.C(colCreatedAt).Asc(), goqu.C(colID).Asc()}
	}

	stmt := db.dialect.From(tableBooks).Select(bookColumns()...).Order(order...)
	if query.Genre != "" {
		stmt = stmt.Where(goqu.C(colGenre).Eq(string(query.Genre)))
	}
	if query.Limit > 0 {
		stmt = stmt.Limit(uint(query.Limit))
	}

	sqlQuery, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := db.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := make([]models.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// UpdateBook applies a partial update in a single statement
func (db *PostgresDB) UpdateBook(ctx context.Context, id string, patch models.BookPatch) (models.Book, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.Book{}, models.ErrBookNotFound
	}
	if patch.Empty() {
		return db.GetBook(ctx, id)
	}

	record := goqu.Record{colUpdatedAt: db.now().UTC()}
	if patch.Title != nil {
		record[colTitle] = *patch.Title
	}
	if patch.Author != nil {
		record[colAuthor] = *patch.Author
	}
	if patch.Genre != nil {
		record[colGenre] = string(*patch.Genre)
	}
	if patch.ISBN != nil {
		record[colISBN] = *patch.ISBN
	}
	if patch.Description != nil {
		record[colDescription] = *patch.Description
	}
	if patch.Copies != nil {
		record[colCopies] = *patch.Copies
	}

	query, args, err := db.dialect.Update(tableBooks).
		Set(record).
		Where(goqu.C(colID).Eq(uid)).
		Returning(bookColumns()...).
		Prepared(true).ToSQL()
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to build update query: %w", err)
	}

	book, err := scanBook(db.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, models.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to update book: %w", translateError(err))
	}
	return book, nil
}

// DeleteBook removes a book. Its borrow records are kept.
func (db *PostgresDB) DeleteBook(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.ErrBookNotFound
	}

	query, args, err := db.dialect.Delete(tableBooks).
		Where(goqu.C(colID).Eq(uid)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrBookNotFound
	}
	return nil
}

// BorrowBook decrements stock with a conditional update and records the borrow in the same transaction
func (db *PostgresDB) BorrowBook(ctx context.Context, borrow models.Borrow) (models.Book, error) {
	bookID, err := uuid.Parse(borrow.BookID)
	if err != nil {
		return models.Book{}, models.ErrBookNotFound
	}
	borrowID, err := uuid.Parse(borrow.ID)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to borrow book: invalid borrow id %q: %w", borrow.ID, err)
	}

	decrement, decArgs, err := db.dialect.Update(tableBooks).
		Set(goqu.Record{
			colCopies:    goqu.L("? - ?", goqu.C(colCopies), borrow.Quantity),
			colUpdatedAt: db.now().UTC(),
		}).
		Where(
			goqu.C(colID).Eq(bookID),
			goqu.C(colCopies).Gte(borrow.Quantity),
		).
		Returning(bookColumns()...).
		Prepared(true).ToSQL()
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to build update query: %w", err)
	}

	insert, insArgs, err := db.dialect.Insert(tableBorrows).Rows(goqu.Record{
		colID:        borrowID,
		colBookID:    bookID,
		colQuantity:  borrow.Quantity,
		colDueDate:   borrow.DueDate,
		colCreatedAt: borrow.CreatedAt,
		colUpdatedAt: borrow.UpdatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	book, err := scanBook(tx.QueryRow(ctx, decrement, decArgs...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, db.explainRejectedBorrow(ctx, tx, bookID)
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to decrement copies: %w", translateError(err))
	}

	if _, err := tx.Exec(ctx, insert, insArgs...); err != nil {
		return models.Book{}, fmt.Errorf("failed to record borrow: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Book{}, fmt.Errorf("failed to commit borrow: %w", err)
	}
	return book, nil
}

// explainRejectedBorrow tells a missing book apart from one without enough stock
func (db *PostgresDB) explainRejectedBorrow(ctx context.Context, tx pgx.Tx, bookID uuid.UUID) error {
	query, args, err := db.dialect.From(tableBooks).
		Select(goqu.L("1")).
		Where(goqu.C(colID).Eq(bookID)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build select query: %w", err)
	}

	var one int
	err = tx.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrBookNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check book: %w", err)
	}
	return models.ErrInsufficientStock
}

// ListBorrows returns the borrows of a book, oldest first
func (db *PostgresDB) ListBorrows(ctx context.Context, bookID string) ([]models.Borrow, error) {
	uid, err := uuid.Parse(bookID)
	if err != nil {
		return []models.Borrow{}, nil
	}

	query, args, err := db.dialect.From(tableBorrows).
		Select(
			goqu.Cast(goqu.C(colID), "TEXT").As(colID),
			goqu.Cast(goqu.C(colBookID), "TEXT").As(colBookID),
			goqu.C(colQuantity),
			goqu.C(colDueDate),
			goqu.C(colCreatedAt),
			goqu.C(colUpdatedAt),
		).
		Where(goqu.C(colBookID).Eq(uid)).
		Order(goqu.C(colCreatedAt).Asc(), goqu.C(colID).Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrows: %w", err)
	}
	defer rows.Close()

	borrows := make([]models.Borrow, 0)
	for rows.Next() {
		var borrow models.Borrow
		if err := rows.Scan(&borrow.ID, &borrow.BookID, &borrow.Quantity, &borrow.DueDate,
			&borrow.CreatedAt, &borrow.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan borrow: %w", err)
		}
		borrows = append(borrows, borrow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list borrows: %w", err)
	}
	return borrows, nil
}

// BorrowSummary sums borrowed quantities per book, joined with the books that still exist
func (db *PostgresDB) BorrowSummary(ctx context.Context) ([]models.BorrowSummary, error) {
	query, args, err := db.dialect.From(goqu.T(tableBorrows).As("r")).
		InnerJoin(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		Select(
			goqu.I("b.title"),
			goqu.I("b.isbn"),
			goqu.SUM(goqu.I("r.quantity")).As(aliasTotalQuantity),
		).
		GroupBy(goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.isbn")).
		Order(goqu.I(aliasTotalQuantity).Desc(), goqu.I("b.isbn").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build summary query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow summary: %w", err)
	}
	defer rows.Close()

	summary := make([]models.BorrowSummary, 0)
	for rows.Next() {
		var s models.BorrowSummary
		var total int64
		if err := rows.Scan(&s.Book.Title, &s.Book.ISBN, &total); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.TotalQuantity = int(total)
		summary = append(summary, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get borrow summary: %w", err)
	}
	return summary, nil
}

// Close closes the connection pool
func (db *PostgresDB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// translateError maps constraint violations to domain errors
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintISBN:
		return models.ErrDuplicateISBN
	case pgErr.Code == pgCheckViolation:
		return fmt.Errorf("%w: %s", models.ErrInvariantViolation, pgErr.Message)
	}
	return err
}
