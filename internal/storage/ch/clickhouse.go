package ch

import (
	"context"
	"crypto/tls"
	"fmt"

	"library/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Journal stores inventory changes in an append-only ClickHouse table
type Journal struct {
	conn clickhouse.Conn
}

// NewJournal creates a new ClickHouse connection for the inventory journal
func NewJournal(host string, port int, database, user, password string, useTLS bool) (*Journal, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Journal{conn: conn}, nil
}

// Initialize creates the journal table if it does not exist
func (j *Journal) Initialize(ctx context.Context) error {
	err := j.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inventory_journal (
			at DateTime64(3, 'UTC'),
			action LowCardinality(String),
			book_id String,
			isbn String,
			quantity Int32,
			copies_after Int32
		) ENGINE = MergeTree()
		ORDER BY (at, book_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

// Record appends an inventory change
func (j *Journal) Record(ctx context.Context, entry models.JournalEntry) error {
	err := j.conn.Exec(ctx, `INSERT INTO inventory_journal (at, action, book_id, isbn, quantity, copies_after) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.At.UTC(), string(entry.Action), entry.BookID, entry.ISBN, int32(entry.Quantity), int32(entry.CopiesAfter))
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Recent returns the last N entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	rows, err := j.conn.Query(ctx, `SELECT at, action, book_id, isbn, quantity, copies_after FROM inventory_journal ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.JournalEntry, 0)
	for rows.Next() {
		var entry models.JournalEntry
		var action string
		var quantity, copiesAfter int32
		if err := rows.Scan(&entry.At, &action, &entry.BookID, &entry.ISBN, &quantity, &copiesAfter); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Action = models.JournalAction(action)
		entry.Quantity = int(quantity)
		entry.CopiesAfter = int(copiesAfter)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}
