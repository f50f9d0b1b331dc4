package models

import (
	"encoding/json"
	"time"
)

// Genre is the catalog category of a book
type Genre string

const (
	GenreFiction    Genre = "FICTION"
	GenreNonFiction Genre = "NON_FICTION"
	GenreScience    Genre = "SCIENCE"
	GenreHistory    Genre = "HISTORY"
	GenreBiography  Genre = "BIOGRAPHY"
	GenreFantasy    Genre = "FANTASY"
)

// Genres lists every accepted genre in declaration order
var Genres = []Genre{
	GenreFiction,
	GenreNonFiction,
	GenreScience,
	GenreHistory,
	GenreBiography,
	GenreFantasy,
}

// Valid reports whether g is one of the accepted genres
func (g Genre) Valid() bool {
	for _, known := range Genres {
		if g == known {
			return true
		}
	}
	return false
}

// Book represents a catalog entry with its stock count.
// Availability is not stored; it is derived from Copies.
type Book struct {
	ID          string
	Title       string
	Author      string
	Genre       Genre
	ISBN        string
	Description string
	Copies      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available reports whether at least one copy is in stock
func (b Book) Available() bool {
	return b.Copies > 0
}

type bookJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Genre       Genre     `json:"genre"`
	ISBN        string    `json:"isbn"`
	Description string    `json:"description"`
	Copies      int       `json:"copies"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MarshalJSON renders the book with its derived availability flag
func (b Book) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookJSON{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		ISBN:        b.ISBN,
		Description: b.Description,
		Copies:      b.Copies,
		Available:   b.Available(),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	})
}

// BookInput carries the caller-supplied fields of a new book
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       Genre  `json:"genre"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Copies      *int   `json:"copies"`
	// Available is accepted for compatibility and ignored.
	Available *bool `json:"available,omitempty"`
}

// BookPatch carries a partial update; nil fields are left untouched
type BookPatch struct {
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	Genre       *Genre  `json:"genre,omitempty"`
	ISBN        *string `json:"isbn,omitempty"`
	Description *string `json:"description,omitempty"`
	Copies      *int    `json:"copies,omitempty"`
	// Available is accepted for compatibility and ignored.
	Available *bool `json:"available,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Genre == nil &&
		p.ISBN == nil && p.Description == nil && p.Copies == nil
}

// Apply returns a copy of b with the patch fields written over it
func (p BookPatch) Apply(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Genre != nil {
		b.Genre = *p.Genre
	}
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Copies != nil {
		b.Copies = *p.Copies
	}
	return b
}

// SortOrder orders book listings by creation time
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// BookQuery filters and bounds a book listing
type BookQuery struct {
	Genre Genre // empty means any genre
	Sort  SortOrder
	Limit int
}

// Borrow is an immutable record of copies checked out until a due date
type Borrow struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book"`
	Quantity  int       `json:"quantity"`
	DueDate   time.Time `json:"dueDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookRef is the identity subset of a book shown in summaries
type BookRef struct {
	Title string `json:"title"`
	ISBN  string `json:"isbn"`
}

// BorrowSummary is the total quantity ever borrowed for one book
type BorrowSummary struct {
	Book          BookRef `json:"book"`
	TotalQuantity int     `json:"totalQuantity"`
}

// JournalAction names an inventory change
type JournalAction string

const (
	ActionBookCreated  JournalAction = "book.created"
	ActionBookUpdated  JournalAction = "book.updated"
	ActionBookDeleted  JournalAction = "book.deleted"
	ActionBookBorrowed JournalAction = "book.borrowed"
)

// JournalEntry represents one inventory change in the audit journal
type JournalEntry struct {
	At          time.Time     `json:"at"`
	Action      JournalAction `json:"action"`
	BookID      string        `json:"bookId"`
	ISBN        string        `json:"isbn"`
	Quantity    int           `json:"quantity"`
	CopiesAfter int           `json:"copiesAfter"`
}
