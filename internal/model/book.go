// Package model contains struct definitions shared across packages.
package model

import (
	"time"
)

// ProcessingStatus describes the ingestion lifecycle of an uploaded book.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is one of the four persisted status values.
// Anything else in the database is a data-integrity bug upstream.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Book is the processing-relevant projection of a book row. Catalog fields
// (pricing, cover, categories) live with the storefront and are not loaded
// here except where entitlement checks need them.
type Book struct {
	ID               int64            `json:"id"`
	Title            string           `json:"title"`
	EbookFileURL     string           `json:"ebookFileUrl,omitempty"`
	SourceFileName   string           `json:"sourceFileName,omitempty"`
	Status           ProcessingStatus `json:"processingStatus"`
	ErrorMessage     *string          `json:"errorMessage,omitempty"`
	WordCount        int              `json:"wordCount"`
	ReadingTimeMins  int              `json:"estimatedReadingTime"`
	Pages            int              `json:"pages"`
	ChapterCount     int              `json:"chapterCount"`
	Metadata         BookMetadata     `json:"metadata"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// BookMetadata holds the bibliographic fields extracted from an archive
// manifest. All fields are optional; absence is not an error.
type BookMetadata struct {
	Title       string `json:"title,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Description string `json:"description,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Language    string `json:"language,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
}

// Chapter is one extracted content document. Order is a contiguous 1-based
// sequence matching the archive's enumeration order.
type Chapter struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	Order           int    `json:"order"`
	WordCount       int    `json:"wordCount"`
	ReadingTimeMins int    `json:"readingTimeMinutes"`
}

// ParseResult is the output of one parse operation: metadata plus ordered
// chapters. Zero chapters is a valid, if low-information, success.
type ParseResult struct {
	Metadata BookMetadata
	Chapters []Chapter
}

const (
	// WordsPerMinute is the average reading speed used for time estimates.
	WordsPerMinute = 200
	// WordsPerPage approximates print pagination for the page count.
	WordsPerPage = 250
)

// ReadingTimeMinutes estimates reading time for a word count, rounding up.
func ReadingTimeMinutes(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// PageCount approximates pages for a word count, rounding up.
func PageCount(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerPage - 1) / WordsPerPage
}

// AccessLogEntry records one secure-file request outcome.
type AccessLogEntry struct {
	ID         string    `json:"id"`
	ReaderID   string    `json:"readerId"`
	BookID     int64     `json:"bookId"`
	FilePath   string    `json:"filePath"`
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason"`
	AccessedAt time.Time `json:"accessedAt"`
}
