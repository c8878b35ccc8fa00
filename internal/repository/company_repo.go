package repository

import (
	"context"

	"github.com/user/listing-scraper/internal/entity"
)

// RecordWriter receives every record extracted during a search session.
type RecordWriter interface {
	// Write persists rec if it is valid and new. Errors are write failures only.
	Write(ctx context.Context, rec entity.CompanyRecord) (WriteResult, error)
}

// WriteResult reports what happened to a record handed to a RecordWriter.
type WriteResult int

const (
	Written WriteResult = iota
	Invalid
	Duplicate
)

func (r WriteResult) String() string {
	switch r {
	case Written:
		return "written"
	case Invalid:
		return "invalid"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// CompanyRepository defines the interface for mirroring written records to a database.
type CompanyRepository interface {
	// Save inserts the record unless one with the same identity already exists.
	Save(ctx context.Context, rec entity.CompanyRecord) error
	// CountBySearch returns how many records a (term, locality) search has stored.
	CountBySearch(ctx context.Context, term, locality string) (int64, error)
}
