package repository

import (
	"context"

	"github.com/user/listing-scraper/internal/entity"
)

// FailedLinkRepository defines the interface for detail links that failed to load.
type FailedLinkRepository interface {
	// SaveOrUpdate creates or updates a record for a failed link.
	SaveOrUpdate(ctx context.Context, link *entity.FailedLink) error
	// Delete removes a failed link record, typically after a later successful visit.
	Delete(ctx context.Context, url string) error
}
