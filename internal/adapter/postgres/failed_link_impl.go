package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/listing-scraper/internal/entity"
)

// FailedLinkRepoImpl provides a concrete implementation for the FailedLinkRepository interface using PostgreSQL.
type FailedLinkRepoImpl struct {
	db *pgxpool.Pool
}

// NewFailedLinkRepo creates a new instance of FailedLinkRepoImpl.
func NewFailedLinkRepo(db *pgxpool.Pool) *FailedLinkRepoImpl {
	return &FailedLinkRepoImpl{db: db}
}

// SaveOrUpdate creates or updates a record for a failed link.
// It increments the retry_count on conflict.
func (r *FailedLinkRepoImpl) SaveOrUpdate(ctx context.Context, link *entity.FailedLink) error {
	query := `
		INSERT INTO failed_links (url, search_term, locality, failure_reason, last_attempt_timestamp, retry_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (url) DO UPDATE SET
			search_term = EXCLUDED.search_term,
			locality = EXCLUDED.locality,
			failure_reason = EXCLUDED.failure_reason,
			last_attempt_timestamp = EXCLUDED.last_attempt_timestamp,
			retry_count = failed_links.retry_count + 1;
	`
	_, err := r.db.Exec(ctx, query,
		link.URL,
		link.SearchTerm,
		link.Locality,
		link.FailureReason,
		link.LastAttemptTimestamp,
	)
	return err
}

// Delete removes a failed link record, typically after a later successful visit.
func (r *FailedLinkRepoImpl) Delete(ctx context.Context, url string) error {
	query := `DELETE FROM failed_links WHERE url = $1;`
	_, err := r.db.Exec(ctx, query, url)
	return err
}
