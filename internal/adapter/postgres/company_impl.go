package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/pkg/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS companies (
	identity_hash TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	services      TEXT NOT NULL DEFAULT '',
	phones        TEXT NOT NULL,
	address       TEXT NOT NULL,
	website       TEXT NOT NULL DEFAULT '',
	hours         TEXT NOT NULL DEFAULT '',
	search_term   TEXT NOT NULL,
	locality      TEXT NOT NULL,
	emails        TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	scraped_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS companies_search_idx ON companies (search_term, locality);

CREATE TABLE IF NOT EXISTS failed_links (
	id                     BIGSERIAL PRIMARY KEY,
	url                    TEXT NOT NULL UNIQUE,
	search_term            TEXT NOT NULL,
	locality               TEXT NOT NULL,
	failure_reason         TEXT NOT NULL,
	last_attempt_timestamp TIMESTAMPTZ NOT NULL,
	retry_count            INT NOT NULL DEFAULT 1
);
`

// EnsureSchema creates the tables used by the Postgres repositories.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CompanyRepoImpl mirrors written records into the companies table.
type CompanyRepoImpl struct {
	db *pgxpool.Pool
}

// NewCompanyRepo creates a new instance of CompanyRepoImpl.
func NewCompanyRepo(db *pgxpool.Pool) *CompanyRepoImpl {
	return &CompanyRepoImpl{db: db}
}

// IdentityHash is the primary key of a record: the hash of its persisted columns.
func IdentityHash(rec entity.CompanyRecord) string {
	return utils.HashKey(rec.Values()...)
}

// Save inserts the record. A record whose identity is already stored is left untouched.
func (r *CompanyRepoImpl) Save(ctx context.Context, rec entity.CompanyRecord) error {
	query := `
		INSERT INTO companies (identity_hash, name, description, services, phones, address, website, hours, search_term, locality, emails, source_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (identity_hash) DO NOTHING;
	`
	_, err := r.db.Exec(ctx, query,
		IdentityHash(rec),
		rec.Name,
		rec.Description,
		rec.Services,
		rec.Phones,
		rec.Address,
		rec.Website,
		rec.Hours,
		rec.SearchTerm,
		rec.Locality,
		rec.Emails,
		rec.SourceURL,
	)
	return err
}

// CountBySearch returns how many records a (term, locality) search has stored.
func (r *CompanyRepoImpl) CountBySearch(ctx context.Context, term, locality string) (int64, error) {
	query := `SELECT COUNT(*) FROM companies WHERE search_term = $1 AND locality = $2;`
	var n int64
	if err := r.db.QueryRow(ctx, query, term, locality).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
