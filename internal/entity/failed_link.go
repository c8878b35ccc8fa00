package entity

import "time"

// FailedLink mirrors the `failed_links` PostgreSQL table schema.
type FailedLink struct {
	ID                   int64
	URL                  string
	SearchTerm           string
	Locality             string
	FailureReason        string
	LastAttemptTimestamp time.Time
	RetryCount           int
}
