package entity

import "time"

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SearchTask is one (search term, locality) pair waiting to be scraped.
type SearchTask struct {
	ID       string `json:"id"`
	Term     string `json:"term"`
	Locality string `json:"locality"`
}

// SessionStats counts what happened during one search session.
type SessionStats struct {
	ListingPages     int `json:"listing_pages"`
	LinksVisited     int `json:"links_visited"`
	FailedLinks      int `json:"failed_links"`
	RecordsExtracted int `json:"records_extracted"`
	RecordsWritten   int `json:"records_written"`
	Duplicates       int `json:"duplicates"`
	Invalid          int `json:"invalid"`
	WriteErrors      int `json:"write_errors"`
}

// SessionStatus is the progress of a search task as seen from outside.
type SessionStatus struct {
	TaskID     string       `json:"task_id"`
	Term       string       `json:"term"`
	Locality   string       `json:"locality"`
	Status     string       `json:"status"` // "pending", "running", "completed", "failed"
	OutputFile string       `json:"output_file,omitempty"`
	Stats      SessionStats `json:"stats"`
	Error      string       `json:"error,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`

	// MirroredRecords is how many records of this search are in Postgres, when mirroring is on.
	MirroredRecords int64 `json:"mirrored_records,omitempty"`
}
