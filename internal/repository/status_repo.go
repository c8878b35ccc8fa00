package repository

import (
	"context"
	"errors"

	"github.com/user/listing-scraper/internal/entity"
)

var ErrStatusNotFound = errors.New("session status not found")

// StatusRepository stores the latest status of each search task, keyed by task ID.
type StatusRepository interface {
	Save(ctx context.Context, status *entity.SessionStatus) error
	// Get returns ErrStatusNotFound for unknown IDs.
	Get(ctx context.Context, taskID string) (*entity.SessionStatus, error)
}
