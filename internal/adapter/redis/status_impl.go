package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

const (
	statusKeyPrefix = "scraper:status:"
	statusExpiry    = 7 * 24 * time.Hour
)

// StatusRepoImpl implements repository.StatusRepository with one JSON value per task.
type StatusRepoImpl struct {
	client *redis.Client
}

// NewStatusRepo creates a new instance of StatusRepoImpl.
func NewStatusRepo(client *redis.Client) *StatusRepoImpl {
	return &StatusRepoImpl{client: client}
}

func (r *StatusRepoImpl) key(taskID string) string {
	return statusKeyPrefix + taskID
}

// Save overwrites the status of a task. Statuses expire a week after their last update.
func (r *StatusRepoImpl) Save(ctx context.Context, status *entity.SessionStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return r.client.Set(ctx, r.key(status.TaskID), payload, statusExpiry).Err()
}

func (r *StatusRepoImpl) Get(ctx context.Context, taskID string) (*entity.SessionStatus, error) {
	payload, err := r.client.Get(ctx, r.key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrStatusNotFound
		}
		return nil, err
	}

	var status entity.SessionStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status for %s: %w", taskID, err)
	}
	return &status, nil
}
