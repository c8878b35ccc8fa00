package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

const searchQueueKey = "scraper:queue"

// QueueRepoImpl implements repository.QueueRepository on a Redis list of JSON tasks.
type QueueRepoImpl struct {
	client *redis.Client
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client}
}

// Push adds a task to the left side of the list.
func (r *QueueRepoImpl) Push(ctx context.Context, task entity.SearchTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	return r.client.LPush(ctx, searchQueueKey, payload).Err()
}

// Pop removes a task from the right side of the list, so the oldest task comes out first.
func (r *QueueRepoImpl) Pop(ctx context.Context) (entity.SearchTask, error) {
	payload, err := r.client.RPop(ctx, searchQueueKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.SearchTask{}, repository.ErrQueueEmpty
		}
		return entity.SearchTask{}, err
	}

	var task entity.SearchTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return entity.SearchTask{}, fmt.Errorf("failed to decode task %q: %w", payload, err)
	}
	return task, nil
}

// Size returns the current number of items in the queue.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, searchQueueKey).Result()
}
