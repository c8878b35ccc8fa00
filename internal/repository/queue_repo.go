package repository

import (
	"context"
	"errors"

	"github.com/user/listing-scraper/internal/entity"
)

// ErrQueueEmpty is returned by Pop when there is nothing to process.
var ErrQueueEmpty = errors.New("queue is empty")

// QueueRepository defines the interface for a FIFO queue of search tasks.
type QueueRepository interface {
	// Push adds a task to the end of the queue.
	Push(ctx context.Context, task entity.SearchTask) error
	// Pop removes and returns the task at the front of the queue, or ErrQueueEmpty.
	Pop(ctx context.Context) (entity.SearchTask, error)
	// Size returns the current number of items in the queue.
	Size(ctx context.Context) (int64, error)
}
