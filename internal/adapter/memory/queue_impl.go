package memory

import (
	"context"
	"sync"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

// QueueRepoImpl is an in-process FIFO queue for runs without Redis.
type QueueRepoImpl struct {
	mu    sync.Mutex
	tasks []entity.SearchTask
}

func NewQueueRepo() *QueueRepoImpl {
	return &QueueRepoImpl{}
}

func (r *QueueRepoImpl) Push(_ context.Context, task entity.SearchTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *QueueRepoImpl) Pop(_ context.Context) (entity.SearchTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) == 0 {
		return entity.SearchTask{}, repository.ErrQueueEmpty
	}
	task := r.tasks[0]
	r.tasks = r.tasks[1:]
	return task, nil
}

func (r *QueueRepoImpl) Size(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tasks)), nil
}
