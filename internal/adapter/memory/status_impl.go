package memory

import (
	"context"
	"sync"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

// StatusRepoImpl keeps session statuses in a map. Saved values are copied.
type StatusRepoImpl struct {
	mu       sync.RWMutex
	statuses map[string]entity.SessionStatus
}

func NewStatusRepo() *StatusRepoImpl {
	return &StatusRepoImpl{statuses: make(map[string]entity.SessionStatus)}
}

func (r *StatusRepoImpl) Save(_ context.Context, status *entity.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status.TaskID] = *status
	return nil
}

func (r *StatusRepoImpl) Get(_ context.Context, taskID string) (*entity.SessionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[taskID]
	if !ok {
		return nil, repository.ErrStatusNotFound
	}
	return &status, nil
}
