package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/internal/store"
	"github.com/user/listing-scraper/pkg/metrics"
	"github.com/user/listing-scraper/pkg/utils"
)

var (
	ErrNoSearchPairs = errors.New("at least one search term and one locality are required")
	ErrTaskNotFound  = errors.New("no search task for this term and locality")
)

// SearchManager defines the interface for submitting searches and running them one at a time.
type SearchManager interface {
	// Submit enqueues the cartesian product of comma-separated terms and localities.
	Submit(ctx context.Context, terms, localities string) ([]entity.SearchTask, error)
	// ProcessNext runs the oldest queued task. It returns a nil status when the queue is empty.
	ProcessNext(ctx context.Context) (*entity.SessionStatus, error)
	// Run processes tasks until ctx is cancelled. With drain set it returns once the queue is empty.
	Run(ctx context.Context, drain bool) error
	GetStatus(ctx context.Context, term, locality string) (*entity.SessionStatus, error)
	Pending(ctx context.Context) (int64, error)
}

// SearchManagerConfig configures the search manager.
type SearchManagerConfig struct {
	ResultsDir   string
	PollInterval time.Duration
}

type searchManagerUseCase struct {
	queueRepo   repository.QueueRepository
	statusRepo  repository.StatusRepository
	companyRepo repository.CompanyRepository
	traversal   Traversal
	metrics     *metrics.Metrics
	config      SearchManagerConfig
	logger      *zap.Logger
}

// NewSearchManager creates a new SearchManager use case. companyRepo may be nil.
func NewSearchManager(
	queueRepo repository.QueueRepository,
	statusRepo repository.StatusRepository,
	companyRepo repository.CompanyRepository,
	traversal Traversal,
	m *metrics.Metrics,
	config SearchManagerConfig,
	logger *zap.Logger,
) SearchManager {
	return &searchManagerUseCase{
		queueRepo:   queueRepo,
		statusRepo:  statusRepo,
		companyRepo: companyRepo,
		traversal:   traversal,
		metrics:     m,
		config:      config,
		logger:      logger,
	}
}

// TaskID identifies a (term, locality) pair. Submitting the same pair again reuses the ID.
func TaskID(term, locality string) string {
	return utils.HashKey(strings.ToLower(term), strings.ToLower(locality))[:16]
}

func (uc *searchManagerUseCase) Submit(ctx context.Context, terms, localities string) ([]entity.SearchTask, error) {
	termList := utils.SplitList(terms)
	localityList := utils.SplitList(localities)
	if len(termList) == 0 || len(localityList) == 0 {
		return nil, ErrNoSearchPairs
	}

	tasks := make([]entity.SearchTask, 0, len(termList)*len(localityList))
	for _, term := range termList {
		for _, locality := range localityList {
			task := entity.SearchTask{ID: TaskID(term, locality), Term: term, Locality: locality}
			// Saved before the push so a worker's running status is never overwritten.
			status := &entity.SessionStatus{
				TaskID:     task.ID,
				Term:       term,
				Locality:   locality,
				Status:     entity.StatusPending,
				OutputFile: utils.ResultFileName(uc.config.ResultsDir, term, locality),
				UpdatedAt:  time.Now(),
			}
			if err := uc.statusRepo.Save(ctx, status); err != nil {
				uc.logger.Warn("failed to save pending status", zap.String("task_id", task.ID), zap.Error(err))
			}
			if err := uc.queueRepo.Push(ctx, task); err != nil {
				return tasks, fmt.Errorf("failed to enqueue %s/%s: %w", term, locality, err)
			}
			tasks = append(tasks, task)
		}
	}

	uc.refreshQueueGauge(ctx)
	uc.logger.Info("search tasks submitted", zap.Int("tasks", len(tasks)))
	return tasks, nil
}

func (uc *searchManagerUseCase) ProcessNext(ctx context.Context) (*entity.SessionStatus, error) {
	task, err := uc.queueRepo.Pop(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrQueueEmpty) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop task from queue: %w", err)
	}
	uc.refreshQueueGauge(ctx)

	log := uc.logger.With(zap.String("task_id", task.ID), zap.String("term", task.Term), zap.String("locality", task.Locality))
	started := time.Now()
	status := &entity.SessionStatus{
		TaskID:     task.ID,
		Term:       task.Term,
		Locality:   task.Locality,
		Status:     entity.StatusRunning,
		OutputFile: utils.ResultFileName(uc.config.ResultsDir, task.Term, task.Locality),
		StartedAt:  &started,
	}
	uc.saveStatus(ctx, status)

	st, err := store.Open(status.OutputFile, log)
	if err != nil {
		log.Error("failed to open record store", zap.Error(err))
		uc.finish(ctx, status, entity.StatusFailed, err)
		return status, nil
	}

	result, err := uc.traversal.Search(ctx, task, NewRecordPipeline(st, uc.companyRepo, log))
	status.Stats = result.Stats
	if uc.companyRepo != nil {
		n, cerr := uc.companyRepo.CountBySearch(context.WithoutCancel(ctx), task.Term, task.Locality)
		if cerr != nil {
			log.Warn("failed to count mirrored records", zap.Error(cerr))
		}
		status.MirroredRecords = n
	}

	if result.Outcome == OutcomeCompleted {
		uc.finish(ctx, status, entity.StatusCompleted, nil)
	} else {
		uc.finish(ctx, status, entity.StatusFailed, result.Err)
	}

	if err != nil && ctx.Err() != nil {
		return status, err
	}
	return status, nil
}

func (uc *searchManagerUseCase) finish(ctx context.Context, status *entity.SessionStatus, state string, cause error) {
	now := time.Now()
	status.Status = state
	status.FinishedAt = &now
	if cause != nil {
		status.Error = cause.Error()
	}
	// Record the final state even when the run is being cancelled.
	uc.saveStatus(context.WithoutCancel(ctx), status)
}

func (uc *searchManagerUseCase) saveStatus(ctx context.Context, status *entity.SessionStatus) {
	status.UpdatedAt = time.Now()
	if err := uc.statusRepo.Save(ctx, status); err != nil {
		uc.logger.Error("failed to save session status", zap.String("task_id", status.TaskID), zap.Error(err))
	}
}

func (uc *searchManagerUseCase) Run(ctx context.Context, drain bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := uc.ProcessNext(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && drain:
			return err
		case err != nil:
			uc.logger.Error("failed to process task", zap.Error(err))
		case status != nil:
			continue
		case drain:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(uc.config.PollInterval):
		}
	}
}

func (uc *searchManagerUseCase) GetStatus(ctx context.Context, term, locality string) (*entity.SessionStatus, error) {
	term, locality = strings.TrimSpace(term), strings.TrimSpace(locality)
	status, err := uc.statusRepo.Get(ctx, TaskID(term, locality))
	if err != nil {
		if errors.Is(err, repository.ErrStatusNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return status, nil
}

func (uc *searchManagerUseCase) Pending(ctx context.Context) (int64, error) {
	return uc.queueRepo.Size(ctx)
}

func (uc *searchManagerUseCase) refreshQueueGauge(ctx context.Context) {
	size, err := uc.queueRepo.Size(ctx)
	if err != nil {
		uc.logger.Warn("failed to read queue size", zap.Error(err))
		return
	}
	uc.metrics.TasksInQueue.Set(float64(size))
}
