package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/adapter/memory"
	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/pkg/metrics"
	"github.com/user/listing-scraper/pkg/utils"
)

type memoryCompanies struct {
	mu    sync.Mutex
	saved []entity.CompanyRecord
}

func (m *memoryCompanies) Save(_ context.Context, rec entity.CompanyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memoryCompanies) CountBySearch(_ context.Context, term, locality string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.saved {
		if rec.SearchTerm == term && rec.Locality == locality {
			n++
		}
	}
	return n, nil
}

// stubTraversal returns a canned result without touching a browser.
type stubTraversal struct {
	mu    sync.Mutex
	tasks []entity.SearchTask
	fn    func(ctx context.Context, task entity.SearchTask, w repository.RecordWriter) (*SessionResult, error)
}

func (s *stubTraversal) Search(ctx context.Context, task entity.SearchTask, w repository.RecordWriter) (*SessionResult, error) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, task, w)
	}
	return &SessionResult{Outcome: OutcomeCompleted}, nil
}

type managerDeps struct {
	queue     *memory.QueueRepoImpl
	statuses  *memory.StatusRepoImpl
	companies *memoryCompanies
	metrics   *metrics.Metrics
	dir       string
}

func newTestManager(t *testing.T, traversal Traversal) (SearchManager, *managerDeps) {
	t.Helper()
	deps := &managerDeps{
		queue:     memory.NewQueueRepo(),
		statuses:  memory.NewStatusRepo(),
		companies: &memoryCompanies{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		dir:       filepath.Join(t.TempDir(), "results"),
	}
	m := NewSearchManager(
		deps.queue,
		deps.statuses,
		deps.companies,
		traversal,
		deps.metrics,
		SearchManagerConfig{ResultsDir: deps.dir, PollInterval: 10 * time.Millisecond},
		zap.NewNop(),
	)
	return m, deps
}

func TestSubmitCartesianProduct(t *testing.T) {
	ctx := context.Background()
	m, deps := newTestManager(t, &stubTraversal{})

	tasks, err := m.Submit(ctx, " fontaneros, electricistas ,", "Madrid, Getafe")
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	assert.Equal(t, entity.SearchTask{ID: TaskID("fontaneros", "Madrid"), Term: "fontaneros", Locality: "Madrid"}, tasks[0])
	assert.Equal(t, "Getafe", tasks[1].Locality)
	assert.Equal(t, "electricistas", tasks[2].Term)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, pending)
	assert.Equal(t, 4.0, testutil.ToFloat64(deps.metrics.TasksInQueue))

	status, err := m.GetStatus(ctx, "fontaneros ", " Madrid")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, status.Status)
	assert.Equal(t, utils.ResultFileName(deps.dir, "fontaneros", "Madrid"), status.OutputFile)
}

func TestSubmitRequiresBothLists(t *testing.T) {
	m, _ := newTestManager(t, &stubTraversal{})

	_, err := m.Submit(context.Background(), "fontaneros", " , ")
	assert.ErrorIs(t, err, ErrNoSearchPairs)
	_, err = m.Submit(context.Background(), "", "Madrid")
	assert.ErrorIs(t, err, ErrNoSearchPairs)
}

func TestGetStatusUnknown(t *testing.T) {
	m, _ := newTestManager(t, &stubTraversal{})
	_, err := m.GetStatus(context.Background(), "nada", "ninguna")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestProcessNextEmptyQueue(t *testing.T) {
	m, _ := newTestManager(t, &stubTraversal{})
	status, err := m.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestRunDrainsQueueAgainstSite(t *testing.T) {
	ctx := context.Background()
	site := (&siteFixture{consent: true, pages: [][]string{{"a", "b"}, {"c"}}}).start(t)
	engine, _ := newTestEngine(t, site, true)
	m, deps := newTestManager(t, engine)

	_, err := m.Submit(ctx, "fontaneros", "Madrid,Getafe")
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx, true))

	for _, locality := range []string{"Madrid", "Getafe"} {
		status, err := m.GetStatus(ctx, "fontaneros", locality)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, status.Status)
		assert.Equal(t, 3, status.Stats.RecordsWritten)
		assert.EqualValues(t, 3, status.MirroredRecords)
		assert.NotNil(t, status.FinishedAt)

		rows := csvRows(t, status.OutputFile)
		require.Len(t, rows, 4)
		assert.Equal(t, locality, rows[1][8])
	}
	assert.Len(t, deps.companies.saved, 6)
	assert.Equal(t, 0.0, testutil.ToFloat64(deps.metrics.TasksInQueue))
}

func TestProcessNextMalformedStoreFailsTask(t *testing.T) {
	ctx := context.Background()
	stub := &stubTraversal{}
	m, deps := newTestManager(t, stub)

	_, err := m.Submit(ctx, "fontaneros", "Madrid,Getafe")
	require.NoError(t, err)

	bad := utils.ResultFileName(deps.dir, "fontaneros", "Madrid")
	require.NoError(t, os.MkdirAll(deps.dir, 0o755))
	require.NoError(t, os.WriteFile(bad, []byte("Nombre,Teléfonos\nx,y\n"), 0o644))

	require.NoError(t, m.Run(ctx, true))

	status, err := m.GetStatus(ctx, "fontaneros", "Madrid")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "malformed")

	status, err = m.GetStatus(ctx, "fontaneros", "Getafe")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, status.Status)

	require.Len(t, stub.tasks, 1, "the broken task never reaches the browser")
	assert.Equal(t, "Getafe", stub.tasks[0].Locality)
}

func TestProcessNextAbortedSessionIsFailed(t *testing.T) {
	ctx := context.Background()
	stub := &stubTraversal{fn: func(context.Context, entity.SearchTask, repository.RecordWriter) (*SessionResult, error) {
		return &SessionResult{
			Outcome: OutcomeAborted,
			Err:     repository.ErrNavigationFailed,
			Stats:   entity.SessionStats{LinksVisited: 2, RecordsWritten: 1},
		}, nil
	}}
	m, _ := newTestManager(t, stub)

	_, err := m.Submit(ctx, "fontaneros", "Madrid")
	require.NoError(t, err)
	status, err := m.ProcessNext(ctx)
	require.NoError(t, err)

	assert.Equal(t, entity.StatusFailed, status.Status)
	assert.Equal(t, repository.ErrNavigationFailed.Error(), status.Error)
	assert.Equal(t, 1, status.Stats.RecordsWritten)
}

func TestRunStopsBetweenTasksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := &stubTraversal{}
	stub.fn = func(context.Context, entity.SearchTask, repository.RecordWriter) (*SessionResult, error) {
		cancel()
		return &SessionResult{Outcome: OutcomeCompleted}, nil
	}
	m, _ := newTestManager(t, stub)

	_, err := m.Submit(ctx, "a,b,c", "x")
	require.NoError(t, err)

	err = m.Run(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, stub.tasks, 1)

	pending, err := m.Pending(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)
}

func TestRunServeModePollsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := &stubTraversal{}
	m, _ := newTestManager(t, stub)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, false) }()

	_, err := m.Submit(context.Background(), "fontaneros", "Madrid")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		status, err := m.GetStatus(context.Background(), "fontaneros", "Madrid")
		return err == nil && status.Status == entity.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
