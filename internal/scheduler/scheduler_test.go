package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"httptrigger/internal/apperr"
	"httptrigger/internal/domain"
	"httptrigger/internal/store"
)

// fakeStore is an in-memory store.Store used to exercise the registry
// and dispatch logic without a real database.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
	logs []domain.ExecutionLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]domain.Job)}
}

func (f *fakeStore) CreateJob(ctx context.Context, j domain.Job) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, store.ErrNotFound
	}
	return j, nil
}

func (f *fakeStore) ListJobs(ctx context.Context) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeStore) ListActiveJobs(ctx context.Context) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Job
	for _, j := range f.jobs {
		if j.IsActive {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateJob(ctx context.Context, j domain.Job) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[j.ID]; !ok {
		return domain.Job{}, store.ErrNotFound
	}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeStore) DeleteJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) UpdateJobRuntime(ctx context.Context, id string, u domain.RuntimeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if u.CurrentRunning != nil {
		j.CurrentRunning = *u.CurrentRunning
	}
	if u.LastExecutedAt != nil {
		j.LastExecutedAt = u.LastExecutedAt
	}
	if u.ExecutionCount != nil {
		j.ExecutionCount = *u.ExecutionCount
	}
	f.jobs[id] = j
	return nil
}

func (f *fakeStore) InsertLog(ctx context.Context, l domain.ExecutionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	return nil
}

func (f *fakeStore) ListLogs(ctx context.Context, filt domain.LogFilter, p domain.Pagination) ([]domain.ExecutionLog, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) CountLogs(ctx context.Context, filt domain.LogFilter) (int, error) {
	return 0, nil
}

func (f *fakeStore) DeleteLogs(ctx context.Context, filt domain.LogFilter) (int64, error) {
	return 0, nil
}

func (f *fakeStore) LogStats(ctx context.Context, filt domain.LogFilter) ([]domain.JobLogStats, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

func testJob(id, url string) domain.Job {
	return domain.Job{
		ID:           id,
		Name:         "job-" + id,
		URL:          url,
		Method:       domain.MethodGET,
		Schedule:     "5s",
		ScheduleType: domain.ScheduleRepeat,
		IsActive:     true,
	}
}

func TestRegisterAndJobStatus(t *testing.T) {
	st := newFakeStore()
	c := New(st)

	job := testJob("j1", "http://example.invalid")
	require.NoError(t, c.Register(job))

	status, _, nextRun, running, ok := c.JobStatus("j1")
	require.True(t, ok)
	require.Equal(t, StatusIdle, status)
	require.Zero(t, running)
	require.True(t, nextRun.After(time.Now()))
}

func TestRegisterInvalidScheduleFails(t *testing.T) {
	st := newFakeStore()
	c := New(st)

	job := testJob("j1", "http://example.invalid")
	job.Schedule = "not-a-schedule"
	require.Error(t, c.Register(job))
}

func TestRegisterInactiveJobIsNoop(t *testing.T) {
	st := newFakeStore()
	c := New(st)

	job := testJob("j1", "http://example.invalid")
	job.IsActive = false
	require.NoError(t, c.Register(job))

	_, _, _, _, ok := c.JobStatus("j1")
	require.False(t, ok)
}

func TestRemoveClearsRegistryEntry(t *testing.T) {
	st := newFakeStore()
	c := New(st)

	job := testJob("j1", "http://example.invalid")
	require.NoError(t, c.Register(job))
	c.Remove("j1")

	_, _, _, _, ok := c.JobStatus("j1")
	require.False(t, ok)
}

func TestExecuteManuallyNotRegistered(t *testing.T) {
	st := newFakeStore()
	c := New(st)

	_, err := c.ExecuteManually(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.NotFound))
}

func TestExecuteManuallySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newFakeStore()
	job := testJob("j1", srv.URL)
	_, err := st.CreateJob(context.Background(), job)
	require.NoError(t, err)

	c := New(st)
	require.NoError(t, c.Register(job))

	entry, err := c.ExecuteManually(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, domain.LogSuccess, entry.Status)
	require.True(t, entry.TriggeredManually)
	require.Equal(t, 1, st.logCount())

	status, _, _, running, ok := c.JobStatus("j1")
	require.True(t, ok)
	require.Equal(t, StatusIdle, status)
	require.Zero(t, running)
}

func TestExecuteManuallyGatedWhenAlreadyRunning(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newFakeStore()
	job := testJob("j1", srv.URL)
	job.RequestTimeout = 5000
	_, err := st.CreateJob(context.Background(), job)
	require.NoError(t, err)

	c := New(st)
	require.NoError(t, c.Register(job))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ExecuteManually(context.Background(), "j1")
	}()

	require.Eventually(t, func() bool { return c.IsJobRunning("j1") }, time.Second, 5*time.Millisecond)

	_, err = c.ExecuteManually(context.Background(), "j1")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.AlreadyRunning))

	close(block)
	<-done
}

func TestExecuteManuallyInactiveJob(t *testing.T) {
	st := newFakeStore()
	job := testJob("j1", "http://example.invalid")
	job.IsActive = false
	_, err := st.CreateJob(context.Background(), job)
	require.NoError(t, err)

	c := New(st)
	c.mu.Lock()
	c.jobs["j1"] = &jobState{job: job, status: StatusIdle}
	c.mu.Unlock()

	_, err = c.ExecuteManually(context.Background(), "j1")
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.Inactive))

	_, _, _, _, ok := c.JobStatus("j1")
	require.False(t, ok)
}

func TestShutdownStopsTimers(t *testing.T) {
	st := newFakeStore()
	c := New(st)

	job := testJob("j1", "http://example.invalid")
	require.NoError(t, c.Register(job))
	c.Shutdown()

	require.NoError(t, c.Register(testJob("j2", "http://example.invalid")))
	_, _, _, _, ok := c.JobStatus("j2")
	require.False(t, ok, "Register after Shutdown must not install a new registry entry")
}
