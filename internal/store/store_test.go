package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"httptrigger/internal/domain"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	st, err := NewSQLite(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleJob() domain.Job {
	return domain.Job{
		Name:         "ping",
		URL:          "https://example.com/ping",
		Method:       domain.MethodGET,
		Schedule:     "30s",
		ScheduleType: domain.ScheduleRepeat,
		IsActive:     true,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, domain.ExecutionSequential, created.ExecutionMode)
	require.Equal(t, 1, created.MaxConcurrent)

	fetched, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Name, fetched.Name)
	require.Equal(t, created.URL, fetched.URL)
}

func TestGetJobNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetJob(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveJobsExcludesInactive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	active := sampleJob()
	active.Name = "active-job"
	_, err := st.CreateJob(ctx, active)
	require.NoError(t, err)

	inactive := sampleJob()
	inactive.Name = "inactive-job"
	inactive.IsActive = false
	_, err = st.CreateJob(ctx, inactive)
	require.NoError(t, err)

	jobs, err := st.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "active-job", jobs[0].Name)
}

func TestUpdateJob(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)

	created.Name = "renamed"
	created.Schedule = "1m"
	updated, err := st.UpdateJob(ctx, created)
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)
	require.Equal(t, "1m", updated.Schedule)
}

func TestUpdateJobNotFound(t *testing.T) {
	st := newTestStore(t)
	j := sampleJob()
	j.ID = "missing"
	_, err := st.UpdateJob(context.Background(), j)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteJobCascadesLogs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)

	require.NoError(t, st.InsertLog(ctx, domain.ExecutionLog{
		JobID:  created.ID,
		Status: domain.LogSuccess,
	}))

	require.NoError(t, st.DeleteJob(ctx, created.ID))

	_, err = st.GetJob(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)

	logs, total, err := st.ListLogs(ctx, domain.LogFilter{JobID: created.ID}, domain.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, logs)
}

func TestDeleteJobNotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.DeleteJob(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateJobRuntime(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)

	running := 1
	count := int64(5)
	require.NoError(t, st.UpdateJobRuntime(ctx, created.ID, domain.RuntimeUpdate{
		CurrentRunning: &running,
		ExecutionCount: &count,
	}))

	fetched, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, fetched.CurrentRunning)
	require.Equal(t, int64(5), fetched.ExecutionCount)
}

func TestInsertAndListLogs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		status := domain.LogSuccess
		if i == 1 {
			status = domain.LogFailed
		}
		require.NoError(t, st.InsertLog(ctx, domain.ExecutionLog{
			JobID:  job.ID,
			Status: status,
		}))
	}

	logs, total, err := st.ListLogs(ctx, domain.LogFilter{JobID: job.ID}, domain.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, logs, 3)

	failedOnly, total, err := st.ListLogs(ctx, domain.LogFilter{JobID: job.ID, Status: domain.LogFailed}, domain.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, failedOnly, 1)
}

func TestCountAndDeleteLogs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)

	require.NoError(t, st.InsertLog(ctx, domain.ExecutionLog{JobID: job.ID, Status: domain.LogSuccess}))

	n, err := st.CountLogs(ctx, domain.LogFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	deleted, err := st.DeleteLogs(ctx, domain.LogFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	n, err = st.CountLogs(ctx, domain.LogFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLogStatsAggregatesPerJob(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, sampleJob())
	require.NoError(t, err)

	for _, l := range []domain.ExecutionLog{
		{JobID: job.ID, Status: domain.LogSuccess, ExecutionTime: 100},
		{JobID: job.ID, Status: domain.LogSuccess, ExecutionTime: 200},
		{JobID: job.ID, Status: domain.LogFailed, ExecutionTime: 600},
	} {
		require.NoError(t, st.InsertLog(ctx, l))
	}

	stats, err := st.LogStats(ctx, domain.LogFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, 3, stats[0].Total)
	require.Equal(t, 2, stats[0].Success)
	require.Equal(t, 1, stats[0].Failed)
	require.Equal(t, int64(100), stats[0].MinExecutionMS)
	require.Equal(t, int64(600), stats[0].MaxExecutionMS)
	require.Equal(t, int64(900), stats[0].SumExecutionMS)
	require.InDelta(t, 300.0, stats[0].AvgExecutionMS, 0.01)
}

func TestDeleteLogsRefusesUnfilteredWipe(t *testing.T) {
	st := newTestStore(t)
	_, err := st.DeleteLogs(context.Background(), domain.LogFilter{})
	require.Error(t, err)
}
