package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"httptrigger/internal/domain"
)

// sqlStore is the shared database/sql implementation behind both the
// sqlite and mysql backends; the two dialects differ only in DDL
// (schema.go) and in connection setup, not in query shape, so one type
// does the work.
type sqlStore struct {
	db      *sql.DB
	dialect Dialect
}

func newSQLStore(db *sql.DB, dialect Dialect) *sqlStore {
	return &sqlStore{db: db, dialect: dialect}
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) CreateJob(ctx context.Context, j domain.Job) (domain.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.RequestTimeout == 0 {
		j.RequestTimeout = int(domain.DefaultRequestTimeout / time.Millisecond)
	}
	if j.ExecutionMode == "" {
		j.ExecutionMode = domain.ExecutionSequential
	}
	if j.MaxConcurrent == 0 {
		j.MaxConcurrent = 1
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO cronjobs (id,name,url,method,headers,body,schedule,schedule_type,is_active,request_timeout,execution_mode,max_concurrent,current_running,execution_count,last_executed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,0,0,NULL,?,?)`,
		j.ID, j.Name, j.URL, string(j.Method), j.Headers, j.Body, j.Schedule, string(j.ScheduleType),
		boolParam(j.IsActive), j.RequestTimeout, string(j.ExecutionMode), j.MaxConcurrent, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

func (s *sqlStore) ListJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *sqlStore) ListActiveJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` WHERE is_active = ? ORDER BY created_at DESC`, boolParam(true))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *sqlStore) UpdateJob(ctx context.Context, j domain.Job) (domain.Job, error) {
	j.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
UPDATE cronjobs SET name=?,url=?,method=?,headers=?,body=?,schedule=?,schedule_type=?,is_active=?,request_timeout=?,execution_mode=?,max_concurrent=?,updated_at=?
WHERE id=?`,
		j.Name, j.URL, string(j.Method), j.Headers, j.Body, j.Schedule, string(j.ScheduleType),
		boolParam(j.IsActive), j.RequestTimeout, string(j.ExecutionMode), j.MaxConcurrent, j.UpdatedAt, j.ID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Job{}, ErrNotFound
	}
	return s.GetJob(ctx, j.ID)
}

func (s *sqlStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cronjobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	// execution_logs cascades via the FK; sqlite honors it only with
	// foreign_keys pragma on, so delete explicitly too for both dialects.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM execution_logs WHERE job_id = ?`, id)
	return nil
}

func (s *sqlStore) UpdateJobRuntime(ctx context.Context, id string, u domain.RuntimeUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if u.CurrentRunning != nil {
		sets = append(sets, "current_running = ?")
		args = append(args, *u.CurrentRunning)
	}
	if u.LastExecutedAt != nil {
		sets = append(sets, "last_executed_at = ?")
		args = append(args, *u.LastExecutedAt)
	}
	if u.ExecutionCount != nil {
		sets = append(sets, "execution_count = ?")
		args = append(args, *u.ExecutionCount)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE cronjobs SET %s WHERE id = ?`, strings.Join(sets, ", "))
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

const jobSelect = `SELECT id,name,url,method,headers,body,schedule,schedule_type,is_active,request_timeout,execution_mode,max_concurrent,current_running,execution_count,last_executed_at,created_at,updated_at FROM cronjobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var j domain.Job
	var method, scheduleType, executionMode string
	var isActive int
	var lastExecutedAt sql.NullTime
	err := row.Scan(&j.ID, &j.Name, &j.URL, &method, &j.Headers, &j.Body, &j.Schedule, &scheduleType,
		&isActive, &j.RequestTimeout, &executionMode, &j.MaxConcurrent, &j.CurrentRunning, &j.ExecutionCount,
		&lastExecutedAt, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Job{}, ErrNotFound
	}
	if err != nil {
		return domain.Job{}, err
	}
	j.Method = domain.Method(method)
	j.ScheduleType = domain.ScheduleType(scheduleType)
	j.ExecutionMode = domain.ExecutionMode(executionMode)
	j.IsActive = isActive != 0
	if lastExecutedAt.Valid {
		t := lastExecutedAt.Time
		j.LastExecutedAt = &t
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqlStore) InsertLog(ctx context.Context, l domain.ExecutionLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO execution_logs (id,job_id,executed_at,status,response_code,execution_time,response_body,error_message,triggered_manually,retry_count)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.JobID, l.ExecutedAt, string(l.Status), l.ResponseCode, l.ExecutionTime, l.ResponseBody,
		l.ErrorMessage, boolParam(l.TriggeredManually), l.RetryCount)
	return err
}

const logSelect = `SELECT id,job_id,executed_at,status,response_code,execution_time,response_body,error_message,triggered_manually,retry_count FROM execution_logs`

func buildLogFilter(f domain.LogFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.JobID != "" {
		clauses = append(clauses, "job_id = ?")
		args = append(args, f.JobID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.TriggeredManually != nil {
		clauses = append(clauses, "triggered_manually = ?")
		args = append(args, boolParam(*f.TriggeredManually))
	}
	if f.StartDate != nil {
		clauses = append(clauses, "executed_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		clauses = append(clauses, "executed_at <= ?")
		args = append(args, *f.EndDate)
	}
	if f.ResponseContains != "" {
		clauses = append(clauses, "LOWER(response_body) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.ResponseContains)+"%")
	}
	if f.JobNameContains != "" {
		clauses = append(clauses, "job_id IN (SELECT id FROM cronjobs WHERE LOWER(name) LIKE ?)")
		args = append(args, "%"+strings.ToLower(f.JobNameContains)+"%")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *sqlStore) ListLogs(ctx context.Context, f domain.LogFilter, p domain.Pagination) ([]domain.ExecutionLog, int, error) {
	total, err := s.CountLogs(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	where, args := buildLogFilter(f)
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	q := logSelect + where + " ORDER BY executed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, p.Offset())
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.ExecutionLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (s *sqlStore) CountLogs(ctx context.Context, f domain.LogFilter) (int, error) {
	where, args := buildLogFilter(f)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM execution_logs"+where, args...).Scan(&n)
	return n, err
}

func (s *sqlStore) DeleteLogs(ctx context.Context, f domain.LogFilter) (int64, error) {
	where, args := buildLogFilter(f)
	if where == "" {
		return 0, fmt.Errorf("refusing to delete all logs without a filter")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM execution_logs"+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LogStats aggregates per-job totals, success/failure counts, and
// min/avg/max execution time over every log matching f, in SQL, so the
// stats endpoint never depends on a paginated read.
func (s *sqlStore) LogStats(ctx context.Context, f domain.LogFilter) ([]domain.JobLogStats, error) {
	where, args := buildLogFilter(f)
	q := `SELECT job_id, COUNT(*),
	SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
	MIN(execution_time), AVG(execution_time), MAX(execution_time), SUM(execution_time)
	FROM execution_logs` + where + ` GROUP BY job_id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobLogStats
	for rows.Next() {
		var st domain.JobLogStats
		if err := rows.Scan(&st.JobID, &st.Total, &st.Success, &st.MinExecutionMS, &st.AvgExecutionMS, &st.MaxExecutionMS, &st.SumExecutionMS); err != nil {
			return nil, err
		}
		st.Failed = st.Total - st.Success
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanLog(row scanner) (domain.ExecutionLog, error) {
	var l domain.ExecutionLog
	var status string
	var responseCode sql.NullInt64
	var triggeredManually int
	err := row.Scan(&l.ID, &l.JobID, &l.ExecutedAt, &status, &responseCode, &l.ExecutionTime,
		&l.ResponseBody, &l.ErrorMessage, &triggeredManually, &l.RetryCount)
	if err != nil {
		return domain.ExecutionLog{}, err
	}
	l.Status = domain.LogStatus(status)
	l.TriggeredManually = triggeredManually != 0
	if responseCode.Valid {
		c := int(responseCode.Int64)
		l.ResponseCode = &c
	}
	return l, nil
}

// boolParam renders bool as the integer both sqlite and mysql accept
// for a TINYINT/INTEGER boolean column.
func boolParam(b bool) int {
	if b {
		return 1
	}
	return 0
}
