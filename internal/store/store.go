// Package store is the single writer of persisted Job and ExecutionLog
// fields. It hides SQL-dialect differences (sqlite vs. mysql) behind
// one Store interface so the engine only ever sees domain types.
package store

import (
	"context"
	"database/sql"
	"errors"

	"httptrigger/internal/domain"
)

var ErrNotFound = errors.New("store: not found")

// Store is the contract the Scheduler Core, Retention Sweeper, and the
// API layer depend on.
type Store interface {
	CreateJob(ctx context.Context, j domain.Job) (domain.Job, error)
	GetJob(ctx context.Context, id string) (domain.Job, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	ListActiveJobs(ctx context.Context) ([]domain.Job, error)
	UpdateJob(ctx context.Context, j domain.Job) (domain.Job, error)
	DeleteJob(ctx context.Context, id string) error
	UpdateJobRuntime(ctx context.Context, id string, u domain.RuntimeUpdate) error

	InsertLog(ctx context.Context, l domain.ExecutionLog) error
	ListLogs(ctx context.Context, f domain.LogFilter, p domain.Pagination) ([]domain.ExecutionLog, int, error)
	CountLogs(ctx context.Context, f domain.LogFilter) (int, error)
	DeleteLogs(ctx context.Context, f domain.LogFilter) (int64, error)
	LogStats(ctx context.Context, f domain.LogFilter) ([]domain.JobLogStats, error)

	Close() error
}

// DB is a subset of the *sql.DB method set. sqlStore holds a concrete
// *sql.DB, so nothing in this package accepts a DB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
