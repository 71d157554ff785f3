// Package domain holds the types shared by every core component: the
// scheduled Job, its ExecutionLog trail, and the small value types that
// describe how a job is gated and dispatched.
package domain

import "time"

type Method string

const (
	MethodGET  Method = "GET"
	MethodPOST Method = "POST"
)

type ScheduleType string

const (
	ScheduleCron   ScheduleType = "cron"
	ScheduleRepeat ScheduleType = "repeat"
)

type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionParallel   ExecutionMode = "parallel"
)

type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
)

// Job is a persisted recipe for one HTTP request plus a schedule.
type Job struct {
	ID             string
	Name           string
	URL            string
	Method         Method
	Headers        string // JSON object literal; "" or invalid treated as empty map
	Body           string
	Schedule       string
	ScheduleType   ScheduleType
	IsActive       bool
	RequestTimeout int // milliseconds; 0 means "use default"
	ExecutionMode  ExecutionMode
	MaxConcurrent  int
	CurrentRunning int
	ExecutionCount int64
	LastExecutedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveTimeout returns job.RequestTimeout, or the engine default.
func (j Job) EffectiveTimeout() time.Duration {
	if j.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(j.RequestTimeout) * time.Millisecond
}

// EffectiveMaxConcurrent returns the gating width: 1 for sequential jobs
// regardless of the stored value, MaxConcurrent (or 1) otherwise.
func (j Job) EffectiveMaxConcurrent() int {
	if j.ExecutionMode == ExecutionParallel {
		if j.MaxConcurrent > 0 {
			return j.MaxConcurrent
		}
		return 1
	}
	return 1
}

const (
	DefaultRequestTimeout = 30 * time.Second
	MinRequestTimeoutMS   = 1000
	MaxRequestTimeoutMS   = 300000
	MinMaxConcurrent      = 1
	MaxMaxConcurrent      = 100
	MaxResponseBodyBytes  = 10 * 1024
	TruncationSuffix      = "… [truncated]"
)

// ExecutionLog is one terminal outcome of an attempt sequence.
type ExecutionLog struct {
	ID                string
	JobID             string
	ExecutedAt        time.Time
	Status            LogStatus
	ResponseCode      *int
	ExecutionTime     int64 // milliseconds
	ResponseBody      string
	ErrorMessage      string
	TriggeredManually bool
	RetryCount        int
}

// RuntimeUpdate carries the best-effort, engine-owned field updates the
// finalizer writes after every dispatch. Nil fields are left untouched.
type RuntimeUpdate struct {
	CurrentRunning *int
	LastExecutedAt *time.Time
	ExecutionCount *int64
}

// LogFilter narrows ListLogs/CountLogs/DeleteLogs queries. Zero values
// mean "no constraint" on that field.
type LogFilter struct {
	JobID             string
	Status            LogStatus
	TriggeredManually *bool
	StartDate         *time.Time
	EndDate           *time.Time
	JobNameContains   string
	ResponseContains  string
}

// JobLogStats is one job's aggregate over its execution logs, computed
// by the store so stats never depend on a paginated read.
type JobLogStats struct {
	JobID          string
	Total          int
	Success        int
	Failed         int
	MinExecutionMS int64
	AvgExecutionMS float64
	MaxExecutionMS int64
	SumExecutionMS int64
}

// Pagination is a 1-indexed page/limit pair.
type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
