package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect distinguishes the two supported backends.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// EnsureSchema creates the cronjobs/execution_logs tables (and the
// tags/cronjob_tags pair, which no query in this package reads or
// writes) if they do not already exist, plus their supporting indexes.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := sqliteSchema
	if dialect == DialectMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`PRAGMA journal_mode=WAL`,
	`CREATE TABLE IF NOT EXISTS cronjobs (
	  id TEXT PRIMARY KEY,
	  name TEXT NOT NULL,
	  url TEXT NOT NULL,
	  method TEXT NOT NULL DEFAULT 'GET',
	  headers TEXT NOT NULL DEFAULT '',
	  body TEXT NOT NULL DEFAULT '',
	  schedule TEXT NOT NULL,
	  schedule_type TEXT NOT NULL CHECK(schedule_type IN ('cron','repeat')),
	  is_active INTEGER NOT NULL DEFAULT 1,
	  request_timeout INTEGER NOT NULL DEFAULT 30000,
	  execution_mode TEXT NOT NULL DEFAULT 'sequential',
	  max_concurrent INTEGER NOT NULL DEFAULT 1,
	  current_running INTEGER NOT NULL DEFAULT 0,
	  execution_count INTEGER NOT NULL DEFAULT 0,
	  last_executed_at DATETIME,
	  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cronjobs_is_active ON cronjobs(is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_cronjobs_schedule_type ON cronjobs(schedule_type)`,
	`CREATE TABLE IF NOT EXISTS execution_logs (
	  id TEXT PRIMARY KEY,
	  job_id TEXT NOT NULL REFERENCES cronjobs(id) ON DELETE CASCADE,
	  executed_at DATETIME NOT NULL,
	  status TEXT NOT NULL CHECK(status IN ('success','failed')),
	  response_code INTEGER,
	  execution_time INTEGER NOT NULL,
	  response_body TEXT NOT NULL DEFAULT '',
	  error_message TEXT NOT NULL DEFAULT '',
	  triggered_manually INTEGER NOT NULL DEFAULT 0,
	  retry_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_logs_job_id ON execution_logs(job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_logs_executed_at ON execution_logs(executed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_logs_status ON execution_logs(status)`,
	`CREATE TABLE IF NOT EXISTS tags (
	  id TEXT PRIMARY KEY,
	  name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS cronjob_tags (
	  cronjob_id TEXT NOT NULL REFERENCES cronjobs(id) ON DELETE CASCADE,
	  tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	  PRIMARY KEY (cronjob_id, tag_id)
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS cronjobs (
	  id VARCHAR(64) PRIMARY KEY,
	  name VARCHAR(255) NOT NULL,
	  url TEXT NOT NULL,
	  method VARCHAR(8) NOT NULL DEFAULT 'GET',
	  headers TEXT,
	  body TEXT,
	  schedule VARCHAR(128) NOT NULL,
	  schedule_type ENUM('cron','repeat') NOT NULL,
	  is_active TINYINT(1) NOT NULL DEFAULT 1,
	  request_timeout INT NOT NULL DEFAULT 30000,
	  execution_mode VARCHAR(16) NOT NULL DEFAULT 'sequential',
	  max_concurrent INT NOT NULL DEFAULT 1,
	  current_running INT NOT NULL DEFAULT 0,
	  execution_count BIGINT NOT NULL DEFAULT 0,
	  last_executed_at DATETIME NULL,
	  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	  INDEX idx_cronjobs_is_active (is_active),
	  INDEX idx_cronjobs_schedule_type (schedule_type)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS execution_logs (
	  id VARCHAR(64) PRIMARY KEY,
	  job_id VARCHAR(64) NOT NULL,
	  executed_at DATETIME NOT NULL,
	  status ENUM('success','failed') NOT NULL,
	  response_code INT NULL,
	  execution_time BIGINT NOT NULL,
	  response_body MEDIUMTEXT,
	  error_message TEXT,
	  triggered_manually TINYINT(1) NOT NULL DEFAULT 0,
	  retry_count INT NOT NULL DEFAULT 0,
	  INDEX idx_execution_logs_job_id (job_id),
	  INDEX idx_execution_logs_executed_at (executed_at),
	  INDEX idx_execution_logs_status (status),
	  CONSTRAINT fk_execution_logs_job FOREIGN KEY (job_id) REFERENCES cronjobs(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tags (
	  id VARCHAR(64) PRIMARY KEY,
	  name VARCHAR(128) NOT NULL UNIQUE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS cronjob_tags (
	  cronjob_id VARCHAR(64) NOT NULL,
	  tag_id VARCHAR(64) NOT NULL,
	  PRIMARY KEY (cronjob_id, tag_id),
	  CONSTRAINT fk_cronjob_tags_job FOREIGN KEY (cronjob_id) REFERENCES cronjobs(id) ON DELETE CASCADE,
	  CONSTRAINT fk_cronjob_tags_tag FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}
