package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the connection settings for the mysql backend.
type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (c MySQLConfig) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// NewMySQL opens a MySQL connection pool, ensures the schema, and
// returns a ready Store.
func NewMySQL(ctx context.Context, cfg MySQLConfig) (Store, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if err := EnsureSchema(ctx, db, DialectMySQL); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLStore(db, DialectMySQL), nil
}
