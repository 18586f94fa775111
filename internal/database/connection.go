package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"callcore/internal/config"
)

// Connection wraps the pool backing internal/notifystore's missed-call ledger.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens the pool and verifies connectivity with a Ping before
// handing it back, so a misconfigured DSN fails at startup rather than on
// the first missed-call insert.
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Connection{DB: db}, nil
}

// Close releases the pool's connections.
func (c *Connection) Close() error {
	return c.DB.Close()
}
