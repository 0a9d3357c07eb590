// Package postgres opens and owns the lib/pq connection the segment catalog
// runs on. Catalog writes sit on the segment flush path, so the client pins
// an application name and a statement timeout: a wedged catalog statement
// must fail fast rather than stall the builder.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/meridiansearch/fulltext-platform/pkg/config"
)

const (
	applicationName  = "fulltext-indexd"
	statementTimeout = 10 * time.Second
	connectTimeout   = 5 * time.Second
)

// Client wraps the catalog database handle.
type Client struct {
	DB *sql.DB
}

// Connect opens the catalog database, applies the pool limits from cfg, and
// verifies the connection.
func Connect(cfg config.PostgresConfig) (*Client, error) {
	dsn := fmt.Sprintf("%s application_name=%s statement_timeout=%d",
		cfg.DSN(), applicationName, statementTimeout.Milliseconds())
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog database: %w", err)
	}
	return &Client{DB: db}, nil
}

// InTx runs fn inside a transaction, committing on success and rolling back
// on error. The segment swap relies on this so a merge either retires its
// inputs and registers the output together, or does neither.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning catalog transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back catalog transaction after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing catalog transaction: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (c *Client) Close() error {
	return c.DB.Close()
}
