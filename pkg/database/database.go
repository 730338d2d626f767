package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Client holds the database connection pool
type Client struct {
	Pool *pgxpool.Pool
}

// NewClient connects a pgx pool and applies pending goose migrations
// from migrationsDir. Pass an empty dir to skip migrations (tests).
func NewClient(ctx context.Context, databaseURL, migrationsDir string) (*Client, error) {
	if migrationsDir != "" {
		if err := Migrate(databaseURL, migrationsDir); err != nil {
			return nil, fmt.Errorf("failed applying migrations: %w", err)
		}
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing database URL: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed pinging postgres: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Migrate applies pending goose migrations using the pgx stdlib driver.
func Migrate(databaseURL, migrationsDir string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, migrationsDir)
}

// Close closes the connection pool
func (c *Client) Close() {
	c.Pool.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}
