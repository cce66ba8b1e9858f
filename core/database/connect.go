package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/songbot/core/logger"
)

const (
	driverName     = "postgres"
	connectTimeout = 5 * time.Second
	defaultPool    = 5
	readyPoll      = 2 * time.Second
)

// target describes the database in log lines without leaking credentials.
func (c Config) target() []slog.Attr {
	return []slog.Attr{
		slog.String("driver", driverName),
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	}
}

func (c Config) poolSize() int {
	if c.MaxConnections <= 0 {
		return defaultPool
	}
	return c.MaxConnections
}

// Connect opens the journal database, sizes its pool and verifies it answers.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, cfg.DSN())
	if err == nil {
		if err = db.PingContext(ctx); err != nil {
			_ = db.Close()
		}
	}
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		attrs := append(cfg.target(),
			slog.String("event", "db.connect"),
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		logger.DB.LogAttrs(ctx, slog.LevelError, "db connect failed", attrs...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.poolSize()
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	attrs := append(cfg.target(),
		slog.String("event", "db.connect"),
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", took),
	)
	logger.DB.LogAttrs(ctx, slog.LevelInfo, "db connected", attrs...)
	return db, nil
}

// WaitForPostgres polls the server until it accepts a connection or timeout elapses.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for {
		err := ping(ctx, dsn)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", err)
		case <-ticker.C:
		}
	}
}

func ping(ctx context.Context, dsn string) error {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
