package infrastructure

import (
	"context"
	"fmt"

	"github.com/architeacher/svc-event-outbox/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Storage owns the Postgres connection pool.
type Storage struct {
	db  *sqlx.DB
	cfg config.StorageConfig
}

func NewStorage(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &Storage{
		db:  db,
		cfg: cfg,
	}, nil
}

// DSN builds a lib/pq connection string from the storage settings.
func DSN(cfg config.StorageConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
		int(cfg.ConnectTimeout.Seconds()),
	)
}

func (s *Storage) GetDB() *sqlx.DB {
	return s.db
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}
