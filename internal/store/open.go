package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nutrimama/nutrimama/internal/domain"
)

const (
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendMemory   = "memory"
)

// OpenOptions selects and configures a profile backend.
type OpenOptions struct {
	Backend     string
	DatabaseURL string
	LocalPath   string
	Passphrase  string
}

// Backend is an opened profile store plus its lifecycle hooks.
type Backend struct {
	Profiles domain.ProfileStore
	Ping     func(ctx context.Context) error
	Close    func()
}

// Open connects to the configured backend. Postgres tables are created if
// missing.
func Open(ctx context.Context, opts OpenOptions) (*Backend, error) {
	switch opts.Backend {
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		profiles := NewProfileStore(pool)
		if err := profiles.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Profiles: profiles, Ping: pool.Ping, Close: pool.Close}, nil

	case BackendLocal:
		local, err := OpenLocal(ctx, opts.LocalPath, opts.Passphrase)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Profiles: local,
			Ping:     local.db.PingContext,
			Close:    func() { _ = local.Close() },
		}, nil

	case BackendMemory:
		return &Backend{Profiles: NewMemoryStore(), Close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}
