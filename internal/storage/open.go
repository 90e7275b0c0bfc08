package storage

import (
	"context"
	"fmt"

	"github.com/devine/vecgate/internal/config"
)

// Open builds the Store selected by cfg.Driver. dsn is the resolved
// PostgreSQL DSN (it may come from a secret rather than cfg.DSN).
func Open(ctx context.Context, cfg *config.StorageConfig, dsn string) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, dsn, PostgresOptions{
			Table:        cfg.Table,
			MaxOpenConns: cfg.MaxOpenConns,
		})
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.DatabasePath, SQLiteOptions{
			Table:      cfg.Table,
			Dimensions: cfg.Dimensions,
		})
	case config.DriverOpenSearch:
		return NewOpenSearchStore(OpenSearchOptions{
			Addresses:          cfg.OpenSearch.Addresses,
			Username:           cfg.OpenSearch.Username,
			Password:           cfg.OpenSearch.Password,
			Index:              cfg.OpenSearch.Index,
			InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
		})
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
