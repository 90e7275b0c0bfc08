package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a Store over PostgreSQL with the pgvector extension.
// It expects an existing table:
//
//	CREATE TABLE report_embeddings (
//	    id           BIGSERIAL PRIMARY KEY,
//	    report_id    BIGINT NOT NULL,
//	    report_title VARCHAR(500),
//	    embedding    VECTOR(1536),
//	    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
//	);
type PostgresStore struct {
	sqlStore
}

// PostgresOptions configures NewPostgresStore.
type PostgresOptions struct {
	Table        string
	MaxOpenConns int
}

// NewPostgresStore opens a connection pool for dsn and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", wrap("connect", err))
	}
	return newPostgresStore(db, opts.Table), nil
}

func newPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "report_embeddings"
	}
	t := pq.QuoteIdentifier(table)
	return &PostgresStore{sqlStore{
		db:     db,
		driver: "postgres",
		q: queries{
			insert: `INSERT INTO ` + t + ` (report_id, report_title, embedding, created_at)
				VALUES ($1, $2, CAST($3 AS vector), CURRENT_TIMESTAMP)`,
			// <=> is pgvector's cosine distance.
			cosine: `SELECT report_id, report_title, 1 - (embedding <=> CAST($1 AS vector)) AS similarity
				FROM ` + t + `
				ORDER BY embedding <=> CAST($1 AS vector)
				LIMIT $2`,
			l2: `SELECT report_id, report_title, embedding <-> CAST($1 AS vector) AS distance
				FROM ` + t + `
				ORDER BY embedding <-> CAST($1 AS vector)
				LIMIT $2`,
			count: `SELECT COUNT(*) FROM ` + t,
		},
	}}
}
