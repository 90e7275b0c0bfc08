// Package storage defines the vector store interface and its backends.
package storage

import (
	"context"
)

// Embedding is one row to insert. ReportID and ReportTitle are pointers so
// that absent values reach the store as NULL and are rejected (or accepted)
// by its own constraints.
type Embedding struct {
	ReportID    *int64
	ReportTitle *string
	// Vector is the store literal, e.g. "[0.1,0.2]".
	Vector string
}

// Match is one row returned by a similarity query. Score is the similarity
// for cosine queries and the native distance for L2 queries.
type Match struct {
	ReportID    int64
	ReportTitle *string
	Score       float64
}

// Store is a vector-capable store. Every method maps to a single native
// statement; distance computation belongs to the store.
type Store interface {
	// SaveEmbedding inserts one row in a read-write transaction.
	SaveEmbedding(ctx context.Context, e Embedding) error
	// SearchCosine returns up to limit rows ordered by ascending cosine
	// distance to the query literal, scored as 1 - distance.
	SearchCosine(ctx context.Context, query string, limit int) ([]Match, error)
	// SearchL2 returns up to limit rows ordered by ascending Euclidean
	// distance, scored with the distance itself.
	SearchL2(ctx context.Context, query string, limit int) ([]Match, error)
	// Count returns the number of stored rows.
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}
