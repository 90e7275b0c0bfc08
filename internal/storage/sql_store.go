package storage

import (
	"context"
	"database/sql"
	"errors"
)

// queries holds the dialect-specific statements of a SQL backend. Each
// search query takes (query literal, limit) and selects
// (report_id, report_title, score).
type queries struct {
	insert string
	cosine string
	l2     string
	count  string
}

// sqlStore implements Store over database/sql. The PostgreSQL and SQLite
// backends differ only in their statements.
type sqlStore struct {
	db     *sql.DB
	driver string
	q      queries
	// checkLimit rejects negative limits before they reach an engine that
	// would read them as "no limit".
	checkLimit bool
}

var readOnly = &sql.TxOptions{ReadOnly: true}

// beginWrite opens the read-write transaction used by save.
func (s *sqlStore) beginWrite(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// beginRead opens the read-only transaction used by search and count.
func (s *sqlStore) beginRead(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, readOnly)
}

func (s *sqlStore) SaveEmbedding(ctx context.Context, e Embedding) error {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return wrap("save", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q.insert, e.ReportID, e.ReportTitle, e.Vector); err != nil {
		return wrap("save", err)
	}
	return wrap("save", tx.Commit())
}

func (s *sqlStore) SearchCosine(ctx context.Context, query string, limit int) ([]Match, error) {
	return s.search(ctx, "search cosine", s.q.cosine, query, limit)
}

func (s *sqlStore) SearchL2(ctx context.Context, query string, limit int) ([]Match, error) {
	return s.search(ctx, "search l2", s.q.l2, query, limit)
}

func (s *sqlStore) search(ctx context.Context, op, stmt, query string, limit int) ([]Match, error) {
	if s.checkLimit && limit < 0 {
		return nil, &Error{Op: op, Kind: KindDataException, Err: errors.New("LIMIT must not be negative")}
	}
	tx, err := s.beginRead(ctx)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, stmt, query, limit)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m     Match
			title sql.NullString
		)
		if err := rows.Scan(&m.ReportID, &title, &m.Score); err != nil {
			return nil, wrap(op, err)
		}
		if title.Valid {
			t := title.String
			m.ReportTitle = &t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, wrap(op, tx.Commit())
}

func (s *sqlStore) Count(ctx context.Context) (int64, error) {
	tx, err := s.beginRead(ctx)
	if err != nil {
		return 0, wrap("count", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	if err := tx.QueryRowContext(ctx, s.q.count).Scan(&n); err != nil {
		return 0, wrap("count", err)
	}
	return n, wrap("count", tx.Commit())
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

func (s *sqlStore) Driver() string {
	return s.driver
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
