package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/devine/vecgate/internal/vector"
)

// sqliteVecDriver is the mattn driver with the vector functions registered
// on every connection it opens.
const sqliteVecDriver = "sqlite3_vec"

func init() {
	sql.Register(sqliteVecDriver, &sqlite3.SQLiteDriver{
		ConnectHook: registerVectorFunctions,
	})
}

// registerVectorFunctions installs the engine-side vector operators:
//
//	vec_dims(v)               number of elements in a literal
//	vec_cosine_distance(a, b) 1 - cos(a, b)
//	vec_l2_distance(a, b)     Euclidean distance
//
// All are deterministic so they may appear in CHECK constraints.
func registerVectorFunctions(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("vec_dims", vecDims, true); err != nil {
		return err
	}
	if err := conn.RegisterFunc("vec_cosine_distance", vecCosineDistance, true); err != nil {
		return err
	}
	return conn.RegisterFunc("vec_l2_distance", vecL2Distance, true)
}

func vecDims(lit string) (int64, error) {
	n, err := vector.Dims(lit)
	return int64(n), err
}

func vecCosineDistance(a, b string) (float64, error) {
	va, vb, err := parsePair(a, b)
	if err != nil {
		return 0, err
	}
	return vector.CosineDistance(va, vb)
}

func vecL2Distance(a, b string) (float64, error) {
	va, vb, err := parsePair(a, b)
	if err != nil {
		return 0, err
	}
	return vector.L2Distance(va, vb)
}

func parsePair(a, b string) ([]float64, []float64, error) {
	va, err := vector.Parse(a)
	if err != nil {
		return nil, nil, err
	}
	vb, err := vector.Parse(b)
	if err != nil {
		return nil, nil, err
	}
	return va, vb, nil
}

// SQLiteStore is an embedded Store for local development and tests. The
// engine enforces the vector dimension and title length through CHECK
// constraints, mirroring a VECTOR(n) / VARCHAR(500) column.
type SQLiteStore struct {
	sqlStore
}

// SQLiteOptions configures NewSQLiteStore.
type SQLiteOptions struct {
	Table      string
	Dimensions int
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.Table == "" {
		opts.Table = "report_embeddings"
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions %d", opts.Dimensions)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(sqliteVecDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	t := quoteSQLiteIdent(opts.Table)
	if err := initSchema(db, t, opts.Dimensions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{sqlStore{
		db:         db,
		driver:     "sqlite",
		checkLimit: true,
		q: queries{
			insert: `INSERT INTO ` + t + ` (report_id, report_title, embedding, created_at)
				VALUES (?1, ?2, ?3, CURRENT_TIMESTAMP)`,
			cosine: `SELECT report_id, report_title, 1 - vec_cosine_distance(embedding, ?1) AS similarity
				FROM ` + t + `
				ORDER BY vec_cosine_distance(embedding, ?1), id
				LIMIT ?2`,
			l2: `SELECT report_id, report_title, vec_l2_distance(embedding, ?1) AS distance
				FROM ` + t + `
				ORDER BY vec_l2_distance(embedding, ?1), id
				LIMIT ?2`,
			count: `SELECT COUNT(*) FROM ` + t,
		},
	}}, nil
}

func initSchema(db *sql.DB, table string, dims int) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id INTEGER NOT NULL,
		report_title TEXT CHECK (report_title IS NULL OR length(report_title) <= 500),
		embedding TEXT NOT NULL CHECK (vec_dims(embedding) = %[2]d),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`, table, dims)
	_, err := db.Exec(schema)
	return err
}

func quoteSQLiteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}

// compile-time checks
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
