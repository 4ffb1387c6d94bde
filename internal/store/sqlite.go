//go:build sqlite

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"faultline/internal/model"
)

// SQLiteStore persists experiments to a single-file database. The parameter
// vector is stored one column per search dimension so the log can be queried
// and plotted with plain SQL tooling.
type SQLiteStore struct {
	db      *sql.DB
	columns []string
	insert  string
	query   string
}

func NewSQLiteStore(path string, columns []string) (*SQLiteStore, error) {
	if err := ValidateColumns(columns); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// the driver serializes access; a single connection avoids lock retries
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, columns: append([]string(nil), columns...)}

	cols := strings.Join(columns, ", ")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	s.insert = fmt.Sprintf(
		"INSERT INTO experiments (%s, category, weight, response, seeded, created_at) VALUES (%s, ?, ?, ?, ?, ?)",
		cols, marks)
	s.query = fmt.Sprintf(
		"SELECT id, %s, category, weight, response, seeded, created_at FROM experiments ORDER BY id",
		cols)
	return s, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	var defs strings.Builder
	for _, c := range s.columns {
		fmt.Fprintf(&defs, "%s REAL NOT NULL, ", c)
	}
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	%scategory TEXT NOT NULL,
	weight REAL NOT NULL,
	response BLOB,
	seeded INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS metadata (
	stime_seconds INTEGER NOT NULL,
	argv TEXT NOT NULL
);`, defs.String())

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metadata").Scan(&n); err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	if n == 0 {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO metadata (stime_seconds, argv) VALUES (?, ?)",
			time.Now().Unix(), strings.Join(os.Args, " "))
		if err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, exp model.Experiment) (int64, error) {
	if len(exp.Params) != len(s.columns) {
		return 0, fmt.Errorf("%w: got %d parameters, store has %d columns",
			ErrStorageFault, len(exp.Params), len(s.columns))
	}
	created := exp.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	args := make([]any, 0, len(exp.Params)+5)
	for _, p := range exp.Params {
		args = append(args, p)
	}
	args = append(args, string(exp.Category), exp.Weight, exp.Response, exp.Seeded, created.Unix())

	res, err := s.db.ExecContext(ctx, s.insert, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	return id, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		var (
			exp      model.Experiment
			category string
			created  int64
		)
		exp.Params = make([]float64, len(s.columns))
		dest := make([]any, 0, len(s.columns)+6)
		dest = append(dest, &exp.ID)
		for i := range exp.Params {
			dest = append(dest, &exp.Params[i])
		}
		dest = append(dest, &category, &exp.Weight, &exp.Response, &exp.Seeded, &created)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exp.Category = model.Category(category)
		exp.CreatedAt = time.Unix(created, 0)
		out = append(out, exp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM experiments").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count experiments: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) LastID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM experiments").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("last id: %w", err)
	}
	return id.Int64, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func newSQLiteStore(path string, columns []string) (Store, error) {
	return NewSQLiteStore(path, columns)
}

// DefaultStoreKind names the backend used when none is configured.
func DefaultStoreKind() string { return "sqlite" }
