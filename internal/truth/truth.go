// Package truth reads and writes the ground truth rows produced by the fine grained solver.
package truth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/gonum/mat"

	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/schema"
)

var ErrEmpty = errors.New("truth: no ground truth rows")

type DB struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg *Config) (*DB, error) {
	logger := logging.FromContext(ctx)
	logger.Infof("opening ground truth db %s", cfg.FileName)

	db, err := sql.Open("sqlite3", cfg.FileName)
	if err != nil {
		return nil, fmt.Errorf("open ground truth db: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ground truth db: %w", err)
	}
	return &DB{db: db}, nil
}

func (db *DB) Close(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Infof("closing ground truth db")

	if err := db.db.Close(); err != nil {
		return fmt.Errorf("close ground truth db: %w", err)
	}
	return nil
}

// InitTables creates the ground truth table of s when it does not exist.
func (db *DB) InitTables(ctx context.Context, s schema.Schema) error {
	columns := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		columns[i] = c + " REAL"
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(%s);", s.Table, strings.Join(columns, ", "))
	if _, err := db.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}
	return nil
}

// InsertMany appends raw rows laid out as s in a single transaction: either every row is
// written or none is.
func (db *DB) InsertMany(ctx context.Context, s schema.Schema, rows [][]float64) error {
	for i, row := range rows {
		if len(row) != s.RowWidth() {
			return fmt.Errorf("%w: row %d has %d columns, table %s has %d", schema.ErrWidth, i, len(row), s.Table, s.RowWidth())
		}
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", s.RowWidth()), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES(%s);", s.Table, marks))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert into %s: %w", s.Table, err)
	}
	defer stmt.Close()
	args := make([]interface{}, s.RowWidth())
	for _, row := range rows {
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert into %s: %w", s.Table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert into %s: %w", s.Table, err)
	}
	return nil
}

// Count returns the number of complete rows of the ground truth table of s, the rows Rows
// returns.
func (db *DB) Count(ctx context.Context, s schema.Schema) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s;", s.Table, complete(s))
	if err := db.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.Table, err)
	}
	return n, nil
}

func complete(s schema.Schema) string {
	conds := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		conds[i] = c + " IS NOT NULL"
	}
	return strings.Join(conds, " AND ")
}

// Rows returns every complete row of the ground truth table of s, in insertion order. Rows
// holding NULL values are skipped. A table without complete rows yields ErrEmpty.
func (db *DB) Rows(ctx context.Context, s schema.Schema) (*mat.Dense, error) {
	logger := logging.FromContext(ctx)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid;", strings.Join(s.Columns, ", "), s.Table)
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.Table, err)
	}
	defer rows.Close()

	width := s.RowWidth()
	var (
		data    []float64
		skipped int
	)
	cells := make([]sql.NullFloat64, width)
	dest := make([]interface{}, width)
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Table, err)
		}
		complete := true
		for _, c := range cells {
			complete = complete && c.Valid
		}
		if !complete {
			skipped++
			continue
		}
		for _, c := range cells {
			data = append(data, c.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Table, err)
	}
	if skipped > 0 {
		logger.Warnf("skipped %d incomplete rows of %s", skipped, s.Table)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, s.Table)
	}
	return mat.NewDense(len(data)/width, width, data), nil
}
