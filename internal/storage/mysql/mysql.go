package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"molding-report/internal/config"
	"molding-report/internal/constants"
	"molding-report/internal/validate"
)

const (
	tablePurchaseOrders    = "purchase_orders"
	tableProductionRecords = "production_records"
	tableMoldSpecs         = "mold_specs"
	tableMoldItems         = "mold_items"
)

type Storage struct {
	db *sql.DB
}

func New(cfg config.Database) (*Storage, error) {
	const op = "storage.mysql.New"

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open db: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// NewWithDB wraps an already opened pool.
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// rowScanner maps a row's columns by name onto scan targets. Columns with
// no target are read and dropped.
type rowScanner struct {
	cols []string
	rows *sql.Rows
}

func (r rowScanner) scan(targets map[string]any) error {
	dest := make([]any, len(r.cols))
	for i, c := range r.cols {
		if t, ok := targets[c]; ok {
			dest[i] = t
			continue
		}
		dest[i] = new(sql.RawBytes)
	}
	return r.rows.Scan(dest...)
}

// load reads every row of table. Missing required columns and values that
// do not scan into their Go type are reported as a *validate.Error.
func load[T any](ctx context.Context, db *sql.DB, table string, required constants.ColumnSet, scanRow func(rowScanner) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	if err := validate.Columns(table, cols, required); err != nil {
		return nil, err
	}

	sc := rowScanner{cols: cols, rows: rows}
	bad := &validate.Error{Source: table}

	var out []T
	for row := 1; rows.Next(); row++ {
		v, err := scanRow(sc)
		if err != nil {
			bad.Fields = append(bad.Fields, validate.FieldError{Row: row, Reason: err.Error()})
			continue
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	if len(bad.Fields) > 0 {
		return nil, bad
	}
	return out, nil
}
