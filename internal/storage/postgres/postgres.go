// Package postgres opens the record tables on PostgreSQL. Table names,
// required columns and row mapping are shared with the MySQL loader.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"molding-report/internal/storage/mysql"
)

func New(url string) (*mysql.Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open db: %w", op, err)
	}

	return mysql.NewWithDB(db), nil
}
