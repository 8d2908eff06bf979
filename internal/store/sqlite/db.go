// Package sqlite stores daily bars in a SQLite database and serves them
// back as a model.DataProvider.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

func open(path string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars_daily (
			symbol     TEXT    NOT NULL,
			date       TEXT    NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		);
	`)
	return err
}
