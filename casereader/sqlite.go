package casereader

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteMagic is the 16-byte header every SQLite 3 container starts with.
var sqliteMagic = []byte("SQLite format 3\x00")

// openStore checks that path holds a SQLite container and opens a read-only
// connection to it. The header check runs on the raw file before any query,
// so a missing or foreign file fails with ErrInvalidStore instead of a
// driver error surfacing mid-query.
func openStore(path string) (*sql.DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStore, err)
	}
	header := make([]byte, len(sqliteMagic))
	_, err = io.ReadFull(f, header)
	f.Close()
	if err != nil || !bytes.Equal(header, sqliteMagic) {
		return nil, fmt.Errorf("%w: %s is not a SQLite file", ErrInvalidStore, path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidStore, err)
	}

	// Access is single-threaded; one connection is enough.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// readFormatVersion reads the version tag from the store's single metadata
// row. A SQLite file without a metadata table is not a case store.
func readFormatVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT format_version FROM metadata").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("%w: no readable metadata row: %v", ErrInvalidStore, err)
	}
	if v < 1 || v > FormatVersion {
		return 0, &UnsupportedFormatVersionError{Version: v}
	}
	return v, nil
}
