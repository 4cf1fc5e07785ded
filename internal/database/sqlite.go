package database

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteBusyTimeoutMillis = 5000

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, err := buildSQLiteDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	if err := enableForeignKeys(db); err != nil {
		return nil, err
	}

	return db, nil
}

// buildSQLiteDSN returns cfg.DSN verbatim, a shared in-memory database for an empty or
// ":memory:" path, or a WAL file database whose parent directory is created on demand.
func buildSQLiteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	pragmas := url.Values{}
	pragmas.Set("_foreign_keys", "1")

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		pragmas.Set("cache", "shared")
		return "file::memory:?" + pragmas.Encode(), nil
	}

	if err := ensureDir(path); err != nil {
		return "", err
	}
	pragmas.Set("_journal_mode", "WAL")
	pragmas.Set("_busy_timeout", strconv.Itoa(sqliteBusyTimeoutMillis))
	return "file:" + filepath.ToSlash(path) + "?" + pragmas.Encode(), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func enableForeignKeys(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil && err != sql.ErrConnDone {
		return err
	}
	return nil
}
