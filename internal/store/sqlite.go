package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"platform-sync-service/internal/config"
)

type SQLiteStore struct {
	sqlStore
}

func NewSQLiteStore(cfg config.StateStorage) (*SQLiteStore, error) {
	path := cfg.FilePath
	if path == "" {
		path = "sync-state.db"
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// The modernc driver serializes writes; one writer connection avoids
	// SQLITE_BUSY under concurrent passes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{sqlStore{db: db}}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
