package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const globalDataSchema = `
CREATE TABLE IF NOT EXISTS global_data (
	mod_id     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	PRIMARY KEY (mod_id, key)
)`

// GlobalData stores per-mod JSON values that are not tied to a save.
type GlobalData struct {
	mu    sync.RWMutex
	sqlDB *sql.DB
}

// OpenGlobalData opens (and creates) the SQLite store at path.
func OpenGlobalData(path string) (*GlobalData, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(globalDataSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &GlobalData{sqlDB: sqlDB}, nil
}

// Close releases the database.
func (g *GlobalData) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sqlDB == nil {
		return nil
	}
	err := g.sqlDB.Close()
	g.sqlDB = nil
	return err
}

func (g *GlobalData) db() (*sql.DB, error) {
	if g == nil || g.sqlDB == nil {
		return nil, ErrStoreClosed
	}
	return g.sqlDB, nil
}

// Read decodes a stored value into out. Returns false if the key is not set.
func (g *GlobalData) Read(ctx context.Context, modID, key string, out any) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	db, err := g.db()
	if err != nil {
		return false, err
	}

	var raw string
	err = db.QueryRowContext(ctx,
		`SELECT value_json FROM global_data WHERE mod_id = ? AND key = ?`,
		strings.ToLower(modID), key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read global data: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode global data %s: %w", key, err)
	}
	return true, nil
}

// Write stores a value. A nil value deletes the key.
func (g *GlobalData) Write(ctx context.Context, modID, key string, value any) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	db, err := g.db()
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("global data key is required")
	}

	if value == nil {
		_, err := db.ExecContext(ctx,
			`DELETE FROM global_data WHERE mod_id = ? AND key = ?`,
			strings.ToLower(modID), key,
		)
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode global data %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO global_data (mod_id, key, value_json) VALUES (?, ?, ?)
		 ON CONFLICT(mod_id, key) DO UPDATE SET value_json = excluded.value_json, updated_at = strftime('%s','now')`,
		strings.ToLower(modID), key, string(raw),
	)
	if err != nil {
		return fmt.Errorf("write global data: %w", err)
	}
	return nil
}

// Keys lists the keys stored for a mod.
func (g *GlobalData) Keys(ctx context.Context, modID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	db, err := g.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT key FROM global_data WHERE mod_id = ? ORDER BY key`,
		strings.ToLower(modID),
	)
	if err != nil {
		return nil, fmt.Errorf("list global data: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
