// Package persistence provides the SQLite-backed translation memory: a
// long-lived store of resolved translations shared across runs and input
// files, keyed by language pair and source text.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS translation_memory (
	source_lang TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	source_text TEXT NOT NULL,
	translated  TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (source_lang, target_lang, source_text)
);
`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init translation memory schema: %w", err)
	}
	return nil
}

// LoadTranslations returns every remembered translation for the language
// pair.
func (s *SQLiteStore) LoadTranslations(ctx context.Context, sourceLang, targetLang string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_text, translated FROM translation_memory
		 WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang)
	if err != nil {
		return nil, fmt.Errorf("query translation memory: %w", err)
	}
	defer rows.Close()

	ret := make(map[string]string)
	for rows.Next() {
		var source, translated string
		if err := rows.Scan(&source, &translated); err != nil {
			return nil, fmt.Errorf("scan translation memory row: %w", err)
		}
		ret[source] = translated
	}
	return ret, rows.Err()
}

// SaveTranslations upserts resolved translations for the language pair.
// Empty values are skipped; existing entries are overwritten.
func (s *SQLiteStore) SaveTranslations(ctx context.Context, sourceLang, targetLang string, translations map[string]string) error {
	if len(translations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin translation memory tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO translation_memory (source_lang, target_lang, source_text, translated, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source_lang, target_lang, source_text)
		 DO UPDATE SET translated = excluded.translated, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare translation memory upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for source, translated := range translations {
		if source == "" || translated == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, sourceLang, targetLang, source, translated, now); err != nil {
			return fmt.Errorf("upsert translation memory entry: %w", err)
		}
	}

	return tx.Commit()
}

// Count returns the number of remembered entries for the language pair.
func (s *SQLiteStore) Count(ctx context.Context, sourceLang, targetLang string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM translation_memory WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count translation memory: %w", err)
	}
	return n, nil
}
