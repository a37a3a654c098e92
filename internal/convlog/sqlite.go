package convlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/translation"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps entries in SQLite. The default DSN is an in-memory
// database, so entries still share the lifetime of the process.
type SQLiteStore struct {
	db           *sql.DB
	log          *slog.Logger
	defaultLimit int
	clock        func() time.Time
}

func OpenSQLite(ctx context.Context, cfg config.ConversationLogConfig, log *slog.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("conversation log path must not be empty")
	}
	if !strings.HasPrefix(cfg.Path, "file:") {
		dir := filepath.Dir(cfg.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, defaultLimit: cfg.MaxEntries, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("conversation log opened", slog.String("store", "sqlite"), slog.String("path", cfg.Path))
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    original TEXT NOT NULL,
    translated TEXT NOT NULL,
    source_lang TEXT NOT NULL,
    target_lang TEXT NOT NULL,
    translation_source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_entries_session_seq ON entries(session_id, seq);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init conversation log schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE session_id = ?`, e.SessionID).Scan(&e.Seq); err != nil {
		return Entry{}, fmt.Errorf("next seq: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO entries(session_id, seq, original, translated, source_lang, target_lang, translation_source, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Seq, e.Original, e.Translated, e.SourceLang, e.TargetLang, e.Source.String(),
		e.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, session_id, original, translated, source_lang, target_lang, translation_source, created_at
		 FROM (SELECT * FROM entries WHERE session_id = ? ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			tag     string
			created string
		)
		if err := rows.Scan(&e.Seq, &e.SessionID, &e.Original, &e.Translated, &e.SourceLang, &e.TargetLang, &tag, &created); err != nil {
			return nil, err
		}
		if e.Source, err = translation.ParseSource(tag); err != nil {
			s.log.Warn("conversation log entry has unknown source", slog.String("tag", tag))
			e.Source = translation.SourceClientError
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Forget(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
