// Package convlog stores the append-only conversation log of each session.
package convlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/translation"
)

// Entry is one original/translated pair. Entries are never mutated or removed
// while their session lives.
type Entry struct {
	Seq        int64
	SessionID  string
	Original   string
	Translated string
	SourceLang string
	TargetLang string
	Source     translation.Source
	CreatedAt  time.Time
}

// Store appends and lists entries per session. Append assigns Seq, strictly
// increasing from 1 within a session.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	// Forget drops a session's entries once the session is closed.
	Forget(ctx context.Context, sessionID string) error
	Close() error
}

// Open returns the store selected by cfg.Store.
func Open(ctx context.Context, cfg config.ConversationLogConfig, log *slog.Logger) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(cfg.MaxEntries), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown conversation log store %q", cfg.Store)
	}
}
