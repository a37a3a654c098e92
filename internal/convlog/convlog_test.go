package convlog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/translation"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	stores := map[string]Store{"memory": NewMemoryStore(0)}

	file, err := OpenSQLite(ctx, config.ConversationLogConfig{Path: filepath.Join(t.TempDir(), "log.db")}, newLogger())
	if err != nil {
		t.Fatalf("open sqlite file store: %v", err)
	}
	stores["sqlite-file"] = file

	mem, err := OpenSQLite(ctx, config.ConversationLogConfig{Path: "file:" + t.Name() + "?mode=memory&cache=shared"}, newLogger())
	if err != nil {
		t.Fatalf("open sqlite memory store: %v", err)
	}
	stores["sqlite-memory"] = mem

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestAppendOrderAndSeq(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			originals := []string{"one", "two", "three"}
			for i, text := range originals {
				e, err := store.Append(ctx, Entry{
					SessionID:  "s1",
					Original:   text,
					Translated: text + "-pl",
					SourceLang: "en-US",
					TargetLang: "pl-PL",
					Source:     translation.SourceGoogle,
				})
				if err != nil {
					t.Fatalf("append: %v", err)
				}
				if e.Seq != int64(i+1) {
					t.Fatalf("expected seq %d, got %d", i+1, e.Seq)
				}
			}
			if _, err := store.Append(ctx, Entry{SessionID: "s2", Original: "other", Source: translation.SourceMock}); err != nil {
				t.Fatalf("append other session: %v", err)
			}

			entries, err := store.List(ctx, "s1", 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(entries) != len(originals) {
				t.Fatalf("expected %d entries, got %d", len(originals), len(entries))
			}
			for i, e := range entries {
				if e.Original != originals[i] || e.Seq != int64(i+1) {
					t.Fatalf("entry %d out of order: %+v", i, e)
				}
				if e.Source != translation.SourceGoogle {
					t.Fatalf("expected source preserved, got %v", e.Source)
				}
				if e.CreatedAt.IsZero() {
					t.Fatal("expected created_at to be set")
				}
			}

			limited, err := store.List(ctx, "s1", 2)
			if err != nil {
				t.Fatalf("list limited: %v", err)
			}
			if len(limited) != 2 || limited[0].Original != "two" || limited[1].Original != "three" {
				t.Fatalf("unexpected limited list %+v", limited)
			}
		})
	}
}

func TestDefaultLimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	file, err := OpenSQLite(ctx, config.ConversationLogConfig{Path: filepath.Join(t.TempDir(), "log.db"), MaxEntries: 3}, newLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = file.Close() })
	stores := map[string]Store{"memory": NewMemoryStore(3), "sqlite": file}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			for _, text := range []string{"1", "2", "3", "4", "5"} {
				if _, err := store.Append(ctx, Entry{SessionID: "s", Original: text, Source: translation.SourceMock}); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			entries, err := store.List(ctx, "s", 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.Original)
			}
			if strings.Join(got, ",") != "3,4,5" {
				t.Fatalf("expected newest entries in append order, got %v", got)
			}
		})
	}
}

func TestForget(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Append(ctx, Entry{SessionID: "gone", Original: "x", Source: translation.SourceMock}); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := store.Forget(ctx, "gone"); err != nil {
				t.Fatalf("forget: %v", err)
			}
			entries, err := store.List(ctx, "gone", 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(entries) != 0 {
				t.Fatalf("expected no entries, got %d", len(entries))
			}
		})
	}
}

func TestMemoryStoreClock(t *testing.T) {
	store := NewMemoryStore(0)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return fixed }
	e, err := store.Append(context.Background(), Entry{SessionID: "s", Original: "x", Source: translation.SourceMock})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Fatalf("expected fixed clock, got %v", e.CreatedAt)
	}
}

func TestOpenSelectsStore(t *testing.T) {
	store, err := Open(context.Background(), config.ConversationLogConfig{Store: "memory"}, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if _, err := Open(context.Background(), config.ConversationLogConfig{Store: "etcd"}, newLogger()); err == nil {
		t.Fatal("expected error for unknown store")
	}
}
