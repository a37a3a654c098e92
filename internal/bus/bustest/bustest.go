// Package bustest starts an embedded NATS server on a random port and returns
// a connected client for tests.
package bustest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/natsserver"
)

func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Start returns a client connected to a fresh embedded server. Both are
// closed when the test finishes.
func Start(t testing.TB) *bus.Client {
	t.Helper()
	log := Logger()
	cfg := config.BusConfig{Embedded: true, Host: "127.0.0.1", Port: -1, ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
