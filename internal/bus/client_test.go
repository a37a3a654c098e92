package bus_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/bus/bustest"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/protocol"
)

func TestConnectRequiresServers(t *testing.T) {
	if _, err := bus.Connect(context.Background(), config.BusConfig{}, bustest.Logger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestPublishJSONRoundTrip(t *testing.T) {
	client := bustest.Start(t)
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}

	sub, err := client.Conn().SubscribeSync(protocol.ConversationSubject("s1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	want := protocol.LogEntry{SessionID: "s1", Seq: 1, Original: "hello", TranslationSource: "mock"}
	if err := client.PublishJSON(protocol.ConversationSubject("s1"), want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got protocol.LogEntry
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Original != want.Original || got.Seq != want.Seq {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNilClientIsUnhealthy(t *testing.T) {
	var c *bus.Client
	if c.Healthy() {
		t.Fatal("nil client must not be healthy")
	}
	c.Close()
}
