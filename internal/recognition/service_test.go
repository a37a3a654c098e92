package recognition

import (
	"context"
	"testing"
	"time"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/bus/bustest"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/protocol"
)

func startService(t *testing.T, cfg config.STTConfig) (*Service, *bus.Client) {
	t.Helper()
	client := bustest.Start(t)
	cfg.Enabled = true
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
		cfg.Channels = 1
	}
	svc := NewService(context.Background(), cfg, client, NewMockRecognizer())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("expected healthy service")
	}
	return svc, client
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (s *Service) bufferLen(sessionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	if state == nil {
		return 0, false
	}
	return len(state.Buffer), true
}

func publishFrame(t *testing.T, client *bus.Client, sessionID string, pcm []byte, final bool) {
	t.Helper()
	frame := protocol.AudioFrame{SessionID: sessionID, SampleRate: 16000, Channels: 1, PCM: pcm, Final: final}
	if err := client.PublishJSON(protocol.AudioFrameSubject(sessionID), frame); err != nil {
		t.Fatalf("publish frame: %v", err)
	}
}

func listen(t *testing.T, client *bus.Client, sessionID, language string) (*Controller, *recorder) {
	t.Helper()
	rec := newRecorder()
	c := NewController(NewBusSource(client, sessionID), rec, newLogger())
	if err := c.Start(context.Background(), language); err != nil {
		t.Fatalf("start: %v", err)
	}
	if ev := rec.next(t); ev.Kind != EventStart {
		t.Fatalf("expected start, got %v", ev.Kind)
	}
	return c, rec
}

func nextKind(t *testing.T, rec *recorder, kind EventKind) Event {
	t.Helper()
	for {
		ev := rec.next(t)
		if ev.Kind == kind {
			return ev
		}
		if ev.Kind == EventEnd {
			t.Fatalf("capture ended before %v", kind)
		}
	}
}

func TestServiceFinalTranscript(t *testing.T) {
	svc, client := startService(t, config.STTConfig{PublishInterim: true})
	c, rec := listen(t, client, "s1", "en-US")
	waitFor(t, "session start", func() bool { _, ok := svc.bufferLen("s1"); return ok })

	publishFrame(t, client, "s1", make([]byte, 4), false)
	publishFrame(t, client, "s1", make([]byte, 4), true)

	ev := nextKind(t, rec, EventFinal)
	if ev.Text != "[en-US final transcript length=8]" {
		t.Fatalf("unexpected final %q", ev.Text)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	nextKind(t, rec, EventEnd)
	waitFor(t, "session cleanup", func() bool { _, ok := svc.bufferLen("s1"); return !ok })
}

func TestServiceIgnoresOtherSessions(t *testing.T) {
	svc, client := startService(t, config.STTConfig{})
	c, rec := listen(t, client, "mine", "en-US")
	waitFor(t, "session start", func() bool { _, ok := svc.bufferLen("mine"); return ok })

	publishFrame(t, client, "stranger", make([]byte, 4), true)
	publishFrame(t, client, "mine", make([]byte, 2), true)

	ev := nextKind(t, rec, EventFinal)
	if ev.Text != "[en-US final transcript length=2]" {
		t.Fatalf("unexpected final %q", ev.Text)
	}
	_ = c.Stop()
	nextKind(t, rec, EventEnd)
}

func TestServiceNoSpeech(t *testing.T) {
	svc, client := startService(t, config.STTConfig{})
	_, rec := listen(t, client, "quiet", "en-US")
	waitFor(t, "session start", func() bool { _, ok := svc.bufferLen("quiet"); return ok })

	publishFrame(t, client, "quiet", nil, true)

	ev := nextKind(t, rec, EventError)
	if ev.Failure.Code != CodeNoSpeech {
		t.Fatalf("expected no-speech, got %+v", ev.Failure)
	}
	nextKind(t, rec, EventEnd)
}

func TestServiceUnsupportedLanguage(t *testing.T) {
	_, client := startService(t, config.STTConfig{Languages: []string{"en-US", "pl-PL"}})
	_, rec := listen(t, client, "s2", "xx-XX")

	ev := nextKind(t, rec, EventError)
	if ev.Failure.Code != CodeLanguageUnsupported {
		t.Fatalf("expected language-not-supported, got %+v", ev.Failure)
	}
	nextKind(t, rec, EventEnd)
}

func TestServiceStopFlushesBufferedAudio(t *testing.T) {
	svc, client := startService(t, config.STTConfig{})
	c, rec := listen(t, client, "s3", "pl-PL")
	waitFor(t, "session start", func() bool { _, ok := svc.bufferLen("s3"); return ok })

	publishFrame(t, client, "s3", make([]byte, 6), false)
	waitFor(t, "buffered audio", func() bool { n, _ := svc.bufferLen("s3"); return n == 6 })

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	ev := nextKind(t, rec, EventFinal)
	if ev.Text != "[pl-PL final transcript length=6]" {
		t.Fatalf("unexpected final %q", ev.Text)
	}
	nextKind(t, rec, EventEnd)
}

func TestNewRecognizer(t *testing.T) {
	if _, err := NewRecognizer(config.STTConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected error for exec without command")
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "vosk"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
