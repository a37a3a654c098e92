package recognition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSource struct {
	feed    chan Batch
	openErr error
	opened  chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{feed: make(chan Batch), opened: make(chan string, 4)}
}

func (f *fakeSource) Open(ctx context.Context, language string) (<-chan Batch, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened <- language
	out := make(chan Batch)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-f.feed:
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type recorder struct {
	events chan Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan Event, 16)}
}

func (r *recorder) HandleRecognition(ev Event) {
	r.events <- ev
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recognition event")
		return Event{}
	}
}

func TestControllerUnsupported(t *testing.T) {
	c := NewController(nil, newRecorder(), newLogger())
	if c.Supported() {
		t.Fatal("expected unsupported controller")
	}
	if err := c.Start(context.Background(), "en-US"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestControllerOpenError(t *testing.T) {
	src := newFakeSource()
	src.openErr = errors.New("bus down")
	c := NewController(src, newRecorder(), newLogger())
	err := c.Start(context.Background(), "en-US")
	if err == nil || !errors.Is(err, src.openErr) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
	if c.Listening() {
		t.Fatal("controller must not be listening after failed start")
	}
}

func TestControllerLifecycle(t *testing.T) {
	src := newFakeSource()
	rec := newRecorder()
	c := NewController(src, rec, newLogger())

	if err := c.Start(context.Background(), "pl-PL"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := <-src.opened; got != "pl-PL" {
		t.Fatalf("source opened with %q", got)
	}
	if ev := rec.next(t); ev.Kind != EventStart {
		t.Fatalf("expected start, got %v", ev.Kind)
	}
	if !c.Listening() || c.Language() != "pl-PL" {
		t.Fatalf("unexpected state listening=%v language=%q", c.Listening(), c.Language())
	}
	if err := c.Start(context.Background(), "pl-PL"); !errors.Is(err, ErrAlreadyListening) {
		t.Fatalf("expected ErrAlreadyListening, got %v", err)
	}

	src.feed <- Batch{Results: []Fragment{{Text: "dzień "}, {Text: "dobry"}}}
	if ev := rec.next(t); ev.Kind != EventInterim || ev.Text != "dzień dobry" {
		t.Fatalf("unexpected interim %+v", ev)
	}
	src.feed <- Batch{Results: []Fragment{{Text: " dzień dobry ", Final: true}, {Text: "i"}}}
	if ev := rec.next(t); ev.Kind != EventFinal || ev.Text != "dzień dobry" {
		t.Fatalf("unexpected final %+v", ev)
	}
	src.feed <- Batch{Results: []Fragment{{Text: "  ", Final: true}}}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if ev := rec.next(t); ev.Kind != EventEnd {
		t.Fatalf("expected end, got %v", ev.Kind)
	}
	c.Wait()
	if c.Listening() {
		t.Fatal("expected controller to stop listening")
	}
	if err := c.Stop(); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
}

func TestControllerErrorEndsCapture(t *testing.T) {
	src := newFakeSource()
	rec := newRecorder()
	c := NewController(src, rec, newLogger())
	if err := c.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.next(t)

	src.feed <- Batch{Failure: &Failure{Code: CodeNoSpeech}}
	ev := rec.next(t)
	if ev.Kind != EventError || ev.Failure.Code != CodeNoSpeech {
		t.Fatalf("expected no-speech error, got %+v", ev)
	}
	if ev := rec.next(t); ev.Kind != EventEnd {
		t.Fatalf("expected end after error, got %v", ev.Kind)
	}
	c.Wait()

	if err := c.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("restart after error: %v", err)
	}
	if ev := rec.next(t); ev.Kind != EventStart {
		t.Fatalf("expected start on restart, got %v", ev.Kind)
	}
	_ = c.Stop()
	rec.next(t)
}

func TestMerge(t *testing.T) {
	interim, final := Merge([]Fragment{
		{Text: " hello ", Final: true},
		{Text: "world", Final: true},
		{Text: "and "},
		{Text: "more"},
	})
	if final != "helloworld" {
		t.Fatalf("unexpected final %q", final)
	}
	if interim != "and more" {
		t.Fatalf("unexpected interim %q", interim)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(CodeNoSpeech); got != "Error: no-speech\nNo speech detected. Please try again." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Describe(CodeNetwork); got != "Error: network" {
		t.Fatalf("unexpected message %q", got)
	}
}
