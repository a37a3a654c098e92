package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

type EventKind int

const (
	EventStart EventKind = iota + 1
	EventInterim
	EventFinal
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Failure is a recognition error as reported by a source.
type Failure struct {
	Code    string
	Message string
}

// Event is delivered to a Handler. Text is set for interim and final events,
// Failure for error events.
type Event struct {
	Kind    EventKind
	Text    string
	Failure Failure
}

type Handler interface {
	HandleRecognition(Event)
}

type HandlerFunc func(Event)

func (f HandlerFunc) HandleRecognition(ev Event) { f(ev) }

// Fragment is one recognition result within a batch.
type Fragment struct {
	Text  string
	Final bool
}

// Batch is one delivery from a Source: either result fragments or a failure.
type Batch struct {
	Results []Fragment
	Failure *Failure
}

// Merge folds a result batch into utterance text. Final fragments are trimmed
// and concatenated; interim fragments are concatenated as-is.
func Merge(results []Fragment) (interim, final string) {
	var ib, fb strings.Builder
	for _, r := range results {
		if r.Final {
			fb.WriteString(strings.TrimSpace(r.Text))
		} else {
			ib.WriteString(r.Text)
		}
	}
	return ib.String(), fb.String()
}

// Source opens continuous capture in a language. The returned channel is
// closed when capture ends, which must happen soon after ctx is cancelled.
type Source interface {
	Open(ctx context.Context, language string) (<-chan Batch, error)
}

// Controller owns one capture at a time. Events for a capture are delivered
// sequentially: start, any number of interim/final/error, then end.
type Controller struct {
	source  Source
	handler Handler
	log     *slog.Logger

	mu        sync.Mutex
	listening bool
	language  string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController returns a controller. A nil source yields an unsupported
// controller whose Start always fails with ErrUnsupported.
func NewController(source Source, handler Handler, log *slog.Logger) *Controller {
	return &Controller{source: source, handler: handler, log: log}
}

func (c *Controller) Supported() bool {
	return c.source != nil
}

func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Language is the language of the current or last capture.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Start begins capture. The start event is delivered before Start returns.
func (c *Controller) Start(ctx context.Context, language string) error {
	if c.source == nil {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return ErrAlreadyListening
	}

	runCtx, cancel := context.WithCancel(ctx)
	batches, err := c.source.Open(runCtx, language)
	if err != nil {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("start recognition: %w", err)
	}
	done := make(chan struct{})
	c.listening = true
	c.language = language
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.handler.HandleRecognition(Event{Kind: EventStart})
	go c.pump(batches, cancel, done)
	return nil
}

// Stop requests the end of capture. The end event follows asynchronously.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listening {
		return ErrNotListening
	}
	c.cancel()
	return nil
}

// Wait blocks until the current capture, if any, has delivered its end event.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) pump(batches <-chan Batch, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	failed := false
	for batch := range batches {
		if batch.Failure != nil {
			if failed {
				continue
			}
			failed = true
			c.log.Warn("recognition error", slog.String("code", batch.Failure.Code), slog.String("message", batch.Failure.Message))
			c.handler.HandleRecognition(Event{Kind: EventError, Failure: *batch.Failure})
			cancel()
			continue
		}
		if failed {
			continue
		}
		interim, final := Merge(batch.Results)
		switch {
		case final != "":
			c.handler.HandleRecognition(Event{Kind: EventFinal, Text: final})
		case interim != "":
			c.handler.HandleRecognition(Event{Kind: EventInterim, Text: interim})
		}
	}
	cancel()

	c.mu.Lock()
	c.listening = false
	c.cancel = nil
	c.mu.Unlock()
	c.handler.HandleRecognition(Event{Kind: EventEnd})
}
