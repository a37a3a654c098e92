package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/nats-io/nats.go"
)

const defaultEndTimeout = 5 * time.Second

// BusSource captures through the recognition service over the bus for one
// session: it publishes control messages and relays that session's
// transcripts and errors.
type BusSource struct {
	bus        *bus.Client
	sessionID  string
	log        *slog.Logger
	endTimeout time.Duration
}

func NewBusSource(busClient *bus.Client, sessionID string) *BusSource {
	return &BusSource{
		bus:        busClient,
		sessionID:  sessionID,
		log:        busClient.Logger().With(slog.String("component", "bus_source"), slog.String("session_id", sessionID)),
		endTimeout: defaultEndTimeout,
	}
}

type busEnvelope struct {
	subject string
	data    []byte
}

func (b *BusSource) Open(ctx context.Context, language string) (<-chan Batch, error) {
	if !b.bus.Healthy() {
		return nil, fmt.Errorf("bus not connected")
	}

	inbox := make(chan busEnvelope, 64)
	subjects := []string{
		protocol.SubjectTranscriptPartial,
		protocol.SubjectTranscriptFinal,
		protocol.SubjectRecognitionError,
		protocol.SubjectRecognitionEnd,
	}
	var subs []*nats.Subscription
	unsubscribe := func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}
	for _, subject := range subjects {
		sub, err := b.bus.Conn().Subscribe(subject, func(msg *nats.Msg) {
			select {
			case inbox <- busEnvelope{subject: msg.Subject, data: msg.Data}:
			default:
				b.log.Warn("recognition inbox full, dropping message", slog.String("subject", msg.Subject))
			}
		})
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	start := protocol.RecognitionControl{SessionID: b.sessionID, Language: language, Timestamp: time.Now().UTC()}
	if err := b.bus.PublishJSON(protocol.SubjectRecognitionStart, start); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("publish start: %w", err)
	}
	if err := b.bus.Conn().Flush(); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("flush start: %w", err)
	}

	out := make(chan Batch)
	go func() {
		defer close(out)
		defer unsubscribe()
		b.relay(ctx, inbox, out)
	}()
	return out, nil
}

func (b *BusSource) relay(ctx context.Context, inbox <-chan busEnvelope, out chan<- Batch) {
	done := ctx.Done()
	var deadline <-chan time.Time
	for {
		select {
		case <-done:
			done = nil
			stop := protocol.RecognitionControl{SessionID: b.sessionID, Timestamp: time.Now().UTC()}
			if err := b.bus.PublishJSON(protocol.SubjectRecognitionStop, stop); err != nil {
				b.log.Warn("failed to publish stop", slogError(err))
				return
			}
			timer := time.NewTimer(b.endTimeout)
			defer timer.Stop()
			deadline = timer.C
		case <-deadline:
			b.log.Warn("no end of recognition before timeout")
			return
		case env := <-inbox:
			batch, ok, end := b.decode(env)
			if end {
				return
			}
			if !ok {
				continue
			}
			select {
			case out <- batch:
			case <-deadline:
				return
			}
		}
	}
}

// decode maps a bus message for this session to a batch. end is true once the
// service reports the end of capture.
func (b *BusSource) decode(env busEnvelope) (batch Batch, ok bool, end bool) {
	switch env.subject {
	case protocol.SubjectTranscriptPartial, protocol.SubjectTranscriptFinal:
		var t protocol.Transcript
		if err := json.Unmarshal(env.data, &t); err != nil {
			b.log.Warn("failed to decode transcript", slogError(err))
			return Batch{}, false, false
		}
		if t.SessionID != b.sessionID {
			return Batch{}, false, false
		}
		return Batch{Results: []Fragment{{Text: t.Text, Final: !t.Partial}}}, true, false
	case protocol.SubjectRecognitionError:
		var e protocol.RecognitionError
		if err := json.Unmarshal(env.data, &e); err != nil {
			b.log.Warn("failed to decode recognition error", slogError(err))
			return Batch{}, false, false
		}
		if e.SessionID != b.sessionID {
			return Batch{}, false, false
		}
		return Batch{Failure: &Failure{Code: e.Code, Message: e.Message}}, true, false
	case protocol.SubjectRecognitionEnd:
		var e protocol.RecognitionEnd
		if err := json.Unmarshal(env.data, &e); err != nil {
			b.log.Warn("failed to decode recognition end", slogError(err))
			return Batch{}, false, false
		}
		return Batch{}, false, e.SessionID == b.sessionID
	}
	return Batch{}, false, false
}
