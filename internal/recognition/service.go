package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service turns audio frames on the bus into transcripts for every session
// that has been started with a control message.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	log        *slog.Logger
	sessions   map[string]*sessionState
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	subs       []*nats.Subscription
	wg         sync.WaitGroup
	ready      bool
}

type sessionState struct {
	Language     string
	Buffer       []byte
	LastPartial  time.Time
	Inflight     bool
	PendingFinal bool
	Stopping     bool
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		log:        busClient.Logger().With(slog.String("component", "recognition")),
		sessions:   make(map[string]*sessionState),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// NewRecognizer builds the recognizer named by cfg.Mode.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	handlers := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectRecognitionStart, s.handleStart},
		{protocol.SubjectRecognitionStop, s.handleStop},
		{protocol.SubjectAudioFramePrefix + ".>", s.handleFrame},
	}
	for _, h := range handlers {
		sub, err := s.bus.Conn().Subscribe(h.subject, h.handler)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", h.subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.bus.Conn().Flush(); err != nil {
		s.unsubscribe()
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.log.Info("recognition service started", slog.String("mode", s.cfg.Mode))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	s.wg.Wait()
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) handleStart(msg *nats.Msg) {
	var ctl protocol.RecognitionControl
	if err := json.Unmarshal(msg.Data, &ctl); err != nil || ctl.SessionID == "" {
		s.log.Warn("invalid recognition start", slog.String("payload", string(msg.Data)))
		return
	}
	if len(s.cfg.Languages) > 0 && !slices.Contains(s.cfg.Languages, ctl.Language) {
		s.publishError(ctl.SessionID, CodeLanguageUnsupported, fmt.Sprintf("language %q is not supported", ctl.Language))
		return
	}

	s.mu.Lock()
	state := s.sessions[ctl.SessionID]
	if state == nil {
		s.sessions[ctl.SessionID] = &sessionState{Language: ctl.Language}
	} else {
		state.Language = ctl.Language
		state.Stopping = false
	}
	s.mu.Unlock()
	s.log.Debug("recognition started", slog.String("session_id", ctl.SessionID), slog.String("language", ctl.Language))
}

func (s *Service) handleStop(msg *nats.Msg) {
	var ctl protocol.RecognitionControl
	if err := json.Unmarshal(msg.Data, &ctl); err != nil || ctl.SessionID == "" {
		s.log.Warn("invalid recognition stop", slog.String("payload", string(msg.Data)))
		return
	}

	s.mu.Lock()
	state := s.sessions[ctl.SessionID]
	switch {
	case state == nil:
		s.mu.Unlock()
		s.publishEnd(ctl.SessionID)
		return
	case state.Inflight:
		state.Stopping = true
		state.PendingFinal = len(state.Buffer) > 0
		s.mu.Unlock()
		return
	case len(state.Buffer) > 0:
		state.Stopping = true
		s.mu.Unlock()
		s.scheduleTranscription(ctl.SessionID, true)
		return
	default:
		delete(s.sessions, ctl.SessionID)
		s.mu.Unlock()
		s.publishEnd(ctl.SessionID)
	}
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}

	s.mu.Lock()
	state := s.sessions[frame.SessionID]
	if state == nil || state.Stopping {
		s.mu.Unlock()
		return
	}
	state.Buffer = append(state.Buffer, frame.PCM...)
	s.mu.Unlock()

	if s.cfg.PublishInterim && !frame.Final {
		if s.shouldSchedulePartial(frame.SessionID) {
			s.scheduleTranscription(frame.SessionID, false)
		}
	}
	if frame.Final {
		s.scheduleTranscription(frame.SessionID, true)
	}
}

func (s *Service) shouldSchedulePartial(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	if state == nil || state.Inflight {
		return false
	}
	if state.LastPartial.IsZero() {
		state.LastPartial = time.Now()
		return true
	}
	interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 {
		return false
	}
	if time.Since(state.LastPartial) >= interval {
		state.LastPartial = time.Now()
		return true
	}
	return false
}

func (s *Service) scheduleTranscription(sessionID string, final bool) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	if state.Inflight {
		if final {
			state.PendingFinal = true
		}
		s.mu.Unlock()
		return
	}
	in := Audio{
		PCM:        append([]byte(nil), state.Buffer...),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Language:   state.Language,
		Final:      final,
	}
	if final {
		state.Buffer = nil
		state.PendingFinal = false
	}
	state.Inflight = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transcribe(sessionID, in)
	}()
}

func (s *Service) transcribe(sessionID string, in Audio) {
	timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	result, err := s.recognizer.Transcribe(ctx, in)
	switch {
	case err != nil:
		s.log.Warn("transcription failed", slog.String("session_id", sessionID), slogError(err))
		s.publishError(sessionID, CodeAudioCapture, err.Error())
	case in.Final && result.Text == "":
		s.publishError(sessionID, CodeNoSpeech, "")
	default:
		s.publishTranscript(sessionID, in.Language, result, in.Final)
	}

	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	state.Inflight = false
	if in.Final {
		state.LastPartial = time.Time{}
	} else {
		state.LastPartial = time.Now()
	}
	pendingFinal := state.PendingFinal
	end := state.Stopping && !pendingFinal
	if end {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if pendingFinal {
		s.scheduleTranscription(sessionID, true)
		return
	}
	if end {
		s.publishEnd(sessionID)
	}
}

func (s *Service) publishTranscript(sessionID, language string, result TranscriptResult, final bool) {
	if result.Text == "" {
		return
	}
	subject := protocol.SubjectTranscriptPartial
	if final {
		subject = protocol.SubjectTranscriptFinal
	}
	msg := protocol.Transcript{
		SessionID:  sessionID,
		Text:       result.Text,
		Partial:    !final,
		Language:   language,
		Timestamp:  time.Now().UTC(),
		Confidence: result.Confidence,
	}
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.log.Warn("failed to publish transcript", slogError(err))
	}
}

func (s *Service) publishError(sessionID, code, message string) {
	msg := protocol.RecognitionError{
		SessionID: sessionID,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectRecognitionError, msg); err != nil {
		s.log.Warn("failed to publish recognition error", slogError(err))
	}
}

func (s *Service) publishEnd(sessionID string) {
	msg := protocol.RecognitionEnd{SessionID: sessionID, Timestamp: time.Now().UTC()}
	if err := s.bus.PublishJSON(protocol.SubjectRecognitionEnd, msg); err != nil {
		s.log.Warn("failed to publish recognition end", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
