// Package session holds the per-user presentation state: the original and
// translated panes, the start/stop control, and the conversation log fed by
// finalized utterances.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-translate/internal/annotate"
	"github.com/loqalabs/loqa-translate/internal/client"
	"github.com/loqalabs/loqa-translate/internal/convlog"
	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/loqalabs/loqa-translate/internal/recognition"
)

const (
	TextSpeechPlaceholder      = "Speech will appear here after listening."
	TextTranslationPlaceholder = "Translation will appear here..."
	TextListening              = "Listening..."
	TextTranslating            = "Translating..."
	TextStopped                = `Stopped. Click "Start Listening" to try again.`
	TextTranslationIncomplete  = "Translation cancelled or incomplete."
	TextTranslationStalled     = "Translation stalled due to speech error."
	TextStartFailed            = "Error starting recognition. Check the logs."
	TextCannotStart            = "Translation cannot start."
	TextUnsupportedSpeech      = "Sorry, speech recognition is not available on this server."
	TextUnsupported            = "Speech recognition not supported."

	ButtonStart = "Start Listening"
	ButtonStop  = "Stop Listening"
)

const (
	PolicySerial     = "serial"
	PolicyConcurrent = "concurrent"
)

// Translator is satisfied by *client.Client.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) client.Result
}

// Publisher is satisfied by *bus.Client.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Pane is one text area. Emphasis marks transient states such as
// "Listening...".
type Pane struct {
	Text     string `json:"text"`
	Emphasis bool   `json:"emphasis,omitempty"`
}

// View is a snapshot of everything a client renders.
type View struct {
	SessionID      string `json:"session_id"`
	SourceLang     string `json:"source_lang"`
	TargetLang     string `json:"target_lang"`
	Original       Pane   `json:"original"`
	Translated     Pane   `json:"translated"`
	Button         string `json:"button"`
	ButtonDisabled bool   `json:"button_disabled"`
	Listening      bool   `json:"listening"`
	LogPlaceholder string `json:"log_placeholder"`
}

// Update is pushed to subscribers. Entry is set when a log entry was appended.
type Update struct {
	View  View               `json:"view"`
	Entry *protocol.LogEntry `json:"entry,omitempty"`
}

type Options struct {
	ID            string
	SourceLang    string
	TargetLang    string
	Policy        string
	ClientTimeout time.Duration
	// Source may be nil, which leaves the session without speech capture.
	Source     recognition.Source
	Translator Translator
	Store      convlog.Store
	Publisher  Publisher
	Logger     *slog.Logger
}

type utterance struct {
	text       string
	sourceLang string
	targetLang string
}

type Session struct {
	id            string
	policy        string
	clientTimeout time.Duration
	translator    Translator
	store         convlog.Store
	publisher     Publisher
	logger        *slog.Logger
	controller    *recognition.Controller

	ctx    context.Context
	cancel context.CancelFunc
	work   chan utterance
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	sourceLang  string
	targetLang  string
	original    Pane
	translated  Pane
	entries     int
	subscribers map[int]chan Update
	nextSub     int
}

func New(opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            opts.ID,
		policy:        opts.Policy,
		clientTimeout: opts.ClientTimeout,
		translator:    opts.Translator,
		store:         opts.Store,
		publisher:     opts.Publisher,
		logger:        opts.Logger.With(slog.String("component", "session"), slog.String("session_id", opts.ID)),
		ctx:           ctx,
		cancel:        cancel,
		sourceLang:    opts.SourceLang,
		targetLang:    opts.TargetLang,
		original:      Pane{Text: TextSpeechPlaceholder},
		translated:    Pane{Text: TextTranslationPlaceholder},
		subscribers:   make(map[int]chan Update),
	}
	if s.policy == "" {
		s.policy = PolicySerial
	}
	s.controller = recognition.NewController(opts.Source, recognition.HandlerFunc(s.handleRecognition), s.logger)
	if !s.controller.Supported() {
		s.original = Pane{Text: TextUnsupportedSpeech}
		s.translated = Pane{Text: TextUnsupported}
	}
	if s.policy == PolicySerial {
		s.work = make(chan utterance, 32)
		s.wg.Add(1)
		go s.serialWorker()
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// View returns the current display state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	supported := s.controller.Supported()
	listening := s.controller.Listening()
	v := View{
		SessionID:      s.id,
		SourceLang:     s.sourceLang,
		TargetLang:     s.targetLang,
		Original:       s.original,
		Translated:     s.translated,
		Button:         ButtonStart,
		ButtonDisabled: !supported,
		Listening:      listening,
	}
	if listening {
		v.Button = ButtonStop
	}
	if s.entries == 0 {
		v.LogPlaceholder = annotate.EmptyLogText
		if !supported {
			v.LogPlaceholder = TextUnsupported
		}
	}
	return v
}

// SetLanguages changes the selected pair. The source language applies from the
// next start; the target applies from the next finalized utterance.
func (s *Session) SetLanguages(sourceLang, targetLang string) error {
	if sourceLang == "" || targetLang == "" {
		return errors.New("source and target language are required")
	}
	s.mu.Lock()
	s.sourceLang = sourceLang
	s.targetLang = targetLang
	s.broadcastLocked(nil)
	s.mu.Unlock()
	return nil
}

// Toggle stops capture when listening and starts it otherwise. Start
// failures are also reflected in the panes.
func (s *Session) Toggle() error {
	if s.controller.Listening() {
		return s.controller.Stop()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	lang := s.sourceLang
	if s.controller.Supported() {
		s.original = Pane{Text: TextSpeechPlaceholder}
		s.translated = Pane{Text: TextTranslationPlaceholder}
	}
	s.mu.Unlock()

	err := s.controller.Start(s.ctx, lang)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, recognition.ErrUnsupported), errors.Is(err, recognition.ErrAlreadyListening):
		return err
	}
	s.logger.Error("failed to start recognition", slogError(err))
	s.mu.Lock()
	s.original = Pane{Text: TextStartFailed}
	s.translated = Pane{Text: TextCannotStart}
	s.broadcastLocked(nil)
	s.mu.Unlock()
	return err
}

// Log returns the conversation log in append order.
func (s *Session) Log(ctx context.Context) ([]convlog.Entry, error) {
	return s.store.List(ctx, s.id, 0)
}

// Subscribe registers for updates. Slow subscribers miss updates instead of
// blocking the session. The channel is closed by cancel or Close.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	ch <- Update{View: s.viewLocked()}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Close stops capture and waits for in-flight translations.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.controller.Stop()
	s.cancel()
	s.controller.Wait()
	s.wg.Wait()

	s.mu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Session) broadcastLocked(entry *protocol.LogEntry) {
	update := Update{View: s.viewLocked(), Entry: entry}
	for _, ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			s.logger.Debug("subscriber lagging, dropping update")
		}
	}
}

var (
	listeningPane   = Pane{Text: TextListening, Emphasis: true}
	translatingPane = Pane{Text: TextTranslating, Emphasis: true}
)

func (s *Session) handleRecognition(ev recognition.Event) {
	s.mu.Lock()
	var final *utterance
	switch ev.Kind {
	case recognition.EventStart:
		s.original = listeningPane
		s.translated = Pane{Text: TextTranslationPlaceholder}
	case recognition.EventInterim:
		s.original = Pane{Text: ev.Text, Emphasis: true}
	case recognition.EventFinal:
		s.original = Pane{Text: ev.Text}
		s.translated = translatingPane
		final = &utterance{text: ev.Text, sourceLang: s.sourceLang, targetLang: s.targetLang}
	case recognition.EventError:
		s.original = Pane{Text: recognition.Describe(ev.Failure.Code)}
		s.translated = Pane{Text: TextTranslationStalled}
	case recognition.EventEnd:
		switch {
		case s.original == listeningPane:
			s.original = Pane{Text: TextStopped}
			if s.translated == translatingPane {
				s.translated = Pane{Text: TextTranslationPlaceholder}
			}
		case s.translated == translatingPane:
			s.translated = Pane{Text: TextTranslationIncomplete}
		}
	}
	s.broadcastLocked(nil)
	s.mu.Unlock()

	if final != nil {
		s.dispatch(*final)
	}
}

// dispatch hands a finalized utterance to the translation policy. Serial keeps
// utterance order; concurrent applies results in completion order.
func (s *Session) dispatch(u utterance) {
	if s.policy == PolicyConcurrent {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.wg.Done()
			s.translate(u)
		}()
		return
	}
	select {
	case s.work <- u:
	case <-s.ctx.Done():
	}
}

func (s *Session) serialWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case u := <-s.work:
			s.translate(u)
		}
	}
}

func (s *Session) translate(u utterance) {
	ctx := s.ctx
	if s.clientTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.clientTimeout)
		defer cancel()
	}
	res := s.translator.Translate(ctx, u.text, u.sourceLang, u.targetLang)
	if s.ctx.Err() != nil {
		return
	}

	pane := res.TranslatedText
	logged := res.TranslatedText
	if res.Unrecognized {
		s.logger.Warn("translation response has unrecognized source", slog.String("error", res.Message))
	}
	if res.Failed() {
		s.logger.Warn("translation failed", slog.String("translation_source", res.Source.String()), slog.String("error", res.Message))
		pane = "Error translating: " + res.Message
		logged = "Translation Error: " + res.Message
	}

	entry, err := s.store.Append(s.ctx, convlog.Entry{
		SessionID:  s.id,
		Original:   u.text,
		Translated: logged,
		SourceLang: u.sourceLang,
		TargetLang: u.targetLang,
		Source:     res.Source,
	})
	if err != nil {
		s.logger.Error("failed to append conversation log", slogError(err))
	}
	wire := annotate.Wire(entry)
	if err == nil && s.publisher != nil {
		if perr := s.publisher.PublishJSON(protocol.ConversationSubject(s.id), wire); perr != nil {
			s.logger.Warn("failed to publish log entry", slogError(perr))
		}
	}

	s.mu.Lock()
	s.translated = Pane{Text: pane}
	if err == nil {
		s.entries++
		s.broadcastLocked(&wire)
	} else {
		s.broadcastLocked(nil)
	}
	s.mu.Unlock()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
