package protocol

import "time"

// AudioFrame represents PCM audio data streamed from edge devices.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Language   string    `json:"language,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// RecognitionControl starts or stops capture for a session.
type RecognitionControl struct {
	SessionID string    `json:"session_id"`
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecognitionError reports a capture failure. Code uses the Web Speech error
// vocabulary (no-speech, audio-capture, not-allowed, ...).
type RecognitionError struct {
	SessionID string    `json:"session_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecognitionEnd marks the end of capture for a session.
type RecognitionEnd struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TranslateRequest is the body of POST /translate.
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// TranslateResponse is the success body of POST /translate.
type TranslateResponse struct {
	TranslatedText    string `json:"translated_text"`
	SourceLang        string `json:"source_lang,omitempty"`
	TargetLang        string `json:"target_lang,omitempty"`
	TranslationSource string `json:"translation_source"`
}

// ErrorResponse is the failure body of POST /translate.
type ErrorResponse struct {
	Error             string `json:"error"`
	TranslationSource string `json:"translation_source,omitempty"`
}

// LogEntry is a conversation log entry broadcast after each utterance.
type LogEntry struct {
	SessionID         string    `json:"session_id"`
	Seq               int64     `json:"seq"`
	Original          string    `json:"original"`
	Translated        string    `json:"translated"`
	SourceLang        string    `json:"source_lang"`
	TargetLang        string    `json:"target_lang"`
	TranslationSource string    `json:"translation_source"`
	Status            string    `json:"status"`
	Error             bool      `json:"error"`
	CreatedAt         time.Time `json:"created_at"`
}

const (
	SubjectAudioFramePrefix   = "audio.frame"
	SubjectRecognitionStart   = "stt.control.start"
	SubjectRecognitionStop    = "stt.control.stop"
	SubjectTranscriptPartial  = "stt.text.partial"
	SubjectTranscriptFinal    = "stt.text.final"
	SubjectRecognitionError   = "stt.error"
	SubjectRecognitionEnd     = "stt.end"
	SubjectConversationPrefix = "translate.log"
)

// AudioFrameSubject returns the subject edge devices publish frames on.
func AudioFrameSubject(sessionID string) string {
	return SubjectAudioFramePrefix + "." + sessionID
}

// ConversationSubject returns the subject log entries for a session are published on.
func ConversationSubject(sessionID string) string {
	return SubjectConversationPrefix + "." + sessionID
}
