// Package recognition turns streamed audio into interim and final transcripts
// and drives per-session capture through a Controller.
//
// Recognizers are "mock" or "exec". The exec recognizer hands each buffered
// utterance to an external command as a temporary WAV file and reads a JSON
// transcript from its stdout; see NewExecRecognizer for the contract.
package recognition

import "errors"

var (
	// ErrUnsupported means no capture source is available. It is fatal for
	// the control that asked.
	ErrUnsupported      = errors.New("speech recognition not supported")
	ErrAlreadyListening = errors.New("recognition already started")
	ErrNotListening     = errors.New("recognition not started")
)

// Error codes carried by error events and stt.error messages.
const (
	CodeNoSpeech            = "no-speech"
	CodeAudioCapture        = "audio-capture"
	CodeNotAllowed          = "not-allowed"
	CodeLanguageUnsupported = "language-not-supported"
	CodeNetwork             = "network"
	CodeAborted             = "aborted"
)

var codeDetails = map[string]string{
	CodeNoSpeech:     "No speech detected. Please try again.",
	CodeAudioCapture: "Audio capture problem. Is your microphone working?",
	CodeNotAllowed:   "Microphone access denied. Please allow microphone access.",
}

// Describe returns the user-facing message for an error code: "Error: <code>"
// followed by a hint line for the codes that have one.
func Describe(code string) string {
	msg := "Error: " + code
	if detail, ok := codeDetails[code]; ok {
		msg += "\n" + detail
	}
	return msg
}
