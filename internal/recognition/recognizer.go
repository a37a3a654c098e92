package recognition

import (
	"context"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Audio describes a PCM buffer handed to a recognizer.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Language   string
	Final      bool
}

// Recognizer abstracts speech-to-text backends.
type Recognizer interface {
	Transcribe(ctx context.Context, audio Audio) (TranscriptResult, error)
}
