package recognition

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that describes the buffer instead of
// decoding it. An empty buffer yields an empty transcript.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, audio Audio) (TranscriptResult, error) {
	if len(audio.PCM) == 0 {
		return TranscriptResult{}, nil
	}
	mode := "partial"
	if audio.Final {
		mode = "final"
	}
	return TranscriptResult{
		Text:       fmt.Sprintf("[%s %s transcript length=%d]", audio.Language, mode, len(audio.PCM)),
		Confidence: 0,
	}, nil
}
