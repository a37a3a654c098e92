package recognition

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/mattn/go-shellwords"
)

const pcmBitDepth = 16

var errUnalignedPCM = errors.New("pcm payload is not 16-bit aligned")

type execRecognizer struct {
	argv  []string
	model string
	mu    sync.Mutex
}

type execTranscript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewExecRecognizer shells out to an external transcriber, one process per
// transcription. cfg.Command is split with shell quoting rules and runs are
// serialised.
//
// Invocation:
//
//	<command> --audio <file.wav> [--model <model_path>] [--language <code>] [--partial]
//
// The WAV file holds 16-bit PCM at the frames' sample rate and channel count.
// --partial marks an interim pass. The process must exit 0 and print one JSON
// object {"text": "...", "confidence": 0.0} on stdout; surrounding whitespace
// in text is dropped and an empty text is a valid "heard nothing" answer.
func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	argv, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("stt command is empty")
	}
	return &execRecognizer{argv: argv, model: cfg.ModelPath}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, in Audio) (TranscriptResult, error) {
	if len(in.PCM)%2 != 0 {
		return TranscriptResult{}, errUnalignedPCM
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wavPath, cleanup, err := stageWav(in)
	if err != nil {
		return TranscriptResult{}, err
	}
	defer cleanup()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.argv[0], r.arguments(wavPath, in)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return TranscriptResult{}, fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out execTranscript
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt output: %w", err)
	}
	return TranscriptResult{Text: strings.TrimSpace(out.Text), Confidence: out.Confidence}, nil
}

func (r *execRecognizer) arguments(wavPath string, in Audio) []string {
	args := append([]string(nil), r.argv[1:]...)
	args = append(args, "--audio", wavPath)
	if r.model != "" {
		args = append(args, "--model", r.model)
	}
	if in.Language != "" {
		args = append(args, "--language", in.Language)
	}
	if !in.Final {
		args = append(args, "--partial")
	}
	return args
}

// stageWav writes the utterance to a temp WAV file. cleanup removes it.
func stageWav(in Audio) (string, func(), error) {
	file, err := os.CreateTemp("", "loqa_translate_*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("create wav temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(file.Name()) }
	err = encodeWav(file, in.PCM, in.SampleRate, in.Channels)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return file.Name(), cleanup, nil
}

// encodeWav writes little-endian signed 16-bit PCM as a WAV stream.
func encodeWav(w io.WriteSeeker, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return errUnalignedPCM
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: pcmBitDepth,
	}

	enc := wav.NewEncoder(w, sampleRate, pcmBitDepth, channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
