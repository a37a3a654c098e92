package recognition

import (
	"context"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-translate/internal/config"
)

func TestExecRecognizer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := filepath.Join(dir, "stt.sh")
	body := "#!/bin/sh\necho \"$@\" > " + argsFile + "\necho '{\"text\":\" hello there \",\"confidence\":0.75}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	r, err := NewExecRecognizer(config.STTConfig{Command: "sh " + script, ModelPath: "/models/tiny"})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	res, err := r.Transcribe(context.Background(), Audio{PCM: make([]byte, 32), SampleRate: 16000, Channels: 1, Language: "pl-PL"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "hello there" || res.Confidence != 0.75 {
		t.Fatalf("unexpected result %+v", res)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	for _, want := range []string{"--audio", "--model /models/tiny", "--language pl-PL", "--partial"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("expected %q in args %q", want, args)
		}
	}
}

func TestExecRecognizerRejectsOddPCM(t *testing.T) {
	r, err := NewExecRecognizer(config.STTConfig{Command: "true"})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	if _, err := r.Transcribe(context.Background(), Audio{PCM: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1}); err == nil {
		t.Fatal("expected alignment error")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "stt.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return "sh " + script
}

func TestExecRecognizerFinalPass(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	command := writeScript(t, "echo \"$@\" > "+argsFile+"\necho '{\"text\":\"\"}'\n")
	r, err := NewExecRecognizer(config.STTConfig{Command: command})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	res, err := r.Transcribe(context.Background(), Audio{PCM: make([]byte, 8), SampleRate: 16000, Channels: 1, Final: true})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "" {
		t.Fatalf("expected empty transcript, got %q", res.Text)
	}
	args, _ := os.ReadFile(argsFile)
	if strings.Contains(string(args), "--partial") || strings.Contains(string(args), "--model") {
		t.Fatalf("unexpected args for final pass %q", args)
	}
}

func TestExecRecognizerBadOutput(t *testing.T) {
	r, err := NewExecRecognizer(config.STTConfig{Command: writeScript(t, "echo not-json\n")})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	if _, err := r.Transcribe(context.Background(), Audio{PCM: make([]byte, 8), SampleRate: 16000, Channels: 1}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEncodeWav(t *testing.T) {
	pcm := make([]byte, 8)
	for i, v := range []int16{0, 1000, -1000, 32767} {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
	}
	path := filepath.Join(t.TempDir(), "out.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := encodeWav(file, pcm, 16000, 1); err != nil {
		t.Fatalf("encode: %v", err)
	}
	file.Close()

	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer in.Close()
	dec := wav.NewDecoder(in)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 16000 || dec.BitDepth != 16 || dec.NumChans != 1 {
		t.Fatalf("unexpected header rate=%d depth=%d chans=%d", dec.SampleRate, dec.BitDepth, dec.NumChans)
	}
	if len(buf.Data) != 4 || buf.Data[2] != -1000 || buf.Data[3] != 32767 {
		t.Fatalf("unexpected samples %v", buf.Data)
	}
}
