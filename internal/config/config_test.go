package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Translation.Provider != "mock" {
		t.Fatalf("expected mock provider by default, got %q", cfg.Translation.Provider)
	}
	if cfg.Session.Policy != "serial" {
		t.Fatalf("expected serial policy by default, got %q", cfg.Session.Policy)
	}
}

func TestTranslateURL(t *testing.T) {
	cfg := Default()
	if cfg.Translation.Endpoint != "" {
		t.Fatalf("expected empty default endpoint, got %q", cfg.Translation.Endpoint)
	}
	cfg.HTTP.Port = 8080
	if got := cfg.TranslateURL(); got != "http://127.0.0.1:8080/translate" {
		t.Fatalf("unexpected self url %q", got)
	}
	cfg.HTTP.Bind = "10.0.0.5"
	if got := cfg.TranslateURL(); got != "http://10.0.0.5:8080/translate" {
		t.Fatalf("unexpected bind url %q", got)
	}
	cfg.Translation.Endpoint = "http://translator:5000/translate"
	if got := cfg.TranslateURL(); got != cfg.Translation.Endpoint {
		t.Fatalf("expected configured endpoint, got %q", got)
	}
}

func TestTranslateURLFollowsPortOverride(t *testing.T) {
	t.Setenv("LOQA_HTTP_PORT", "8081")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.TranslateURL(); got != "http://127.0.0.1:8081/translate" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa.yaml")
	data := []byte(`
runtime_name: test-runtime
http:
  port: 9000
translation:
  provider: ollama
  ollama:
    endpoint: http://ollama:11434
    model: qwen2.5
session:
  source_lang: de-DE
  target_lang: en-GB
  policy: concurrent
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" || cfg.HTTP.Port != 9000 {
		t.Fatalf("unexpected runtime settings: %+v", cfg)
	}
	if cfg.Translation.Ollama.Model != "qwen2.5" {
		t.Fatalf("expected ollama model override, got %q", cfg.Translation.Ollama.Model)
	}
	if cfg.Session.SourceLang != "de-DE" || cfg.Session.Policy != "concurrent" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	// untouched sections keep defaults
	if cfg.STT.SampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.STT.SampleRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_CONVERSATION_LOG_STORE", "sqlite")
	t.Setenv("LOQA_CONVERSATION_LOG_PATH", "./tmp.db")
	t.Setenv("LOQA_STT_LANGUAGES", "en-US,pl-PL")
	t.Setenv("LOQA_TRANSLATION_PROVIDER", "exec")
	t.Setenv("LOQA_TRANSLATION_COMMAND", "translate --json")
	t.Setenv("LOQA_SESSION_POLICY", "concurrent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.ConversationLog.Store != "sqlite" || cfg.ConversationLog.Path != "./tmp.db" {
		t.Fatalf("expected conversation log override, got %+v", cfg.ConversationLog)
	}
	if len(cfg.STT.Languages) != 2 || cfg.STT.Languages[1] != "pl-PL" {
		t.Fatalf("expected stt languages override, got %v", cfg.STT.Languages)
	}
	if cfg.Translation.Provider != "exec" || cfg.Translation.Command != "translate --json" {
		t.Fatalf("expected translation override, got %+v", cfg.Translation)
	}
	if cfg.Session.Policy != "concurrent" {
		t.Fatalf("expected session policy override")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad port":         func(c *Config) { c.HTTP.Port = 0 },
		"bad store":        func(c *Config) { c.ConversationLog.Store = "redis" },
		"bad provider":     func(c *Config) { c.Translation.Provider = "deepl" },
		"exec without cmd": func(c *Config) { c.Translation.Provider = "exec"; c.Translation.Command = "" },
		"bad policy":       func(c *Config) { c.Session.Policy = "cancel" },
		"stt exec no cmd":  func(c *Config) { c.STT.Mode = "exec"; c.STT.Command = "" },
		"empty lang":       func(c *Config) { c.Session.TargetLang = "" },
		"metrics path":     func(c *Config) { c.Telemetry.PrometheusPath = "metrics" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
