package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusPath string `yaml:"prometheus_path"`
}

type HTTPConfig struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Config struct {
	RuntimeName     string                `yaml:"runtime_name"`
	Environment     string                `yaml:"environment"`
	HTTP            HTTPConfig            `yaml:"http"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
	Bus             BusConfig             `yaml:"bus"`
	ConversationLog ConversationLogConfig `yaml:"conversation_log"`
	STT             STTConfig             `yaml:"stt"`
	Translation     TranslationConfig     `yaml:"translation"`
	Session         SessionConfig         `yaml:"session"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// ConversationLogConfig selects where session conversation logs live. The
// memory store and the default SQLite DSN both vanish with the process.
type ConversationLogConfig struct {
	Store      string `yaml:"store"` // memory, sqlite
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

type STTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Mode           string   `yaml:"mode"` // mock, exec
	Command        string   `yaml:"command"`
	ModelPath      string   `yaml:"model_path"`
	Languages      []string `yaml:"languages"`
	SampleRate     int      `yaml:"sample_rate"`
	Channels       int      `yaml:"channels"`
	PartialEveryMS int      `yaml:"partial_every_ms"`
	PublishInterim bool     `yaml:"publish_interim"`
	TimeoutMS      int      `yaml:"timeout_ms"`
}

type TranslationConfig struct {
	Provider        string       `yaml:"provider"` // mock, google, ollama, exec
	Endpoint        string       `yaml:"endpoint"` // empty targets this runtime's own /translate
	ClientTimeoutMS int          `yaml:"client_timeout_ms"`
	Google          GoogleConfig `yaml:"google"`
	Ollama          OllamaConfig `yaml:"ollama"`
	Command         string       `yaml:"command"`
}

type GoogleConfig struct {
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
}

type OllamaConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

type SessionConfig struct {
	SourceLang  string `yaml:"source_lang"`
	TargetLang  string `yaml:"target_lang"`
	Policy      string `yaml:"policy"` // serial, concurrent
	MaxSessions int    `yaml:"max_sessions"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-translate",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "127.0.0.1",
			Port:        5000,
			CORSOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusPath: "/metrics",
		},
		Bus: BusConfig{
			Embedded:       true,
			Host:           "127.0.0.1",
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		ConversationLog: ConversationLogConfig{
			Store:      "memory",
			Path:       "file:loqa-convlog?mode=memory&cache=shared",
			MaxEntries: 1000,
		},
		STT: STTConfig{
			Enabled:        true,
			Mode:           "mock",
			SampleRate:     16000,
			Channels:       1,
			PartialEveryMS: 800,
			PublishInterim: true,
			TimeoutMS:      45000,
		},
		Translation: TranslationConfig{
			Provider: "mock",
			Ollama: OllamaConfig{
				Endpoint: "http://localhost:11434",
				Model:    "llama3.2:latest",
			},
		},
		Session: SessionConfig{
			SourceLang:  "en-US",
			TargetLang:  "pl-PL",
			Policy:      "serial",
			MaxSessions: 64,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TranslateURL is the endpoint sessions post utterances to: the configured
// translation.endpoint, else this runtime's own /translate on http.bind and
// http.port. Wildcard binds resolve to loopback.
func (c Config) TranslateURL() string {
	if c.Translation.Endpoint != "" {
		return c.Translation.Endpoint
	}
	host := c.HTTP.Bind
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.HTTP.Port)) + "/translate"
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.CORSOrigins, "LOQA_HTTP_CORS_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "LOQA_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusPath, "LOQA_TELEMETRY_PROMETHEUS_PATH")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "LOQA_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.ConversationLog.Store, "LOQA_CONVERSATION_LOG_STORE")
	overrideString(&cfg.ConversationLog.Path, "LOQA_CONVERSATION_LOG_PATH")
	overrideInt(&cfg.ConversationLog.MaxEntries, "LOQA_CONVERSATION_LOG_MAX_ENTRIES")
	overrideBool(&cfg.STT.Enabled, "LOQA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideStringSlice(&cfg.STT.Languages, "LOQA_STT_LANGUAGES")
	overrideInt(&cfg.STT.SampleRate, "LOQA_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "LOQA_STT_CHANNELS")
	overrideInt(&cfg.STT.PartialEveryMS, "LOQA_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.STT.PublishInterim, "LOQA_STT_PUBLISH_INTERIM")
	overrideInt(&cfg.STT.TimeoutMS, "LOQA_STT_TIMEOUT_MS")
	overrideString(&cfg.Translation.Provider, "LOQA_TRANSLATION_PROVIDER")
	overrideString(&cfg.Translation.Endpoint, "LOQA_TRANSLATION_ENDPOINT")
	overrideInt(&cfg.Translation.ClientTimeoutMS, "LOQA_TRANSLATION_CLIENT_TIMEOUT_MS")
	overrideString(&cfg.Translation.Google.APIKey, "LOQA_TRANSLATION_GOOGLE_API_KEY")
	overrideString(&cfg.Translation.Google.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	overrideString(&cfg.Translation.Ollama.Endpoint, "LOQA_TRANSLATION_OLLAMA_ENDPOINT")
	overrideString(&cfg.Translation.Ollama.Model, "LOQA_TRANSLATION_OLLAMA_MODEL")
	overrideString(&cfg.Translation.Command, "LOQA_TRANSLATION_COMMAND")
	overrideString(&cfg.Session.SourceLang, "LOQA_SESSION_SOURCE_LANG")
	overrideString(&cfg.Session.TargetLang, "LOQA_SESSION_TARGET_LANG")
	overrideString(&cfg.Session.Policy, "LOQA_SESSION_POLICY")
	overrideInt(&cfg.Session.MaxSessions, "LOQA_SESSION_MAX_SESSIONS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.ConversationLog.Store {
	case "memory":
	case "sqlite":
		if cfg.ConversationLog.Path == "" {
			return errors.New("conversation_log.path must be set when store=sqlite")
		}
	default:
		return errors.New("conversation_log.store must be one of memory|sqlite")
	}
	if cfg.ConversationLog.MaxEntries < 0 {
		return errors.New("conversation_log.max_entries must be >= 0")
	}
	if cfg.Telemetry.PrometheusPath == "" || !strings.HasPrefix(cfg.Telemetry.PrometheusPath, "/") {
		return errors.New("telemetry.prometheus_path must start with /")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	}
	switch cfg.Translation.Provider {
	case "mock", "google":
	case "ollama":
		if cfg.Translation.Ollama.Endpoint == "" {
			return errors.New("translation.ollama.endpoint must be set when provider=ollama")
		}
	case "exec":
		if cfg.Translation.Command == "" {
			return errors.New("translation.command must be set when provider=exec")
		}
	default:
		return errors.New("translation.provider must be one of mock|google|ollama|exec")
	}
	if cfg.Translation.ClientTimeoutMS < 0 {
		return errors.New("translation.client_timeout_ms must be >= 0")
	}
	if cfg.Session.SourceLang == "" || cfg.Session.TargetLang == "" {
		return errors.New("session.source_lang and session.target_lang must not be empty")
	}
	switch cfg.Session.Policy {
	case "serial", "concurrent":
	default:
		return errors.New("session.policy must be one of serial|concurrent")
	}
	if cfg.Session.MaxSessions <= 0 {
		return errors.New("session.max_sessions must be >= 1")
	}
	return nil
}
