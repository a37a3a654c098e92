package translation

import "fmt"

// Source tags how a translation result was produced. The set is closed:
// ParseSource rejects anything not listed here.
type Source int

const (
	SourceGoogle Source = iota + 1
	SourceOllama
	SourceExec
	SourceNoTranslationNeeded
	SourceMock
	SourceMockUnavailable
	SourceMockAPIError
	SourceMockNoTranslationNeeded
	SourceHTTPError
	SourceClientError
	SourceErrorHandler
)

// Kind groups sources for display purposes.
type Kind int

const (
	KindProvider Kind = iota + 1
	KindBypass
	KindMock
	KindError
)

var sourceTags = map[Source]string{
	SourceGoogle:                  "google_translate_api",
	SourceOllama:                  "ollama",
	SourceExec:                    "exec",
	SourceNoTranslationNeeded:     "no_translation_needed",
	SourceMock:                    "mock",
	SourceMockUnavailable:         "mock_unavailable",
	SourceMockAPIError:            "mock_api_error",
	SourceMockNoTranslationNeeded: "mock_no_translation_needed",
	SourceHTTPError:               "http_error",
	SourceClientError:             "client_error",
	SourceErrorHandler:            "error_handler",
}

var tagSources = func() map[string]Source {
	out := make(map[string]Source, len(sourceTags))
	for s, tag := range sourceTags {
		out[tag] = s
	}
	return out
}()

// Sources lists every defined source in declaration order.
func Sources() []Source {
	out := make([]Source, 0, len(sourceTags))
	for s := SourceGoogle; s <= SourceErrorHandler; s++ {
		out = append(out, s)
	}
	return out
}

// ParseSource maps a wire tag to a Source.
func ParseSource(tag string) (Source, error) {
	if s, ok := tagSources[tag]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("unknown translation source %q", tag)
}

func (s Source) String() string {
	if tag, ok := sourceTags[s]; ok {
		return tag
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Valid reports whether s is one of the defined sources.
func (s Source) Valid() bool {
	_, ok := sourceTags[s]
	return ok
}

func (s Source) Kind() Kind {
	switch s {
	case SourceGoogle, SourceOllama, SourceExec:
		return KindProvider
	case SourceNoTranslationNeeded:
		return KindBypass
	case SourceMock, SourceMockUnavailable, SourceMockAPIError, SourceMockNoTranslationNeeded:
		return KindMock
	case SourceHTTPError, SourceClientError, SourceErrorHandler:
		return KindError
	}
	return KindError
}

// IsError reports whether the result carries an error message instead of a translation.
func (s Source) IsError() bool {
	return s.Kind() == KindError
}

func (s Source) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid translation source %d", int(s))
	}
	return []byte(sourceTags[s]), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
