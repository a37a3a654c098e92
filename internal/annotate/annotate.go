// Package annotate turns conversation log entries into display labels and
// rendered output. Everything here is pure.
package annotate

import (
	"fmt"

	"github.com/loqalabs/loqa-translate/internal/translation"
)

// Status is the human-readable annotation of a translation result.
type Status struct {
	Label string
	// Error marks the label as error-styled.
	Error bool
	// ErrorText marks the translated text itself as an error message.
	ErrorText bool
}

type rule struct {
	format    string
	error     bool
	errorText bool
}

var (
	mockRule     = rule{format: "(Mock translation to %s)"}
	mockSameRule = rule{format: "(Mock - No translation needed %s)"}
	errorRule    = rule{format: "(Translation Error to %s)", error: true, errorText: true}
)

var rules = map[translation.Source]rule{
	translation.SourceGoogle:                  {format: "(Translated by Google to %s)"},
	translation.SourceOllama:                  {format: "(Translated by Ollama to %s)"},
	translation.SourceExec:                    {format: "(Translated by external translator to %s)"},
	translation.SourceNoTranslationNeeded:     {format: "(No translation needed - %s)"},
	translation.SourceMock:                    mockRule,
	translation.SourceMockUnavailable:         mockRule,
	translation.SourceMockAPIError:            mockRule,
	translation.SourceMockNoTranslationNeeded: mockSameRule,
	translation.SourceHTTPError:               errorRule,
	translation.SourceClientError:             errorRule,
	translation.SourceErrorHandler:            errorRule,
}

// Annotate maps a source tag and the language pair to a display status.
// Mock results for a pair with identical display codes always read as
// "no translation needed". Invalid sources are annotated as errors.
func Annotate(source translation.Source, sourceLang, targetLang string) Status {
	target := translation.DisplayCode(targetLang)
	r, ok := rules[source]
	if !ok {
		r = errorRule
	}
	if source.Kind() == translation.KindMock && translation.DisplayCode(sourceLang) == target {
		r = mockSameRule
	}
	return Status{
		Label:     fmt.Sprintf(r.format, target),
		Error:     r.error,
		ErrorText: r.errorText,
	}
}
