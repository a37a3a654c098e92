package translation

import (
	"context"
	"strings"
)

// Request is a translation request as received on POST /translate. Language
// codes are full locale tags such as en-US.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
}

// Result is a translated text with the tag describing how it was produced.
type Result struct {
	TranslatedText string
	Source         Source
}

// Provider is a pluggable translation backend. Languages are base codes (en, pl).
type Provider interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	// Source is the tag stamped on successful translations.
	Source() Source
	Close() error
}

// BaseCode strips the region from a locale tag: en-US -> en.
func BaseCode(code string) string {
	base, _, _ := strings.Cut(code, "-")
	return base
}

// DisplayCode is the upper-cased base code used in log labels: pl-PL -> PL.
func DisplayCode(code string) string {
	return strings.ToUpper(BaseCode(code))
}
