package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"

	"github.com/loqalabs/loqa-translate/internal/translation"
)

type fakeAPI struct {
	target language.Tag
	opts   *translate.Options
	out    []translate.Translation
	err    error
	closed bool
}

func (f *fakeAPI) Translate(_ context.Context, _ []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error) {
	f.target = target
	f.opts = opts
	return f.out, f.err
}

func (f *fakeAPI) Close() error {
	f.closed = true
	return nil
}

func TestTranslate(t *testing.T) {
	api := &fakeAPI{out: []translate.Translation{{Text: "cześć"}}}
	p := &Provider{client: api}

	got, err := p.Translate(context.Background(), "hello", "en", "pl")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "cześć" {
		t.Fatalf("unexpected translation %q", got)
	}
	if api.target != language.Polish {
		t.Fatalf("expected polish target, got %v", api.target)
	}
	if api.opts.Source != language.English || api.opts.Format != translate.Text {
		t.Fatalf("unexpected options %+v", api.opts)
	}
	if p.Source() != translation.SourceGoogle {
		t.Fatalf("unexpected source %v", p.Source())
	}
}

func TestTranslateErrors(t *testing.T) {
	p := &Provider{client: &fakeAPI{err: errors.New("quota exceeded")}}
	if _, err := p.Translate(context.Background(), "hello", "en", "pl"); err == nil {
		t.Fatal("expected api error")
	}

	p = &Provider{client: &fakeAPI{}}
	if _, err := p.Translate(context.Background(), "hello", "en", "pl"); err == nil {
		t.Fatal("expected empty response error")
	}

	if _, err := p.Translate(context.Background(), "hello", "en", "!!"); err == nil {
		t.Fatal("expected language parse error")
	}
}

func TestClose(t *testing.T) {
	api := &fakeAPI{}
	p := &Provider{client: api}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !api.closed {
		t.Fatal("expected client closed")
	}
}
