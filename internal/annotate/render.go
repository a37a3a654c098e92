package annotate

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/loqalabs/loqa-translate/internal/convlog"
	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/loqalabs/loqa-translate/internal/translation"
)

// EmptyLogText is shown while a session has no entries.
const EmptyLogText = "Conversation history will be shown here..."

// RenderText renders one entry as two lines of plain text.
func RenderText(e convlog.Entry) string {
	status := Annotate(e.Source, e.SourceLang, e.TargetLang)
	return fmt.Sprintf("You (%s): %s\nTranslation %s: %s",
		translation.DisplayCode(e.SourceLang), e.Original, status.Label, e.Translated)
}

// RenderLogText renders the whole log, one blank line between entries.
func RenderLogText(entries []convlog.Entry) string {
	if len(entries) == 0 {
		return EmptyLogText
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = RenderText(e)
	}
	return strings.Join(parts, "\n\n")
}

var logTemplate = template.Must(template.New("log").Parse(`{{if not .}}<div class="log-empty">` + EmptyLogText + `</div>{{end}}
{{- range .}}<div class="log-entry" data-seq="{{.Seq}}">
<p class="log-original"><strong>You ({{.SourceCode}}):</strong> {{.Original}}</p>
<p class="log-translated"><strong>Translation {{if .Status.Error}}<span class="error-text">{{.Status.Label}}</span>{{else}}{{.Status.Label}}{{end}}:</strong> {{if .Status.ErrorText}}<span class="error-text">{{.Translated}}</span>{{else}}{{.Translated}}{{end}}</p>
</div>
{{end}}`))

type htmlEntry struct {
	Seq        int64
	SourceCode string
	Original   string
	Translated string
	Status     Status
}

// RenderHTML renders the log as HTML fragments. User text is escaped.
func RenderHTML(entries []convlog.Entry) (string, error) {
	view := make([]htmlEntry, len(entries))
	for i, e := range entries {
		view[i] = htmlEntry{
			Seq:        e.Seq,
			SourceCode: translation.DisplayCode(e.SourceLang),
			Original:   e.Original,
			Translated: e.Translated,
			Status:     Annotate(e.Source, e.SourceLang, e.TargetLang),
		}
	}
	var buf bytes.Buffer
	if err := logTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render log: %w", err)
	}
	return buf.String(), nil
}

// Wire converts an entry to its broadcast form, status included.
func Wire(e convlog.Entry) protocol.LogEntry {
	status := Annotate(e.Source, e.SourceLang, e.TargetLang)
	return protocol.LogEntry{
		SessionID:         e.SessionID,
		Seq:               e.Seq,
		Original:          e.Original,
		Translated:        e.Translated,
		SourceLang:        e.SourceLang,
		TargetLang:        e.TargetLang,
		TranslationSource: e.Source.String(),
		Status:            status.Label,
		Error:             status.Error,
		CreatedAt:         e.CreatedAt,
	}
}
