// Package render produces the HTML fragments pushed to clients.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

// DefaultPreviewLength is the preview size in runes when none is configured.
const DefaultPreviewLength = 50

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders messages, recent chat rows and user rows.
type Renderer struct {
	tmpl       *template.Template
	md         goldmark.Markdown
	policy     *bluemonday.Policy
	previewLen int
}

// New parses the embedded templates.
func New(previewLen int) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}
	return &Renderer{
		tmpl:       tmpl,
		md:         goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify)),
		policy:     bluemonday.UGCPolicy(),
		previewLen: previewLen,
	}, nil
}

// Content converts markdown message text to sanitized HTML.
func (r *Renderer) Content(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	// Sanitized by the UGC policy.
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// Preview returns the first previewLen runes of text on a single line.
func (r *Renderer) Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= r.previewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:r.previewLen]) + "…"
}

// MessageHTML renders a message as seen by viewerID.
func (r *Renderer) MessageHTML(viewerID int64, m *event.Message) (string, error) {
	return r.execute("message", struct {
		Message *event.Message
		Body    template.HTML
		Mine    bool
	}{
		Message: m,
		Body:    r.Content(m.Content),
		Mine:    m.SenderID == viewerID,
	})
}

// RecentChatHTML renders the summary row of the conversation with other.
func (r *Renderer) RecentChatHTML(viewerID int64, other *event.User, last *event.Message) (string, error) {
	return r.execute("recent_chat", struct {
		Other   *event.User
		Last    *event.Message
		Preview string
		Mine    bool
	}{
		Other:   other,
		Last:    last,
		Preview: r.Preview(last.Content),
		Mine:    last.SenderID == viewerID,
	})
}

// UserRowHTML renders other as a row of a friends section.
func (r *Renderer) UserRowHTML(other *event.User, section proto.Section) (string, error) {
	return r.execute("user_row", struct {
		Other   *event.User
		Section proto.Section
	}{
		Other:   other,
		Section: section,
	})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
