package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"suraksha-jal/internal/media"
)

// mediaMarker splits rendered text around inline media. Input that smuggles
// the marker in fails the marker/attachment count check in split.
const mediaMarker = "\x00media\x00"

// Part is either a run of instruction text or one inline media payload.
type Part struct {
	Text  string
	Media *media.DataURI
}

type Prompt struct {
	Parts []Part
}

// Text joins the text parts, leaving media out.
func (p Prompt) Text() string {
	var b strings.Builder
	for _, part := range p.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (p Prompt) Media() []media.DataURI {
	var out []media.DataURI
	for _, part := range p.Parts {
		if part.Media != nil {
			out = append(out, *part.Media)
		}
	}
	return out
}

func (p Prompt) String() string {
	var b strings.Builder
	for _, part := range p.Parts {
		if part.Media != nil {
			fmt.Fprintf(&b, "<media type=%s>", part.Media.MIMEType)
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

type Template struct {
	name string
	tmpl *template.Template
}

var placeholderFuncs = template.FuncMap{
	"media": func(any) (string, error) { return "", nil },
	"join":  strings.Join,
	"lines": lines,
}

func New(name, text string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Funcs(placeholderFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Template{name: name, tmpl: t}, nil
}

func MustNew(name, text string) *Template {
	t, err := New(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string { return t.name }

// Render executes the template against data. It has no side effects: the
// same data always yields the same prompt.
func (t *Template) Render(data any) (Prompt, error) {
	var attached []media.DataURI
	clone, err := t.tmpl.Clone()
	if err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", t.name, err)
	}
	clone.Funcs(template.FuncMap{
		"media": func(v any) (string, error) {
			raw, ok := deref(v)
			if !ok {
				return "", fmt.Errorf("media expects a data URI string, got %T", v)
			}
			uri, err := media.ParseDataURI(raw)
			if err != nil {
				return "", err
			}
			attached = append(attached, uri)
			return mediaMarker, nil
		},
	})

	var b strings.Builder
	if err := clone.Execute(&b, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", t.name, err)
	}
	return split(b.String(), attached)
}

func split(rendered string, attached []media.DataURI) (Prompt, error) {
	chunks := strings.Split(rendered, mediaMarker)
	if len(chunks)-1 != len(attached) {
		return Prompt{}, fmt.Errorf("render prompt: %d media markers for %d attachments", len(chunks)-1, len(attached))
	}
	var p Prompt
	for i, chunk := range chunks {
		if chunk != "" {
			p.Parts = append(p.Parts, Part{Text: chunk})
		}
		if i < len(attached) {
			m := attached[i]
			p.Parts = append(p.Parts, Part{Media: &m})
		}
	}
	return p, nil
}

func deref(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	default:
		return "", false
	}
}

func lines(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}
