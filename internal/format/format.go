// Package format converts plain message text into display markup
// through a fixed, one-way substitution list. The transform is
// deterministic and stateless; the substitution order is part of the
// contract and must not change.
package format

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
	underRe  = regexp.MustCompile(`_(.*?)_`)
	codeRe   = regexp.MustCompile("```([^`]+)```")
	spacesRe = regexp.MustCompile("  ")
)

// Formatter renders message text as markup.
type Formatter struct {
	escapeHTML     bool
	collapseSpaces bool
}

// Option configures the Formatter.
type Option func(*Formatter)

// WithEscapeHTML controls whether raw text is HTML-escaped before the
// markup substitutions run. Disabling it restores the legacy behavior
// where markup-special characters in message content reach the
// rendering layer verbatim.
func WithEscapeHTML(on bool) Option {
	return func(f *Formatter) { f.escapeHTML = on }
}

// WithCollapseSpaces enables the variant behavior of turning each run
// of two spaces into a visual non-breaking pair.
func WithCollapseSpaces(on bool) Option {
	return func(f *Formatter) { f.collapseSpaces = on }
}

// New creates a Formatter. HTML escaping is on by default.
func New(opts ...Option) *Formatter {
	f := &Formatter{escapeHTML: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Render transforms text into markup. Empty input yields empty
// output. Substitution order: line breaks, bold, italic (* then _),
// fenced code, then the optional space collapse, then trim.
func (f *Formatter) Render(text string) string {
	if text == "" {
		return ""
	}

	if f.escapeHTML {
		text = html.EscapeString(text)
	}

	text = strings.ReplaceAll(text, "\n", "<br>")
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicRe.ReplaceAllString(text, "<em>$1</em>")
	text = underRe.ReplaceAllString(text, "<em>$1</em>")
	text = codeRe.ReplaceAllString(text, "<pre><code>$1</code></pre>")

	if f.collapseSpaces {
		text = spacesRe.ReplaceAllString(text, "&nbsp;&nbsp;")
	}

	return strings.TrimSpace(text)
}
