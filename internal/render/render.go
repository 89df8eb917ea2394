// Package render turns raw assistant replies into the HTML fragment shown in
// the chat view.
//
// Formatting is an ordered pipeline of plain string stages. Escape always runs
// first so every later stage matches against escaped text and can emit markup
// without user content leaking raw angle brackets. Later stages do not skip
// regions produced by earlier ones.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"pdf-chat/internal/domain"
)

// Stage is a single text transform.
type Stage func(string) string

// Pipeline applies its stages in order.
type Pipeline []Stage

func (p Pipeline) Apply(s string) string {
	for _, stage := range p {
		s = stage(s)
	}
	return s
}

// NewPipeline returns the reply formatting pipeline. refs may be nil.
func NewPipeline(refs []domain.PageReference) Pipeline {
	return Pipeline{
		Escape,
		CodeBlocks,
		Headers,
		Bold,
		InlineCode,
		PageReferences(refs),
	}
}

// FormatResponse renders raw assistant text as HTML. The result is markup and
// must be inserted as such; it is not escaped again.
func FormatResponse(raw string, refs []domain.PageReference) string {
	if raw == "" {
		return ""
	}
	return NewPipeline(refs).Apply(raw)
}

var (
	htmlEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper   = strings.NewReplacer(`"`, "&quot;")
	// The language tag only counts when a newline follows it.
	codeBlockRe   = regexp.MustCompile("```(?:(\\w*)\\n)?([\\s\\S]*?)```")
	headerRe      = regexp.MustCompile(`(?m)^### (.*)$`)
	boldRe        = regexp.MustCompile(`\*\*(.+?)\*\*`)
	inlineCodeRe  = regexp.MustCompile("`([^`\\n]+)`")
	defaultLang   = "text"
	referenceSpan = `<span class="pdf-reference">%s</span>`
)

// Escape replaces &, < and > with their entities.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

// CodeBlocks converts fenced blocks into a labelled code container with a copy
// button. Unterminated fences are left alone.
func CodeBlocks(s string) string {
	return codeBlockRe.ReplaceAllStringFunc(s, func(block string) string {
		m := codeBlockRe.FindStringSubmatch(block)
		lang := strings.ToLower(m[1])
		if lang == "" {
			lang = defaultLang
		}
		code := m[2]
		return `<div class="code-block">` +
			`<div class="code-header"><span class="code-lang">` + lang + `</span>` +
			`<button class="copy-button" data-code="` + attrEscaper.Replace(code) + `">copy</button></div>` +
			`<pre><code class="language-` + lang + `">` + code + `</code></pre>` +
			`</div>`
	})
}

// Headers turns "### title" lines into h3 elements.
func Headers(s string) string {
	return headerRe.ReplaceAllString(s, "<h3>$1</h3>")
}

// Bold turns **text** into strong spans.
func Bold(s string) string {
	return boldRe.ReplaceAllString(s, "<strong>$1</strong>")
}

// InlineCode turns `text` into code spans.
func InlineCode(s string) string {
	return inlineCodeRe.ReplaceAllString(s, "<code>$1</code>")
}

// PageReferences highlights [PN] tags for each referenced page.
func PageReferences(refs []domain.PageReference) Stage {
	return func(s string) string {
		seen := make(map[int]struct{}, len(refs))
		for _, ref := range refs {
			if _, ok := seen[ref.PageNumber]; ok {
				continue
			}
			seen[ref.PageNumber] = struct{}{}
			tag := Escape(fmt.Sprintf("[P%d]", ref.PageNumber))
			s = strings.ReplaceAll(s, tag, fmt.Sprintf(referenceSpan, tag))
		}
		return s
	}
}
