// Package relay is the session and orchestration core of chatrelay: it keeps
// bounded per-conversation history, active prompts and premium token budgets,
// turns inbound chat events into completion requests and relays the result.
package relay

import "strings"

// PartType identifies the kind of a multimodal content part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// Part is one element of a multimodal message.
type Part struct {
	Type PartType
	Text string
	URL  string
}

// Content is either plain text or an ordered list of parts.
// A nil Parts slice means plain text.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent wraps a plain string.
func TextContent(s string) Content {
	return Content{Text: s}
}

// IsMultimodal reports whether the content carries parts instead of text.
func (c Content) IsMultimodal() bool {
	return c.Parts != nil
}

// String returns a printable rendering of the content, used for logs.
func (c Content) String() string {
	if !c.IsMultimodal() {
		return c.Text
	}
	var b strings.Builder
	for i, p := range c.Parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch p.Type {
		case PartImageURL:
			b.WriteString("[image " + p.URL + "]")
		default:
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Assemble builds message content from text and image attachment URLs.
// Without images the result is plain text. Otherwise it is one text part with
// the verbatim text followed by one image part per URL, in order.
func Assemble(text string, imageURLs []string) Content {
	if len(imageURLs) == 0 {
		return TextContent(text)
	}
	parts := make([]Part, 0, len(imageURLs)+1)
	parts = append(parts, Part{Type: PartText, Text: text})
	for _, u := range imageURLs {
		parts = append(parts, Part{Type: PartImageURL, URL: u})
	}
	return Content{Parts: parts}
}
