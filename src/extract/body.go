// Package extract locates report content inside a message: the readable body,
// the download link it carries, or its CSV attachment.
package extract

import (
	"strings"

	"github.com/username/reportsync/src/models"
)

// maxPartDepth bounds recursion into nested multiparts.
const maxPartDepth = 32

// BodyContent is the decoded readable body of a message. Multiple parts of the
// same type are concatenated in tree order.
type BodyContent struct {
	HTML string
	Text string
}

func (b BodyContent) Empty() bool {
	return b.HTML == "" && b.Text == ""
}

// ExtractBody walks the payload's parts depth-first, collecting text/html and
// text/plain bodies. When no part yields content, the payload's own body is
// used and classified by a quick look for HTML markup.
func ExtractBody(payload *models.MessagePart) BodyContent {
	var content BodyContent
	if payload == nil {
		return content
	}

	var html, text strings.Builder
	for _, part := range payload.Parts {
		collectBody(part, 0, &html, &text)
	}
	content.HTML = html.String()
	content.Text = text.String()
	if !content.Empty() {
		return content
	}

	decoded, ok := decodeText(payload)
	if !ok {
		return content
	}
	lower := strings.ToLower(decoded)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<a ") {
		content.HTML = decoded
	} else {
		content.Text = decoded
	}
	return content
}

func collectBody(part *models.MessagePart, depth int, html, text *strings.Builder) {
	if part == nil || depth > maxPartDepth {
		return
	}
	switch part.MediaType() {
	case "text/html":
		if s, ok := decodeText(part); ok {
			html.WriteString(s)
		}
	case "text/plain":
		if s, ok := decodeText(part); ok {
			text.WriteString(s)
		}
	}
	for _, child := range part.Parts {
		collectBody(child, depth+1, html, text)
	}
}

// decodeText decodes an inline payload, dropping byte sequences that are not
// valid UTF-8.
func decodeText(part *models.MessagePart) (string, bool) {
	raw, ok := part.InlineData()
	if !ok {
		return "", false
	}
	return strings.ToValidUTF8(string(raw), ""), true
}
