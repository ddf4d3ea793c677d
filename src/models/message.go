package models

import (
	"encoding/base64"
	"strings"
)

// MessagePart is one node of a message's content tree. Parts mirror multipart
// nesting; a node is never mutated once built.
type MessagePart struct {
	PartID   string         `json:"part_id,omitempty"`
	MimeType string         `json:"mime_type"`
	Filename string         `json:"filename,omitempty"`
	Body     *PartBody      `json:"body,omitempty"`
	Parts    []*MessagePart `json:"parts,omitempty"`
}

// PartBody carries either an inline payload (base64url, as delivered by the
// mailbox) or a reference to fetch the attachment separately.
type PartBody struct {
	Data         string `json:"data,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// MediaType returns the lower-cased media type without parameters.
func (p *MessagePart) MediaType() string {
	if p == nil {
		return ""
	}
	mt := p.MimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// InlineData decodes the inline payload. ok is false when there is no payload
// or it is not valid base64 in any of the encodings mailboxes use.
func (p *MessagePart) InlineData() ([]byte, bool) {
	if p == nil || p.Body == nil || p.Body.Data == "" {
		return nil, false
	}
	return DecodePayload(p.Body.Data)
}

// DecodePayload accepts padded and unpadded base64url as well as standard
// base64.
func DecodePayload(data string) ([]byte, bool) {
	data = strings.TrimSpace(data)
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return decoded, true
		}
	}
	return nil, false
}

// EncodePayload is the inverse of DecodePayload for tree builders.
func EncodePayload(raw []byte) string {
	return base64.URLEncoding.EncodeToString(raw)
}
