package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
)

const maxTreeDepth = 32

// parsedMessage is a raw RFC 5322 message turned into a content tree. Parts
// with a filename are held back in attachments, keyed by their part id, and
// referenced from the tree instead of being inlined.
type parsedMessage struct {
	subject     string
	payload     *models.MessagePart
	attachments map[string][]byte
}

func parseRawMessage(raw []byte) (*parsedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	parsed := &parsedMessage{attachments: make(map[string][]byte)}
	if subject, err := entity.Header.Text("Subject"); err == nil {
		parsed.subject = subject
	} else {
		parsed.subject = entity.Header.Get("Subject")
	}
	payload, err := buildPart(entity, "", 0, parsed.attachments)
	if err != nil {
		return nil, err
	}
	parsed.payload = payload
	return parsed, nil
}

func buildPart(entity *message.Entity, partID string, depth int, attachments map[string][]byte) (*models.MessagePart, error) {
	mediaType, params, _ := entity.Header.ContentType()
	if mediaType == "" {
		mediaType = "text/plain"
	}
	part := &models.MessagePart{PartID: partID, MimeType: mediaType, Filename: partFilename(entity, params)}

	if mr := entity.MultipartReader(); mr != nil {
		if depth >= maxTreeDepth {
			logger.L.Warn("Multipart nesting too deep, ignoring children", "partID", partID)
			return part, nil
		}
		for i := 0; ; i++ {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("failed to read part %s: %w", childID(partID, i), err)
			}
			node, err := buildPart(child, childID(partID, i), depth+1, attachments)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, node)
		}
		return part, nil
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s body: %w", partID, err)
	}
	if part.Filename != "" {
		id := partID
		if id == "" {
			id = "0"
		}
		attachments[id] = body
		part.Body = &models.PartBody{AttachmentID: id, Size: int64(len(body))}
		return part, nil
	}
	part.Body = &models.PartBody{Data: models.EncodePayload(body), Size: int64(len(body))}
	return part, nil
}

func partFilename(entity *message.Entity, contentTypeParams map[string]string) string {
	if _, params, err := entity.Header.ContentDisposition(); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return name
		}
	}
	return strings.TrimSpace(contentTypeParams["name"])
}

func childID(parent string, index int) string {
	if parent == "" {
		return strconv.Itoa(index + 1)
	}
	return parent + "." + strconv.Itoa(index+1)
}
