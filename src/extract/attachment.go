package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/username/reportsync/src/models"
)

var ErrAttachmentNotFound = errors.New("CSV attachment not found")

// AttachmentFetcher resolves an attachment reference to its decoded bytes.
type AttachmentFetcher interface {
	GetAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// FindCSVAttachment returns the first part, in depth-first order, whose
// filename ends in .csv and that carries an attachment reference.
func FindCSVAttachment(payload *models.MessagePart) *models.MessagePart {
	return findCSVPart(payload, 0)
}

func findCSVPart(part *models.MessagePart, depth int) *models.MessagePart {
	if part == nil || depth > maxPartDepth {
		return nil
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(part.Filename)), ".csv") &&
		part.Body != nil && part.Body.AttachmentID != "" {
		return part
	}
	for _, child := range part.Parts {
		if found := findCSVPart(child, depth+1); found != nil {
			return found
		}
	}
	return nil
}

// ExtractAttachment fetches the CSV attachment of a message as UTF-8 text.
// Every failure is reported as ErrAttachmentNotFound.
func ExtractAttachment(ctx context.Context, fetcher AttachmentFetcher, messageID string, payload *models.MessagePart) (string, error) {
	part := FindCSVAttachment(payload)
	if part == nil {
		return "", ErrAttachmentNotFound
	}
	data, err := fetcher.GetAttachmentBytes(ctx, messageID, part.Body.AttachmentID)
	if err != nil {
		return "", fmt.Errorf("%w: fetching %s: %v", ErrAttachmentNotFound, part.Filename, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrAttachmentNotFound, part.Filename)
	}
	return string(data), nil
}
