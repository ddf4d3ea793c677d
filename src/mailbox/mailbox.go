// Package mailbox talks to the mailbox the reports are delivered to.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/models"
)

var (
	// ErrMessageNotFound means no message matched a search.
	ErrMessageNotFound = errors.New("no message matches the search query")
	// ErrSetup marks credential and connection problems that abort a run.
	ErrSetup = errors.New("mailbox setup failed")
	// ErrSendUnsupported is returned by mailboxes that cannot send mail.
	ErrSendUnsupported = errors.New("mailbox cannot send messages")
)

// Message is a fetched message with its content tree.
type Message struct {
	ID      string
	Subject string
	Payload *models.MessagePart
}

type Mailbox interface {
	// SearchLatest returns the id of the newest message matching query, or
	// ErrMessageNotFound.
	SearchLatest(ctx context.Context, query string) (string, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	GetAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	// Archive moves a message out of the inbox, trashing it when archiving
	// is not permitted.
	Archive(ctx context.Context, messageID string) error
	SendMessage(ctx context.Context, to, subject, body string) error
	Close() error
}

// New connects the configured mailbox provider. Errors wrap ErrSetup.
func New(ctx context.Context, cfg config.MailboxConfig, timeout time.Duration) (Mailbox, error) {
	switch cfg.Provider {
	case "gmail":
		m, err := NewGmailMailbox(ctx, cfg, timeout)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "imap":
		m, err := NewIMAPMailbox(cfg, timeout)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown mailbox provider %q", ErrSetup, cfg.Provider)
	}
}
