package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
	"github.com/username/reportsync/src/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// GmailMailbox reads, archives and sends mail through the Gmail API.
type GmailMailbox struct {
	svc     *gmail.Service
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

// NewGmailMailbox authenticates with the stored refresh token. A token that
// cannot be refreshed is a setup failure.
func NewGmailMailbox(ctx context.Context, cfg config.MailboxConfig, timeout time.Duration) (*GmailMailbox, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailModifyScope, gmail.GmailSendScope},
	}
	// The stored access token has no known expiry, so it is refreshed up front;
	// that also verifies the credentials before any report is touched.
	token := &oauth2.Token{
		AccessToken:  cfg.GmailAccessToken,
		RefreshToken: cfg.GmailRefreshToken,
		Expiry:       time.Now(),
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	tokenSource := oauthConfig.TokenSource(ctx, token)
	if _, err := tokenSource.Token(); err != nil {
		return nil, fmt.Errorf("%w: gmail token refresh failed: %v", ErrSetup, err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gmail service: %v", ErrSetup, err)
	}
	logger.L.Info("Gmail mailbox ready")
	return newGmailMailbox(svc, timeout), nil
}

func newGmailMailbox(svc *gmail.Service, timeout time.Duration) *GmailMailbox {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GmailMailbox{
		svc:     svc,
		timeout: timeout,
		cb:      utils.NewBreaker("gmail-api", isGmailClientError),
	}
}

// isGmailClientError keeps request-specific failures from opening the breaker.
func isGmailClientError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func gmailStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func (g *GmailMailbox) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	err := utils.Guard(g.cb, func() error { return fn(ctx) })
	if err != nil {
		logger.L.Debug("Gmail API call failed", "operation", operation, "status", gmailStatus(err), "breaker", g.cb.State().String())
	}
	return err
}

func (g *GmailMailbox) SearchLatest(ctx context.Context, query string) (string, error) {
	var resp *gmail.ListMessagesResponse
	err := g.call(ctx, "List", func(ctx context.Context) error {
		var apiErr error
		resp, apiErr = g.svc.Users.Messages.List(gmailUser).Q(query).MaxResults(1).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("gmail search failed: %w", err)
	}
	if resp == nil || len(resp.Messages) == 0 {
		return "", ErrMessageNotFound
	}
	return resp.Messages[0].Id, nil
}

func (g *GmailMailbox) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg *gmail.Message
	err := g.call(ctx, "Get", func(ctx context.Context) error {
		var apiErr error
		msg, apiErr = g.svc.Users.Messages.Get(gmailUser, messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		if gmailStatus(err) == http.StatusNotFound {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("gmail get message failed: %w", err)
	}

	out := &Message{ID: msg.Id, Payload: convertGmailPart(msg.Payload, 0)}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if h.Name == "Subject" {
				out.Subject = h.Value
				break
			}
		}
	}
	return out, nil
}

func convertGmailPart(p *gmail.MessagePart, depth int) *models.MessagePart {
	if p == nil {
		return nil
	}
	part := &models.MessagePart{PartID: p.PartId, MimeType: p.MimeType, Filename: p.Filename}
	if p.Body != nil {
		part.Body = &models.PartBody{Data: p.Body.Data, AttachmentID: p.Body.AttachmentId, Size: p.Body.Size}
	}
	if depth >= maxTreeDepth {
		return part
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertGmailPart(child, depth+1))
	}
	return part
}

func (g *GmailMailbox) GetAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var body *gmail.MessagePartBody
	err := g.call(ctx, "GetAttachment", func(ctx context.Context) error {
		var apiErr error
		body, apiErr = g.svc.Users.Messages.Attachments.Get(gmailUser, messageID, attachmentID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("gmail get attachment failed: %w", err)
	}
	data, ok := models.DecodePayload(body.Data)
	if !ok {
		return nil, fmt.Errorf("failed to decode attachment %s", attachmentID)
	}
	return data, nil
}

// Archive removes the INBOX label. When the token lacks permission to modify
// labels the message is trashed instead.
func (g *GmailMailbox) Archive(ctx context.Context, messageID string) error {
	err := g.call(ctx, "Modify", func(ctx context.Context) error {
		req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"INBOX"}}
		_, apiErr := g.svc.Users.Messages.Modify(gmailUser, messageID, req).Context(ctx).Do()
		return apiErr
	})
	if err == nil {
		return nil
	}
	if gmailStatus(err) != http.StatusForbidden {
		return fmt.Errorf("gmail archive failed: %w", err)
	}

	logger.L.Info("Archive not permitted, moving email to trash")
	err = g.call(ctx, "Trash", func(ctx context.Context) error {
		_, apiErr := g.svc.Users.Messages.Trash(gmailUser, messageID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("cannot archive or trash email: %w", err)
	}
	return nil
}

func (g *GmailMailbox) SendMessage(ctx context.Context, to, subject, body string) error {
	raw, err := ComposeMessage("", to, subject, body)
	if err != nil {
		return err
	}
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	err = g.call(ctx, "Send", func(ctx context.Context) error {
		_, apiErr := g.svc.Users.Messages.Send(gmailUser, msg).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("gmail send failed: %w", err)
	}
	return nil
}

func (g *GmailMailbox) Close() error {
	return nil
}
