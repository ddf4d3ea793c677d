package services

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/mailbox"
)

const AlertSubject = "Report Processing Alert"

// EmailService delivers alert notifications.
type EmailService interface {
	SendAlert(ctx context.Context, to, subject, body string) error
}

// MessageSender is the part of a mailbox that can send mail.
type MessageSender interface {
	SendMessage(ctx context.Context, to, subject, body string) error
}

// MissingReportsAlert builds the alert subject and body naming the missing
// sources in the order they were processed.
func MissingReportsAlert(missing []string) (subject, body string) {
	body = fmt.Sprintf("Reports not found: %s\n\nAutomated processing could not complete due to missing email reports.\n",
		strings.Join(missing, " and "))
	return AlertSubject, body
}

// NewEmailService picks the alert provider. sender is used by the "mailbox"
// provider and may be nil otherwise.
func NewEmailService(cfg config.AlertConfig, sender MessageSender) EmailService {
	provider := strings.ToLower(cfg.Provider)
	logger.L.Info("Initializing alert service", "provider", provider)

	switch provider {
	case "mailbox":
		if sender == nil {
			logger.L.Warn("No mailbox available to send alerts. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &MailboxEmailService{sender: sender}
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunPrivateAPIKey == "" || cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: cfg.SenderEmail,
			senderName:  cfg.SenderName,
		}
	case "smtp":
		if cfg.SMTPServer == "" || cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:   cfg.SMTPServer,
			SMTPPort:     cfg.SMTPPort,
			SMTPUser:     cfg.SMTPUser,
			SMTPPassword: cfg.SMTPPassword,
			SenderEmail:  cfg.SenderEmail,
			SenderName:   cfg.SenderName,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

// MailboxEmailService sends alerts through the mailbox the reports were read
// from.
type MailboxEmailService struct {
	sender MessageSender
}

func (s *MailboxEmailService) SendAlert(ctx context.Context, to, subject, body string) error {
	if err := s.sender.SendMessage(ctx, to, subject, body); err != nil {
		logger.L.Error("Alert email error", "error", err)
		return fmt.Errorf("failed to send alert via mailbox: %w", err)
	}
	logger.L.Info("Alert email sent via mailbox")
	return nil
}

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
	SenderName   string

	// sendMail is smtp.SendMail unless replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPEmailService) SendAlert(_ context.Context, to, subject, body string) error {
	from := s.SenderEmail
	if s.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", s.SenderName, s.SenderEmail)
	}
	message, err := mailbox.ComposeMessage(from, to, subject, body)
	if err != nil {
		return fmt.Errorf("failed to compose alert: %w", err)
	}

	var auth smtp.Auth
	if s.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	}
	send := s.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := send(addr, auth, s.SenderEmail, []string{to}, message); err != nil {
		logger.L.Error("Failed to send alert email via SMTP", "error", err)
		return fmt.Errorf("failed to send alert email via SMTP: %w", err)
	}
	logger.L.Info("Alert email sent via SMTP")
	return nil
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) SendAlert(ctx context.Context, to, subject, body string) error {
	from := s.senderEmail
	if s.senderName != "" {
		from = fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	}
	message := s.mg.NewMessage(from, subject, body, to)
	message.AddTag("report-alert")

	ctx, cancel := context.WithTimeout(ctx, time.Second*20)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send alert email via Mailgun", "error", err, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Alert email sent via Mailgun", "id", id)
	return nil
}

// MockEmailService logs alerts instead of sending them.
type MockEmailService struct {
	Sent []string
}

func (m *MockEmailService) SendAlert(_ context.Context, to, subject, body string) error {
	if to == "" {
		return errors.New("alert recipient is empty")
	}
	m.Sent = append(m.Sent, body)
	logger.L.Info("MockEmailService: Would send alert email.", "subject", subject)
	return nil
}
