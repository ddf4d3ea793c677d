package mailbox

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/patrickmn/go-cache"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
)

// IMAPMailbox reads and archives mail over IMAP. It cannot send; alerts go
// through a separate provider.
type IMAPMailbox struct {
	cfg     config.MailboxConfig
	timeout time.Duration

	mu     sync.Mutex
	client *imapclient.Client
	// messages caches parsed messages by UID so attachment reads after
	// GetMessage do not fetch the message again.
	messages *cache.Cache
}

// NewIMAPMailbox logs in and selects the configured mailbox. Connection and
// login failures are setup failures.
func NewIMAPMailbox(cfg config.MailboxConfig, timeout time.Duration) (*IMAPMailbox, error) {
	m := &IMAPMailbox{
		cfg:      cfg,
		timeout:  timeout,
		messages: cache.New(15*time.Minute, 5*time.Minute),
	}
	if err := m.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetup, err)
	}
	return m, nil
}

func (m *IMAPMailbox) connect() error {
	address := fmt.Sprintf("%s:%d", m.cfg.IMAPServer, m.cfg.IMAPPort)
	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var cl *imapclient.Client
	var err error
	if m.cfg.IMAPUseTLS {
		cl, err = imapclient.DialTLS(address, opts)
	} else {
		cl, err = imapclient.DialInsecure(address, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if err := cl.Login(m.cfg.IMAPUsername, m.cfg.IMAPPassword).Wait(); err != nil {
		_ = cl.Logout().Wait()
		return fmt.Errorf("imap login failed: %w", err)
	}

	mailbox := m.cfg.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := cl.Select(mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		_ = cl.Logout().Wait()
		return fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
	}

	m.mu.Lock()
	m.client = cl
	m.mu.Unlock()
	logger.L.Info("IMAP mailbox ready", "mailbox", mailbox)
	return nil
}

// run executes fn against the selected client, bounded by the call timeout.
// The IMAP client has no context support, so a timed-out call closes the
// connection to unblock it.
func (m *IMAPMailbox) run(ctx context.Context, fn func(cl *imapclient.Client) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return fmt.Errorf("imap client is closed")
	}
	cl := m.client

	done := make(chan error, 1)
	go func() { done <- fn(cl) }()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cl.Close()
		m.client = nil
		return ctx.Err()
	case <-timer.C:
		_ = cl.Close()
		m.client = nil
		return fmt.Errorf("imap call timed out after %s", m.timeout)
	}
}

func (m *IMAPMailbox) SearchLatest(ctx context.Context, query string) (string, error) {
	criteria := ParseIMAPQuery(query)
	var uids []imap.UID
	err := m.run(ctx, func(cl *imapclient.Client) error {
		data, err := cl.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return err
		}
		uids = data.AllUIDs()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("imap search failed: %w", err)
	}
	if len(uids) == 0 {
		return "", ErrMessageNotFound
	}
	latest := uids[0]
	for _, uid := range uids[1:] {
		if uid > latest {
			latest = uid
		}
	}
	return strconv.FormatUint(uint64(latest), 10), nil
}

func (m *IMAPMailbox) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	parsed, err := m.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return &Message{ID: messageID, Subject: parsed.subject, Payload: parsed.payload}, nil
}

func (m *IMAPMailbox) GetAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	parsed, err := m.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	data, ok := parsed.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found in message %s", attachmentID, messageID)
	}
	return data, nil
}

func (m *IMAPMailbox) load(ctx context.Context, messageID string) (*parsedMessage, error) {
	if cached, ok := m.messages.Get(messageID); ok {
		return cached.(*parsedMessage), nil
	}
	uid, err := parseUID(messageID)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = m.run(ctx, func(cl *imapclient.Client) error {
		fetchCmd := cl.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{{Peek: true}},
		})
		defer fetchCmd.Close()
		msg := fetchCmd.Next()
		if msg == nil {
			return nil
		}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			// The literal must be drained before the next item can be read.
			if section, ok := item.(imapclient.FetchItemDataBodySection); ok && section.Literal != nil {
				var readErr error
				raw, readErr = io.ReadAll(section.Literal)
				if readErr != nil {
					return readErr
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	if raw == nil {
		return nil, ErrMessageNotFound
	}

	parsed, err := parseRawMessage(raw)
	if err != nil {
		return nil, err
	}
	m.messages.Set(messageID, parsed, cache.DefaultExpiration)
	return parsed, nil
}

// Archive moves the message to the archive mailbox, or flags it deleted when
// the move is refused.
func (m *IMAPMailbox) Archive(ctx context.Context, messageID string) error {
	uid, err := parseUID(messageID)
	if err != nil {
		return err
	}
	set := imap.UIDSetNum(uid)

	moveErr := m.run(ctx, func(cl *imapclient.Client) error {
		_, err := cl.Move(set, m.cfg.IMAPArchiveMailbox).Wait()
		return err
	})
	if moveErr == nil {
		m.messages.Delete(messageID)
		return nil
	}

	logger.L.Info("Archive not permitted, deleting email", "error", moveErr)
	err = m.run(ctx, func(cl *imapclient.Client) error {
		storeCmd := cl.Store(set, &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Flags:  []imap.Flag{imap.FlagDeleted},
			Silent: true,
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return err
		}
		return cl.UIDExpunge(set).Close()
	})
	if err != nil {
		return fmt.Errorf("cannot archive or delete email: %w", err)
	}
	m.messages.Delete(messageID)
	return nil
}

func (m *IMAPMailbox) SendMessage(context.Context, string, string, string) error {
	return ErrSendUnsupported
}

func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Logout().Wait()
	_ = m.client.Close()
	m.client = nil
	return err
}

func parseUID(messageID string) (imap.UID, error) {
	n, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid imap message id %q", messageID)
	}
	return imap.UID(n), nil
}

// ParseIMAPQuery maps a Gmail-style query onto IMAP search criteria:
// from:, to: and subject: become header matches, quoted phrases and bare
// words become full-text matches, and Gmail-only operators (has:, in:,
// label:, is:) are ignored.
func ParseIMAPQuery(query string) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	for _, token := range splitQuery(query) {
		key, value, hasKey := strings.Cut(token, ":")
		if hasKey && value != "" && !strings.Contains(key, " ") {
			switch strings.ToLower(key) {
			case "from", "to", "subject":
				header := strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
				criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: header, Value: value})
				continue
			case "has", "in", "label", "is", "category", "newer_than", "older_than":
				continue
			}
		}
		criteria.Text = append(criteria.Text, token)
	}
	return criteria
}

// splitQuery splits on whitespace, keeping double-quoted phrases (including
// key:"a phrase") together and dropping the quotes.
func splitQuery(query string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range query {
		switch {
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
