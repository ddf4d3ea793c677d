package mailbox

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// ComposeMessage renders a plain-text RFC 5322 message. from may be empty
// when the sending service fills it in.
func ComposeMessage(from, to, subject, body string) ([]byte, error) {
	var h mail.Header
	if from != "" {
		fromAddrs, err := mail.ParseAddressList(from)
		if err != nil {
			return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
		}
		h.SetAddressList("From", fromAddrs)
	}
	toAddrs, err := mail.ParseAddressList(strings.TrimSpace(to))
	if err != nil || len(toAddrs) == 0 {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	h.SetAddressList("To", toAddrs)
	h.SetSubject(subject)
	h.SetDate(time.Now())
	h.Set("Content-Type", "text/plain; charset=utf-8")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}
