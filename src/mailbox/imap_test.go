package mailbox

import (
	"context"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIMAPQuery(t *testing.T) {
	c := ParseIMAPQuery(`from:reports@vendor.example subject:"Daily Orders" has:attachment export`)

	assert.Equal(t, []imap.SearchCriteriaHeaderField{
		{Key: "From", Value: "reports@vendor.example"},
		{Key: "Subject", Value: "Daily Orders"},
	}, c.Header)
	assert.Equal(t, []string{"export"}, c.Text)
}

func TestParseIMAPQueryPlainPhrase(t *testing.T) {
	c := ParseIMAPQuery(`"order report" in:inbox`)
	assert.Empty(t, c.Header)
	assert.Equal(t, []string{"order report"}, c.Text)
}

func TestParseIMAPQueryEmpty(t *testing.T) {
	c := ParseIMAPQuery("   ")
	assert.Empty(t, c.Header)
	assert.Empty(t, c.Text)
}

func TestParseUID(t *testing.T) {
	uid, err := parseUID("42")
	require.NoError(t, err)
	assert.Equal(t, imap.UID(42), uid)

	for _, bad := range []string{"", "0", "abc", "18a"} {
		_, err := parseUID(bad)
		assert.Error(t, err, bad)
	}
}

func TestIMAPMailboxCannotSend(t *testing.T) {
	m := &IMAPMailbox{}
	assert.ErrorIs(t, m.SendMessage(context.Background(), "ops@example.com", "s", "b"), ErrSendUnsupported)
	assert.NoError(t, m.Close())
}
