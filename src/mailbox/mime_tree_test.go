package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/reportsync/src/extract"
)

const rawReportEmail = "From: Billing <billing@vendor.example>\r\n" +
	"To: reports@example.com\r\n" +
	"Subject: =?utf-8?q?Weekly_payout?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Download: https://exports.example.com/weekly.csv\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<a href=3D\"https://exports.example.com/weekly.csv\">Download</a>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/csv; name=\"payout.csv\"\r\n" +
	"Content-Disposition: attachment; filename=\"payout.csv\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"T3JkZXIsTmV0CjEwMDEsMTIuNTAK\r\n" +
	"--outer--\r\n"

func TestParseRawMessageBuildsTree(t *testing.T) {
	parsed, err := parseRawMessage([]byte(rawReportEmail))
	require.NoError(t, err)

	assert.Equal(t, "Weekly payout", parsed.subject)
	root := parsed.payload
	assert.Equal(t, "multipart/mixed", root.MimeType)
	require.Len(t, root.Parts, 2)

	alt := root.Parts[0]
	assert.Equal(t, "1", alt.PartID)
	require.Len(t, alt.Parts, 2)
	assert.Equal(t, "1.1", alt.Parts[0].PartID)
	assert.Equal(t, "text/html", alt.Parts[1].MimeType)

	csvPart := root.Parts[1]
	assert.Equal(t, "payout.csv", csvPart.Filename)
	require.NotNil(t, csvPart.Body)
	assert.Equal(t, "2", csvPart.Body.AttachmentID)
	assert.Empty(t, csvPart.Body.Data)
	assert.Equal(t, "Order,Net\n1001,12.50\n", string(parsed.attachments["2"]))
}

func TestParsedTreeFeedsExtractors(t *testing.T) {
	parsed, err := parseRawMessage([]byte(rawReportEmail))
	require.NoError(t, err)

	body := extract.ExtractBody(parsed.payload)
	assert.True(t, strings.Contains(body.Text, "https://exports.example.com/weekly.csv"))
	assert.Equal(t, "<a href=\"https://exports.example.com/weekly.csv\">Download</a>", strings.TrimSpace(body.HTML))

	url, strategy, err := extract.NewLinkExtractor("").Extract(body)
	require.NoError(t, err)
	assert.Equal(t, "https://exports.example.com/weekly.csv", url)
	assert.Equal(t, "html-anchor", strategy)

	assert.Equal(t, "payout.csv", extract.FindCSVAttachment(parsed.payload).Filename)
}

func TestParseRawMessageSinglePart(t *testing.T) {
	raw := "Subject: hi\r\nContent-Type: text/plain\r\n\r\nhttps://x.example.com/a.csv\r\n"
	parsed, err := parseRawMessage([]byte(raw))
	require.NoError(t, err)

	assert.Empty(t, parsed.payload.Parts)
	assert.Equal(t, "https://x.example.com/a.csv", strings.TrimSpace(extract.ExtractBody(parsed.payload).Text))
}
