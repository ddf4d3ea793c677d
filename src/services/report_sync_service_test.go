package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/mailbox"
	"github.com/username/reportsync/src/models"
	"github.com/username/reportsync/src/utils"
)

type fakeMailbox struct {
	searches    map[string]string
	messages    map[string]*mailbox.Message
	attachments map[string][]byte
	archived    []string
	archiveErr  error
}

func (f *fakeMailbox) SearchLatest(_ context.Context, query string) (string, error) {
	id, ok := f.searches[query]
	if !ok {
		return "", mailbox.ErrMessageNotFound
	}
	return id, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, messageID string) (*mailbox.Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, mailbox.ErrMessageNotFound
	}
	return msg, nil
}

func (f *fakeMailbox) GetAttachmentBytes(_ context.Context, messageID, attachmentID string) ([]byte, error) {
	data, ok := f.attachments[messageID+"/"+attachmentID]
	if !ok {
		return nil, errors.New("no such attachment")
	}
	return data, nil
}

func (f *fakeMailbox) Archive(_ context.Context, messageID string) error {
	if f.archiveErr != nil {
		return f.archiveErr
	}
	f.archived = append(f.archived, messageID)
	return nil
}

type fakeDownloader struct {
	reports map[string]string
	urls    []string
}

func (f *fakeDownloader) Download(_ context.Context, reportURL string) (string, error) {
	f.urls = append(f.urls, reportURL)
	text, ok := f.reports[reportURL]
	if !ok {
		return "", &DownloadError{StatusCode: 403}
	}
	return text, nil
}

type fakeReconciler struct {
	batches [][]models.NormalizedRecord
}

func (f *fakeReconciler) UpsertAll(_ context.Context, records []models.NormalizedRecord) ([]models.UpsertResult, models.BatchSummary) {
	f.batches = append(f.batches, records)
	var summary models.BatchSummary
	results := make([]models.UpsertResult, 0, len(records))
	for i, r := range records {
		res := models.UpsertResult{OrderID: r.OrderID, Effect: models.EffectCreated}
		if i > 0 {
			res.Effect = models.EffectUpdated
		}
		summary.Add(res)
		results = append(results, res)
	}
	return results, summary
}

type fakeAlerts struct {
	to, subject, body string
	calls             int
}

func (f *fakeAlerts) SendAlert(_ context.Context, to, subject, body string) error {
	f.calls++
	f.to, f.subject, f.body = to, subject, body
	return nil
}

func htmlMessage(id, html string) *mailbox.Message {
	return &mailbox.Message{
		ID:      id,
		Subject: "Your export is ready",
		Payload: &models.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*models.MessagePart{
				{MimeType: "text/html", Body: &models.PartBody{Data: models.EncodePayload([]byte(html))}},
			},
		},
	}
}

func attachmentMessage(id string) *mailbox.Message {
	return &mailbox.Message{
		ID:      id,
		Subject: "Weekly payouts",
		Payload: &models.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*models.MessagePart{
				{MimeType: "text/plain", Body: &models.PartBody{Data: models.EncodePayload([]byte("See attached."))}},
				{MimeType: "text/csv", Filename: "payouts.csv", Body: &models.PartBody{AttachmentID: "att-1"}},
			},
		},
	}
}

func syncOptions() SyncOptions {
	return SyncOptions{
		LinkSource: config.SourceConfig{
			Name: "Storefront", SearchQuery: "q1", AmountField: "amt", IDField: "id", DateField: "date",
		},
		AttachmentSource: config.SourceConfig{
			Name: "Marketplace", SearchQuery: "q2", AmountField: "Net", IDField: "Order", DateField: "Day", SkipRows: 1,
		},
		AlertRecipient:   "ops@example.com",
		ArchiveProcessed: true,
	}
}

func pinClock(t *testing.T) {
	t.Helper()
	prev := utils.Now
	utils.Now = func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { utils.Now = prev })
}

func TestRunProcessesBothSources(t *testing.T) {
	pinClock(t)
	mb := &fakeMailbox{
		searches: map[string]string{"q1": "m1", "q2": "m2"},
		messages: map[string]*mailbox.Message{
			"m1": htmlMessage("m1", `<p><a href="https://cdn.example.com/report.csv">Download</a></p>`),
			"m2": attachmentMessage("m2"),
		},
		attachments: map[string][]byte{
			"m2/att-1": []byte("Marketplace payouts\nOrder,Net,Day\n5001,10.00,3/15\nTotal,10.00,\n"),
		},
	}
	dl := &fakeDownloader{reports: map[string]string{
		"https://cdn.example.com/report.csv": "id,amt,date\n1001,25.50,2024-03-01\n1002,5,2024-03-02\nTotal,,\n",
	}}
	rec := &fakeReconciler{}
	alerts := &fakeAlerts{}

	summary := NewReportSyncService(mb, dl, rec, alerts, syncOptions()).Run(context.Background())

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 3, summary.Synced)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Updated)
	assert.Empty(t, summary.Missing)

	require.Len(t, rec.batches, 2)
	assert.Equal(t, "1001", rec.batches[0][0].OrderID)
	assert.Equal(t, "Storefront", rec.batches[0][0].Source)
	assert.Equal(t, "5001", rec.batches[1][0].OrderID)
	assert.Equal(t, "2025-03-15", rec.batches[1][0].OrderDate)

	assert.Equal(t, []string{"m1", "m2"}, mb.archived)
	assert.Zero(t, alerts.calls)
}

func TestRunRecordsMissingSourcesAndAlerts(t *testing.T) {
	pinClock(t)
	mb := &fakeMailbox{
		searches: map[string]string{"q1": "m1"},
		messages: map[string]*mailbox.Message{
			"m1": htmlMessage("m1", `<a href="https://cdn.example.com/expired.csv">Download</a>`),
		},
	}
	dl := &fakeDownloader{reports: map[string]string{}}
	rec := &fakeReconciler{}
	alerts := &fakeAlerts{}

	summary := NewReportSyncService(mb, dl, rec, alerts, syncOptions()).Run(context.Background())

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, summary.Synced)
	assert.Equal(t, []string{"Storefront", "Marketplace"}, summary.Missing)
	assert.Empty(t, rec.batches)
	assert.Empty(t, mb.archived)

	assert.Equal(t, 1, alerts.calls)
	assert.Equal(t, "ops@example.com", alerts.to)
	assert.Equal(t, "Report Processing Alert", alerts.subject)
	assert.Contains(t, alerts.body, "Reports not found: Storefront and Marketplace")
}

func TestRunWithoutLinkOrAttachment(t *testing.T) {
	pinClock(t)
	mb := &fakeMailbox{
		searches: map[string]string{"q1": "m1", "q2": "m2"},
		messages: map[string]*mailbox.Message{
			"m1": htmlMessage("m1", `<p>No report today</p>`),
			"m2": htmlMessage("m2", `<p>Nothing attached</p>`),
		},
	}
	dl := &fakeDownloader{}
	summary := NewReportSyncService(mb, dl, &fakeReconciler{}, &fakeAlerts{}, syncOptions()).Run(context.Background())

	assert.Equal(t, []string{"Storefront", "Marketplace"}, summary.Missing)
	assert.Empty(t, dl.urls)
}

func TestRunWithoutRecipientSendsNoAlert(t *testing.T) {
	opts := syncOptions()
	opts.AlertRecipient = ""
	alerts := &fakeAlerts{}

	summary := NewReportSyncService(&fakeMailbox{}, &fakeDownloader{}, &fakeReconciler{}, alerts, opts).Run(context.Background())

	assert.Len(t, summary.Missing, 2)
	assert.Zero(t, alerts.calls)
}

func TestRunArchivePolicy(t *testing.T) {
	pinClock(t)
	newMailbox := func() *fakeMailbox {
		return &fakeMailbox{
			searches:    map[string]string{"q2": "m2"},
			messages:    map[string]*mailbox.Message{"m2": attachmentMessage("m2")},
			attachments: map[string][]byte{"m2/att-1": []byte("banner\nOrder,Net,Day\n5001,1,3/1\n")},
		}
	}

	disabled := syncOptions()
	disabled.ArchiveProcessed = false
	mb := newMailbox()
	summary := NewReportSyncService(mb, &fakeDownloader{}, &fakeReconciler{}, &fakeAlerts{}, disabled).Run(context.Background())
	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, mb.archived)

	mb = newMailbox()
	mb.archiveErr = errors.New("permission denied")
	summary = NewReportSyncService(mb, &fakeDownloader{}, &fakeReconciler{}, &fakeAlerts{}, syncOptions()).Run(context.Background())
	assert.Equal(t, 1, summary.Processed, "archive failures are non-fatal")
	assert.Equal(t, []string{"Storefront"}, summary.Missing)
}

func TestRetrievalFailureMessage(t *testing.T) {
	assert.Equal(t, "Email not found", retrievalFailureMessage(mailbox.ErrMessageNotFound))
	assert.Equal(t, "CSV download failed", retrievalFailureMessage(&DownloadError{StatusCode: 404}))
	assert.Equal(t, "Report retrieval failed", retrievalFailureMessage(errors.New("x")))
}
