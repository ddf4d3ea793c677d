package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/extract"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/mailbox"
	"github.com/username/reportsync/src/models"
	"github.com/username/reportsync/src/parsers"
	"github.com/username/reportsync/src/security/validation"
)

// ReportMailbox is the mailbox surface a sync run reads from.
type ReportMailbox interface {
	SearchLatest(ctx context.Context, query string) (string, error)
	GetMessage(ctx context.Context, messageID string) (*mailbox.Message, error)
	GetAttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	Archive(ctx context.Context, messageID string) error
}

// Reconciler writes normalized records to the record store.
type Reconciler interface {
	UpsertAll(ctx context.Context, records []models.NormalizedRecord) ([]models.UpsertResult, models.BatchSummary)
}

type SyncOptions struct {
	LinkSource         config.SourceConfig
	AttachmentSource   config.SourceConfig
	AlertRecipient     string
	ArchiveProcessed   bool
	StorageDomainToken string
}

// RunSummary is the outcome of one sync run. Synced counts every record
// handed to reconciliation, whatever its effect.
type RunSummary struct {
	RunID     string   `json:"run_id"`
	Processed int      `json:"processed"`
	Synced    int      `json:"synced"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Missing   []string `json:"missing"`
}

type processedEmail struct {
	source    string
	messageID string
}

type ReportSyncService struct {
	mailbox    ReportMailbox
	downloader DownloadService
	reconciler Reconciler
	alerts     EmailService
	links      *extract.LinkExtractor
	opts       SyncOptions
}

func NewReportSyncService(mb ReportMailbox, downloader DownloadService, reconciler Reconciler, alerts EmailService, opts SyncOptions) *ReportSyncService {
	return &ReportSyncService{
		mailbox:    mb,
		downloader: downloader,
		reconciler: reconciler,
		alerts:     alerts,
		links:      extract.NewLinkExtractor(opts.StorageDomainToken),
		opts:       opts,
	}
}

// Run processes the link source then the attachment source, archives the
// emails that were processed and alerts on missing reports. Failures of a
// single source are recorded as missing and never stop the run.
func (s *ReportSyncService) Run(ctx context.Context) RunSummary {
	overallStartTime := time.Now()
	summary := RunSummary{RunID: uuid.NewString(), Missing: []string{}}
	logger.Summary("Starting processing", "runID", summary.RunID)

	var processed []processedEmail

	sources := []struct {
		kind   string
		source config.SourceConfig
		fetch  func(ctx context.Context, src config.SourceConfig, messageID string) (string, error)
	}{
		{parsers.KindLink, s.opts.LinkSource, s.fetchLinkedReport},
		{parsers.KindAttachment, s.opts.AttachmentSource, s.fetchAttachedReport},
	}

	for _, src := range sources {
		name := src.source.Name
		logger.L.Info("Processing source", "source", name)

		messageID, records, err := s.retrieve(ctx, src.kind, src.source, src.fetch)
		if err != nil {
			logger.L.Error(retrievalFailureMessage(err), "source", name, "error", err)
			summary.Missing = append(summary.Missing, name)
			continue
		}

		_, batch := s.reconciler.UpsertAll(ctx, records)
		summary.Synced += len(records)
		summary.Created += batch.Created
		summary.Updated += batch.Updated
		summary.Skipped += batch.Skipped
		logger.L.Info("Source reconciled", "source", name, "created", batch.Created, "updated", batch.Updated, "skipped", batch.Skipped, "failed", batch.Failed)

		processed = append(processed, processedEmail{source: name, messageID: messageID})
	}
	summary.Processed = len(processed)

	s.cleanup(ctx, processed)
	s.alertMissing(ctx, summary.Missing)

	logger.Summary("Processing complete",
		"runID", summary.RunID,
		"processed", summary.Processed,
		"synced", summary.Synced,
		"created", summary.Created,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"missing", len(summary.Missing),
		"duration", time.Since(overallStartTime).String(),
	)
	return summary
}

func (s *ReportSyncService) retrieve(
	ctx context.Context,
	kind string,
	src config.SourceConfig,
	fetch func(ctx context.Context, src config.SourceConfig, messageID string) (string, error),
) (string, []models.NormalizedRecord, error) {
	messageID, err := s.mailbox.SearchLatest(ctx, src.SearchQuery)
	if err != nil {
		return "", nil, err
	}
	logger.L.Info("Email found", "source", src.Name)

	text, err := fetch(ctx, src, messageID)
	if err != nil {
		return "", nil, err
	}

	records, err := ParseReport(kind, src, text)
	if err != nil {
		return "", nil, err
	}
	return messageID, records, nil
}

func (s *ReportSyncService) fetchLinkedReport(ctx context.Context, src config.SourceConfig, messageID string) (string, error) {
	msg, err := s.mailbox.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	logger.L.Debug("Fetched message", "source", src.Name, "subject", validation.ForLog(msg.Subject, 80))

	link, strategy, err := s.links.Extract(extract.ExtractBody(msg.Payload))
	if err != nil {
		return "", err
	}
	logger.L.Info("CSV link found", "source", src.Name, "strategy", strategy)

	return s.downloader.Download(ctx, link)
}

func (s *ReportSyncService) fetchAttachedReport(ctx context.Context, src config.SourceConfig, messageID string) (string, error) {
	msg, err := s.mailbox.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	text, err := extract.ExtractAttachment(ctx, s.mailbox, messageID, msg.Payload)
	if err != nil {
		return "", err
	}
	logger.L.Info("CSV attachment extracted", "source", src.Name)
	return text, nil
}

// ParseReport runs the dialect parser for kind over text and returns the
// accepted records.
func ParseReport(kind string, src config.SourceConfig, text string) ([]models.NormalizedRecord, error) {
	parser, err := parsers.GetParser(kind, src)
	if err != nil {
		return nil, err
	}
	result, err := parser.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s report: %w", src.Name, err)
	}
	records := result.Records()
	logger.L.Info("Parsed entries", "source", src.Name, "entries", len(records), "skipped", result.SkipCounts())
	return records, nil
}

func (s *ReportSyncService) cleanup(ctx context.Context, processed []processedEmail) {
	if !s.opts.ArchiveProcessed {
		logger.L.Info("Archiving disabled, leaving processed emails in place", "count", len(processed))
		return
	}
	for _, p := range processed {
		if err := s.mailbox.Archive(ctx, p.messageID); err != nil {
			logger.L.Error("Email archiving error", "source", p.source, "error", err)
			continue
		}
		logger.L.Info("Email archived", "source", p.source)
	}
}

func (s *ReportSyncService) alertMissing(ctx context.Context, missing []string) {
	if len(missing) == 0 {
		return
	}
	logger.L.Error("Missing reports", "sources", strings.Join(missing, ", "))
	if s.opts.AlertRecipient == "" || s.alerts == nil {
		return
	}
	subject, body := MissingReportsAlert(missing)
	if err := s.alerts.SendAlert(ctx, s.opts.AlertRecipient, subject, body); err != nil {
		logger.L.Error("Alert email error", "error", err)
	}
}

func retrievalFailureMessage(err error) string {
	var derr *DownloadError
	switch {
	case errors.Is(err, mailbox.ErrMessageNotFound):
		return "Email not found"
	case errors.Is(err, extract.ErrLinkNotFound):
		return "CSV link not found"
	case errors.Is(err, extract.ErrAttachmentNotFound):
		return "CSV attachment not found"
	case errors.As(err, &derr), errors.Is(err, ErrDownloadFailed):
		return "CSV download failed"
	default:
		return "Report retrieval failed"
	}
}
