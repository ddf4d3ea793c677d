// Package attachmentreport parses the report delivered as a CSV attachment.
// The export may open with banner lines ahead of its header, and its dates
// have no year.
package attachmentreport

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
	"github.com/username/reportsync/src/parsers/csvrows"
	"github.com/username/reportsync/src/utils"
)

// summaryLabels mark aggregate rows when they appear in the first column.
var summaryLabels = map[string]bool{
	"total":       true,
	"summary":     true,
	"subtotal":    true,
	"grand total": true,
}

type AttachmentReportParser struct {
	source config.SourceConfig
}

func NewParser(source config.SourceConfig) *AttachmentReportParser {
	return &AttachmentReportParser{source: source}
}

func (p *AttachmentReportParser) Parse(file io.Reader) (models.ParseResult, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return models.ParseResult{}, fmt.Errorf("failed to read report: %w", err)
	}

	text := csvrows.DropLeadingLines(string(content), p.source.SkipRows)
	rows, err := csvrows.Read(text)
	if err != nil {
		return models.ParseResult{}, err
	}

	year := utils.Now().Year()
	var result models.ParseResult
	for _, row := range rows {
		outcome := p.parseRow(row, year)
		if outcome.Skipped() {
			logger.L.Debug("Skipping row", "source", p.source.Name, "line", row.Line, "reason", outcome.Reason)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

func (p *AttachmentReportParser) parseRow(row csvrows.Row, year int) models.RowOutcome {
	skip := func(reason models.SkipReason) models.RowOutcome {
		return models.RowOutcome{Line: row.Line, Reason: reason}
	}
	if row.Err != nil {
		return skip(models.SkipMalformedRow)
	}

	dateStr, _ := row.Get(p.source.DateField)
	orderID, _ := row.Get(p.source.IDField)
	if orderID == "" {
		return skip(models.SkipMissingID)
	}
	if dateStr == "" {
		return skip(models.SkipMissingDate)
	}
	if !utils.IsNumericToken(orderID) {
		return skip(models.SkipNonNumericID)
	}
	if summaryLabels[strings.ToLower(row.First())] {
		return skip(models.SkipSummaryLabel)
	}

	orderDate := utils.NormalizeYearlessDate(dateStr, year)
	if strings.TrimSpace(orderDate) == "" {
		return skip(models.SkipBadDate)
	}

	amount := decimal.Zero
	if raw, present := row.Get(p.source.AmountField); present {
		parsed, err := utils.ParseAmount(raw)
		if err != nil {
			return skip(models.SkipBadAmount)
		}
		amount = parsed
	}

	return models.RowOutcome{
		Line: row.Line,
		Record: &models.NormalizedRecord{
			Source:      p.source.Name,
			OrderAmount: amount,
			OrderID:     orderID,
			OrderDate:   orderDate,
		},
	}
}
