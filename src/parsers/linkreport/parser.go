// Package linkreport parses the report that arrives as a download link. Its
// dates carry a full year.
package linkreport

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
	"github.com/username/reportsync/src/parsers/csvrows"
	"github.com/username/reportsync/src/utils"
)

type LinkReportParser struct {
	source config.SourceConfig
}

func NewParser(source config.SourceConfig) *LinkReportParser {
	return &LinkReportParser{source: source}
}

func (p *LinkReportParser) Parse(file io.Reader) (models.ParseResult, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return models.ParseResult{}, fmt.Errorf("failed to read report: %w", err)
	}

	rows, err := csvrows.Read(string(content))
	if err != nil {
		return models.ParseResult{}, err
	}

	var result models.ParseResult
	for _, row := range rows {
		outcome := p.parseRow(row)
		if outcome.Skipped() {
			logger.L.Debug("Skipping row", "source", p.source.Name, "line", row.Line, "reason", outcome.Reason)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

func (p *LinkReportParser) parseRow(row csvrows.Row) models.RowOutcome {
	skip := func(reason models.SkipReason) models.RowOutcome {
		return models.RowOutcome{Line: row.Line, Reason: reason}
	}
	if row.Err != nil {
		return skip(models.SkipMalformedRow)
	}

	orderID, _ := row.Get(p.source.IDField)
	dateStr, _ := row.Get(p.source.DateField)
	if orderID == "" {
		return skip(models.SkipMissingID)
	}
	if dateStr == "" {
		return skip(models.SkipMissingDate)
	}
	// Summary rows ("Total", "Summary") carry a label instead of an id.
	if !utils.IsNumericToken(orderID) {
		return skip(models.SkipNonNumericID)
	}

	// A missing amount column counts as zero; a present but unusable cell does not.
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
			OrderDate:   utils.NormalizeFullDate(dateStr),
		},
	}
}
