package models

import "github.com/shopspring/decimal"

// NormalizedRecord is the canonical shape every report dialect parses into.
// OrderID is always a non-empty numeric token and OrderDate is always YYYY-MM-DD.
type NormalizedRecord struct {
	Source      string          `json:"source"`
	OrderAmount decimal.Decimal `json:"order_amount"`
	OrderID     string          `json:"order_id"`
	OrderDate   string          `json:"order_date"`
}

// SkipReason explains why a CSV row did not produce a record.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipMissingID    SkipReason = "missing_id"
	SkipMissingDate  SkipReason = "missing_date"
	SkipNonNumericID SkipReason = "non_numeric_id"
	SkipSummaryLabel SkipReason = "summary_label"
	SkipBadAmount    SkipReason = "bad_amount"
	SkipBadDate      SkipReason = "bad_date"
	SkipMalformedRow SkipReason = "malformed_row"
)

// RowOutcome is the per-row result of a dialect parser: either a record or a
// skip reason, never both.
type RowOutcome struct {
	Line   int               `json:"line"`
	Record *NormalizedRecord `json:"record,omitempty"`
	Reason SkipReason        `json:"reason,omitempty"`
}

func (o RowOutcome) Skipped() bool {
	return o.Record == nil
}

// ParseResult holds every row outcome in input order.
type ParseResult struct {
	Outcomes []RowOutcome `json:"outcomes"`
}

// Records returns the successfully parsed rows in input order.
func (r ParseResult) Records() []NormalizedRecord {
	records := make([]NormalizedRecord, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Record != nil {
			records = append(records, *o.Record)
		}
	}
	return records
}

// SkipCounts tallies skipped rows per reason.
func (r ParseResult) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, o := range r.Outcomes {
		if o.Record == nil {
			counts[o.Reason]++
		}
	}
	return counts
}
