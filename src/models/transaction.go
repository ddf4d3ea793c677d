package models

import "github.com/shopspring/decimal"

// UpsertEffect is what reconciliation did with a single record.
type UpsertEffect string

const (
	EffectCreated UpsertEffect = "created"
	EffectUpdated UpsertEffect = "updated"
	EffectSkipped UpsertEffect = "skipped"
)

// UpsertResult reports the effect for one record. Err is set when the skip was
// caused by a store failure rather than by the record itself.
type UpsertResult struct {
	OrderID  string       `json:"order_id"`
	Effect   UpsertEffect `json:"effect"`
	RecordID string       `json:"record_id,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Err      error        `json:"-"`
}

// RecordProperties is the store-agnostic payload written for each record.
// Store implementations map each field to the configured property name.
type RecordProperties struct {
	Source    string
	Amount    decimal.Decimal
	OrderID   int64
	OrderDate string
	Processed bool
}

// BatchSummary aggregates upsert effects for one report.
type BatchSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (s *BatchSummary) Add(r UpsertResult) {
	switch r.Effect {
	case EffectCreated:
		s.Created++
	case EffectUpdated:
		s.Updated++
	default:
		s.Skipped++
		if r.Err != nil {
			s.Failed++
		}
	}
}
