// Package reconcile writes normalized records to the downstream store,
// updating the record that already holds an order id or creating one.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
	"github.com/username/reportsync/src/utils"
)

// RecordStore is the downstream datastore. Implementations own the mapping
// from RecordProperties to their column or property names.
type RecordStore interface {
	// FindByOrderID returns the id of a record whose numeric order id equals
	// orderID. found is false when there is none.
	FindByOrderID(ctx context.Context, orderID int64) (recordID string, found bool, err error)
	CreateRecord(ctx context.Context, props models.RecordProperties) (recordID string, err error)
	UpdateRecord(ctx context.Context, recordID string, props models.RecordProperties) error
}

type Options struct {
	// StrictOrderIDs skips records whose id is not a plain integer instead of
	// keying them under 0.
	StrictOrderIDs bool
	// IsClientError marks store errors caused by the request itself; they do
	// not count towards opening the circuit breaker.
	IsClientError func(error) bool
}

type Engine struct {
	store   RecordStore
	opts    Options
	breaker *gobreaker.CircuitBreaker
}

func NewEngine(store RecordStore, opts Options) *Engine {
	return &Engine{
		store:   store,
		opts:    opts,
		breaker: utils.NewBreaker("record-store", opts.IsClientError),
	}
}

// Upsert writes one record. Store failures are logged and reported as a
// skipped result; they never propagate.
func (e *Engine) Upsert(ctx context.Context, rec models.NormalizedRecord) models.UpsertResult {
	orderID := strings.TrimSpace(rec.OrderID)
	result := models.UpsertResult{OrderID: orderID, Effect: models.EffectSkipped}
	if orderID == "" {
		result.Reason = "blank order id"
		return result
	}

	key, exact := utils.NumericKey(orderID)
	if !exact {
		if e.opts.StrictOrderIDs {
			result.Reason = "order id is not an integer"
			logger.L.Warn("Skipping record with non-integer order id", "source", rec.Source)
			return result
		}
		logger.L.Debug("Non-integer order id keyed as 0", "source", rec.Source, "orderID", orderID)
	}

	props := models.RecordProperties{
		Source:    rec.Source,
		Amount:    rec.OrderAmount,
		OrderID:   key,
		OrderDate: rec.OrderDate,
		Processed: true,
	}
	if !utils.IsCanonicalDate(props.OrderDate) {
		props.OrderDate = utils.Today()
	}

	var (
		recordID string
		found    bool
	)
	err := utils.Guard(e.breaker, func() error {
		var findErr error
		recordID, found, findErr = e.store.FindByOrderID(ctx, key)
		return findErr
	})
	if err != nil {
		return e.fail(result, rec.Source, fmt.Errorf("query existing record: %w", err))
	}

	if found {
		err = utils.Guard(e.breaker, func() error {
			return e.store.UpdateRecord(ctx, recordID, props)
		})
		if err != nil {
			return e.fail(result, rec.Source, fmt.Errorf("update record: %w", err))
		}
		result.Effect = models.EffectUpdated
		result.RecordID = recordID
		return result
	}

	err = utils.Guard(e.breaker, func() error {
		var createErr error
		recordID, createErr = e.store.CreateRecord(ctx, props)
		return createErr
	})
	if err != nil {
		return e.fail(result, rec.Source, fmt.Errorf("create record: %w", err))
	}
	result.Effect = models.EffectCreated
	result.RecordID = recordID
	return result
}

func (e *Engine) fail(result models.UpsertResult, source string, err error) models.UpsertResult {
	logger.L.Error("Record store error", "source", source, "error", err)
	result.Reason = "store error"
	result.Err = err
	return result
}

// UpsertAll reconciles records sequentially in input order, so a repeated
// order id ends with the last occurrence's values.
func (e *Engine) UpsertAll(ctx context.Context, records []models.NormalizedRecord) ([]models.UpsertResult, models.BatchSummary) {
	results := make([]models.UpsertResult, 0, len(records))
	var summary models.BatchSummary
	for _, rec := range records {
		r := e.Upsert(ctx, rec)
		summary.Add(r)
		results = append(results, r)
	}
	return results, summary
}
