package database

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/models"
)

var testFields = config.FieldMapping{
	Source:    "Source",
	Amount:    "Order Amount",
	OrderID:   "Order ID",
	OrderDate: "Order Date",
	Processed: "Sum-er",
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(context.Background(), db, "orders", testFields)
	require.NoError(t, err)
	return store
}

func TestSQLiteStoreCreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, found, err := store.FindByOrderID(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, found)

	id, err := store.CreateRecord(ctx, models.RecordProperties{
		Source: "Storefront", Amount: decimal.RequireFromString("25.50"), OrderID: 1001, OrderDate: "2024-03-01", Processed: true,
	})
	require.NoError(t, err)

	gotID, found, err := store.FindByOrderID(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, gotID)

	err = store.UpdateRecord(ctx, id, models.RecordProperties{
		Source: "Storefront", Amount: decimal.RequireFromString("30.00"), OrderID: 1001, OrderDate: "2024-03-02", Processed: true,
	})
	require.NoError(t, err)

	var amount, date string
	var processed bool
	row := store.db.QueryRowContext(ctx, `SELECT "Order Amount", "Order Date", "Sum-er" FROM "orders" WHERE id = ?`, id)
	require.NoError(t, row.Scan(&amount, &date, &processed))
	assert.Equal(t, "30", amount)
	assert.Equal(t, "2024-03-02", date)
	assert.True(t, processed)
}

func TestSQLiteStoreUpdateUnknownRecord(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateRecord(context.Background(), "42", models.RecordProperties{OrderID: 1, OrderDate: "2024-01-01"})
	assert.Error(t, err)

	err = store.UpdateRecord(context.Background(), "not-a-number", models.RecordProperties{})
	assert.Error(t, err)
}

func TestSQLiteStoreAddsRenamedColumns(t *testing.T) {
	ctx := context.Background()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewSQLiteStore(ctx, db, "orders", testFields)
	require.NoError(t, err)

	renamed := testFields
	renamed.Processed = "Reconciled"
	store, err := NewSQLiteStore(ctx, db, "orders", renamed)
	require.NoError(t, err)

	_, err = store.CreateRecord(ctx, models.RecordProperties{Source: "s", Amount: decimal.NewFromInt(1), OrderID: 5, OrderDate: "2024-01-01", Processed: true})
	require.NoError(t, err)

	var reconciled bool
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "Reconciled" FROM "orders" WHERE "Order ID" = 5`).Scan(&reconciled))
	assert.True(t, reconciled)
}
