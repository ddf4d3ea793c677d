package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/username/reportsync/src/config"
)

func TestBuildStatementsQuotesMappedNames(t *testing.T) {
	sql := buildStatements("orders", config.FieldMapping{
		Source: "Source", Amount: "Order Amount", OrderID: "Order ID", OrderDate: "Order Date", Processed: "Sum-er",
	})

	assert.Equal(t, `SELECT id FROM "orders" WHERE "Order ID" = $1 ORDER BY id LIMIT 1`, sql.find)
	assert.Contains(t, sql.insert, `INSERT INTO "orders" ("Source", "Order Amount", "Order ID", "Order Date", "Sum-er")`)
	assert.Contains(t, sql.insert, "RETURNING id")
	assert.Contains(t, sql.update, `"Sum-er" = $5`)
	assert.Contains(t, sql.update, "WHERE id = $6")
	assert.Contains(t, sql.create, `"Order Amount" NUMERIC`)
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_orders_order_id" ON "orders" ("Order ID")`, sql.index)
}

func TestBuildStatementsEscapesQuotes(t *testing.T) {
	sql := buildStatements(`ord"ers`, config.FieldMapping{OrderID: "id"})
	assert.Contains(t, sql.find, `FROM "ord""ers"`)
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), "")
	assert.Error(t, err)
}
