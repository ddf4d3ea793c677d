package csvrows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadKeysRowsByHeader(t *testing.T) {
	rows, err := Read("\ufeffid, amount ,date\n1001, 25.50 ,2024-03-01\n1002\n")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	v, ok := rows[0].Get("amount")
	assert.True(t, ok)
	assert.Equal(t, "25.50", v)
	v, ok = rows[0].Get("id")
	assert.True(t, ok)
	assert.Equal(t, "1001", v)
	assert.Equal(t, 2, rows[0].Line)

	_, ok = rows[1].Get("date")
	assert.False(t, ok, "short row has no date cell")
	_, ok = rows[0].Get("missing")
	assert.False(t, ok)
	assert.Equal(t, "1002", rows[1].First())
}

func TestReadEmptyDocument(t *testing.T) {
	rows, err := Read("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadHeaderOnly(t *testing.T) {
	rows, err := Read("id,amount,date\n")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDropLeadingLines(t *testing.T) {
	text := "Report generated Monday\nid,amount\n1,2\n"
	assert.Equal(t, "id,amount\n1,2", DropLeadingLines(text, 1))
	assert.Equal(t, text, DropLeadingLines(text, 0))
	assert.Equal(t, text, DropLeadingLines(text, 3), "never drops every line")
}
