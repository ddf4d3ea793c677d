package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/reportsync/src/config"
)

func TestGetParser(t *testing.T) {
	src := config.SourceConfig{Name: "A", IDField: "id", DateField: "date", AmountField: "amt"}

	p, err := GetParser(KindLink, src)
	require.NoError(t, err)
	assert.NotNil(t, p)

	p, err = GetParser(KindAttachment, src)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = GetParser("fax", src)
	assert.Error(t, err)
}
