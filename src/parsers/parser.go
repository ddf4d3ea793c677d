package parsers

import (
	"io"

	"github.com/username/reportsync/src/models"
)

// Parser turns one report's CSV text into normalized records. Row problems are
// reported as skipped outcomes; an error means the document itself was
// unreadable.
type Parser interface {
	Parse(r io.Reader) (models.ParseResult, error)
}
