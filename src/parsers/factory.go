package parsers

import (
	"fmt"

	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/parsers/attachmentreport"
	"github.com/username/reportsync/src/parsers/linkreport"
)

// Report kinds, named after how each report reaches the mailbox.
const (
	KindLink       = "link"
	KindAttachment = "attachment"
)

func GetParser(kind string, source config.SourceConfig) (Parser, error) {
	switch kind {
	case KindLink:
		return linkreport.NewParser(source), nil
	case KindAttachment:
		return attachmentreport.NewParser(source), nil
	default:
		return nil, fmt.Errorf("no parser available for report kind: %s", kind)
	}
}
