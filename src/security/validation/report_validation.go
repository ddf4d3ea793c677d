package validation

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/username/reportsync/src/logger"
)

// ReportContentTypes classifies server-declared media types of a report
// download. true marks a known CSV-ish type, false a type that is never a
// report. Types not listed are accepted, as is an absent Content-Type.
var ReportContentTypes = map[string]bool{
	"text/csv":                    true,
	"text/x-csv":                  true,
	"application/csv":             true,
	"application/x-csv":           true,
	"text/comma-separated-values": true,
	"application/vnd.ms-excel":    true,
	"text/plain":                  true,
	"application/octet-stream":    true,
	"binary/octet-stream":         true,
	"application/download":        true,
	"application/force-download":  true,
	"text/html":                   false,
	"application/xhtml+xml":       false,
	"application/json":            false,
	"application/pdf":             false,
	"application/zip":             false,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false,
}

var nonReportPrefixes = []string{"image/", "audio/", "video/"}

// ValidateReportContentType rejects a download whose declared Content-Type
// is known not to be a report. It returns the declared charset, if any.
func ValidateReportContentType(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	allowed, known := ReportContentTypes[mediaType]
	if !known {
		for _, prefix := range nonReportPrefixes {
			if strings.HasPrefix(mediaType, prefix) {
				allowed, known = false, true
			}
		}
	}
	if known && !allowed {
		logger.L.Warn("Disallowed report Content-Type", "contentType", mediaType)
		return "", fmt.Errorf("declared content type '%s' is not a CSV report", mediaType)
	}
	if !known {
		logger.L.Debug("Unrecognized report Content-Type accepted", "contentType", mediaType)
	}
	return params["charset"], nil
}

// ValidateReportContent sniffs the leading bytes of a report. Expired download
// links commonly answer with an HTML landing page, and those are rejected here
// along with binary payloads. Returns the detected content type.
func ValidateReportContent(data []byte) (string, error) {
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	detected := http.DetectContentType(sniff)
	detected = strings.ToLower(strings.Split(detected, ";")[0])

	allowedDetectedTypes := map[string]bool{
		"text/plain":      true,
		"text/csv":        true,
		"application/csv": true,
	}
	if !allowedDetectedTypes[detected] {
		logger.L.Warn("Report content is not CSV text", "detectedContentType", detected)
		return detected, fmt.Errorf("detected content type '%s' is not consistent with a CSV report", detected)
	}

	logger.L.Debug("Report content validated", "detectedContentType", detected)
	return detected, nil
}

// DecodeReportText converts report bytes to UTF-8 text. The declared charset
// wins when it is not UTF-8. Bytes that are not valid UTF-8 and carry no
// usable declaration are read as Windows-1252, the usual spreadsheet export
// encoding.
func DecodeReportText(data []byte, declaredCharset string) (string, error) {
	label := strings.ToLower(strings.TrimSpace(declaredCharset))
	switch label {
	case "", "utf-8", "utf8", "us-ascii":
		if utf8.Valid(data) {
			return string(data), nil
		}
		logger.L.Debug("Report is not valid UTF-8, decoding as windows-1252", "declaredCharset", label)
		label = "windows-1252"
	}

	r, err := charset.Reader(label, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unsupported report charset '%s': %w", label, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode report as %s: %w", label, err)
	}
	return string(decoded), nil
}
