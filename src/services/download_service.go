package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/security/validation"
	"golang.org/x/net/publicsuffix"
)

// ErrDownloadFailed wraps every report download failure.
var ErrDownloadFailed = errors.New("CSV download failed")

const maxReportBytes = 32 << 20

// DownloadError carries the HTTP status of a rejected download.
type DownloadError struct {
	StatusCode int
}

func (e *DownloadError) Error() string {
	switch e.StatusCode {
	case http.StatusForbidden:
		return "access forbidden (link may have expired)"
	case http.StatusNotFound:
		return "file not found"
	default:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
}

func (e *DownloadError) Unwrap() error { return ErrDownloadFailed }

type DownloadService interface {
	Download(ctx context.Context, reportURL string) (string, error)
}

type downloadServiceImpl struct {
	httpClient http.Client
}

// NewDownloadService returns a downloader whose requests are bounded by
// timeout. Redirects are followed and cookies set along the redirect chain
// are replayed, which signed storage links sometimes rely on.
func NewDownloadService(timeout time.Duration) DownloadService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	return &downloadServiceImpl{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}
}

// Download fetches a report and returns it as text. An empty body counts as a
// failed download.
func (s *downloadServiceImpl) Download(ctx context.Context, reportURL string) (string, error) {
	parsed, err := url.Parse(reportURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid report URL", ErrDownloadFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	req.Header.Set("User-Agent", "reportsync/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The URL may embed signed credentials, so only the host is logged.
		logger.L.Error("CSV download error", "host", parsed.Host)
		return "", fmt.Errorf("%w: request to %s: %v", ErrDownloadFailed, parsed.Host, errors.Unwrap(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &DownloadError{StatusCode: resp.StatusCode}
		logger.L.Error("CSV download error: "+derr.Error(), "host", parsed.Host)
		return "", derr
	}

	declaredCharset, err := validation.ValidateReportContentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrDownloadFailed, err)
	}
	if len(data) > maxReportBytes {
		return "", fmt.Errorf("%w: report exceeds %d bytes", ErrDownloadFailed, maxReportBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty report", ErrDownloadFailed)
	}
	if _, err := validation.ValidateReportContent(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	text, err := validation.DecodeReportText(data, declaredCharset)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	logger.L.Info("CSV downloaded", "bytes", len(data))
	return text, nil
}
