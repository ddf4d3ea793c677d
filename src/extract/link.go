package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultStorageToken identifies pre-signed storage links that carry no .csv
// suffix.
const DefaultStorageToken = "s3.amazonaws.com"

var ErrLinkNotFound = errors.New("report download link not found")

// BodyKind selects which half of a BodyContent a strategy inspects.
type BodyKind int

const (
	BodyHTML BodyKind = iota
	BodyText
)

// LinkStrategy is one step of the link search. Find returns "" when it has no
// candidate.
type LinkStrategy struct {
	Name string
	Body BodyKind
	Find func(content string, m *linkMatcher) string
}

// LinkStrategies is the precedence order of the link search. The first
// strategy to return a URL wins.
var LinkStrategies = []LinkStrategy{
	{Name: "html-anchor", Body: BodyHTML, Find: findAnchorHref},
	{Name: "html-url", Body: BodyHTML, Find: findHTMLURL},
	{Name: "text-csv-url", Body: BodyText, Find: findTextCSVURL},
	{Name: "text-storage-url", Body: BodyText, Find: findTextStorageURL},
	{Name: "text-export-url", Body: BodyText, Find: findTextExportURL},
}

var (
	textCSVURLRe = regexp.MustCompile(`(?i)https?://[^\s<>"]+\.csv[^\s<>"]*`)
	anyURLRe     = regexp.MustCompile(`https?://[^\s<>"]+`)
)

// linkMatcher holds the patterns that depend on the storage token.
type linkMatcher struct {
	token         string
	htmlURLRe     *regexp.Regexp
	textStorageRe *regexp.Regexp
}

func newLinkMatcher(token string) *linkMatcher {
	quoted := regexp.QuoteMeta(strings.ToLower(token))
	return &linkMatcher{
		token:         strings.ToLower(token),
		htmlURLRe:     regexp.MustCompile(`(?i)https?://[^\s<>"']+(?:\.csv|` + quoted + `[^\s<>"']*)`),
		textStorageRe: regexp.MustCompile(`(?i)https?://[^\s<>"]*` + quoted + `[^\s<>"]+`),
	}
}

type LinkExtractor struct {
	matcher    *linkMatcher
	strategies []LinkStrategy
}

// NewLinkExtractor builds an extractor for the given storage token. An empty
// token selects DefaultStorageToken.
func NewLinkExtractor(storageToken string) *LinkExtractor {
	if strings.TrimSpace(storageToken) == "" {
		storageToken = DefaultStorageToken
	}
	return &LinkExtractor{matcher: newLinkMatcher(storageToken), strategies: LinkStrategies}
}

// Extract returns the best download URL and the name of the strategy that
// found it.
func (e *LinkExtractor) Extract(body BodyContent) (url string, strategy string, err error) {
	for _, s := range e.strategies {
		content := body.HTML
		if s.Body == BodyText {
			content = body.Text
		}
		if content == "" {
			continue
		}
		if found := s.Find(content, e.matcher); found != "" {
			return found, s.Name, nil
		}
	}
	return "", "", ErrLinkNotFound
}

func findAnchorHref(content string, m *linkMatcher) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		if strings.Contains(lower, ".csv") || strings.Contains(lower, m.token) {
			found = href
			return false
		}
		return true
	})
	return found
}

func findHTMLURL(content string, m *linkMatcher) string {
	return m.htmlURLRe.FindString(content)
}

func findTextCSVURL(content string, _ *linkMatcher) string {
	return textCSVURLRe.FindString(content)
}

func findTextStorageURL(content string, m *linkMatcher) string {
	return m.textStorageRe.FindString(content)
}

func findTextExportURL(content string, _ *linkMatcher) string {
	for _, link := range anyURLRe.FindAllString(content, -1) {
		lower := strings.ToLower(link)
		if strings.Contains(lower, "csv") || strings.Contains(lower, "export") {
			return link
		}
	}
	return ""
}
