// Package notion stores reconciled orders as pages of a Notion database.
package notion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
	"github.com/username/reportsync/src/config"
	"github.com/username/reportsync/src/logger"
	"github.com/username/reportsync/src/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsClientError reports whether err is a Notion 4xx other than rate limiting.
func IsClientError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	databaseID string
	fields     config.FieldMapping
	limiter    *rate.Limiter
	// keyCache maps order ids written during this process to their page ids.
	keyCache *cache.Cache
}

func NewClient(cfg config.StoreConfig, timeout time.Duration) *Client {
	baseURL := strings.TrimRight(cfg.NotionBaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	perSecond := cfg.NotionRatePerSec
	if perSecond <= 0 {
		perSecond = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.NotionAPIKey,
		databaseID: cfg.NotionDatabaseID,
		fields:     cfg.Fields,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		keyCache:   cache.New(30*time.Minute, 10*time.Minute),
	}
}

type queryResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

type pageResponse struct {
	ID string `json:"id"`
}

func (c *Client) FindByOrderID(ctx context.Context, orderID int64) (string, bool, error) {
	cacheKey := strconv.FormatInt(orderID, 10)
	if pageID, ok := c.keyCache.Get(cacheKey); ok {
		return pageID.(string), true, nil
	}

	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"property": c.fields.OrderID,
			"number":   map[string]interface{}{"equals": orderID},
		},
		"page_size": 1,
	}
	var resp queryResponse
	if err := c.do(ctx, http.MethodPost, "/databases/"+c.databaseID+"/query", body, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Results) == 0 {
		return "", false, nil
	}
	c.keyCache.Set(cacheKey, resp.Results[0].ID, cache.DefaultExpiration)
	return resp.Results[0].ID, true, nil
}

func (c *Client) CreateRecord(ctx context.Context, props models.RecordProperties) (string, error) {
	body := map[string]interface{}{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": c.properties(props),
	}
	var resp pageResponse
	if err := c.do(ctx, http.MethodPost, "/pages", body, &resp); err != nil {
		return "", err
	}
	c.keyCache.Set(strconv.FormatInt(props.OrderID, 10), resp.ID, cache.DefaultExpiration)
	return resp.ID, nil
}

func (c *Client) UpdateRecord(ctx context.Context, pageID string, props models.RecordProperties) error {
	body := map[string]interface{}{"properties": c.properties(props)}
	return c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, nil)
}

func (c *Client) properties(props models.RecordProperties) map[string]interface{} {
	return map[string]interface{}{
		c.fields.Source: map[string]interface{}{
			"title": []map[string]interface{}{
				{"text": map[string]string{"content": props.Source}},
			},
		},
		c.fields.Amount:    map[string]interface{}{"number": props.Amount.InexactFloat64()},
		c.fields.OrderID:   map[string]interface{}{"number": props.OrderID},
		c.fields.OrderDate: map[string]interface{}{"date": map[string]interface{}{"start": props.OrderDate, "end": nil}},
		c.fields.Processed: map[string]interface{}{"checkbox": props.Processed},
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notion rate limiter: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode notion request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read notion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		logger.L.Debug("Notion API error", "method", method, "status", apiErr.Status, "code", apiErr.Code)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode notion response: %w", err)
	}
	return nil
}
