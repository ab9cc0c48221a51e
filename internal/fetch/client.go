// Package fetch retrieves OHLCV bars from the market-data provider,
// normalizes every response shape into the canonical bar format, respects
// rate limits, and degrades per-symbol and per-chunk on failure.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// barsClient is the wire-level slice of the provider the fetcher depends on.
type barsClient interface {
	// GetBars returns the raw per-symbol bar records for one request,
	// following pagination to exhaustion.
	GetBars(ctx context.Context, symbols []string, timeframe string, start, end time.Time) (map[string][]json.RawMessage, error)
}

// pageLimit is the per-page row cap requested from the provider.
const pageLimit = 10000

// HTTPClient talks to the provider's historical bars endpoint. Responses are
// decoded only down to raw per-symbol records; shape normalization happens
// in the normalizer, once, at the boundary.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	secretKey string
	feed      string
	httpc     *http.Client
}

var _ barsClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the bars endpoint at baseURL using the
// given credential pair and data feed.
func NewHTTPClient(baseURL, apiKey, secretKey, feed string) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		feed:      feed,
		httpc:     &http.Client{Timeout: 10 * time.Second},
	}
}

// barsPage is one page of the provider's multi-symbol bars response.
type barsPage struct {
	Bars          map[string][]json.RawMessage `json:"bars"`
	NextPageToken *string                      `json:"next_page_token"`
}

// GetBars fetches bars for up to the provider's per-request symbol limit in
// one logical call, following next_page_token until the response is
// exhausted. The returned records are raw JSON; their shape varies and is
// resolved by the normalizer.
func (c *HTTPClient) GetBars(ctx context.Context, symbols []string, timeframe string, start, end time.Time) (map[string][]json.RawMessage, error) {
	merged := make(map[string][]json.RawMessage)

	pageToken := ""
	for {
		page, err := c.getPage(ctx, symbols, timeframe, start, end, pageToken)
		if err != nil {
			return nil, err
		}

		for symbol, records := range page.Bars {
			merged[symbol] = append(merged[symbol], records...)
		}

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			return merged, nil
		}
		pageToken = *page.NextPageToken
	}
}

func (c *HTTPClient) getPage(ctx context.Context, symbols []string, timeframe string, start, end time.Time, pageToken string) (*barsPage, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("timeframe", timeframe)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("limit", fmt.Sprint(pageLimit))
	if c.feed != "" {
		q.Set("feed", c.feed)
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}

	u := c.baseURL + "/v2/stocks/bars?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bars request status %d: %s", resp.StatusCode, trimBody(body))
	}

	page := &barsPage{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, fmt.Errorf("decoding bars response: %w", err)
	}
	return page, nil
}

// trimBody bounds an error payload so provider error pages don't flood logs.
func trimBody(body []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
