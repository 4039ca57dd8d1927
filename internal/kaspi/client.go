package kaspi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"kaspi-sync/internal/util"

	"go.uber.org/zap"
)

// DefaultBaseURL is the fixed marketplace API endpoint.
const DefaultBaseURL = "https://kaspi.kz/shop/api/v2"

// DefaultPace is the minimum delay enforced after every response. The
// marketplace throttles aggressively; rate-limit compliance takes priority
// over throughput.
const DefaultPace = 400 * time.Millisecond

// APIError is returned for any non-2xx marketplace response. The client
// never retries; callers own the retry policy.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kaspi api: status %d: %s", e.StatusCode, e.Body)
}

// Client provides authenticated access to the marketplace order API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	pace       time.Duration
	sleep      func(time.Duration)
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithPace overrides the post-response delay.
func WithPace(d time.Duration) Option {
	return func(c *Client) { c.pace = d }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a marketplace API client.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		pace:       DefaultPace,
		sleep:      time.Sleep,
		logger:     util.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrders requests one page of orders created inside [fromMs, toMs]
// (millisecond epoch). An empty slice signals upstream exhaustion.
func (c *Client) GetOrders(ctx context.Context, fromMs, toMs int64, page, size int) ([]OrderPayload, error) {
	params := url.Values{}
	params.Set("page[number]", strconv.Itoa(page))
	params.Set("page[size]", strconv.Itoa(size))
	params.Set("filter[orders][creationDate][$ge]", strconv.FormatInt(fromMs, 10))
	params.Set("filter[orders][creationDate][$le]", strconv.FormatInt(toMs, 10))

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/orders", "orders", params, &envelope); err != nil {
		return nil, err
	}

	orders := make([]OrderPayload, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		var p OrderPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode order payload: %w", err)
		}
		p.Raw = raw
		orders = append(orders, p)
	}
	return orders, nil
}

// GetOrderEntries fetches the line entries of one order.
func (c *Client) GetOrderEntries(ctx context.Context, orderID string) ([]EntryPayload, error) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/orders/"+orderID+"/entries", "entries", nil, &envelope); err != nil {
		return nil, err
	}

	entries := make([]EntryPayload, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		var e EntryPayload
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode entry payload: %w", err)
		}
		e.Raw = raw
		entries = append(entries, e)
	}
	return entries, nil
}

// GetEntryProduct fetches the product linked to one entry. Returns nil when
// the marketplace has no product for the entry.
func (c *Client) GetEntryProduct(ctx context.Context, entryID string) (*ProductPayload, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/orderentries/"+entryID+"/product", "product", nil, &envelope); err != nil {
		return nil, err
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, nil
	}

	var p ProductPayload
	if err := json.Unmarshal(envelope.Data, &p); err != nil {
		return nil, fmt.Errorf("decode product payload: %w", err)
	}
	p.Raw = envelope.Data
	return &p, nil
}

func (c *Client) get(ctx context.Context, path, endpoint string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Accept", "application/vnd.api+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	util.KaspiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	// Fixed pacing after every response, error or not.
	defer c.sleep(c.pace)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Kaspi API request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
