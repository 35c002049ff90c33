// Package bybit implements the signed Bybit v5 REST client used to warm the
// monitor's caches and to correlate realized PnL.
package bybit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/quantrail/sentinel/errs"
	"github.com/quantrail/sentinel/internal/schema"
)

const (
	venue = "bybit"

	// Bybit allows 120 requests/minute per UID; pace a bit under that.
	restRequestsPerSecond = 2
	retCodeRateLimited    = 10002

	defaultPageLimit = 200
	maxErrorBody     = 4 << 10

	rateLimitAttempts = 3
	rateLimitPause    = 500 * time.Millisecond
)

// Client is a signed REST client for the Bybit v5 API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock overrides the timestamp source, primarily for testing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a client for the given base URL and credentials.
func NewClient(baseURL, apiKey, apiSecret string, recvWindow int, timeout time.Duration, opts ...Option) *Client {
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: recvWindow,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(restRequestsPerSecond), 1),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type listResult struct {
	List           json.RawMessage `json:"list"`
	NextPageCursor string          `json:"nextPageCursor"`
}

// get performs a signed GET request, retrying a venue rate-limit rejection a
// bounded number of times on top of the local pacing.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	var result json.RawMessage
	var err error
	for attempt := 1; attempt <= rateLimitAttempts; attempt++ {
		result, err = c.getOnce(ctx, endpoint, params)
		if err == nil || !errs.HasCode(err, errs.CodeRateLimited) || attempt == rateLimitAttempts {
			return result, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rest retry: %w", ctx.Err())
		case <-time.After(rateLimitPause):
		}
	}
	return result, err
}

func (c *Client) getOnce(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rest pacing: %w", err)
	}

	query := encodeSorted(params)
	timestamp := c.now().UnixMilli()
	signature := restSignature(c.apiSecret, c.apiKey, timestamp, c.recvWindow, query)

	fullURL := c.baseURL + endpoint
	if query != "" {
		fullURL += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", endpoint, err)
	}
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(c.recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.New(venue, errs.CodeNetwork,
			errs.WithMessage("request "+endpoint), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errs.New(venue, errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(endpoint+" status "+resp.Status),
			errs.WithRawMessage(strings.TrimSpace(string(body))))
	}

	var payload apiResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if payload.RetCode != 0 {
		code := errs.CodeExchange
		if payload.RetCode == retCodeRateLimited {
			code = errs.CodeRateLimited
		}
		return nil, errs.New(venue, code,
			errs.WithRawCode(strconv.Itoa(payload.RetCode)),
			errs.WithRawMessage(payload.RetMsg),
			errs.WithMessage(endpoint))
	}
	return payload.Result, nil
}

// paginate follows nextPageCursor until the venue stops returning records,
// appending each page's raw list entries to out.
func (c *Client) paginate(ctx context.Context, endpoint string, params url.Values, out *[]json.RawMessage) error {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("limit") == "" {
		params.Set("limit", strconv.Itoa(defaultPageLimit))
	}
	for {
		result, err := c.get(ctx, endpoint, params)
		if err != nil {
			return err
		}
		var page listResult
		if err := json.Unmarshal(result, &page); err != nil {
			return fmt.Errorf("decode %s page: %w", endpoint, err)
		}
		var entries []json.RawMessage
		if len(page.List) > 0 {
			if err := json.Unmarshal(page.List, &entries); err != nil {
				return fmt.Errorf("decode %s entries: %w", endpoint, err)
			}
		}
		if len(entries) == 0 {
			return nil
		}
		*out = append(*out, entries...)
		cursor := strings.TrimSpace(page.NextPageCursor)
		if cursor == "" {
			return nil
		}
		params.Set("cursor", cursor)
	}
}

// OpenPositions fetches current positions for the category.
func (c *Client) OpenPositions(ctx context.Context, category string) ([]schema.PositionEvent, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("settleCoin", "USDT")

	var raw []json.RawMessage
	if err := c.paginate(ctx, "/v5/position/list", params, &raw); err != nil {
		return nil, err
	}
	positions := make([]schema.PositionEvent, 0, len(raw))
	for _, entry := range raw {
		var pos schema.PositionEvent
		if err := json.Unmarshal(entry, &pos); err != nil {
			return nil, fmt.Errorf("decode position entry: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// OpenOrders fetches currently open orders for the category.
func (c *Client) OpenOrders(ctx context.Context, category string) ([]schema.OrderEvent, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("settleCoin", "USDT")

	var raw []json.RawMessage
	if err := c.paginate(ctx, "/v5/order/realtime", params, &raw); err != nil {
		return nil, err
	}
	orders := make([]schema.OrderEvent, 0, len(raw))
	for _, entry := range raw {
		var order schema.OrderEvent
		if err := json.Unmarshal(entry, &order); err != nil {
			return nil, fmt.Errorf("decode order entry: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ClosedPnl fetches recent realized-PnL records, newest first. A zero or
// negative limit falls back to the venue default page size.
func (c *Client) ClosedPnl(ctx context.Context, category string, limit int) ([]schema.ClosedPnlRecord, error) {
	params := url.Values{}
	params.Set("category", category)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	result, err := c.get(ctx, "/v5/position/closed-pnl", params)
	if err != nil {
		return nil, err
	}
	var page struct {
		List []schema.ClosedPnlRecord `json:"list"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, fmt.Errorf("decode closed pnl: %w", err)
	}
	return page.List, nil
}

// WalletBalance fetches per-coin balances for the unified account.
func (c *Client) WalletBalance(ctx context.Context) ([]schema.WalletCoin, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	result, err := c.get(ctx, "/v5/account/wallet-balance", params)
	if err != nil {
		return nil, err
	}
	var page struct {
		List []struct {
			Coin []schema.WalletCoin `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, fmt.Errorf("decode wallet balance: %w", err)
	}
	var coins []schema.WalletCoin
	for _, account := range page.List {
		coins = append(coins, account.Coin...)
	}
	return coins, nil
}

// ClosedPnlSince fetches realized-PnL records created at or after startMs,
// following pagination to exhaustion.
func (c *Client) ClosedPnlSince(ctx context.Context, category string, startMs int64) ([]schema.ClosedPnlRecord, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("startTime", strconv.FormatInt(startMs, 10))

	var raw []json.RawMessage
	if err := c.paginate(ctx, "/v5/position/closed-pnl", params, &raw); err != nil {
		return nil, err
	}
	records := make([]schema.ClosedPnlRecord, 0, len(raw))
	for _, entry := range raw {
		var rec schema.ClosedPnlRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			return nil, fmt.Errorf("decode closed pnl entry: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// encodeSorted renders query parameters with sorted keys; the venue signs the
// query string verbatim, so ordering must be deterministic.
func encodeSorted(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}
