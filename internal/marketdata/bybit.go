package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"patch-forecast-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.bybit.com"
	DefaultCategory    = "spot"
	DefaultPageLimit   = 1000
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultJitter      = 0.1
	DefaultRateLimit   = 10 // requests per second
	DefaultCacheSize   = 256
)

// BybitProvider fetches candles from the Bybit v5 market/kline endpoint.
type BybitProvider struct {
	baseURL     string
	category    string
	pageLimit   int
	client      *http.Client
	limiter     *rate.Limiter
	cache       *lru.Cache[string, []*domain.Candle]
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	jitter      float64
	rng         *rand.Rand
	rngMu       sync.Mutex
	log         logrus.FieldLogger
}

// BybitOption configures BybitProvider.
type BybitOption func(*BybitProvider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) BybitOption {
	return func(p *BybitProvider) {
		p.baseURL = u
	}
}

// WithCategory sets the product category (spot, linear, inverse).
func WithCategory(c string) BybitOption {
	return func(p *BybitProvider) {
		p.category = c
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) BybitOption {
	return func(p *BybitProvider) {
		p.client = client
	}
}

// WithMaxRetries sets maximum retry attempts per page.
func WithMaxRetries(n int) BybitOption {
	return func(p *BybitProvider) {
		p.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) BybitOption {
	return func(p *BybitProvider) {
		p.retryDelay = d
	}
}

// WithRateLimit sets the request rate limit in requests per second.
func WithRateLimit(rps float64) BybitOption {
	return func(p *BybitProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithPageLimit sets the per-request row limit (API max is 1000).
func WithPageLimit(n int) BybitOption {
	return func(p *BybitProvider) {
		p.pageLimit = n
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) BybitOption {
	return func(p *BybitProvider) {
		p.log = log
	}
}

// NewBybitProvider creates a Bybit kline provider.
func NewBybitProvider(opts ...BybitOption) *BybitProvider {
	cache, _ := lru.New[string, []*domain.Candle](DefaultCacheSize)

	p := &BybitProvider{
		baseURL:     DefaultBaseURL,
		category:    DefaultCategory,
		pageLimit:   DefaultPageLimit,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		cache:       cache,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		jitter:      DefaultJitter,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compile-time interface check.
var _ Provider = (*BybitProvider)(nil)

// klineResponse is the Bybit v5 response envelope.
type klineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string     `json:"category"`
		Symbol   string     `json:"symbol"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

// FetchCandles retrieves candles in [startMs, endMs], ascending by open time.
// The API returns newest-first pages, so fetching walks backward from endMs
// until the range is covered.
func (p *BybitProvider) FetchCandles(ctx context.Context, symbol string, interval domain.Interval, startMs, endMs int64) ([]*domain.Candle, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !interval.IsValid() {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	if startMs > endMs {
		return nil, fmt.Errorf("start %d after end %d", startMs, endMs)
	}

	var pages [][]*domain.Candle
	total := 0
	cursorEnd := endMs

	for cursorEnd >= startMs {
		page, err := p.fetchPage(ctx, symbol, interval, startMs, cursorEnd)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		pages = append(pages, page)
		total += len(page)

		// page is ascending; the oldest row bounds the next request
		oldest := page[0].OpenTimeMs
		if oldest <= startMs || len(page) < p.pageLimit {
			break
		}
		cursorEnd = oldest - 1
	}

	if total == 0 {
		return nil, ErrNoData
	}

	// Pages were collected newest-first; flatten oldest-first.
	candles := make([]*domain.Candle, 0, total)
	for i := len(pages) - 1; i >= 0; i-- {
		candles = append(candles, pages[i]...)
	}

	p.log.WithFields(logrus.Fields{
		"symbol":   symbol,
		"interval": interval.String(),
		"candles":  len(candles),
		"pages":    len(pages),
	}).Debug("fetched candles")

	return candles, nil
}

// fetchPage requests one kline page and returns it in ascending order.
func (p *BybitProvider) fetchPage(ctx context.Context, symbol string, interval domain.Interval, startMs, endMs int64) ([]*domain.Candle, error) {
	cacheKey := fmt.Sprintf("%s|%s|%d|%d", symbol, interval, startMs, endMs)
	if cached, ok := p.cache.Get(cacheKey); ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("category", p.category)
	q.Set("symbol", symbol)
	q.Set("interval", interval.String())
	q.Set("start", strconv.FormatInt(startMs, 10))
	q.Set("end", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(p.pageLimit))

	reqURL := p.baseURL + "/v5/market/kline?" + q.Encode()

	body, err := p.getWithRetry(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal kline response: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("kline API error %d: %s", resp.RetCode, resp.RetMsg)
	}

	// API rows are newest-first; reverse to ascending.
	candles := make([]*domain.Candle, 0, len(resp.Result.List))
	for i := len(resp.Result.List) - 1; i >= 0; i-- {
		c, err := parseKlineRow(symbol, interval, resp.Result.List[i])
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}

	p.cache.Add(cacheKey, candles)
	return candles, nil
}

// getWithRetry performs a GET with rate limiting, retries and jittered
// exponential backoff. API-level errors (retCode != 0) are not retried here
// since they arrive with HTTP 200.
func (p *BybitProvider) getWithRetry(ctx context.Context, reqURL string) ([]byte, error) {
	delay := p.retryDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.jittered(delay)):
			}
			delay = time.Duration(float64(delay) * p.backoffMult)
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// jittered spreads a delay by the configured jitter range.
func (p *BybitProvider) jittered(d time.Duration) time.Duration {
	if p.jitter <= 0 {
		return d
	}
	p.rngMu.Lock()
	f := 1 + p.jitter*(2*p.rng.Float64()-1)
	p.rngMu.Unlock()
	return time.Duration(float64(d) * f)
}

// parseKlineRow parses one kline row:
// [startTime, open, high, low, close, volume, turnover], all strings.
func parseKlineRow(symbol string, interval domain.Interval, row []string) (*domain.Candle, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}

	openTime, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse kline open time %q: %w", row[0], err)
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse kline field %d %q: %w", i+1, row[i+1], err)
		}
		vals[i] = v
	}

	return &domain.Candle{
		Symbol:     symbol,
		Interval:   interval,
		OpenTimeMs: openTime,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vals[4],
	}, nil
}
