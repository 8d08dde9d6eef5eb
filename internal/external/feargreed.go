package external

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/httputil"
)

const DefaultFearGreedURL = "https://api.alternative.me/fng/?limit=1"

// FearGreedClient fetches the crypto Fear & Greed index (0 = extreme fear,
// 100 = extreme greed). Values are cached for ttl; when a refresh fails the
// last good value is served regardless of age.
type FearGreedClient struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	value     int
	fetchedAt time.Time
	hasValue  bool
}

func NewFearGreedClient(url string, ttl time.Duration, log *zap.Logger) *FearGreedClient {
	if url == "" {
		url = DefaultFearGreedURL
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("feargreed")
	return &FearGreedClient{
		url:        url,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   1 * time.Second,
			MaxDelay:    3 * time.Second,
			Log:         log,
		},
		log: log,
		now: time.Now,
	}
}

func (c *FearGreedClient) FetchSentimentIndex(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasValue && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	v, err := c.fetch(ctx)
	if err != nil {
		if c.hasValue {
			c.log.Warn("fear & greed refresh failed, serving cached value",
				zap.Int("value", c.value),
				zap.Duration("age", c.now().Sub(c.fetchedAt)),
				zap.Error(err))
			return c.value, nil
		}
		return 0, err
	}

	c.value, c.fetchedAt, c.hasValue = v, c.now(), true
	return v, nil
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

func (c *FearGreedClient) fetch(ctx context.Context) (int, error) {
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: fear & greed: %w", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: fear & greed returned status %d", ErrUpstreamFetch, resp.StatusCode)
	}

	var data fngResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("%w: decode fear & greed: %w", ErrUpstreamFetch, err)
	}
	if len(data.Data) == 0 {
		return 0, fmt.Errorf("%w: fear & greed returned no data", ErrUpstreamFetch)
	}

	v, err := strconv.Atoi(data.Data[0].Value)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("%w: invalid fear & greed value %q", ErrUpstreamFetch, data.Data[0].Value)
	}
	return v, nil
}
