package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/httputil"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

const DefaultBinanceURL = "https://api.binance.com"

// Binance caps klines at 1000 per request.
const maxKlines = 1000

type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewBinanceClient(baseURL string, timeout time.Duration, log *zap.Logger) *BinanceClient {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BinanceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Log:         log.Named("binance"),
		},
	}
}

// FetchCandles returns up to limit klines for symbol, oldest first.
func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.PriceCandle, error) {
	if limit <= 0 || limit > maxKlines {
		limit = maxKlines
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v3/klines?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: binance klines %s: %w", ErrUpstreamFetch, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read klines %s: %w", ErrUpstreamFetch, symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: binance returned status %d for %s: %s",
			ErrUpstreamFetch, resp.StatusCode, symbol, truncate(body, 200))
	}

	var rows [][]any
	if err := sonic.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode klines %s: %w", ErrUpstreamFetch, symbol, err)
	}

	candles := make([]models.PriceCandle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("%w: kline %d of %s: %w", ErrUpstreamFetch, i, symbol, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, closeTime, ...].
// Prices arrive as strings, times as epoch milliseconds.
func parseKline(row []any) (models.PriceCandle, error) {
	if len(row) < 7 {
		return models.PriceCandle{}, fmt.Errorf("expected at least 7 fields, got %d", len(row))
	}
	var vals [7]float64
	for i := 0; i < 7; i++ {
		v, err := number(row[i])
		if err != nil {
			return models.PriceCandle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return models.PriceCandle{
		OpenTime:  time.UnixMilli(int64(vals[0])).UTC(),
		Open:      vals[1],
		High:      vals[2],
		Low:       vals[3],
		Close:     vals[4],
		Volume:    vals[5],
		CloseTime: time.UnixMilli(int64(vals[6])).UTC(),
	}, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
