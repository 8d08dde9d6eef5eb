package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultBinanceWSURL = "wss://stream.binance.com:9443"

// TickerStream consumes the Binance combined mini-ticker stream for a set of
// symbols and pushes last prices into a PriceCache. It reconnects with
// exponential backoff until its context is cancelled.
type TickerStream struct {
	baseURL string
	symbols []string
	writer  *Writer
	log     *zap.Logger

	ReadTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func NewTickerStream(baseURL string, symbols []string, writer *Writer, log *zap.Logger) *TickerStream {
	if baseURL == "" {
		baseURL = DefaultBinanceWSURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TickerStream{
		baseURL:     strings.TrimRight(baseURL, "/"),
		symbols:     symbols,
		writer:      writer,
		log:         log.Named("ticker"),
		ReadTimeout: 60 * time.Second,
		MinBackoff:  time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// URL is the combined-stream endpoint, e.g.
// wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker
func (s *TickerStream) URL() string {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@miniTicker"
	}
	return s.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// Run blocks until ctx is done.
func (s *TickerStream) Run(ctx context.Context) {
	if len(s.symbols) == 0 {
		s.log.Warn("no symbols to stream")
		return
	}

	backoff := s.MinBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = s.MinBackoff
		}
		s.log.Warn("ticker stream disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.MaxBackoff {
			backoff = s.MaxBackoff
		}
	}
}

// session dials once and reads until the connection fails. connected reports
// whether the dial succeeded.
func (s *TickerStream) session(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	s.log.Info("ticker stream connected", zap.Int("symbols", len(s.symbols)))

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if s.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		q, err := parseMiniTicker(msg)
		if err != nil {
			s.log.Debug("skipping ticker message", zap.Error(err))
			continue
		}
		s.writer.Update(q)
	}
}

type combinedMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

func parseMiniTicker(msg []byte) (Quote, error) {
	var m combinedMessage
	if err := sonic.Unmarshal(msg, &m); err != nil {
		return Quote{}, fmt.Errorf("decode: %w", err)
	}
	if m.Data.Symbol == "" {
		return Quote{}, fmt.Errorf("not a ticker event: %s", m.Stream)
	}
	price, err := strconv.ParseFloat(m.Data.Close, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("price %q: %w", m.Data.Close, err)
	}
	return Quote{Symbol: m.Data.Symbol, Price: price}, nil
}
