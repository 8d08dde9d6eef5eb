package notifications

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/httputil"
)

// WebhookSender posts to a Slack or Discord incoming webhook. Discord is
// detected from the URL.
type WebhookSender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewWebhookSender(webhookURL, botName string, log *zap.Logger) *WebhookSender {
	if botName == "" {
		botName = DefaultBotName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookSender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Log:         log.Named("webhook"),
		},
	}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Enabled() bool {
	return s.webhookURL != ""
}

func (s *WebhookSender) Send(ctx context.Context, msg string) error {
	if !s.Enabled() {
		return nil
	}

	body, err := sonic.Marshal(s.formatPayload(fmt.Sprintf("[%s] %s", s.botName, msg)))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *WebhookSender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}
