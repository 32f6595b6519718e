// Package notify delivers human-readable transition messages. Delivery
// failure is never fatal to the watcher; callers log and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier delivers state-transition messages to a human.
type Notifier interface {
	ProductAvailable(ctx context.Context, productName, productURL, location string) error
	CartAlert(ctx context.Context, productName, productURL, location string) error
	Alert(ctx context.Context, title, message string) error
}

// Noop is used when no bot credentials are configured.
type Noop struct{}

func (Noop) ProductAvailable(context.Context, string, string, string) error { return nil }
func (Noop) CartAlert(context.Context, string, string, string) error        { return nil }
func (Noop) Alert(context.Context, string, string) error                    { return nil }

// Telegram sends messages through the Bot API's sendMessage endpoint.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewTelegram(token, chatID string, logger *slog.Logger) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("component", "telegram"),
	}
}

// SetBaseURL points the notifier at a different API host. Used in tests.
func (t *Telegram) SetBaseURL(url string) {
	t.baseURL = url
}

func (t *Telegram) ProductAvailable(ctx context.Context, productName, productURL, location string) error {
	msg := fmt.Sprintf(
		"Product AVAILABLE!\n\nProduct: %s\nLocation: %s\nTime: %s\n\nLink: %s",
		productName, location, time.Now().Format("2006-01-02 15:04:05"), productURL,
	)
	return t.send(ctx, msg)
}

func (t *Telegram) CartAlert(ctx context.Context, productName, productURL, location string) error {
	msg := fmt.Sprintf(
		"PRODUCT ADDED TO CART!\n\nProduct: %s\nLocation: %s\nTime: %s\n\nURL: %s",
		productName, location, time.Now().Format("2006-01-02 15:04:05"), productURL,
	)
	return t.send(ctx, msg)
}

func (t *Telegram) Alert(ctx context.Context, title, message string) error {
	return t.send(ctx, fmt.Sprintf("%s\n\n%s", title, message))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram send failed: status %d: %s", resp.StatusCode, body)
	}

	t.logger.Info("notification sent", "chars", len(text))
	return nil
}
