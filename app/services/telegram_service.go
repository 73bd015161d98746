package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/engine"
)

// TelegramService implements engine.Notifier via the Telegram Bot API.
type TelegramService struct {
	APIDomain  string
	BotToken   string
	HTTPClient *http.Client
}

func NewTelegramService(cfg config.TelegramConfig) *TelegramService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	domain := strings.TrimRight(cfg.APIDomain, "/")
	if domain == "" {
		domain = "https://api.telegram.org"
	}
	return &TelegramService{
		APIDomain:  domain,
		BotToken:   cfg.BotToken,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends one plain-text message to the chat. Telegram formats and
// truncates on its side; we send what the engine built.
func (t *TelegramService) Notify(ctx context.Context, chatID int64, text string) error {
	if t.BotToken == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}

	body, _ := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.APIDomain, t.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var sr sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("telegram: status %d, undecodable response: %w", resp.StatusCode, err)
	}
	if !sr.OK {
		return fmt.Errorf("telegram: send failed: %s", sr.Description)
	}
	return nil
}

var _ engine.Notifier = (*TelegramService)(nil)
