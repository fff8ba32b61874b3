// Package telegram implements the chat side of the bot: a thin Bot API
// client and the long-polling loop that routes group questions to the
// answering service.
package telegram

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

const defaultBaseURL = "https://api.telegram.org"

// MaxMessageLen is the platform's maximum outbound message length, in runes.
const MaxMessageLen = 4096

// Update is one item from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message. Only the fields the bot reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// User identifies a message sender.
type User struct {
	ID    int64 `json:"id"`
	IsBot bool  `json:"is_bot"`
}

// Chat identifies where a message was sent.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// API is the Bot API surface the loop needs.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BotAPI implements API over HTTPS.
type BotAPI struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewBotAPI creates a client for the given bot token.
func NewBotAPI(token string, logger *slog.Logger) *BotAPI {
	return NewBotAPIWithBase(defaultBaseURL, token, &http.Client{}, logger)
}

// NewBotAPIWithBase creates a client against a custom base URL. Used by tests.
func NewBotAPIWithBase(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *BotAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotAPI{baseURL: baseURL, token: token, http: httpClient, logger: logger}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// GetUpdates long-polls for updates at or after offset. timeout is the
// server-side hold time; the HTTP request itself is bounded a little above it.
func (a *BotAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	raw, err := a.call(reqCtx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage sends text to the chat. Text longer than MaxMessageLen must
// be split by the caller first.
func (a *BotAPI) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if _, err := a.call(ctx, "sendMessage", payload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (a *BotAPI) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	url := a.baseURL + "/bot" + a.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("%s: api error: %s", method, apiResp.Description)
	}
	return apiResp.Result, nil
}
