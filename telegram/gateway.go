package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// GatewayClient talks to the userbot gateway's HTTP API. Every call waits
// on a shared rate limiter so the two poll monitors and concurrent
// correlate calls cannot flood the gateway.
type GatewayClient struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
}

func NewGatewayClient(httpClient *http.Client, baseURL, token string, callsPerSecond float64) *GatewayClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if callsPerSecond <= 0 {
		callsPerSecond = 10
	}
	return &GatewayClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1),
	}
}

type gatewayMessage struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Date     int64  `json:"date"` // unix seconds
	SenderID int64  `json:"sender_id"`
}

type gatewayChat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK     bool           `json:"ok"`
	Result gatewayMessage `json:"result"`
}

type historyResponse struct {
	OK     bool             `json:"ok"`
	Result []gatewayMessage `json:"result"`
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type chatResponse struct {
	OK     bool        `json:"ok"`
	Result gatewayChat `json:"result"`
}

type dialogsResponse struct {
	OK     bool          `json:"ok"`
	Result []gatewayChat `json:"result"`
}

func (c *GatewayClient) Send(ctx context.Context, chatID int64, text string) (Sent, error) {
	var out sendMessageResponse
	err := c.call(ctx, http.MethodPost, "/sendMessage", sendMessageRequest{ChatID: chatID, Text: text}, &out)
	if err != nil {
		return Sent{}, err
	}
	if !out.OK {
		return Sent{}, fmt.Errorf("gateway sendMessage: ok=false")
	}
	return Sent{ID: out.Result.ID, Timestamp: time.Unix(out.Result.Date, 0)}, nil
}

func (c *GatewayClient) Recent(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	q.Set("limit", strconv.Itoa(limit))
	var out historyResponse
	if err := c.call(ctx, http.MethodGet, "/chatHistory?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("gateway chatHistory: ok=false")
	}
	msgs := make([]Message, 0, len(out.Result))
	for _, m := range out.Result {
		msgs = append(msgs, Message{
			ID:        m.ID,
			Text:      m.Text,
			Timestamp: time.Unix(m.Date, 0),
			SenderID:  m.SenderID,
		})
	}
	return msgs, nil
}

func (c *GatewayClient) Delete(ctx context.Context, chatID, messageID int64) error {
	var out okResponse
	err := c.call(ctx, http.MethodPost, "/deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, &out)
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("gateway deleteMessage: ok=false")
	}
	return nil
}

func (c *GatewayClient) Chat(ctx context.Context, chatID int64) (Chat, error) {
	var out chatResponse
	err := c.call(ctx, http.MethodGet, "/getChat?chat_id="+strconv.FormatInt(chatID, 10), nil, &out)
	if err != nil {
		return Chat{}, err
	}
	if !out.OK {
		return Chat{}, fmt.Errorf("gateway getChat: ok=false")
	}
	return Chat{ID: out.Result.ID, Title: out.Result.Title}, nil
}

func (c *GatewayClient) Dialogs(ctx context.Context) ([]Chat, error) {
	var out dialogsResponse
	if err := c.call(ctx, http.MethodGet, "/getDialogs", nil, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("gateway getDialogs: ok=false")
	}
	chats := make([]Chat, 0, len(out.Result))
	for _, d := range out.Result {
		chats = append(chats, Chat{ID: d.ID, Title: d.Title})
	}
	return chats, nil
}

func (c *GatewayClient) Me(ctx context.Context) (Chat, error) {
	var out chatResponse
	if err := c.call(ctx, http.MethodGet, "/getMe", nil, &out); err != nil {
		return Chat{}, err
	}
	if !out.OK {
		return Chat{}, fmt.Errorf("gateway getMe: ok=false")
	}
	return Chat{ID: out.Result.ID, Title: out.Result.Title}, nil
}

func (c *GatewayClient) call(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	return nil
}
