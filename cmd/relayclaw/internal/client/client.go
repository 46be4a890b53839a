// Package client is a thin HTTP client for a running relay, used by the
// session and console commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Created      bool      `json:"created"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StartSession(ctx context.Context, sessionID, channelID string) (*SessionInfo, error) {
	var body any
	if channelID != "" {
		body = map[string]string{"channel_id": channelID}
	}
	var out SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func (c *Client) Heartbeat(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/heartbeat", nil, nil)
}

func (c *Client) Bind(ctx context.Context, sessionID, channelID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/bind",
		map[string]string{"channel_id": channelID}, nil)
}

func (c *Client) Poll(ctx context.Context, sessionID string, batch int, since string) (*relay.PollResult, error) {
	path := "/claude/poll/" + url.PathEscape(sessionID)
	q := url.Values{}
	if batch > 0 {
		q.Set("batch", fmt.Sprintf("%d", batch))
	}
	if since != "" {
		q.Set("since", since)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out relay.PollResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Ack(ctx context.Context, messageID, sessionID, status string) error {
	return c.do(ctx, http.MethodPost, "/claude/ack/"+url.PathEscape(messageID),
		map[string]string{"session_id": sessionID, "status": status}, nil)
}

func (c *Client) ClearReplies(ctx context.Context, sessionID string) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/replies/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return 0, err
	}
	return out.Cleared, nil
}

func (c *Client) SendWebhook(ctx context.Context, channelID, authorID, content string) error {
	return c.do(ctx, http.MethodPost, "/webhook/inbound", map[string]any{
		"channel_id": channelID,
		"content":    content,
		"author":     map[string]any{"id": authorID},
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
