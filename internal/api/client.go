// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the Echo chat service.
//
// The service exposes two endpoints:
//
//	POST {base}/chat/                 {user_input, personality} -> {response}
//	POST {base}/generate-chat-title/  {messages}                -> {title}
//
// The client never retries. Request deadlines come from the caller's context;
// the dispatcher bounds every completion with its configured timeout.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/util"
)

const (
	chatPath  = "/chat/"
	titlePath = "/generate-chat-title/"

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 1 << 20

	// maxErrorBody caps the runes of body kept on HTTPError.
	maxErrorBody = 512
)

var (
	// ErrEmptyResponse is returned when the service answers 2xx without content.
	ErrEmptyResponse = errors.New("empty response from chat service")

	// ErrNoBaseURL is returned when the client has no base URL.
	ErrNoBaseURL = errors.New("chat service base URL not configured")
)

// HTTPError is a non-2xx answer from the chat service.
type HTTPError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat service error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("chat service error (HTTP %d): %s", e.Status, e.Body)
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// WireMessage is the message shape the title endpoint expects.
type WireMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ChatRequest is the body of POST /chat/.
type ChatRequest struct {
	UserInput   string `json:"user_input"`
	Personality string `json:"personality"`
}

// ChatResponse is the body returned by POST /chat/.
type ChatResponse struct {
	Response string `json:"response"`
}

// TitleRequest is the body of POST /generate-chat-title/.
type TitleRequest struct {
	Messages []WireMessage `json:"messages"`
}

// TitleResponse is the body returned by POST /generate-chat-title/.
type TitleResponse struct {
	Title string `json:"title"`
}

// Client talks to the chat service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New creates a client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: zerolog.Nop(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithRateLimit limits outgoing requests to perMinute (0 disables the limit).
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = nil
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.logger = l.With().Str("component", "api").Logger()
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Complete sends one user input and returns the reply text.
func (c *Client) Complete(ctx context.Context, input string, personality model.Personality) (string, error) {
	var resp ChatResponse
	req := ChatRequest{UserInput: input, Personality: string(personality)}
	if err := c.post(ctx, chatPath, req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Response, nil
}

// GenerateTitle asks the service to name a chat from its first user messages.
func (c *Client) GenerateTitle(ctx context.Context, messages []model.Message) (string, error) {
	req := TitleRequest{Messages: make([]WireMessage, 0, len(messages))}
	for _, m := range messages {
		req.Messages = append(req.Messages, WireMessage{Sender: string(m.Sender), Text: m.Text})
	}
	var resp TitleResponse
	if err := c.post(ctx, titlePath, req, &resp); err != nil {
		return "", err
	}
	title := strings.Trim(strings.TrimSpace(resp.Title), `"`)
	if title == "" {
		return "", ErrEmptyResponse
	}
	return title, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrNoBaseURL
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait refuses up front when the next token lands past the deadline.
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				return fmt.Errorf("rate limit wait: %w: %w", context.DeadlineExceeded, err)
			}
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Str("path", path).Err(err).Msg("request failed")
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("response")

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := util.TruncateRunes(strings.TrimSpace(string(data)), maxErrorBody)
		return &HTTPError{Status: resp.StatusCode, Body: text}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
