// Package ai implements the provider client for OpenRouter-compatible chat
// completion APIs, plus a deterministic mock used in dev and tests.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/config"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/ratelimiter"
)

// aiChatBucket is the shared token bucket key for all outbound chat calls.
const aiChatBucket = "ai_chat"

// Client implements domain.AIClient against an OpenRouter-compatible chat
// completions endpoint. Each ChatJSON call is a single attempt: the caller's
// deadline bounds it and every failure degrades to the caller's local
// fallback, never a retry loop.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	limiter ratelimiter.Limiter
}

// New constructs the client. limiter may be nil (unlimited).
func New(cfg config.Config, limiter ratelimiter.Limiter) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("AI %s %s", r.Method, r.URL.Host)
		}),
	)
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			// Ceiling only; per-call deadlines come from the caller's context.
			Timeout:   2 * time.Minute,
			Transport: transport,
		},
		limiter: limiter,
	}
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatJSON posts one chat completion request and returns the raw message
// content.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.OpenRouterAPIKey == "" {
		return "", fmt.Errorf("op=ai.chat: OPENROUTER_API_KEY missing: %w", domain.ErrInvalidArgument)
	}

	if c.limiter != nil {
		allowed, retryAfter, err := c.limiter.Allow(ctx, aiChatBucket, 1)
		if err == nil && !allowed {
			slog.Warn("ai call throttled by local budget",
				slog.Duration("retry_after", retryAfter))
			return "", fmt.Errorf("op=ai.chat: local budget exhausted: %w", domain.ErrRateLimited)
		}
	}

	body, _ := json.Marshal(map[string]any{
		"model":       c.cfg.OpenRouterModel,
		"temperature": 0.2,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenRouterBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=ai.chat: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.OpenRouterReferer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.OpenRouterReferer)
	}
	if c.cfg.OpenRouterTitle != "" {
		req.Header.Set("X-Title", c.cfg.OpenRouterTitle)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("op=ai.chat model=%s: %w", c.cfg.OpenRouterModel, domain.ErrUpstreamTimeout)
		}
		return "", fmt.Errorf("op=ai.chat: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("op=ai.chat: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("ai provider rate limited",
			slog.String("model", c.cfg.OpenRouterModel),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
		return "", fmt.Errorf("op=ai.chat status=429: %w", domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		slog.Warn("ai provider non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.cfg.OpenRouterModel),
			slog.String("body", snippet))
		return "", fmt.Errorf("op=ai.chat status=%d: %w", resp.StatusCode, domain.ErrInternal)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("op=ai.chat: decode: %w", domain.ErrSchemaInvalid)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=ai.chat: empty choices: %w", domain.ErrSchemaInvalid)
	}
	return out.Choices[0].Message.Content, nil
}
