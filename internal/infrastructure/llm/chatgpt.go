package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ganz677/wb/internal/config"
	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/internal/reply"
)

// ChatGPTClient implements ports.AnswerGenerator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float32
	httpClient   *http.Client
	policy       RetryPolicy
	logger       *slog.Logger
}

var _ ports.AnswerGenerator = (*ChatGPTClient)(nil)

// apiError is a failed chat completion call.
type apiError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("chatgpt error %d: %s", e.code, e.body)
}

// NewChatGPTClient builds a client from configuration for one API key.
func NewChatGPTClient(cfg config.GeneratorConfig, apiKey string, logger *slog.Logger) *ChatGPTClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        normalizeModelName(cfg.Model),
		apiKey:       apiKey,
		systemPrompt: systemPromptOrDefault(cfg.SystemPrompt, cfg.Brand),
		temperature:  cfg.Temperature,
		httpClient:   &http.Client{Timeout: timeout},
		policy:       policyFromConfig(cfg),
		logger:       logger,
	}
}

// Generate sends the rendered prompt as a user message and returns the first choice.
func (c *ChatGPTClient) Generate(ctx context.Context, req domain.ReplyRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", &domain.ConfigurationError{Field: "generator", Reason: "chatgpt client misconfigured"}
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": c.systemPrompt},
			{"role": "user", "content": reply.BuildPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	return c.policy.run(ctx, c.logger, func(ctx context.Context) (string, error) {
		return c.complete(ctx, body)
	}, classifyHTTP)
}

func (c *ChatGPTClient) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &apiError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(payload)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return decoded.Choices[0].Message.Content, nil
}

// classifyHTTP retries 429 as quota and 5xx or transport failures as transient.
func classifyHTTP(err error) verdict {
	apiErr, ok := err.(*apiError)
	if !ok {
		return verdict{retry: true, hint: retryAfterFromMessage(err.Error())}
	}
	hint := apiErr.retryAfter
	if hint == 0 {
		hint = retryAfterFromMessage(apiErr.body)
	}
	switch {
	case apiErr.code == http.StatusTooManyRequests:
		return verdict{retry: true, quota: true, hint: hint}
	case apiErr.code >= http.StatusInternalServerError:
		return verdict{retry: true, hint: hint}
	default:
		return verdict{}
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
