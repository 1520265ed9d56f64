package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/internal/ratelimit"
)

const (
	// MaxTake is the largest page size the archive endpoint accepts.
	MaxTake = 5000

	questionAnswerState = "wbRu"
)

// Options configures the Wildberries feedback API client.
type Options struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
	Limiter        *ratelimit.Limiter
	Logger         *slog.Logger
}

// Client talks to the feedbacks and questions API.
type Client struct {
	baseURL        string
	token          string
	http           *http.Client
	limiter        *ratelimit.Limiter
	logger         *slog.Logger
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ ports.Marketplace = (*Client)(nil)

// StatusError is a non-retryable HTTP failure or the last retryable one.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wildberries %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// NewClient builds a client; zero options fall back to production defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 16 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		token:          opts.Token,
		http:           opts.HTTPClient,
		limiter:        opts.Limiter,
		logger:         opts.Logger,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
	}
}

type record struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	CreatedDate      string `json:"createdDate"`
	UserName         string `json:"userName"`
	ProductValuation *int   `json:"productValuation"`
	ProductDetails   *struct {
		NmID        *int64 `json:"nmId"`
		ProductName string `json:"productName"`
		Name        string `json:"name"`
	} `json:"productDetails"`
	Answer *struct {
		Text string `json:"text"`
	} `json:"answer"`
}

type listResponse struct {
	Data struct {
		Feedbacks []record `json:"feedbacks"`
		Questions []record `json:"questions"`
	} `json:"data"`
	Error     bool   `json:"error"`
	ErrorText string `json:"errorText"`
}

func (r record) toDomain() domain.RemoteRecord {
	out := domain.RemoteRecord{
		ID:          r.ID,
		Text:        r.Text,
		CreatedDate: r.CreatedDate,
		UserName:    r.UserName,
		Rating:      r.ProductValuation,
	}
	if r.ProductDetails != nil {
		out.ProductID = r.ProductDetails.NmID
		out.ProductTitle = r.ProductDetails.ProductName
		if out.ProductTitle == "" {
			out.ProductTitle = r.ProductDetails.Name
		}
	}
	if r.Answer != nil {
		out.AnswerText = r.Answer.Text
	}
	return out
}

// ListUnanswered returns one page of unanswered feedbacks or questions.
func (c *Client) ListUnanswered(ctx context.Context, kind domain.Kind, take, skip int) ([]domain.RemoteRecord, error) {
	path, err := listPath(kind)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("isAnswered", "false")
	params.Set("take", strconv.Itoa(clampTake(take)))
	params.Set("skip", strconv.Itoa(max(0, skip)))

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, err
	}

	return resp.records(kind), nil
}

// ListArchive returns one page of the answered-feedback archive.
func (c *Client) ListArchive(ctx context.Context, take, skip int, order ports.ArchiveOrder) ([]domain.RemoteRecord, error) {
	params := url.Values{}
	params.Set("take", strconv.Itoa(clampTake(take)))
	params.Set("skip", strconv.Itoa(max(0, skip)))
	if order != "" {
		if order != ports.OrderDateAsc && order != ports.OrderDateDesc {
			return nil, fmt.Errorf("archive order must be %s or %s, got %q", ports.OrderDateAsc, ports.OrderDateDesc, order)
		}
		params.Set("order", string(order))
	}

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/feedbacks/archive", params, nil, &resp); err != nil {
		return nil, err
	}

	return resp.records(domain.KindFeedback), nil
}

// SubmitAnswer posts a reply to a feedback or publishes an answer to a question.
func (c *Client) SubmitAnswer(ctx context.Context, kind domain.Kind, externalID, text string) error {
	switch kind {
	case domain.KindFeedback:
		payload := map[string]any{"id": externalID, "text": text}
		return c.do(ctx, http.MethodPost, "/feedbacks/answer", nil, payload, nil)
	case domain.KindQuestion:
		return c.answerQuestion(ctx, externalID, text)
	default:
		return fmt.Errorf("unsupported item kind %q", kind)
	}
}

// answerQuestion retries with the flat payload shape when the API rejects the nested one.
func (c *Client) answerQuestion(ctx context.Context, externalID, text string) error {
	nested := map[string]any{
		"id":     externalID,
		"state":  questionAnswerState,
		"answer": map[string]string{"text": text},
	}
	err := c.do(ctx, http.MethodPatch, "/questions", nil, nested, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		return err
	}
	if !strings.Contains(statusErr.Body, "Empty state") && !strings.Contains(statusErr.Body, "Неправильный текст ответа") {
		return err
	}

	c.logger.Warn("question answer rejected, retrying with flat payload", "id", externalID)
	flat := map[string]any{"id": externalID, "state": questionAnswerState, "text": text}
	return c.do(ctx, http.MethodPatch, "/questions", nil, flat, nil)
}

func (r listResponse) records(kind domain.Kind) []domain.RemoteRecord {
	raw := r.Data.Feedbacks
	if kind == domain.KindQuestion {
		raw = r.Data.Questions
	}
	out := make([]domain.RemoteRecord, 0, len(raw))
	for _, rec := range raw {
		out = append(out, rec.toDomain())
	}
	return out
}

func listPath(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindFeedback:
		return "/feedbacks", nil
	case domain.KindQuestion:
		return "/questions", nil
	default:
		return "", fmt.Errorf("unsupported item kind %q", kind)
	}
}

func clampTake(take int) int {
	return min(max(take, 1), MaxTake)
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

// do runs one API call under the shared limiter, retrying 429/5xx and
// transport failures with capped exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return c.once(ctx, method, path, endpoint, body, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("marketplace call failed, retrying",
			"method", method, "path", path, "attempt", attempt, "wait", wait, "error", err)
	}

	return backoff.RetryNotify(op, c.newBackOff(ctx), notify)
}

func (c *Client) once(ctx context.Context, method, path, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		return backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		statusErr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if retryable(resp.StatusCode) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode %s %s: %w", method, path, err))
	}

	return nil
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
