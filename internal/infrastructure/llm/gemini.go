package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ganz677/wb/internal/config"
	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/internal/reply"
)

const regionBlockedMessage = "User location is not supported"

var unicodeDashes = regexp.MustCompile(`[\x{2010}-\x{2015}\x{2212}\x{FE58}\x{FE63}\x{FF0D}]`)

// contentModel is the slice of *genai.GenerativeModel the generator needs.
type contentModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type namedModel struct {
	name  string
	model contentModel
}

// GeminiGenerator implements ports.AnswerGenerator on the Gemini API.
// Models are tried in order: the configured one, then each fallback once the
// previous is rejected as unavailable to this key.
type GeminiGenerator struct {
	closer  io.Closer
	models  []namedModel
	policy  RetryPolicy
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.AnswerGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator opens a Gemini client for one API key.
func NewGeminiGenerator(ctx context.Context, cfg config.GeneratorConfig, apiKey string, logger *slog.Logger) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &domain.ConfigurationError{Field: "generator.tokens", Reason: "empty gemini api key"}
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	system := systemPromptOrDefault(cfg.SystemPrompt, cfg.Brand)
	var models []namedModel
	for _, name := range modelChain(cfg.Model, cfg.FallbackModels) {
		m := client.GenerativeModel(name)
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
		m.SetTemperature(cfg.Temperature)
		models = append(models, namedModel{name: name, model: m})
	}

	g := newGeminiGenerator(models, policyFromConfig(cfg), cfg.Timeout, logger)
	g.closer = client
	return g, nil
}

func newGeminiGenerator(models []namedModel, policy RetryPolicy, timeout time.Duration, logger *slog.Logger) *GeminiGenerator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GeminiGenerator{models: models, policy: policy, timeout: timeout, logger: logger}
}

// Close releases the underlying client connection.
func (g *GeminiGenerator) Close() error {
	if g == nil || g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

// Generate returns the reply text for req. Empty text with a nil error means
// the backend produced nothing usable (blocked region, rejected models).
func (g *GeminiGenerator) Generate(ctx context.Context, req domain.ReplyRequest) (string, error) {
	if g == nil || len(g.models) == 0 {
		return "", fmt.Errorf("gemini generator is not configured")
	}
	prompt := reply.BuildPrompt(req)

	current := 0
	call := func(ctx context.Context) (string, error) {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		resp, err := g.models[current].model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return responseText(resp), nil
	}
	judge := func(err error) verdict {
		v, switchModel := classifyGemini(err)
		if switchModel && current+1 < len(g.models) {
			g.logger.Warn("gemini model unavailable, switching",
				"from", g.models[current].name, "to", g.models[current+1].name, "error", err)
			current++
			return verdict{retry: true}
		}
		return v
	}

	text, err := g.policy.run(ctx, g.logger, call, judge)
	if err == nil {
		return text, nil
	}
	if isRegionBlocked(err) {
		g.logger.Warn("gemini unavailable in this region", "error", err)
		return "", nil
	}
	if code := statusCode(err); code == codes.PermissionDenied || code == codes.NotFound {
		g.logger.Warn("no usable gemini model", "model", g.models[current].name, "error", err)
		return "", nil
	}
	return "", err
}

// classifyGemini maps a backend error onto a retry verdict. The second result
// asks the caller to move to the next model.
func classifyGemini(err error) (verdict, bool) {
	if isRegionBlocked(err) {
		return verdict{}, false
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return verdict{}, false
	}

	hint := retryHint(err)
	switch statusCode(err) {
	case codes.ResourceExhausted:
		return verdict{retry: true, quota: true, hint: hint}, false
	case codes.FailedPrecondition, codes.Unavailable, codes.Internal,
		codes.DeadlineExceeded, codes.Aborted, codes.Unknown:
		return verdict{retry: true, hint: hint}, false
	case codes.PermissionDenied, codes.NotFound:
		return verdict{}, true
	default:
		return verdict{}, false
	}
}

// statusCode reads the gRPC code, translating REST transport errors.
func statusCode(err error) codes.Code {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return codes.ResourceExhausted
		case apiErr.Code == http.StatusForbidden:
			return codes.PermissionDenied
		case apiErr.Code == http.StatusNotFound:
			return codes.NotFound
		case apiErr.Code == http.StatusBadRequest:
			return codes.FailedPrecondition
		case apiErr.Code >= http.StatusInternalServerError:
			return codes.Unavailable
		default:
			return codes.InvalidArgument
		}
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// retryHint prefers a structured RetryInfo detail over hints in the message.
func retryHint(err error) time.Duration {
	if st, ok := status.FromError(err); ok {
		for _, detail := range st.Details() {
			if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
				if d := info.GetRetryDelay().AsDuration(); d > 0 {
					return d
				}
			}
		}
	}
	return retryAfterFromMessage(err.Error())
}

func isRegionBlocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), regionBlockedMessage)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

// normalizeModelName replaces typographic dashes that sneak in from copied config values.
func normalizeModelName(name string) string {
	return strings.TrimSpace(unicodeDashes.ReplaceAllString(name, "-"))
}

func modelChain(primary string, fallbacks []string) []string {
	seen := map[string]bool{}
	var chain []string
	for _, name := range append([]string{primary}, fallbacks...) {
		name = normalizeModelName(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, name)
	}
	return chain
}

func policyFromConfig(cfg config.GeneratorConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.MaxRetries >= 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	return policy
}
