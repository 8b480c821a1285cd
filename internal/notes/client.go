package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
	"github.com/tigerroll/notepipe/pkg/batch/engine/ratelimit"
	"github.com/tigerroll/notepipe/pkg/batch/engine/step/retry"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// Client names. They label retry and rate limit metrics.
const (
	CompletionClientName = "completion"
	EmbeddingClientName  = "embedding"
)

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 512

// CompletionRequest asks the completion service to summarize and tag one note.
type CompletionRequest struct {
	Model string `json:"model,omitempty"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// CompletionResponse is the completion service's answer.
type CompletionResponse struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// EmbeddingRequest asks the embedding service for the vector of one text.
type EmbeddingRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

// EmbeddingResponse is the embedding service's answer.
type EmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// CompletionClient is the rate-limited, retrying completion client.
type CompletionClient = retry.RateLimitedRetryClient[CompletionRequest, CompletionResponse]

// EmbeddingClient is the rate-limited, retrying embedding client.
type EmbeddingClient = retry.RateLimitedRetryClient[EmbeddingRequest, EmbeddingResponse]

// HTTPService posts JSON requests to one model service endpoint.
type HTTPService struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPService creates an HTTPService from an external client configuration.
func NewHTTPService(name string, cfg config.ExternalClientConfig) (*HTTPService, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, exception.NewConfigurationError(name, "endpoint is not configured", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPService{
		name:     name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// PostJSON returns a retry.Call that posts the request as JSON to svc and decodes the JSON
// response.
//
// HTTP 429 is reported as exception.ErrRateLimited and 5xx as exception.ErrServerUnavailable,
// both retryable by the default policy. Any other non-2xx status fails the item at once.
func PostJSON[Req, Resp any](svc *HTTPService) retry.Call[Req, Resp] {
	return func(ctx context.Context, req Req) (Resp, error) {
		var zero Resp

		body, err := json.Marshal(req)
		if err != nil {
			return zero, exception.NewItemError(svc.name, "failed to encode request", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.endpoint, bytes.NewReader(body))
		if err != nil {
			return zero, exception.NewConfigurationError(svc.name, "failed to create request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		if svc.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+svc.apiKey)
		}

		resp, err := svc.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, fmt.Errorf("%s call failed: %w", svc.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return zero, statusError(svc.name, resp)
		}

		var out Resp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return zero, fmt.Errorf("%s response truncated: %w", svc.name, err)
			}
			return zero, exception.NewItemError(svc.name, "failed to decode response", err)
		}
		return out, nil
	}
}

func statusError(name string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(raw))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: HTTP %d: %s: %w", name, resp.StatusCode, text, exception.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: HTTP %d: %s: %w", name, resp.StatusCode, text, exception.ErrServerUnavailable)
	default:
		return exception.NewItemError(name, fmt.Sprintf("rejected with HTTP %d", resp.StatusCode), errors.New(text))
	}
}

// TokenEstimator estimates the token cost of a text as its length divided by charsPerToken,
// rounded up, with a minimum of one token.
func TokenEstimator(charsPerToken int) func(text string) int {
	if charsPerToken < 1 {
		charsPerToken = 1
	}
	return func(text string) int {
		n := (len(text) + charsPerToken - 1) / charsPerToken
		if n < 1 {
			n = 1
		}
		return n
	}
}

// ClientOptions carries the optional collaborators of the model clients.
type ClientOptions struct {
	Clock    ratelimit.Clock
	Recorder metrics.MetricRecorder
}

func (o ClientOptions) limiter(name string, budget int) (*ratelimit.WindowLimiter, error) {
	opts := []ratelimit.Option{
		ratelimit.WithWaitObserver(func(limiter string, waited time.Duration) {
			o.Recorder.RecordRateLimitWait(context.Background(), limiter, waited)
		}),
	}
	if o.Clock != nil {
		opts = append(opts, ratelimit.WithClock(o.Clock))
	}
	return ratelimit.NewWindowLimiter(name, budget, opts...)
}

func (o ClientOptions) retryOptions() []retry.ClientOption {
	opts := []retry.ClientOption{retry.WithMetricRecorder(o.Recorder)}
	if o.Clock != nil {
		opts = append(opts, retry.WithClock(o.Clock))
	}
	return opts
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Recorder == nil {
		o.Recorder = metrics.NewNoOpMetricRecorder()
	}
	return o
}

// NewCompletionClient builds the completion client with its own token budget.
func NewCompletionClient(cfg config.ExternalClientConfig, o ClientOptions) (*CompletionClient, error) {
	o = o.withDefaults()
	svc, err := NewHTTPService(CompletionClientName, cfg)
	if err != nil {
		return nil, err
	}
	limiter, err := o.limiter(CompletionClientName, cfg.TokensPerMinute)
	if err != nil {
		return nil, err
	}
	tokens := TokenEstimator(cfg.CharsPerToken)
	estimate := func(req CompletionRequest) int { return tokens(req.Title + "\n" + req.Text) }

	logger.Infof("NoteClients: completion client targets %s (%d tokens/min).", cfg.Endpoint, cfg.TokensPerMinute)
	return retry.NewRateLimitedRetryClient(
		CompletionClientName,
		PostJSON[CompletionRequest, CompletionResponse](svc),
		estimate,
		limiter,
		retry.NewRetryPolicy(cfg.Retry),
		o.retryOptions()...,
	), nil
}

// NewEmbeddingClient builds the embedding client with its own token budget.
func NewEmbeddingClient(cfg config.ExternalClientConfig, o ClientOptions) (*EmbeddingClient, error) {
	o = o.withDefaults()
	svc, err := NewHTTPService(EmbeddingClientName, cfg)
	if err != nil {
		return nil, err
	}
	limiter, err := o.limiter(EmbeddingClientName, cfg.TokensPerMinute)
	if err != nil {
		return nil, err
	}
	tokens := TokenEstimator(cfg.CharsPerToken)
	estimate := func(req EmbeddingRequest) int { return tokens(req.Input) }

	logger.Infof("NoteClients: embedding client targets %s (%d tokens/min).", cfg.Endpoint, cfg.TokensPerMinute)
	return retry.NewRateLimitedRetryClient(
		EmbeddingClientName,
		PostJSON[EmbeddingRequest, EmbeddingResponse](svc),
		estimate,
		limiter,
		retry.NewRetryPolicy(cfg.Retry),
		o.retryOptions()...,
	), nil
}
