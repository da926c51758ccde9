// Package oracle implements analysis.Oracle backends.
//
// Every backend makes exactly one upstream request per call: oracle calls are
// billed and not idempotent, so SDK-level retries are disabled and failures
// are returned to the orchestrator as-is.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
)

// Providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderStatic    = "static"
)

// Defaults.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultTemperature    = 0.3
	DefaultMaxTokens      = 2000
	defaultBurst          = 5
)

// Config selects and configures a backend.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	// RequestsPerMinute caps upstream calls. Zero disables the limit.
	RequestsPerMinute int
	// StaticResponse is returned verbatim by the static provider.
	StaticResponse string
	HTTPClient     *http.Client
}

// ErrEmptyCompletion is returned when the upstream answered without text.
var ErrEmptyCompletion = errors.New("completion has no text content")

// New builds the backend named by cfg.Provider.
func New(cfg Config) (analysis.Oracle, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg)
	case ProviderAnthropic:
		return NewAnthropic(cfg)
	case ProviderStatic:
		return NewStatic([]byte(cfg.StaticResponse)), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), min(perMinute, defaultBurst))
}

// wait blocks for a limiter token. A wait that cannot finish before the
// caller's deadline is reported as a deadline error.
func wait(ctx context.Context, lim *rate.Limiter) error {
	if err := lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limit wait: %w", ctxErr)
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func malformed(err error) error {
	return &analysis.Error{Kind: analysis.KindMalformedResponse, Op: "oracle", Err: err}
}

func maxTokens(cfg Config) int {
	if cfg.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return cfg.MaxTokens
}
