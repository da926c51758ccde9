package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
)

// OpenAI calls an OpenAI-compatible chat completion API in JSON mode.
type OpenAI struct {
	llm         *openai.LLM
	limiter     *rate.Limiter
	temperature float64
	maxTokens   int
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	return &OpenAI{
		llm:         llm,
		limiter:     newLimiter(cfg.RequestsPerMinute),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens(cfg),
	}, nil
}

// Complete sends one chat completion request and returns the message text.
func (o *OpenAI) Complete(ctx context.Context, req analysis.OracleRequest) ([]byte, error) {
	if err := wait(ctx, o.limiter); err != nil {
		return nil, err
	}
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := o.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, prompt.System),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt.User),
		},
		llms.WithJSONMode(),
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, malformed(ErrEmptyCompletion)
	}
	return []byte(resp.Choices[0].Content), nil
}
