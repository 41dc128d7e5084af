// Package llm implements a disambiguation delegate backed by an OpenAI
// compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/usecase"
)

// Defaults applied by NewDelegate when a Config field is zero
const (
	DefaultModel             = "gpt-4o-mini"
	DefaultTimeout           = 8 * time.Second
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10
)

const systemPrompt = "You match UK supermarket products. Given a shopper's query and " +
	"numbered Tesco/Sainsbury's product pairs, pick the single pair that best matches " +
	"the query. Answer with a JSON object only."

// Config configures the OpenAI delegate
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a proxy or a local model
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Delegate asks a chat model to choose among ranked candidates. It makes a
// single attempt per request. A slow or failed call is returned as an
// error and the caller reports it as a service error; nothing is retried.
type Delegate struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	rateLimiter *rate.Limiter
	logger      zerolog.Logger
}

// NewDelegate creates an OpenAI-backed delegate
func NewDelegate(cfg Config, logger zerolog.Logger) *Delegate {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	return &Delegate{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:      logger.With().Str("component", "llm").Logger(),
	}
}

// Disambiguate implements domain.Disambiguator
func (d *Delegate) Disambiguate(ctx context.Context, query string, candidates []domain.MatchCandidate) (*domain.SelectedCandidate, error) {
	valid, err := usecase.ValidateCandidates(candidates)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(query, valid)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			d.logger.Warn().Int("status", apiErr.HTTPStatusCode).Str("query", query).Msg("delegate API error")
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", domain.ErrMalformedDelegateResponse)
	}

	choice, err := parseChoice(resp.Choices[0].Message.Content, len(valid))
	if err != nil {
		d.logger.Warn().Err(err).Str("query", query).Msg("unusable delegate response")
		return nil, err
	}

	d.logger.Debug().
		Str("query", query).
		Int("selected", choice.SelectedIndex).
		Dur("took", time.Since(start)).
		Msg("delegate selected candidate")

	return usecase.NewSelection(valid[choice.SelectedIndex], choice.Confidence, choice.Reason), nil
}
