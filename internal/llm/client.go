package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vecihi-bot/internal/models"
)

// Client sends rendered prompts to the local inference runtime
type Client struct {
	backend Backend
	params  models.ModelParams
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a client for the backend selected in settings
func NewClient(settings *models.Settings, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{}

	var backend Backend
	var err error
	switch settings.Model.Backend {
	case models.BackendOllama, "":
		if settings.Model.Name == "" {
			err = fmt.Errorf("model.name is required for the ollama backend")
			break
		}
		backend, err = NewOllama(settings.Model.BaseURL, settings.Model.Name, httpClient)
	case models.BackendOpenAI:
		backend = NewOpenAI(settings.Model.BaseURL, settings.Model.APIKey, settings.ModelName(), httpClient)
	default:
		err = fmt.Errorf("unknown inference backend %q", settings.Model.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	return NewClientWithBackend(backend, settings.Model, logger), nil
}

// NewClientWithBackend creates a client around an existing backend
func NewClientWithBackend(backend Backend, params models.ModelParams, logger zerolog.Logger) *Client {
	return &Client{
		backend: backend,
		params:  params,
		timeout: params.RequestTimeout(),
		logger:  logger.With().Str("component", "llm").Str("backend", backend.Name()).Logger(),
	}
}

// Name returns the backend name
func (c *Client) Name() string {
	return c.backend.Name()
}

// Generate runs one blocking completion for the prompt with the configured
// sampling parameters. There is no retry: a failure is returned as is,
// wrapped in models.ErrInference.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := models.InferenceRequest{
		Prompt:      prompt,
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		MaxTokens:   c.params.TokenLimit(),
	}

	c.logger.Debug().
		Int("prompt_length", len(prompt)).
		Float64("temperature", req.Temperature).
		Float64("top_p", req.TopP).
		Int("max_tokens", req.MaxTokens).
		Msg("Sending request to inference runtime")

	text, err := c.backend.Generate(ctx, req)
	if err != nil {
		c.logger.Error().
			Err(err).
			Dur("duration", time.Since(startTime)).
			Msg("Inference request failed")
		return "", fmt.Errorf("%w: %v", models.ErrInference, err)
	}

	c.logger.Info().
		Int("response_length", len(text)).
		Int64("execution_time_ms", time.Since(startTime).Milliseconds()).
		Msg("Inference response generated")

	return text, nil
}

// Ping checks that the inference runtime is reachable
func (c *Client) Ping(ctx context.Context) error {
	if err := c.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInference, err)
	}
	return nil
}
