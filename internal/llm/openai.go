package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/vecihi-bot/internal/models"
)

// OpenAI generates completions through a local OpenAI-compatible server such
// as llama.cpp's llama-server, llamafile or LocalAI
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates a backend for the /v1 API rooted at baseURL. Local
// servers usually ignore the key, so an empty one is allowed.
func NewOpenAI(baseURL, apiKey, model string, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &OpenAI{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

func (o *OpenAI) Name() string { return string(models.BackendOpenAI) }

// Generate calls the text completions endpoint
func (o *OpenAI) Generate(ctx context.Context, req models.InferenceRequest) (string, error) {
	resp, err := o.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       o.model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: nonZero(req.Temperature),
		TopP:        nonZero(req.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}

	return resp.Choices[0].Text, nil
}

// nonZero keeps a configured zero on the wire. go-openai omits zero sampling
// values, which lets the server apply its own default instead.
func nonZero(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

// Ping lists the served models
func (o *OpenAI) Ping(ctx context.Context) error {
	if _, err := o.api.ListModels(ctx); err != nil {
		return fmt.Errorf("openai-compatible server not reachable: %w", err)
	}
	return nil
}
