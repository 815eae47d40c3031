package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/vecihi-bot/internal/models"
)

// Ollama generates completions through an Ollama runtime. Prompts are sent
// raw because the configured template already carries the model's
// instruction markers.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates an Ollama backend for baseURL
func NewOllama(baseURL, model string, httpClient *http.Client) (*Ollama, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{
		client: api.NewClient(base, httpClient),
		model:  model,
	}, nil
}

func (o *Ollama) Name() string { return string(models.BackendOllama) }

// Generate calls /api/generate with streaming disabled
func (o *Ollama) Generate(ctx context.Context, req models.InferenceRequest) (string, error) {
	stream := false
	genReq := &api.GenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		Raw:    true,
		Stream: &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			"num_predict": req.MaxTokens,
		},
	}

	var out strings.Builder
	err := o.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	return out.String(), nil
}

// Ping checks the runtime with a heartbeat request
func (o *Ollama) Ping(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	return nil
}
