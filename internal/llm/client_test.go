package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vecihi-bot/internal/models"
)

type fakeBackend struct {
	text     string
	err      error
	pingErr  error
	got      models.InferenceRequest
	deadline bool
	calls    int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, req models.InferenceRequest) (string, error) {
	f.calls++
	f.got = req
	_, f.deadline = ctx.Deadline()
	return f.text, f.err
}

func (f *fakeBackend) Ping(ctx context.Context) error { return f.pingErr }

func testParams() models.ModelParams {
	return models.ModelParams{
		Temperature:           0.7,
		MaxTokens:             64,
		NPredict:              128,
		TopP:                  0.1,
		RequestTimeoutSeconds: 30,
	}
}

func TestClient_Generate(t *testing.T) {
	backend := &fakeBackend{text: "merhaba"}
	client := NewClientWithBackend(backend, testParams(), zerolog.Nop())

	text, err := client.Generate(context.Background(), "Q:hello")
	require.NoError(t, err)

	assert.Equal(t, "merhaba", text)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, models.InferenceRequest{
		Prompt:      "Q:hello",
		Temperature: 0.7,
		TopP:        0.1,
		MaxTokens:   64,
	}, backend.got)
	assert.True(t, backend.deadline)
	assert.Equal(t, "fake", client.Name())
}

func TestClient_GenerateWithoutTimeout(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	params := testParams()
	params.RequestTimeoutSeconds = 0
	client := NewClientWithBackend(backend, params, zerolog.Nop())

	_, err := client.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.False(t, backend.deadline)
}

func TestClient_GenerateError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("out of memory")}
	client := NewClientWithBackend(backend, testParams(), zerolog.Nop())

	_, err := client.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInference)
	assert.ErrorIs(t, err, models.ErrDependency)
	assert.Contains(t, err.Error(), "out of memory")
	assert.Equal(t, 1, backend.calls)
}

func TestClient_Ping(t *testing.T) {
	backend := &fakeBackend{}
	client := NewClientWithBackend(backend, testParams(), zerolog.Nop())
	assert.NoError(t, client.Ping(context.Background()))

	backend.pingErr = errors.New("connection refused")
	assert.ErrorIs(t, client.Ping(context.Background()), models.ErrInference)
}

func TestNewClient_SelectsBackend(t *testing.T) {
	settings := &models.Settings{
		ModelFilePath: "/models/mistral-7b-instruct-v0.1.Q4_0.gguf",
		Model:         testParams(),
	}

	settings.Model.Backend = models.BackendOllama
	settings.Model.BaseURL = models.DefaultOllamaBaseURL
	settings.Model.Name = "mistral"
	client, err := NewClient(settings, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Name())

	settings.Model.Backend = models.BackendOpenAI
	settings.Model.BaseURL = models.DefaultOpenAIBaseURL
	client, err = NewClient(settings, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())

	settings.Model.Backend = "gpt4all"
	_, err = NewClient(settings, zerolog.Nop())
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestNewClient_OllamaRequiresModelName(t *testing.T) {
	settings := &models.Settings{
		ModelFilePath: "./mistral-7b-instruct-v0.1.Q4_0.gguf",
		Model:         testParams(),
	}
	settings.Model.Backend = models.BackendOllama
	settings.Model.BaseURL = models.DefaultOllamaBaseURL

	_, err := NewClient(settings, zerolog.Nop())
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "model.name")

	settings.Model.Backend = models.BackendOpenAI
	settings.Model.BaseURL = models.DefaultOpenAIBaseURL
	_, err = NewClient(settings, zerolog.Nop())
	assert.NoError(t, err)
}

func TestOllama_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"mistral","response":"Merhaba!","done":true}` + "\n"))
	}))
	defer srv.Close()

	backend, err := NewOllama(srv.URL, "mistral", srv.Client())
	require.NoError(t, err)

	text, err := backend.Generate(context.Background(), models.InferenceRequest{
		Prompt:      "[INST] hi [/INST]",
		Temperature: 0.7,
		TopP:        0.1,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "Merhaba!", text)

	assert.Equal(t, "mistral", got["model"])
	assert.Equal(t, "[INST] hi [/INST]", got["prompt"])
	assert.Equal(t, true, got["raw"])
	assert.Equal(t, false, got["stream"])

	options, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.7, options["temperature"])
	assert.Equal(t, 0.1, options["top_p"])
	assert.Equal(t, float64(64), options["num_predict"])
}

func TestOllama_GenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'mistral' not found"}`))
	}))
	defer srv.Close()

	backend, err := NewOllama(srv.URL, "mistral", srv.Client())
	require.NoError(t, err)

	_, err = backend.Generate(context.Background(), models.InferenceRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOllama_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	}))

	backend, err := NewOllama(srv.URL, "mistral", srv.Client())
	require.NoError(t, err)
	assert.NoError(t, backend.Ping(context.Background()))

	srv.Close()
	assert.Error(t, backend.Ping(context.Background()))
}

func TestOpenAI_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "text_completion",
			"created": 1700000000,
			"model": "mistral",
			"choices": [{"text": "Merhaba!", "index": 0, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	backend := NewOpenAI(srv.URL+"/v1/", "", "mistral", srv.Client())

	text, err := backend.Generate(context.Background(), models.InferenceRequest{
		Prompt:      "[INST] hi [/INST]",
		Temperature: 0.5,
		TopP:        0.25,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "Merhaba!", text)

	assert.Equal(t, "mistral", got["model"])
	assert.Equal(t, "[INST] hi [/INST]", got["prompt"])
	assert.Equal(t, float64(64), got["max_tokens"])
	assert.Equal(t, 0.5, got["temperature"])
	assert.Equal(t, 0.25, got["top_p"])
}

func TestOpenAI_GenerateSendsZeroSampling(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cmpl-1", "object": "text_completion", "choices": [{"text": "ok"}]}`))
	}))
	defer srv.Close()

	backend := NewOpenAI(srv.URL+"/v1", "", "m", srv.Client())

	_, err := backend.Generate(context.Background(), models.InferenceRequest{
		Prompt:      "p",
		Temperature: 0,
		TopP:        0,
		MaxTokens:   8,
	})
	require.NoError(t, err)

	require.Contains(t, got, "temperature")
	require.Contains(t, got, "top_p")
	assert.InDelta(t, 0, got["temperature"], 1e-30)
	assert.InDelta(t, 0, got["top_p"], 1e-30)
}

func TestOpenAI_GenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cmpl-1", "object": "text_completion", "choices": []}`))
	}))
	defer srv.Close()

	backend := NewOpenAI(srv.URL+"/v1", "", "mistral", srv.Client())

	_, err := backend.Generate(context.Background(), models.InferenceRequest{Prompt: "p", MaxTokens: 8})
	assert.Error(t, err)
}

func TestOpenAI_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "mistral", "object": "model"}]}`))
	}))
	defer srv.Close()

	backend := NewOpenAI(srv.URL+"/v1", "", "mistral", srv.Client())
	assert.NoError(t, backend.Ping(context.Background()))
}

func TestClient_GenerateHonoursRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	backend, err := NewOllama(srv.URL, "mistral", srv.Client())
	require.NoError(t, err)

	params := testParams()
	params.RequestTimeoutSeconds = 0.05
	client := NewClientWithBackend(backend, params, zerolog.Nop())

	start := time.Now()
	_, err = client.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInference)
	assert.Less(t, time.Since(start), 5*time.Second)
}
