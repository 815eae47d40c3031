package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Mode selects how inbound events are interpreted
type Mode string

const (
	// ModeDirect answers in the HTTP response body
	ModeDirect Mode = "direct"

	// ModeTelegram consumes Telegram webhook updates and replies in the chat
	ModeTelegram Mode = "telegram"
)

// Backend names a local inference runtime
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// Default runtime values
const (
	DefaultBotName     = "Vecihi"
	DefaultBotLocation = "Istanbul/Turkey"

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
	DefaultTopP        = 0.1

	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOpenAIBaseURL = "http://localhost:8080/v1"

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ModelParams holds the generation parameters sent with every request
type ModelParams struct {
	Backend               Backend `yaml:"backend" validate:"omitempty,oneof=ollama openai"`
	Name                  string  `yaml:"name" validate:"required_if=Backend ollama"`
	BaseURL               string  `yaml:"baseURL" validate:"omitempty,url"`
	APIKey                string  `yaml:"apiKey"`
	Temperature           float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens             int     `yaml:"maxTokens" validate:"gte=0"`
	NPredict              int     `yaml:"nPredict" validate:"gte=0"`
	TopP                  float64 `yaml:"topP" validate:"gte=0,lte=1"`
	RequestTimeoutSeconds float64 `yaml:"requestTimeoutSeconds" validate:"gte=0"`
}

// TokenLimit returns the generation length cap. maxTokens wins over nPredict.
func (p ModelParams) TokenLimit() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return p.NPredict
}

// RequestTimeout returns the per-call inference timeout
func (p ModelParams) RequestTimeout() time.Duration {
	return seconds(p.RequestTimeoutSeconds)
}

// ServerSettings configures the HTTP listener
type ServerSettings struct {
	Addr string `yaml:"addr" validate:"required"`
	Path string `yaml:"path" validate:"required,startswith=/"`
}

// ContextFetchSettings configures auxiliary context retrieval
type ContextFetchSettings struct {
	TimeoutSeconds float64 `yaml:"timeoutSeconds" validate:"gte=0"`
	MaxBytes       int64   `yaml:"maxBytes" validate:"gte=0"`
}

// Timeout returns the fetch timeout, zero meaning none
func (c ContextFetchSettings) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// HealthSettings configures the inference runtime probe
type HealthSettings struct {
	Schedule string `yaml:"schedule"`
}

// Settings is the validated file configuration. It is built once at startup
// and never mutated afterwards.
type Settings struct {
	Mode                  Mode                 `yaml:"mode" validate:"oneof=direct telegram"`
	ModelFilePath         string               `yaml:"modelFilePath" validate:"required"`
	PromptTemplate        string               `yaml:"promptTemplate" validate:"required"`
	Model                 ModelParams          `yaml:"model"`
	HandlerTimeoutSeconds *float64             `yaml:"handlerTimeoutSeconds" validate:"omitempty,gt=0"`
	Server                ServerSettings       `yaml:"server"`
	ContextFetch          ContextFetchSettings `yaml:"contextFetch"`
	Health                HealthSettings       `yaml:"health"`
}

// HandlerTimeout returns the bound on chat update processing. Zero means unbounded.
func (s *Settings) HandlerTimeout() time.Duration {
	if s.HandlerTimeoutSeconds == nil {
		return 0
	}
	return seconds(*s.HandlerTimeoutSeconds)
}

// ModelName returns the configured model name or the model file stem. Ollama
// serves models by tag, so the stem fallback only applies to servers that
// ignore the name.
func (s *Settings) ModelName() string {
	if s.Model.Name != "" {
		return s.Model.Name
	}
	base := filepath.Base(s.ModelFilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RuntimeContext holds the bot identity and environment-derived switches.
// Date and time are captured once at process start and never refreshed.
type RuntimeContext struct {
	BotName        string
	BotLocation    string
	ContextFileURL string
	BotToken       string
	EchoEnabled    bool
	LogLevel       string
	Environment    string
	CurrentDate    string
	CurrentTime    string
}

// PromptInput is the per-request set of template variables
type PromptInput struct {
	BotName  string `json:"bot_name"`
	Location string `json:"location"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Context  string `json:"context"`
	Question string `json:"question"`
}

// Vars returns the input keyed by placeholder name
func (p PromptInput) Vars() map[string]string {
	return map[string]string{
		"bot_name": p.BotName,
		"location": p.Location,
		"date":     p.Date,
		"time":     p.Time,
		"context":  p.Context,
		"question": p.Question,
	}
}

// InferenceRequest represents a request to the inference runtime
type InferenceRequest struct {
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// InferenceResponse is the rendered input echoed back with the generated text
type InferenceResponse struct {
	PromptInput
	Text string `json:"text"`
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
