// Package pipeline turns a user question into a generated answer: fetch the
// context, render the prompt, call the inference runtime. The steps run
// strictly in that order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vecihi-bot/internal/models"
	"github.com/vecihi-bot/internal/prompt"
)

// ContextFetcher retrieves auxiliary context text
type ContextFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Generator produces text for a rendered prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline is shared read-only across requests
type Pipeline struct {
	template  string
	runtime   *models.RuntimeContext
	fetcher   ContextFetcher
	generator Generator
	logger    zerolog.Logger
}

// New creates a pipeline
func New(template string, runtime *models.RuntimeContext, fetcher ContextFetcher, generator Generator, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		template:  template,
		runtime:   runtime,
		fetcher:   fetcher,
		generator: generator,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Input builds the template variables for question from the runtime context
// and the fetched context text
func (p *Pipeline) Input(contextText, question string) models.PromptInput {
	return models.PromptInput{
		BotName:  p.runtime.BotName,
		Location: p.runtime.BotLocation,
		Date:     p.runtime.CurrentDate,
		Time:     p.runtime.CurrentTime,
		Context:  contextText,
		Question: question,
	}
}

// Answer runs the full pipeline for question
func (p *Pipeline) Answer(ctx context.Context, question string) (*models.InferenceResponse, error) {
	startTime := time.Now()

	contextText, err := p.fetcher.Fetch(ctx, p.runtime.ContextFileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch context: %w", err)
	}

	p.logger.Info().Int("length", len(contextText)).Msg("New context")
	p.logger.Debug().Str("context", contextText).Msg("Context text")

	input := p.Input(contextText, question)

	rendered, err := prompt.Render(p.template, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	text, err := p.generator.Generate(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	p.logger.Info().
		Int("length", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("New response")
	p.logger.Debug().Str("text", text).Msg("Response text")

	return &models.InferenceResponse{
		PromptInput: input,
		Text:        text,
	}, nil
}
