package llm

import (
	"context"

	"github.com/vecihi-bot/internal/models"
)

// Backend is one local inference runtime. Implementations make exactly one
// synchronous call per Generate and never stream.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req models.InferenceRequest) (string, error)
	Ping(ctx context.Context) error
}
