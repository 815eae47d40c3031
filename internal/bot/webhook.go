package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vecihi-bot/internal/models"
)

// Outcome is the plain text body returned to Telegram for each delivery
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeTimeout Outcome = "Timeout"
	OutcomeFailure Outcome = "Failure"
)

// maxUpdateBytes bounds the webhook body
const maxUpdateBytes = 1 << 20

// Webhook consumes Telegram webhook deliveries. The HTTP status is always
// 200 so Telegram never redelivers an update.
type Webhook struct {
	bot     *Bot
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup // Tracks updates still running after a timeout
}

// NewWebhook creates a webhook handler. A zero timeout leaves processing unbounded.
func NewWebhook(bot *Bot, timeout time.Duration, logger zerolog.Logger) *Webhook {
	return &Webhook{
		bot:     bot,
		timeout: timeout,
		logger:  logger.With().Str("component", "webhook").Logger(),
	}
}

// Process decodes and handles one update under the handler timeout. On
// timeout the update's context is cancelled and the work is abandoned in
// place; replies that were already sent stay sent.
func (w *Webhook) Process(ctx context.Context, body []byte) Outcome {
	w.logger.Info().Int("size", len(body)).Msg("New event")

	var cancel context.CancelFunc
	if w.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan error, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		done <- w.bot.recoverMiddleware(func() error {
			update, err := DecodeUpdate(body)
			if err != nil {
				return err
			}
			return w.bot.HandleUpdate(ctx, *update)
		})
	}()

	select {
	case err := <-done:
		if err == nil {
			return OutcomeSuccess
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			w.logger.Warn().Err(fmt.Errorf("%w: %v", models.ErrTimeout, err)).Dur("timeout", w.timeout).Msg("Update processing timed out")
			return OutcomeTimeout
		}
		w.logger.Error().Err(err).Msg("Handling failed")
		return OutcomeFailure

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			w.logger.Warn().Err(models.ErrTimeout).Dur("timeout", w.timeout).Msg("Update processing timed out")
			return OutcomeTimeout
		}
		w.logger.Error().Err(ctx.Err()).Msg("Update processing cancelled")
		return OutcomeFailure
	}
}

// Wait blocks until abandoned updates have finished
func (w *Webhook) Wait() {
	w.wg.Wait()
}

// ServeHTTP adapts Process to net/http
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var outcome Outcome
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxUpdateBytes))
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to read update body")
		outcome = OutcomeFailure
	} else {
		outcome = w.Process(r.Context(), body)
	}

	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, string(outcome))
}
