package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/vecihi-bot/internal/models"
)

// Sender delivers outbound chat messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Answerer produces the model answer for a user message
type Answerer interface {
	Answer(ctx context.Context, question string) (*models.InferenceResponse, error)
}

// Bot routes decoded Telegram updates and sends the replies
type Bot struct {
	sender   Sender
	answerer Answerer
	runtime  *models.RuntimeContext
	logger   zerolog.Logger
}

// NewAPI creates an authorized Telegram bot API client
func NewAPI(token string, debug bool, logger zerolog.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// Set debug mode based on log level
	api.Debug = debug

	logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authorized")

	return api, nil
}

// New creates a new bot instance
func New(sender Sender, answerer Answerer, runtime *models.RuntimeContext, logger zerolog.Logger) *Bot {
	return &Bot{
		sender:   sender,
		answerer: answerer,
		runtime:  runtime,
		logger:   logger.With().Str("component", "bot").Logger(),
	}
}

// SetWebhook registers url as the webhook for the bot
func SetWebhook(api *tgbotapi.BotAPI, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the registered webhook
func DeleteWebhook(api *tgbotapi.BotAPI) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}
